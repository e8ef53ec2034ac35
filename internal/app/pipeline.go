package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
	"assetdistributor/internal/distribution"
	"assetdistributor/internal/session"
)

var (
	ErrNoVendors     = errors.New("no vendors to distribute to")
	ErrAssetModified = errors.New("asset changed since the operation was suspended")
)

type Pipeline struct {
	service *Service
}

// Request describes one distribution. With no Vendors the owner's already
// authorized vendors are used.
type Request struct {
	Owner    string
	Path     string
	Metadata asset.Metadata
	Vendors  []distribution.Vendor
	Op       distribution.Op
}

// Account is one vendor's connection state for an owner.
type Account struct {
	Vendor     distribution.Vendor
	Configured bool
	Connected  bool
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service}
}

// Distribute applies the request's operation through every selected vendor.
// Vendors waiting for authorization have the operation suspended in the
// owner's session so Resume can replay it.
func (pipeline *Pipeline) Distribute(ctx context.Context, req Request) (*distribution.Result, error) {
	kind, err := session.ParseOpKind(string(req.Op))
	if err != nil {
		return nil, err
	}

	path, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", req.Path, err)
	}
	a, err := pipeline.service.Factory().Build(path, req.Metadata)
	if err != nil {
		return nil, err
	}

	owner := pipeline.service.Owner(req.Owner)
	collection, err := pipeline.collection(ctx, owner, a, req.Vendors)
	if err != nil {
		return nil, err
	}
	if collection.Len() == 0 {
		return nil, ErrNoVendors
	}
	owner.SetAdapters(collection)

	slog.Info("Distributing asset", "op", req.Op, "asset", a.Path(), "kind", a.Kind(), "vendors", collection.Len())
	result, runErr := collection.Run(ctx, req.Op, a)
	if result == nil {
		return nil, runErr
	}

	sess := pipeline.service.Session(owner.ID())
	for _, o := range result.With(distribution.StatusPending) {
		op, err := sess.Suspend(ctx, session.Operation{
			Owner:       owner.ID(),
			Vendor:      string(o.Vendor),
			Fingerprint: result.Fingerprint,
			Kind:        kind,
			Path:        a.Path(),
			Metadata:    a.Metadata(),
		})
		if err != nil {
			return result, fmt.Errorf("failed to suspend %s operation: %w", o.Vendor.DisplayName(), err)
		}
		slog.Debug("Suspended operation", "vendor", o.Vendor, "id", op.ID)
	}

	return result, runErr
}

func (pipeline *Pipeline) collection(ctx context.Context, owner *distribution.Owner, a *asset.Asset, vendors []distribution.Vendor) (*distribution.Collection, error) {
	registry := pipeline.service.Registry()
	depsFor := pipeline.service.DepsFor(owner)
	if len(vendors) == 0 {
		return distribution.RetrieveFromCache(ctx, owner, registry, depsFor)
	}
	return distribution.BuildForAsset(a, unique(vendors), registry, depsFor)
}

func unique(vendors []distribution.Vendor) []distribution.Vendor {
	out := make([]distribution.Vendor, 0, len(vendors))
	for _, v := range vendors {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func (pipeline *Pipeline) adapter(owner *distribution.Owner, v distribution.Vendor) (distribution.Adapter, error) {
	registry := pipeline.service.Registry()
	if !registry.Has(v) {
		return nil, fmt.Errorf("vendor %s is not registered", v)
	}
	deps, err := pipeline.service.DepsFor(owner)(v)
	if err != nil {
		return nil, err
	}
	return registry.Build(v, deps)
}

// Authorize starts the vendor's authorization. It returns the consent URL,
// or "" when the owner is already authorized.
func (pipeline *Pipeline) Authorize(ctx context.Context, ownerID string, v distribution.Vendor) (string, error) {
	ad, err := pipeline.adapter(pipeline.service.Owner(ownerID), v)
	if err != nil {
		return "", err
	}

	err = ad.Authenticate(ctx)
	var required *auth.RequiredError
	switch {
	case err == nil:
		return "", nil
	case errors.As(err, &required):
		return required.URL, nil
	default:
		return "", err
	}
}

// Resume completes the vendor's authorization from a redirect return and
// replays the operations suspended for it.
func (pipeline *Pipeline) Resume(ctx context.Context, ownerID string, v distribution.Vendor, cb auth.Callback) (*distribution.Result, error) {
	owner := pipeline.service.Owner(ownerID)
	ad, err := pipeline.adapter(owner, v)
	if err != nil {
		return nil, err
	}
	if err := ad.Complete(ctx, cb); err != nil {
		return nil, err
	}

	sess := pipeline.service.Session(owner.ID())
	ops, err := sess.Pending(ctx, string(v))
	if err != nil {
		return nil, err
	}

	result := &distribution.Result{}
	collection := distribution.NewCollection(ad)
	for _, op := range ops {
		outcome, release := pipeline.replay(ctx, collection, op)
		result.Outcomes = append(result.Outcomes, outcome)
		if result.Op == "" {
			result.Op = distribution.Op(op.Kind)
			result.Fingerprint = op.Fingerprint
		}
		if release {
			if err := sess.Release(ctx, string(v), op.ID); err != nil {
				return result, fmt.Errorf("failed to release operation %s: %w", op.ID, err)
			}
		}
	}

	slog.Info("Resumed pending operations", "vendor", v, "owner", owner.ID(), "count", len(ops), "result", result.Summary())
	return result, nil
}

// replay runs one suspended operation. The record is released unless the
// vendor asks for authorization again.
func (pipeline *Pipeline) replay(ctx context.Context, collection *distribution.Collection, op session.Operation) (distribution.Outcome, bool) {
	v := distribution.Vendor(op.Vendor)

	a, err := pipeline.service.Factory().Build(op.Path, op.Metadata)
	if err != nil {
		return distribution.Outcome{Vendor: v, Status: distribution.StatusFailed, Err: err}, true
	}
	fp, err := a.Fingerprint()
	if err != nil {
		return distribution.Outcome{Vendor: v, Status: distribution.StatusFailed, Err: err}, true
	}
	if fp != op.Fingerprint {
		slog.Warn("Dropping suspended operation", "vendor", v, "path", op.Path, "error", ErrAssetModified)
		return distribution.Outcome{Vendor: v, Status: distribution.StatusFailed, Err: ErrAssetModified}, true
	}

	replayed, _ := collection.Run(ctx, distribution.Op(op.Kind), a)
	if replayed == nil || len(replayed.Outcomes) == 0 {
		return distribution.Outcome{Vendor: v, Status: distribution.StatusFailed, Err: errors.New("operation was not replayed")}, true
	}
	outcome := replayed.Outcomes[0]
	return outcome, outcome.Status != distribution.StatusPending
}

// Pending lists the owner's suspended operations for v.
func (pipeline *Pipeline) Pending(ctx context.Context, ownerID string, v distribution.Vendor) ([]session.Operation, error) {
	return pipeline.service.Session(ownerID).Pending(ctx, string(v))
}

// Accounts reports, for every registered vendor, whether the owner holds a
// credential for it.
func (pipeline *Pipeline) Accounts(ctx context.Context, ownerID string) ([]Account, error) {
	connected, err := pipeline.service.Owner(ownerID).Accounts(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []Account
	for _, v := range pipeline.service.Registry().Vendors() {
		vc, _ := pipeline.service.Config().Vendors.Get(string(v))
		_, ok := connected[v]
		accounts = append(accounts, Account{Vendor: v, Configured: vc.Configured(), Connected: ok})
	}
	return accounts, nil
}

// Disconnect forgets the owner's credential for v. Remote resources are left
// untouched.
func (pipeline *Pipeline) Disconnect(ctx context.Context, ownerID string, v distribution.Vendor) error {
	return pipeline.service.Owner(ownerID).ForgetAccount(ctx, v)
}

// Resources lists where the file at path is published, keyed by vendor.
func (pipeline *Pipeline) Resources(ctx context.Context, path string) (map[distribution.Vendor]string, error) {
	a, err := pipeline.service.Factory().Build(path, asset.Metadata{})
	if err != nil {
		return nil, err
	}
	fp, err := a.Fingerprint()
	if err != nil {
		return nil, err
	}

	ids, err := pipeline.service.Resources().List(ctx, fp)
	if err != nil {
		return nil, err
	}
	out := make(map[distribution.Vendor]string, len(ids))
	for v, id := range ids {
		out[distribution.Vendor(v)] = id
	}
	return out, nil
}
