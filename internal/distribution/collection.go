package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/moby/locker"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
)

// assetLocks is shared by every collection in the process so two collections
// touching the same asset still run one after the other.
var assetLocks = locker.New()

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Outcome is what one adapter did with the asset. URL is set for pending
// outcomes; Err for skipped and failed ones.
type Outcome struct {
	Vendor Vendor
	Status Status
	URL    string
	Err    error
}

func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	var ve *VendorError
	if errors.As(o.Err, &ve) {
		return ve.Message
	}
	return o.Err.Error()
}

type Result struct {
	Op          Op
	Fingerprint string
	Outcomes    []Outcome
}

func (r *Result) With(s Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

// Summary renders e.g. "2 succeeded, 1 failed: Vimeo: quota exceeded".
func (r *Result) Summary() string {
	if len(r.Outcomes) == 0 {
		return "no adapters"
	}

	var counts []string
	for _, s := range []Status{StatusSucceeded, StatusSkipped, StatusPending, StatusFailed} {
		if n := len(r.With(s)); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, s))
		}
	}
	summary := strings.Join(counts, ", ")

	failed := r.With(StatusFailed)
	if len(failed) == 0 {
		return summary
	}
	reasons := make([]string, 0, len(failed))
	for _, o := range failed {
		reasons = append(reasons, o.Vendor.DisplayName()+": "+o.Message())
	}
	return summary + ": " + strings.Join(reasons, "; ")
}

// Collection applies an operation to its adapters in insertion order. One
// adapter failing never stops the others.
type Collection struct {
	mu       sync.RWMutex
	adapters []Adapter
}

func NewCollection(adapters ...Adapter) *Collection {
	c := &Collection{}
	for _, ad := range adapters {
		if ad != nil {
			c.adapters = append(c.adapters, ad)
		}
	}
	return c
}

func (c *Collection) Add(ad Adapter) error {
	if ad == nil {
		return errors.New("cannot add nil adapter")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters = append(c.adapters, ad)
	return nil
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.adapters)
}

func (c *Collection) Adapters() []Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.adapters)
}

func (c *Collection) Find(v Vendor) (Adapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ad := range c.adapters {
		if ad.Vendor() == v {
			return ad, true
		}
	}
	return nil, false
}

func (c *Collection) Upload(ctx context.Context, a *asset.Asset) (*Result, error) {
	return c.Run(ctx, OpUpload, a)
}

func (c *Collection) Update(ctx context.Context, a *asset.Asset) (*Result, error) {
	return c.Run(ctx, OpUpdate, a)
}

func (c *Collection) Remove(ctx context.Context, a *asset.Asset) (*Result, error) {
	return c.Run(ctx, OpRemove, a)
}

// Run applies op to every adapter. The returned error is non-nil only when
// every adapter failed; the Result is returned either way.
func (c *Collection) Run(ctx context.Context, op Op, a *asset.Asset) (*Result, error) {
	fp, err := a.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", a.Path(), err)
	}

	assetLocks.Lock(fp)
	defer func() { _ = assetLocks.Unlock(fp) }()

	result := &Result{Op: op, Fingerprint: fp}
	for _, ad := range c.Adapters() {
		o := outcome(ad.Vendor(), Run(ctx, ad, op, a))
		result.Outcomes = append(result.Outcomes, o)
		logOutcome(op, a, o)
	}

	return result, aggregate(result)
}

func outcome(v Vendor, err error) Outcome {
	o := Outcome{Vendor: v, Err: err}

	var required *auth.RequiredError
	switch {
	case err == nil:
		o.Status = StatusSucceeded
	case errors.As(err, &required):
		o.Status = StatusPending
		o.URL = required.URL
		o.Err = nil
	case errors.Is(err, ErrAssetKnown), errors.Is(err, ErrUnsupportedByAdapter):
		o.Status = StatusSkipped
	default:
		o.Status = StatusFailed
	}
	return o
}

func logOutcome(op Op, a *asset.Asset, o Outcome) {
	attrs := []any{"op", op, "vendor", o.Vendor, "asset", a.Path()}
	switch o.Status {
	case StatusSucceeded:
		slog.Info("Distributed asset", attrs...)
	case StatusSkipped:
		slog.Info("Skipped asset", append(attrs, "reason", o.Err)...)
	case StatusPending:
		slog.Info("Waiting for authorization", append(attrs, "url", o.URL)...)
	case StatusFailed:
		slog.Warn("Distribution failed", append(attrs, "error", o.Err)...)
	}
}

func aggregate(r *Result) error {
	failed := r.With(StatusFailed)
	if len(failed) == 0 || len(failed) < len(r.Outcomes) {
		return nil
	}

	var errs *multierror.Error
	for _, o := range failed {
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", o.Vendor.DisplayName(), o.Err))
	}
	return errs.ErrorOrNil()
}
