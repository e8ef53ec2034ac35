package distribution

import (
	"context"
	"fmt"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/store"
)

// Mapper binds the resource map to one vendor.
type Mapper struct {
	resources *store.Resources
	vendor    Vendor
}

func NewMapper(resources *store.Resources, v Vendor) *Mapper {
	return &Mapper{resources: resources, vendor: v}
}

func (m *Mapper) Remember(ctx context.Context, a *asset.Asset, id string) error {
	fp, err := a.Fingerprint()
	if err != nil {
		return err
	}
	return m.resources.Remember(ctx, fp, string(m.vendor), id)
}

func (m *Mapper) Retrieve(ctx context.Context, a *asset.Asset) (string, bool, error) {
	fp, err := a.Fingerprint()
	if err != nil {
		return "", false, err
	}
	return m.resources.Retrieve(ctx, fp, string(m.vendor))
}

func (m *Mapper) Forget(ctx context.Context, a *asset.Asset) error {
	fp, err := a.Fingerprint()
	if err != nil {
		return err
	}
	return m.resources.Forget(ctx, fp, string(m.vendor))
}

// Known returns the remembered id or ErrAssetUnknown.
func (m *Mapper) Known(ctx context.Context, a *asset.Asset) (string, error) {
	id, ok, err := m.Retrieve(ctx, a)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", m.vendor.DisplayName(), ErrAssetUnknown)
	}
	return id, nil
}

// Unknown fails with ErrAssetKnown when the asset already has an id.
func (m *Mapper) Unknown(ctx context.Context, a *asset.Asset) error {
	id, ok, err := m.Retrieve(ctx, a)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s: %w as %s", m.vendor.DisplayName(), ErrAssetKnown, id)
	}
	return nil
}
