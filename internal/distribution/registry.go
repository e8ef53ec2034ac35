package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/session"
	"assetdistributor/internal/store"
	"assetdistributor/pkg/config"
)

// Deps is everything an adapter constructor may need.
type Deps struct {
	Owner      *Owner
	Config     config.VendorConfig
	Session    *session.Session
	Categories *asset.Categories
	Resources  *store.Resources
	HTTPClient *http.Client
}

type Constructor func(Deps) (Adapter, error)

// DepsFunc resolves the dependencies for one vendor.
type DepsFunc func(v Vendor) (Deps, error)

// Registry maps vendors to adapter constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[Vendor]Constructor
	order        []Vendor
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[Vendor]Constructor)}
}

// Register panics if v is registered twice or c is nil.
func (r *Registry) Register(v Vendor, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c == nil {
		panic("distribution: Register constructor is nil for " + string(v))
	}
	if _, dup := r.constructors[v]; dup {
		panic("distribution: Register called twice for " + string(v))
	}
	r.constructors[v] = c
	r.order = append(r.order, v)
}

// Vendors lists registered vendors in registration order.
func (r *Registry) Vendors() []Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *Registry) Has(v Vendor) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[v]
	return ok
}

func (r *Registry) Build(v Vendor, deps Deps) (Adapter, error) {
	r.mu.RLock()
	c, ok := r.constructors[v]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for vendor %q", v)
	}

	ad, err := c(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s adapter: %w", v.DisplayName(), err)
	}
	return ad, nil
}

// BuildForAsset builds one adapter per vendor that supports a. Unsupported
// vendors are left out without error.
func BuildForAsset(a *asset.Asset, vendors []Vendor, r *Registry, depsFor DepsFunc) (*Collection, error) {
	c := NewCollection()
	for _, v := range vendors {
		deps, err := depsFor(v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s dependencies: %w", v.DisplayName(), err)
		}
		ad, err := r.Build(v, deps)
		if err != nil {
			return nil, err
		}
		if !ad.Support(a) {
			slog.Debug("Vendor does not support asset", "vendor", v, "kind", a.Kind())
			continue
		}
		_ = c.Add(ad)
	}
	return c, nil
}

// RetrieveFromCache builds one adapter per vendor the owner has already
// authorized, in registry order. Support is checked when an operation runs.
func RetrieveFromCache(ctx context.Context, owner *Owner, r *Registry, depsFor DepsFunc) (*Collection, error) {
	accounts, err := owner.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	c := NewCollection()
	for _, v := range r.Vendors() {
		if _, ok := accounts[v]; !ok {
			continue
		}
		deps, err := depsFor(v)
		if err != nil {
			slog.Warn("Skipping authorized vendor", "vendor", v, "error", err)
			continue
		}
		ad, err := r.Build(v, deps)
		if err != nil {
			slog.Warn("Skipping authorized vendor", "vendor", v, "error", err)
			continue
		}
		_ = c.Add(ad)
	}

	for v := range accounts {
		if !r.Has(v) {
			slog.Warn("Owner has an account for an unregistered vendor", "owner", owner.ID(), "vendor", v)
		}
	}
	return c, nil
}
