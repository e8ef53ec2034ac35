package distribution

import (
	"context"
	"sync"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
	"assetdistributor/internal/store"
)

// Owner is the identity assets are distributed for. It scopes the shared
// credential store to its id and delegates operations to its adapters.
type Owner struct {
	id          string
	credentials *store.Credentials

	mu       sync.RWMutex
	adapters *Collection
}

func NewOwner(id string, credentials *store.Credentials) *Owner {
	return &Owner{id: id, credentials: credentials, adapters: NewCollection()}
}

func (o *Owner) ID() string {
	return o.id
}

func (o *Owner) Accounts(ctx context.Context) (map[Vendor]string, error) {
	raw, err := o.credentials.Accounts(ctx, o.id)
	if err != nil {
		return nil, err
	}
	accounts := make(map[Vendor]string, len(raw))
	for v, credential := range raw {
		accounts[Vendor(v)] = credential
	}
	return accounts, nil
}

func (o *Owner) Account(ctx context.Context, v Vendor) (string, bool, error) {
	return o.credentials.Account(ctx, o.id, string(v))
}

func (o *Owner) SetAccount(ctx context.Context, v Vendor, credential string) error {
	return o.credentials.SetAccount(ctx, o.id, string(v), credential)
}

func (o *Owner) ForgetAccount(ctx context.Context, v Vendor) error {
	return o.credentials.ForgetAccount(ctx, o.id, string(v))
}

// Credential returns the owner's credential slot for v.
func (o *Owner) Credential(v Vendor) auth.Credential {
	return &credentialSlot{owner: o, vendor: v}
}

func (o *Owner) Adapters() *Collection {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.adapters
}

func (o *Owner) SetAdapters(c *Collection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.adapters = c
}

func (o *Owner) AddAdapter(ad Adapter) error {
	return o.Adapters().Add(ad)
}

func (o *Owner) Upload(ctx context.Context, a *asset.Asset) (*Result, error) {
	return o.Adapters().Upload(ctx, a)
}

func (o *Owner) Update(ctx context.Context, a *asset.Asset) (*Result, error) {
	return o.Adapters().Update(ctx, a)
}

func (o *Owner) Remove(ctx context.Context, a *asset.Asset) (*Result, error) {
	return o.Adapters().Remove(ctx, a)
}

type credentialSlot struct {
	owner  *Owner
	vendor Vendor
}

func (s *credentialSlot) Load(ctx context.Context) (string, bool, error) {
	return s.owner.Account(ctx, s.vendor)
}

func (s *credentialSlot) Store(ctx context.Context, credential string) error {
	return s.owner.SetAccount(ctx, s.vendor, credential)
}
