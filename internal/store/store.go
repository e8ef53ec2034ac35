// Package store keeps the two maps the distributor depends on: per-owner
// vendor credentials and per-asset vendor resource identifiers. Both live in
// one cache under disjoint key prefixes.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"assetdistributor/internal/cache"
)

const (
	accountPrefix  = "account:"
	resourcePrefix = "resource:"
)

func decodeMap(data []byte, found bool) (map[string]string, error) {
	m := make(map[string]string)
	if !found || len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return m, nil
}

func encodeMap(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

// mutate applies fn to the map stored under key inside a single atomic
// cache update. Empty maps are deleted.
func mutate(ctx context.Context, c cache.Cache, key string, fn func(m map[string]string) bool) error {
	return c.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
		m, err := decodeMap(current, found)
		if err != nil {
			return nil, err
		}
		if !fn(m) {
			return nil, cache.ErrSkipWrite
		}
		return encodeMap(m)
	})
}

// Credentials maps an owner identity to vendor credentials.
type Credentials struct {
	cache  cache.Cache
	sealer Sealer
}

// NewCredentials stores credentials in plaintext when sealer is nil.
func NewCredentials(c cache.Cache, sealer Sealer) *Credentials {
	return &Credentials{cache: c, sealer: sealer}
}

// Accounts returns an empty map for an owner that never authorized a vendor.
func (s *Credentials) Accounts(ctx context.Context, owner string) (map[string]string, error) {
	data, found, err := s.cache.Fetch(ctx, accountPrefix+owner)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts for %s: %w", owner, err)
	}

	sealed, err := decodeMap(data, found)
	if err != nil {
		return nil, err
	}
	if s.sealer == nil {
		return sealed, nil
	}

	accounts := make(map[string]string, len(sealed))
	for vendor, blob := range sealed {
		credential, err := s.sealer.Open(blob)
		if err != nil {
			return nil, fmt.Errorf("open %s credential: %w", vendor, err)
		}
		accounts[vendor] = credential
	}
	return accounts, nil
}

func (s *Credentials) Account(ctx context.Context, owner, vendor string) (string, bool, error) {
	accounts, err := s.Accounts(ctx, owner)
	if err != nil {
		return "", false, err
	}
	credential, ok := accounts[vendor]
	return credential, ok, nil
}

// SetAccount always writes, creating the owner's entry when it is absent.
func (s *Credentials) SetAccount(ctx context.Context, owner, vendor, credential string) error {
	blob := credential
	if s.sealer != nil {
		var err error
		if blob, err = s.sealer.Seal(credential); err != nil {
			return fmt.Errorf("seal %s credential: %w", vendor, err)
		}
	}

	err := mutate(ctx, s.cache, accountPrefix+owner, func(m map[string]string) bool {
		m[vendor] = blob
		return true
	})
	if err != nil {
		return fmt.Errorf("save %s account for %s: %w", vendor, owner, err)
	}
	return nil
}

func (s *Credentials) ForgetAccount(ctx context.Context, owner, vendor string) error {
	err := mutate(ctx, s.cache, accountPrefix+owner, func(m map[string]string) bool {
		if _, ok := m[vendor]; !ok {
			return false
		}
		delete(m, vendor)
		return true
	})
	if err != nil {
		return fmt.Errorf("forget %s account for %s: %w", vendor, owner, err)
	}
	return nil
}

// Resources maps an asset fingerprint to vendor resource identifiers.
type Resources struct {
	cache cache.Cache
}

func NewResources(c cache.Cache) *Resources {
	return &Resources{cache: c}
}

func (r *Resources) Remember(ctx context.Context, fingerprint, vendor, id string) error {
	err := mutate(ctx, r.cache, resourcePrefix+fingerprint, func(m map[string]string) bool {
		m[vendor] = id
		return true
	})
	if err != nil {
		return fmt.Errorf("remember %s resource: %w", vendor, err)
	}
	return nil
}

func (r *Resources) Retrieve(ctx context.Context, fingerprint, vendor string) (string, bool, error) {
	all, err := r.List(ctx, fingerprint)
	if err != nil {
		return "", false, err
	}
	id, ok := all[vendor]
	return id, ok, nil
}

// Forget is a no-op when nothing was remembered.
func (r *Resources) Forget(ctx context.Context, fingerprint, vendor string) error {
	err := mutate(ctx, r.cache, resourcePrefix+fingerprint, func(m map[string]string) bool {
		if _, ok := m[vendor]; !ok {
			return false
		}
		delete(m, vendor)
		return true
	})
	if err != nil {
		return fmt.Errorf("forget %s resource: %w", vendor, err)
	}
	return nil
}

func (r *Resources) List(ctx context.Context, fingerprint string) (map[string]string, error) {
	data, found, err := r.cache.Fetch(ctx, resourcePrefix+fingerprint)
	if err != nil {
		return nil, fmt.Errorf("fetch resources: %w", err)
	}
	m, err := decodeMap(data, found)
	if err != nil {
		return nil, err
	}
	return maps.Clone(m), nil
}
