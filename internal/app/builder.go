package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/cache"
	"assetdistributor/internal/distribution"
	"assetdistributor/internal/distribution/dailymotion"
	"assetdistributor/internal/distribution/vimeo"
	"assetdistributor/internal/distribution/youtube"
	"assetdistributor/internal/store"
	"assetdistributor/pkg/config"
	"assetdistributor/pkg/httputil"
)

// NewRegistry registers every vendor this build knows about, in the order
// RetrieveFromCache follows.
func NewRegistry() *distribution.Registry {
	r := distribution.NewRegistry()
	r.Register(distribution.YouTube, youtube.Constructor)
	r.Register(distribution.Vimeo, vimeo.Constructor)
	r.Register(distribution.Dailymotion, dailymotion.Constructor)
	return r
}

// NewCategories loads the built-in category maps and applies the
// configuration's overrides on top.
func NewCategories(cfg *config.Config) *asset.Categories {
	c := asset.NewCategories()
	c.Register(string(distribution.YouTube), youtube.DefaultCategories)
	c.Register(string(distribution.Vimeo), vimeo.DefaultCategories)

	for _, v := range []distribution.Vendor{distribution.YouTube, distribution.Vimeo, distribution.Dailymotion} {
		vc, _ := cfg.Vendors.Get(string(v))
		if len(vc.Categories) > 0 {
			c.Register(string(v), vc.Categories)
		}
	}
	return c
}

func newVendorClient(cfg *config.Config, vc config.VendorConfig) *http.Client {
	retry := httputil.NewRetryClient(&http.Client{Timeout: cfg.HTTP.Timeout}, httputil.RetryConfig{
		MaxRetries:    cfg.HTTP.MaxRetries,
		RatePerSecond: vc.RateLimit,
		Burst:         vc.Burst,
	})
	return retry.HTTPClient()
}

func newCredentials(cfg *config.Config, c cache.Cache) (*store.Credentials, error) {
	if cfg.EncryptionKey == "" {
		slog.Debug("No encryption key configured, credentials are stored in plain text")
		return store.NewCredentials(c, nil), nil
	}

	key, err := store.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ASSETDIST_ENCRYPTION_KEY: %w", err)
	}
	sealer, err := store.NewAESSealer(key)
	if err != nil {
		return nil, err
	}
	return store.NewCredentials(c, sealer), nil
}

func BuildService(ctx context.Context, cfg *config.Config) (*Service, error) {
	c, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Cache.Backend, err)
	}

	credentials, err := newCredentials(cfg, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	registry := NewRegistry()
	clients := make(map[distribution.Vendor]*http.Client)
	for _, v := range registry.Vendors() {
		vc, _ := cfg.Vendors.Get(string(v))
		clients[v] = newVendorClient(cfg, vc)
		if !vc.Configured() {
			slog.Debug("Vendor not configured", "vendor", v)
		}
	}

	return NewService(ServiceOptions{
		Config:      cfg,
		Cache:       c,
		Credentials: credentials,
		Resources:   store.NewResources(c),
		Registry:    registry,
		Categories:  NewCategories(cfg),
		Factory:     asset.NewFactory(nil),
		Clients:     clients,
	}), nil
}
