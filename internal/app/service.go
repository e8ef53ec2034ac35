package app

import (
	"net/http"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/cache"
	"assetdistributor/internal/distribution"
	"assetdistributor/internal/session"
	"assetdistributor/internal/store"
	"assetdistributor/pkg/config"
)

type Service struct {
	cfg         *config.Config
	cache       cache.Cache
	credentials *store.Credentials
	resources   *store.Resources
	registry    *distribution.Registry
	categories  *asset.Categories
	factory     *asset.Factory
	clients     map[distribution.Vendor]*http.Client
}

type ServiceOptions struct {
	Config      *config.Config
	Cache       cache.Cache
	Credentials *store.Credentials
	Resources   *store.Resources
	Registry    *distribution.Registry
	Categories  *asset.Categories
	Factory     *asset.Factory
	// Clients carries the per-vendor transport; vendors without one use
	// http.DefaultClient.
	Clients map[distribution.Vendor]*http.Client
}

func NewService(opts ServiceOptions) *Service {
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Credentials == nil {
		opts.Credentials = store.NewCredentials(opts.Cache, nil)
	}
	if opts.Resources == nil {
		opts.Resources = store.NewResources(opts.Cache)
	}
	if opts.Categories == nil {
		opts.Categories = asset.NewCategories()
	}
	if opts.Factory == nil {
		opts.Factory = asset.NewFactory(nil)
	}
	return &Service{
		cfg:         opts.Config,
		cache:       opts.Cache,
		credentials: opts.Credentials,
		resources:   opts.Resources,
		registry:    opts.Registry,
		categories:  opts.Categories,
		factory:     opts.Factory,
		clients:     opts.Clients,
	}
}

func (s *Service) Config() *config.Config                { return s.cfg }
func (s *Service) Cache() cache.Cache                    { return s.cache }
func (s *Service) Resources() *store.Resources           { return s.resources }
func (s *Service) Registry() *distribution.Registry      { return s.registry }
func (s *Service) Categories() *asset.Categories         { return s.categories }
func (s *Service) Factory() *asset.Factory               { return s.factory }
func (s *Service) Credentials() *store.Credentials       { return s.credentials }
func (s *Service) Session(owner string) *session.Session { return session.New(s.cache, owner) }

func (s *Service) Owner(id string) *distribution.Owner {
	return distribution.NewOwner(id, s.credentials)
}

// DepsFor resolves adapter dependencies for the owner, one vendor at a time.
func (s *Service) DepsFor(owner *distribution.Owner) distribution.DepsFunc {
	return func(v distribution.Vendor) (distribution.Deps, error) {
		cfg, _ := s.cfg.Vendors.Get(string(v))
		return distribution.Deps{
			Owner:      owner,
			Config:     cfg,
			Session:    s.Session(owner.ID()),
			Categories: s.categories,
			Resources:  s.resources,
			HTTPClient: s.clients[v],
		}, nil
	}
}

func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}
