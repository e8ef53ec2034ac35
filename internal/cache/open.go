package cache

import (
	"context"
	"fmt"

	"assetdistributor/pkg/config"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendGCS    Backend = "gcs"
	BackendS3     Backend = "s3"
)

// Open builds the cache backend named in the configuration.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	var (
		c   Cache
		err error
	)

	switch Backend(cfg.Backend) {
	case BackendMemory:
		c = NewMemory()
	case BackendFile, "":
		c, err = NewFile(cfg.Dir)
	case BackendSQLite:
		c, err = NewSQLite(ctx, cfg.DSN)
	case BackendRedis:
		r := NewRedis(RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL,
		})
		if err = r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
		}
		c = r
	case BackendGCS:
		if cfg.GCS.Bucket == "" {
			return nil, fmt.Errorf("cache.gcs.bucket is required for the gcs backend")
		}
		c, err = NewGCS(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix)
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("cache.s3.bucket is required for the s3 backend")
		}
		c, err = NewS3(ctx, S3Options{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Prefix != "" {
		return &prefixedRoot{Cache: Namespaced(c, cfg.Prefix), root: c}, nil
	}
	return c, nil
}

// prefixedRoot closes the underlying backend when a global prefix is applied.
type prefixedRoot struct {
	Cache
	root Cache
}

func (p *prefixedRoot) Close() error {
	return p.root.Close()
}
