package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCS stores one object per key. Update relies on generation preconditions.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Cache = (*GCS)(nil)

func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCS{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (g *GCS) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.prefix + key)
}

func (g *GCS) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	data, _, found, err := g.read(ctx, g.object(key))
	return data, found, err
}

func (g *GCS) read(ctx context.Context, obj *storage.ObjectHandle) ([]byte, int64, bool, error) {
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("gcs read: %w", err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, false, fmt.Errorf("gcs read: %w", err)
	}
	return data, r.Attrs.Generation, true, nil
}

func (g *GCS) Save(ctx context.Context, key string, value []byte) error {
	return g.write(ctx, g.object(key), value)
}

func (g *GCS) write(ctx context.Context, obj *storage.ObjectHandle, value []byte) error {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

func (g *GCS) Contains(ctx context.Context, key string) (bool, error) {
	_, err := g.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Update(ctx context.Context, key string, fn UpdateFunc) error {
	for range maxUpdateAttempts {
		obj := g.object(key)

		current, generation, found, err := g.read(ctx, obj)
		if err != nil {
			return err
		}

		next, write, err := apply(fn, current, found)
		if err != nil || !write {
			return err
		}

		cond := storage.Conditions{DoesNotExist: true}
		if found {
			cond = storage.Conditions{GenerationMatch: generation}
		}

		if next == nil {
			err = obj.If(cond).Delete(ctx)
		} else {
			err = g.write(ctx, obj.If(cond), next)
		}

		if isPreconditionFailure(err) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func isPreconditionFailure(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
