package cache

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned when an Update keeps losing to concurrent writers.
	ErrConflict = errors.New("cache: update conflict")

	// ErrSkipWrite may be returned by an UpdateFunc to leave the entry as it is.
	ErrSkipWrite = errors.New("cache: skip write")
)

const maxUpdateAttempts = 32

// UpdateFunc receives the current value and returns the next one. A nil next
// value deletes the entry.
type UpdateFunc func(current []byte, found bool) (next []byte, err error)

// Cache is a durable key-value store. Update is an atomic read-modify-write:
// implementations use a transaction or compare-and-swap so concurrent writers
// to one key never lose updates.
type Cache interface {
	Fetch(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Contains(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

// apply runs fn and folds ErrSkipWrite into a no-op signal.
func apply(fn UpdateFunc, current []byte, found bool) (next []byte, write bool, err error) {
	next, err = fn(current, found)
	if errors.Is(err, ErrSkipWrite) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if next == nil && !found {
		return nil, false, nil
	}
	return next, true, nil
}

type namespaced struct {
	Cache
	prefix string
}

// Namespaced prefixes every key so independent stores can share one backend.
func Namespaced(c Cache, prefix string) Cache {
	return &namespaced{Cache: c, prefix: prefix}
}

func (n *namespaced) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	return n.Cache.Fetch(ctx, n.prefix+key)
}

func (n *namespaced) Save(ctx context.Context, key string, value []byte) error {
	return n.Cache.Save(ctx, n.prefix+key, value)
}

func (n *namespaced) Contains(ctx context.Context, key string) (bool, error) {
	return n.Cache.Contains(ctx, n.prefix+key)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.Cache.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return n.Cache.Update(ctx, n.prefix+key, fn)
}

// Close is a no-op: the shared backend is closed by whoever opened it.
func (n *namespaced) Close() error {
	return nil
}
