package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 5 * time.Millisecond

// File keeps one JSON document per key under a directory. Writes go through a
// temp file and rename so a crash never leaves a torn entry. Writers hold an
// exclusive OS lock on the key's lock file, so several processes may share
// one directory.
type File struct {
	dir string
}

var _ Cache = (*File)(nil)

type fileEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	return f.load(key)
}

func (f *File) Save(ctx context.Context, key string, value []byte) error {
	unlock, err := f.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return f.store(key, value)
}

func (f *File) Contains(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (f *File) Delete(ctx context.Context, key string) error {
	unlock, err := f.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return f.remove(key)
}

func (f *File) Update(ctx context.Context, key string, fn UpdateFunc) error {
	unlock, err := f.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	current, found, err := f.load(key)
	if err != nil {
		return err
	}

	next, write, err := apply(fn, current, found)
	if err != nil || !write {
		return err
	}
	if next == nil {
		return f.remove(key)
	}
	return f.store(key, next)
}

func (f *File) Close() error {
	return nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, f.name(key)+".json")
}

func (f *File) name(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// lock takes the key's exclusive lock. Each call opens its own descriptor so
// goroutines and processes exclude each other alike. Lock files are never
// removed: deleting one while another writer waits on it would split the lock.
func (f *File) lock(ctx context.Context, key string) (func(), error) {
	fl := flock.New(filepath.Join(f.dir, f.name(key)+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		_ = fl.Close()
		return nil, fmt.Errorf("failed to lock cache entry %q: %w", key, err)
	}
	if !locked {
		_ = fl.Close()
		return nil, fmt.Errorf("failed to lock cache entry %q: %w", key, ctx.Err())
	}
	return func() { _ = fl.Unlock() }, nil
}

func (f *File) load(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to parse cache entry %q: %w", key, err)
	}
	return entry.Value, true, nil
}

func (f *File) store(key string, value []byte) error {
	data, err := json.MarshalIndent(fileEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

func (f *File) remove(key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
