package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"assetdistributor/pkg/config"
)

func runContract(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("fetchMissing", func(t *testing.T) {
		v, ok, err := c.Fetch(ctx, "missing")
		if err != nil || ok || v != nil {
			t.Errorf("Fetch(missing) = %q, %v, %v; want nil, false, nil", v, ok, err)
		}
	})

	t.Run("saveFetchContainsDelete", func(t *testing.T) {
		if err := c.Save(ctx, "account:alice", []byte(`{"vimeo":"tok"}`)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		v, ok, err := c.Fetch(ctx, "account:alice")
		if err != nil || !ok || string(v) != `{"vimeo":"tok"}` {
			t.Errorf("Fetch() = %q, %v, %v", v, ok, err)
		}

		if has, err := c.Contains(ctx, "account:alice"); err != nil || !has {
			t.Errorf("Contains() = %v, %v; want true", has, err)
		}

		if err := c.Delete(ctx, "account:alice"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if has, _ := c.Contains(ctx, "account:alice"); has {
			t.Error("Contains() = true after Delete")
		}
		if err := c.Delete(ctx, "account:alice"); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
	})

	t.Run("updateCreatesAndDeletes", func(t *testing.T) {
		err := c.Update(ctx, "counter", func(cur []byte, found bool) ([]byte, error) {
			if found {
				t.Errorf("found = true for a fresh key")
			}
			return []byte("1"), nil
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		err = c.Update(ctx, "counter", func(cur []byte, found bool) ([]byte, error) {
			if !found || string(cur) != "1" {
				t.Errorf("Update() saw %q, %v; want 1, true", cur, found)
			}
			return nil, nil
		})
		if err != nil {
			t.Fatalf("Update() delete error = %v", err)
		}

		if _, ok, _ := c.Fetch(ctx, "counter"); ok {
			t.Error("entry still present after Update returned nil")
		}
	})

	t.Run("updateSkipWrite", func(t *testing.T) {
		_ = c.Save(ctx, "skip", []byte("keep"))
		err := c.Update(ctx, "skip", func([]byte, bool) ([]byte, error) {
			return []byte("overwritten"), ErrSkipWrite
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if v, _, _ := c.Fetch(ctx, "skip"); string(v) != "keep" {
			t.Errorf("value = %q, want keep", v)
		}
	})

	t.Run("updatePropagatesError", func(t *testing.T) {
		boom := errors.New("boom")
		err := c.Update(ctx, "err", func([]byte, bool) ([]byte, error) { return nil, boom })
		if !errors.Is(err, boom) {
			t.Errorf("Update() error = %v, want boom", err)
		}
	})

	t.Run("concurrentUpdatesDoNotLoseWrites", func(t *testing.T) {
		const workers = 20
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.Update(ctx, "hits", func(cur []byte, found bool) ([]byte, error) {
					n := 0
					if found {
						n, _ = strconv.Atoi(string(cur))
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				if err != nil {
					t.Errorf("Update() error = %v", err)
				}
			}()
		}
		wg.Wait()

		v, _, _ := c.Fetch(ctx, "hits")
		if string(v) != strconv.Itoa(workers) {
			t.Errorf("hits = %s, want %d", v, workers)
		}
	})
}

func TestMemoryCache(t *testing.T) {
	runContract(t, NewMemory())
}

func TestFileCache(t *testing.T) {
	c, err := NewFile(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	runContract(t, c)
}

func TestFileCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := NewFile(dir)
	if err := first.Save(ctx, "resource:sha256:abc", []byte(`{"youtube":"yt-1"}`)); err != nil {
		t.Fatal(err)
	}

	second, _ := NewFile(dir)
	v, ok, err := second.Fetch(ctx, "resource:sha256:abc")
	if err != nil || !ok || string(v) != `{"youtube":"yt-1"}` {
		t.Errorf("Fetch() after reopen = %q, %v, %v", v, ok, err)
	}
}

func TestFileCacheHandlesShareLocks(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, _ := NewFile(dir)
	second, _ := NewFile(dir)

	const perHandle = 50
	var wg sync.WaitGroup
	for i, c := range []*File{first, second} {
		for j := range perHandle {
			wg.Add(1)
			go func() {
				defer wg.Done()
				vendor := fmt.Sprintf("vendor-%d-%d", i, j)
				err := c.Update(ctx, "account:alice", func(cur []byte, found bool) ([]byte, error) {
					accounts := map[string]string{}
					if found {
						if err := json.Unmarshal(cur, &accounts); err != nil {
							return nil, err
						}
					}
					accounts[vendor] = "tok"
					return json.Marshal(accounts)
				})
				if err != nil {
					t.Errorf("Update() error = %v", err)
				}
			}()
		}
	}
	wg.Wait()

	v, _, err := first.Fetch(ctx, "account:alice")
	if err != nil {
		t.Fatal(err)
	}
	var accounts map[string]string
	if err := json.Unmarshal(v, &accounts); err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2*perHandle {
		t.Errorf("accounts = %d, want %d", len(accounts), 2*perHandle)
	}
}

func TestFileCacheUpdateHonoursCancelledContext(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewFile(dir)

	unlock, err := c.lock(context.Background(), "busy")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Update(ctx, "busy", func([]byte, bool) ([]byte, error) { return []byte("x"), nil })
	if err == nil {
		t.Fatal("Update() succeeded while another writer held the lock")
	}
	if _, ok, _ := c.Fetch(context.Background(), "busy"); ok {
		t.Error("entry written without holding the lock")
	}
}

func TestSQLiteCache(t *testing.T) {
	c, err := NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	runContract(t, c)
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"plain", "cache.db", "cache.db?_txlock=immediate&_pragma=busy_timeout(5000)"},
		{"withQuery", "file:cache.db?mode=rwc", "file:cache.db?mode=rwc&_txlock=immediate&_pragma=busy_timeout(5000)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sqliteDSN(tt.dsn); got != tt.want {
				t.Errorf("sqliteDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestSQLiteHandlesShareOneDatabase(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := NewSQLite(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := NewSQLite(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	const perHandle = 25
	var wg sync.WaitGroup
	for _, c := range []*SQLite{first, second} {
		for range perHandle {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.Update(ctx, "hits", func(cur []byte, found bool) ([]byte, error) {
					n := 0
					if found {
						n, _ = strconv.Atoi(string(cur))
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				if err != nil {
					t.Errorf("Update() error = %v", err)
				}
			}()
		}
	}
	wg.Wait()

	v, _, _ := second.Fetch(ctx, "hits")
	if string(v) != strconv.Itoa(2*perHandle) {
		t.Errorf("hits = %s, want %d", v, 2*perHandle)
	}
}

func TestNamespacedKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	root := NewMemory()
	accounts := Namespaced(root, "account:")
	resources := Namespaced(root, "resource:")

	_ = accounts.Save(ctx, "same", []byte("owner"))
	_ = resources.Save(ctx, "same", []byte("asset"))

	a, _, _ := accounts.Fetch(ctx, "same")
	r, _, _ := resources.Fetch(ctx, "same")
	if string(a) != "owner" || string(r) != "asset" {
		t.Errorf("namespaces collided: %q %q", a, r)
	}
	if root.Len() != 2 {
		t.Errorf("root has %d keys, want 2", root.Len())
	}
	if has, _ := root.Contains(ctx, "account:same"); !has {
		t.Error("prefixed key not found in root")
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CacheConfig
		wantErr bool
	}{
		{"memory", config.CacheConfig{Backend: "memory"}, false},
		{"file", config.CacheConfig{Backend: "file", Dir: t.TempDir()}, false},
		{"sqlite", config.CacheConfig{Backend: "sqlite", DSN: filepath.Join(t.TempDir(), "c.db")}, false},
		{"prefixed", config.CacheConfig{Backend: "memory", Prefix: "tenant-a:"}, false},
		{"gcsWithoutBucket", config.CacheConfig{Backend: "gcs"}, true},
		{"s3WithoutBucket", config.CacheConfig{Backend: "s3"}, true},
		{"unknown", config.CacheConfig{Backend: "etcd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c != nil {
				_ = c.Save(context.Background(), "k", []byte("v"))
				if v, ok, _ := c.Fetch(context.Background(), "k"); !ok || string(v) != "v" {
					t.Errorf("round trip through %s failed", tt.name)
				}
				_ = c.Close()
			}
		})
	}
}
