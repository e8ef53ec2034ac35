package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)
	return tmp
}

func TestLoadFromYAML(t *testing.T) {
	tmp := chdirTemp(t)

	yaml := `
owner: alice
cache:
  backend: redis
  ttl: 24h
  redis:
    addr: redis.internal:6379
    db: 2
vendors:
  vimeo:
    scopes: [upload]
    categories:
      sports: /categories/sports
  dailymotion:
    disabled: true
http:
  max_retries: 5
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Owner != "alice" {
		t.Errorf("Owner = %q, want alice", cfg.Owner)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want redis", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Cache.Redis.Addr != "redis.internal:6379" || cfg.Cache.Redis.DB != 2 {
		t.Errorf("Cache.Redis = %+v", cfg.Cache.Redis)
	}
	if len(cfg.Vendors.Vimeo.Scopes) != 1 || cfg.Vendors.Vimeo.Scopes[0] != "upload" {
		t.Errorf("Vimeo.Scopes = %v, want [upload]", cfg.Vendors.Vimeo.Scopes)
	}
	if got := cfg.Vendors.Vimeo.Categories["sports"]; got != "/categories/sports" {
		t.Errorf("Vimeo.Categories[sports] = %q", got)
	}
	if !cfg.Vendors.Dailymotion.Disabled {
		t.Error("Dailymotion.Disabled = false, want true")
	}
	if cfg.HTTP.MaxRetries != 5 {
		t.Errorf("HTTP.MaxRetries = %d, want 5", cfg.HTTP.MaxRetries)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("owner: bob\n"), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"cacheBackend", cfg.Cache.Backend, defaultCacheBackend},
		{"callbackAddr", cfg.Callback.Addr, defaultCallbackAddr},
		{"httpTimeout", cfg.HTTP.Timeout, defaultHTTPTimeout},
		{"youtubeRedirect", cfg.Vendors.YouTube.RedirectURL, "http://localhost:8085/callback/youtube"},
		{"vimeoAPIBase", cfg.Vendors.Vimeo.APIBase, defaultVimeoAPIBase},
		{"dailymotionScopes", fmt.Sprint(cfg.Vendors.Dailymotion.Scopes), "[manage_videos]"},
		{"dailymotionRateLimit", cfg.Vendors.Dailymotion.RateLimit, defaultRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("owner: x\n"), 0644)

	t.Setenv("YOUTUBE_CLIENT_ID", "yt-id")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "yt-secret")
	t.Setenv("DAILYMOTION_API_KEY", "dm-key")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	t.Setenv("ASSETDIST_OWNER", "carol")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !cfg.Vendors.YouTube.Configured() {
		t.Error("YouTube.Configured() = false, want true")
	}
	if cfg.Vendors.Dailymotion.ClientID != "dm-key" {
		t.Errorf("Dailymotion.ClientID = %q, want dm-key", cfg.Vendors.Dailymotion.ClientID)
	}
	if cfg.Vendors.Dailymotion.Configured() {
		t.Error("Dailymotion.Configured() = true without a secret")
	}
	if cfg.GCPProject != "test-project" {
		t.Errorf("GCPProject = %q, want test-project", cfg.GCPProject)
	}
	if cfg.Owner != "carol" {
		t.Errorf("Owner = %q, want carol", cfg.Owner)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load(context.Background())
	if err == nil {
		t.Error("Load() should fail when config.yaml missing")
	}
}

func TestLoadCustomConfigPath(t *testing.T) {
	tmp := chdirTemp(t)
	path := filepath.Join(tmp, "custom.yaml")
	_ = os.WriteFile(path, []byte("owner: dave\n"), 0644)
	t.Setenv("ASSETDIST_CONFIG", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Owner != "dave" {
		t.Errorf("Owner = %q, want dave", cfg.Owner)
	}
}

type fakeAccessor struct {
	values map[string]string
	closed bool
}

func (f *fakeAccessor) Access(_ context.Context, name string) (string, error) {
	v, ok := f.values[name]
	if !ok {
		return "", fmt.Errorf("secret %s not found", name)
	}
	return v, nil
}

func (f *fakeAccessor) Close() error {
	f.closed = true
	return nil
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("owner: x\n"), 0644)

	fake := &fakeAccessor{values: map[string]string{
		"projects/p/secrets/vimeo/versions/latest": "resolved-secret",
	}}
	orig := newSecretAccessor
	newSecretAccessor = func(context.Context) (secretAccessor, error) { return fake, nil }
	t.Cleanup(func() { newSecretAccessor = orig })

	t.Setenv("VIMEO_CLIENT_ID", "vimeo-id")
	t.Setenv("VIMEO_CLIENT_SECRET", "sm://projects/p/secrets/vimeo/versions/latest")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Vendors.Vimeo.ClientSecret != "resolved-secret" {
		t.Errorf("Vimeo.ClientSecret = %q, want resolved-secret", cfg.Vendors.Vimeo.ClientSecret)
	}
	if !fake.closed {
		t.Error("secret accessor was not closed")
	}
}

func TestLoadUnknownSecretFails(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("owner: x\n"), 0644)

	orig := newSecretAccessor
	newSecretAccessor = func(context.Context) (secretAccessor, error) {
		return &fakeAccessor{values: map[string]string{}}, nil
	}
	t.Cleanup(func() { newSecretAccessor = orig })

	t.Setenv("ASSETDIST_ENCRYPTION_KEY", "sm://projects/p/secrets/missing/versions/1")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() should fail when a secret cannot be resolved")
	}
}

func TestVendorsConfigGet(t *testing.T) {
	v := VendorsConfig{Vimeo: VendorConfig{APIBase: "https://vimeo.test"}}

	tests := []struct {
		name   string
		vendor string
		wantOK bool
	}{
		{"youtube", "youtube", true},
		{"mixedCase", "Vimeo", true},
		{"dailymotion", "dailymotion", true},
		{"unknown", "myspace", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := v.Get(tt.vendor)
			if ok != tt.wantOK {
				t.Errorf("Get(%q) ok = %v, want %v", tt.vendor, ok, tt.wantOK)
			}
		})
	}

	if got, _ := v.Get("vimeo"); got.APIBase != "https://vimeo.test" {
		t.Errorf("Get(vimeo).APIBase = %q", got.APIBase)
	}
}
