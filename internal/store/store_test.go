package store

import (
	"context"
	"strings"
	"testing"

	"assetdistributor/internal/cache"
)

func TestAccountsEmptyForUnknownOwner(t *testing.T) {
	s := NewCredentials(cache.NewMemory(), nil)

	accounts, err := s.Accounts(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Accounts() error = %v", err)
	}
	if accounts == nil || len(accounts) != 0 {
		t.Errorf("Accounts() = %v, want empty map", accounts)
	}
}

func TestSetAccountPersistsNewOwner(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	s := NewCredentials(c, nil)

	if err := s.SetAccount(ctx, "alice", "vimeo", "tok-v"); err != nil {
		t.Fatalf("SetAccount() error = %v", err)
	}
	if err := s.SetAccount(ctx, "alice", "youtube", "tok-y"); err != nil {
		t.Fatalf("SetAccount() error = %v", err)
	}

	// a fresh store over the same cache sees both entries
	accounts, err := NewCredentials(c, nil).Accounts(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if accounts["vimeo"] != "tok-v" || accounts["youtube"] != "tok-y" {
		t.Errorf("Accounts() = %v", accounts)
	}
}

func TestForgetAccount(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	s := NewCredentials(c, nil)

	_ = s.SetAccount(ctx, "alice", "vimeo", "tok")
	if err := s.ForgetAccount(ctx, "alice", "vimeo"); err != nil {
		t.Fatalf("ForgetAccount() error = %v", err)
	}
	if _, ok, _ := s.Account(ctx, "alice", "vimeo"); ok {
		t.Error("account still present after ForgetAccount")
	}
	if has, _ := c.Contains(ctx, "account:alice"); has {
		t.Error("empty owner entry left behind")
	}
	if err := s.ForgetAccount(ctx, "alice", "vimeo"); err != nil {
		t.Errorf("ForgetAccount() of missing account error = %v", err)
	}
}

func TestSealedCredentials(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()

	sealer, err := NewAESSealer([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatal(err)
	}
	s := NewCredentials(c, sealer)

	if err := s.SetAccount(ctx, "alice", "youtube", `{"access_token":"secret"}`); err != nil {
		t.Fatal(err)
	}

	raw, _, _ := c.Fetch(ctx, "account:alice")
	if strings.Contains(string(raw), "secret") {
		t.Errorf("credential stored in plaintext: %s", raw)
	}

	got, ok, err := s.Account(ctx, "alice", "youtube")
	if err != nil || !ok || got != `{"access_token":"secret"}` {
		t.Errorf("Account() = %q, %v, %v", got, ok, err)
	}

	other, _ := NewAESSealer([]byte(strings.Repeat("x", 32)))
	if _, err := NewCredentials(c, other).Accounts(ctx, "alice"); err == nil {
		t.Error("Accounts() with the wrong key should fail")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"raw", strings.Repeat("a", 32), false},
		{"hex", strings.Repeat("ab", 32), false},
		{"base64", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", false},
		{"short", "tooshort", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(key) != 32 {
				t.Errorf("len(key) = %d, want 32", len(key))
			}
		})
	}
}

func TestResources(t *testing.T) {
	ctx := context.Background()
	r := NewResources(cache.NewMemory())
	fp := "sha256:abc"

	if _, ok, err := r.Retrieve(ctx, fp, "youtube"); ok || err != nil {
		t.Errorf("Retrieve() on empty map = %v, %v", ok, err)
	}
	if err := r.Forget(ctx, fp, "youtube"); err != nil {
		t.Errorf("Forget() on empty map error = %v", err)
	}

	_ = r.Remember(ctx, fp, "youtube", "yt-1")
	_ = r.Remember(ctx, fp, "vimeo", "/videos/9")

	if id, ok, _ := r.Retrieve(ctx, fp, "vimeo"); !ok || id != "/videos/9" {
		t.Errorf("Retrieve(vimeo) = %q, %v", id, ok)
	}

	_ = r.Forget(ctx, fp, "youtube")
	all, _ := r.List(ctx, fp)
	if len(all) != 1 || all["vimeo"] != "/videos/9" {
		t.Errorf("List() = %v", all)
	}
}

func TestOwnerAndFingerprintKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	creds := NewCredentials(c, nil)
	res := NewResources(c)

	_ = creds.SetAccount(ctx, "same", "vimeo", "credential")
	_ = res.Remember(ctx, "same", "vimeo", "resource")

	if got, _, _ := creds.Account(ctx, "same", "vimeo"); got != "credential" {
		t.Errorf("Account() = %q", got)
	}
	if got, _, _ := res.Retrieve(ctx, "same", "vimeo"); got != "resource" {
		t.Errorf("Retrieve() = %q", got)
	}
}
