package session

import (
	"context"
	"testing"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/cache"
)

func TestState(t *testing.T) {
	ctx := context.Background()
	s := New(cache.NewMemory(), "alice")

	if _, ok, _ := s.ExpectedState(ctx, "vimeo"); ok {
		t.Fatal("state present before SetState")
	}

	_ = s.SetState(ctx, "vimeo", "s-vimeo")
	_ = s.SetState(ctx, "youtube", "s-youtube")

	if got, ok, _ := s.ExpectedState(ctx, "vimeo"); !ok || got != "s-vimeo" {
		t.Errorf("ExpectedState(vimeo) = %q, %v", got, ok)
	}
	if got, _, _ := s.ExpectedState(ctx, "youtube"); got != "s-youtube" {
		t.Errorf("ExpectedState(youtube) = %q; states of different vendors overwrote each other", got)
	}

	_ = s.ClearState(ctx, "vimeo")
	if _, ok, _ := s.ExpectedState(ctx, "vimeo"); ok {
		t.Error("state present after ClearState")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()

	_ = New(c, "alice").SetState(ctx, "vimeo", "a")
	if _, ok, _ := New(c, "bob").ExpectedState(ctx, "vimeo"); ok {
		t.Error("bob sees alice's state")
	}
}

func TestConsumeCode(t *testing.T) {
	ctx := context.Background()
	s := New(cache.NewMemory(), "alice")

	tests := []struct {
		name   string
		vendor string
		code   string
		want   bool
	}{
		{"first", "vimeo", "c1", true},
		{"replay", "vimeo", "c1", false},
		{"otherCode", "vimeo", "c2", true},
		{"otherVendor", "youtube", "c1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ConsumeCode(ctx, tt.vendor, tt.code)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ConsumeCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPendingOperations(t *testing.T) {
	ctx := context.Background()
	s := New(cache.NewMemory(), "alice")

	first, err := s.Suspend(ctx, Operation{Vendor: "vimeo", Fingerprint: "sha256:a", Kind: OpUpload, Path: "/a.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Errorf("Suspend() did not assign id and timestamp: %+v", first)
	}

	_, _ = s.Suspend(ctx, Operation{Vendor: "vimeo", Fingerprint: "sha256:b", Kind: OpUpload, Path: "/b.mp4"})
	dup, _ := s.Suspend(ctx, Operation{
		Vendor: "vimeo", Fingerprint: "sha256:a", Kind: OpUpload, Path: "/a.mp4",
		Metadata: asset.Metadata{Title: "renamed"},
	})
	if dup.ID != first.ID {
		t.Errorf("duplicate got new id %s, want %s", dup.ID, first.ID)
	}

	ops, err := s.Pending(ctx, "vimeo")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("Pending() returned %d ops, want 2", len(ops))
	}
	if ops[0].Fingerprint != "sha256:a" || ops[1].Fingerprint != "sha256:b" {
		t.Errorf("Pending() order = %s, %s", ops[0].Fingerprint, ops[1].Fingerprint)
	}
	if ops[0].Metadata.Title != "renamed" {
		t.Errorf("duplicate did not refresh metadata: %+v", ops[0].Metadata)
	}

	if other, _ := s.Pending(ctx, "youtube"); len(other) != 0 {
		t.Errorf("Pending(youtube) = %v, want none", other)
	}

	_ = s.Release(ctx, "vimeo", first.ID)
	ops, _ = s.Pending(ctx, "vimeo")
	if len(ops) != 1 || ops[0].Fingerprint != "sha256:b" {
		t.Errorf("Pending() after Release = %v", ops)
	}
	if err := s.Release(ctx, "vimeo", "missing"); err != nil {
		t.Errorf("Release() of unknown id error = %v", err)
	}
}

func TestParseOpKind(t *testing.T) {
	for _, in := range []string{"upload", "update", "remove"} {
		if _, err := ParseOpKind(in); err != nil {
			t.Errorf("ParseOpKind(%q) error = %v", in, err)
		}
	}
	if _, err := ParseOpKind("publish"); err == nil {
		t.Error("ParseOpKind(publish) should fail")
	}
}
