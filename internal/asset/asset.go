package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var ErrUnsupportedKind = errors.New("unsupported asset kind")

type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
	Hidden  Visibility = "hidden"
)

func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return Public, nil
	case Public, Private, Hidden:
		return v, nil
	default:
		return "", fmt.Errorf("unknown visibility %q", s)
	}
}

// Metadata is the mutable, vendor-facing description of an asset.
type Metadata struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Category    string     `json:"category,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`
}

// Asset is a media file plus metadata. The file reference is fixed at
// construction; the identity is the fingerprint of its content.
type Asset struct {
	path     string
	kind     Kind
	mimetype string
	size     int64

	Title       string
	Description string
	Tags        []string
	Category    string
	Visibility  Visibility

	mu          sync.Mutex
	fingerprint string
}

func (a *Asset) Path() string     { return a.path }
func (a *Asset) Kind() Kind       { return a.kind }
func (a *Asset) MIMEType() string { return a.mimetype }
func (a *Asset) Size() int64      { return a.size }

// Fingerprint returns "sha256:<hex>" over mimetype, size and file bytes. It is
// computed on first use and cached; metadata never participates.
func (a *Asset) Fingerprint() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fingerprint != "" {
		return a.fingerprint, nil
	}

	f, err := os.Open(a.path)
	if err != nil {
		return "", fmt.Errorf("failed to open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s:%d:", a.mimetype, a.size)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash asset: %w", err)
	}

	a.fingerprint = "sha256:" + hex.EncodeToString(h.Sum(nil))
	return a.fingerprint, nil
}

func (a *Asset) String() string {
	fp, err := a.Fingerprint()
	if err != nil {
		return a.path
	}
	return fp
}

func (a *Asset) Metadata() Metadata {
	return Metadata{
		Title:       a.Title,
		Description: a.Description,
		Tags:        slices.Clone(a.Tags),
		Category:    a.Category,
		Visibility:  a.Visibility,
	}
}

// Apply overwrites metadata with the non-empty fields of m.
func (a *Asset) Apply(m Metadata) {
	if m.Title != "" {
		a.Title = m.Title
	}
	if m.Description != "" {
		a.Description = m.Description
	}
	if len(m.Tags) > 0 {
		a.Tags = slices.Clone(m.Tags)
	}
	if m.Category != "" {
		a.Category = m.Category
	}
	if m.Visibility != "" {
		a.Visibility = m.Visibility
	}
}

func defaultTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
