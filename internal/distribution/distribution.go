// Package distribution publishes one asset to many vendors on behalf of an
// owner. Adapters implement the vendor protocol; a Collection fans an
// operation out to them and reports per-vendor outcomes.
package distribution

import (
	"context"
	"fmt"
	"strings"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
)

type Vendor string

const (
	YouTube     Vendor = "youtube"
	Vimeo       Vendor = "vimeo"
	Dailymotion Vendor = "dailymotion"
)

func ParseVendor(s string) (Vendor, error) {
	switch v := Vendor(strings.ToLower(strings.TrimSpace(s))); v {
	case YouTube, Vimeo, Dailymotion:
		return v, nil
	default:
		return "", fmt.Errorf("unknown vendor %q", s)
	}
}

// DisplayName is the vendor's brand spelling.
func (v Vendor) DisplayName() string {
	switch v {
	case YouTube:
		return "YouTube"
	case Vimeo:
		return "Vimeo"
	case Dailymotion:
		return "Dailymotion"
	default:
		return string(v)
	}
}

// Adapter is one vendor's implementation of the distribution protocol.
//
// Support is a pure predicate checked before any network call. Upload fails
// with ErrAssetKnown when the asset was already published to the vendor;
// Update and Remove fail with ErrAssetUnknown when it was not.
type Adapter interface {
	Vendor() Vendor
	Support(a *asset.Asset) bool
	IsAuthenticated() bool
	Authenticate(ctx context.Context) error
	Complete(ctx context.Context, cb auth.Callback) error
	Upload(ctx context.Context, a *asset.Asset) error
	Update(ctx context.Context, a *asset.Asset) error
	Remove(ctx context.Context, a *asset.Asset) error
}

type Op string

const (
	OpUpload Op = "upload"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Run dispatches op to the matching adapter method.
func Run(ctx context.Context, ad Adapter, op Op, a *asset.Asset) error {
	switch op {
	case OpUpload:
		return ad.Upload(ctx, a)
	case OpUpdate:
		return ad.Update(ctx, a)
	case OpRemove:
		return ad.Remove(ctx, a)
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}
