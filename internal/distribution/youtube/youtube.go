package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
	"assetdistributor/internal/distribution"
)

const (
	vendor            = distribution.YouTube
	defaultCategoryID = "22"
	chunkSize         = 10 << 20
)

var parts = []string{"snippet", "status"}

var _ distribution.Adapter = (*Adapter)(nil)

type Adapter struct {
	flow       *auth.Flow
	mapper     *distribution.Mapper
	categories *asset.Categories
	endpoint   string

	mu      sync.Mutex
	service *yt.Service
}

func NewAdapter(deps distribution.Deps) (*Adapter, error) {
	if err := deps.Validate(vendor); err != nil {
		return nil, err
	}

	endpoint := deps.Config.APIBase
	if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	return &Adapter{
		flow:       deps.Flow(vendor, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")),
		mapper:     deps.Mapper(vendor),
		categories: deps.Categories,
		endpoint:   endpoint,
	}, nil
}

// Constructor registers the adapter with a distribution.Registry.
func Constructor(deps distribution.Deps) (distribution.Adapter, error) {
	a, err := NewAdapter(deps)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) Vendor() distribution.Vendor {
	return vendor
}

func (a *Adapter) Support(as *asset.Asset) bool {
	return as.Kind() == asset.KindVideo
}

func (a *Adapter) IsAuthenticated() bool {
	return a.flow.IsAuthenticated()
}

func (a *Adapter) Authenticate(ctx context.Context) error {
	return a.flow.Authenticate(ctx)
}

func (a *Adapter) Complete(ctx context.Context, cb auth.Callback) error {
	return a.flow.Complete(ctx, cb)
}

func (a *Adapter) client(ctx context.Context) (*yt.Service, error) {
	if err := a.flow.Authenticate(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.service != nil {
		return a.service, nil
	}

	httpClient, err := a.flow.Client(ctx)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	a.service = svc
	return svc, nil
}

// exists reports whether the video is still on YouTube.
func (a *Adapter) exists(ctx context.Context, svc *yt.Service, id string) (bool, error) {
	resp, err := svc.Videos.List([]string{"id"}).Id(id).Context(ctx).Do()
	if err != nil {
		return false, vendorError("lookup", err)
	}
	return len(resp.Items) > 0, nil
}

func (a *Adapter) Upload(ctx context.Context, as *asset.Asset) error {
	if !a.Support(as) {
		return distribution.Unsupported(vendor, as)
	}

	id, remembered, err := a.mapper.Retrieve(ctx, as)
	if err != nil {
		return err
	}

	svc, err := a.client(ctx)
	if err != nil {
		return err
	}

	if remembered {
		exists, err := a.exists(ctx, svc, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s: %w as %s", vendor.DisplayName(), distribution.ErrAssetKnown, id)
		}
		// deleted on YouTube: only a fresh upload replaces the stale id
		slog.Info("Forgetting video deleted on YouTube", "id", id, "asset", as.Path())
		if err := a.mapper.Forget(ctx, as); err != nil {
			return err
		}
	}

	f, err := os.Open(as.Path())
	if err != nil {
		return fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() { _ = f.Close() }()

	video, err := svc.Videos.Insert(parts, a.resource(as, "")).
		Media(f, googleapi.ChunkSize(chunkSize), googleapi.ContentType(as.MIMEType())).
		Context(ctx).
		Do()
	if err != nil {
		return vendorError("upload", err)
	}

	slog.Info("Upload complete", "vendor", vendor, "id", video.Id, "url", WatchURL(video.Id))
	return a.mapper.Remember(ctx, as, video.Id)
}

func (a *Adapter) Update(ctx context.Context, as *asset.Asset) error {
	if !a.Support(as) {
		return distribution.Unsupported(vendor, as)
	}

	id, err := a.mapper.Known(ctx, as)
	if err != nil {
		return err
	}

	svc, err := a.client(ctx)
	if err != nil {
		return err
	}
	if exists, err := a.exists(ctx, svc, id); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("%s: %w: video %s was deleted", vendor.DisplayName(), distribution.ErrAssetUnknown, id)
	}

	if _, err := svc.Videos.Update(parts, a.resource(as, id)).Context(ctx).Do(); err != nil {
		return vendorError("update", err)
	}

	slog.Info("Update complete", "vendor", vendor, "id", id)
	return nil
}

func (a *Adapter) Remove(ctx context.Context, as *asset.Asset) error {
	id, err := a.mapper.Known(ctx, as)
	if err != nil {
		return err
	}

	svc, err := a.client(ctx)
	if err != nil {
		return err
	}
	if exists, err := a.exists(ctx, svc, id); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("%s: %w: video %s was deleted", vendor.DisplayName(), distribution.ErrAssetUnknown, id)
	}

	if err := svc.Videos.Delete(id).Context(ctx).Do(); err != nil {
		return vendorError("remove", err)
	}

	slog.Info("Remove complete", "vendor", vendor, "id", id)
	return a.mapper.Forget(ctx, as)
}

func (a *Adapter) resource(as *asset.Asset, id string) *yt.Video {
	categoryID := defaultCategoryID
	if as.Category != "" && a.categories != nil {
		if mapped, ok := a.categories.Lookup(as.Category, string(vendor)); ok {
			categoryID = mapped
		}
	}

	return &yt.Video{
		Id: id,
		Snippet: &yt.VideoSnippet{
			Title:       as.Title,
			Description: as.Description,
			Tags:        as.Tags,
			CategoryId:  categoryID,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus: privacy(as.Visibility),
		},
	}
}

func privacy(v asset.Visibility) string {
	switch v {
	case asset.Private:
		return "private"
	case asset.Hidden:
		return "unlisted"
	default:
		return "public"
	}
}

func vendorError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &distribution.VendorError{Vendor: vendor, Op: op, Status: gerr.Code, Message: msg}
	}
	if errors.Is(err, auth.ErrRequired) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &distribution.VendorError{Vendor: vendor, Op: op, Message: err.Error()}
}

func WatchURL(id string) string {
	return "https://youtube.com/watch?v=" + id
}
