package vimeo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
	"assetdistributor/internal/distribution"
)

const (
	vendor        = distribution.Vimeo
	acceptHeader  = "application/vnd.vimeo.*+json;version=3.4"
	tusVersion    = "1.0.0"
	tusChunkSize  = 64 << 20
	offsetHeader  = "Upload-Offset"
	tusHeader     = "Tus-Resumable"
	tusBodyFormat = "application/offset+octet-stream"
)

var _ distribution.Adapter = (*Adapter)(nil)

type Adapter struct {
	flow       *auth.Flow
	mapper     *distribution.Mapper
	categories *asset.Categories
	apiBase    string
}

func NewAdapter(deps distribution.Deps) (*Adapter, error) {
	if err := deps.Validate(vendor); err != nil {
		return nil, err
	}
	return &Adapter{
		flow:       deps.Flow(vendor),
		mapper:     deps.Mapper(vendor),
		categories: deps.Categories,
		apiBase:    strings.TrimSuffix(deps.Config.APIBase, "/"),
	}, nil
}

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

type privacy struct {
	View string `json:"view"`
}

type videoRequest struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Privacy     *privacy       `json:"privacy,omitempty"`
	Upload      *uploadRequest `json:"upload,omitempty"`
}

type uploadRequest struct {
	Approach string `json:"approach"`
	Size     int64  `json:"size"`
}

type videoResponse struct {
	URI    string `json:"uri"`
	Link   string `json:"link"`
	Upload struct {
		UploadLink string `json:"upload_link"`
	} `json:"upload"`
}

type tag struct {
	Name string `json:"name"`
}

func (a *Adapter) client(ctx context.Context) (*http.Client, error) {
	if err := a.flow.Authenticate(ctx); err != nil {
		return nil, err
	}
	return a.flow.Client(ctx)
}

func (a *Adapter) Upload(ctx context.Context, as *asset.Asset) error {
	if !a.Support(as) {
		return distribution.Unsupported(vendor, as)
	}
	if err := a.mapper.Unknown(ctx, as); err != nil {
		return err
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}

	body := a.video(as)
	body.Upload = &uploadRequest{Approach: "tus", Size: as.Size()}

	var created videoResponse
	if err := a.call(ctx, client, "upload", http.MethodPost, "/me/videos", body, &created); err != nil {
		return err
	}
	if created.URI == "" || created.Upload.UploadLink == "" {
		return &distribution.VendorError{Vendor: vendor, Op: "upload", Message: "response has no upload link"}
	}

	if err := a.transfer(ctx, client, created.Upload.UploadLink, as); err != nil {
		return err
	}
	if err := a.mapper.Remember(ctx, as, created.URI); err != nil {
		return err
	}
	slog.Info("Upload complete", "vendor", vendor, "id", created.URI, "url", created.Link)

	if err := a.decorate(ctx, client, created.URI, as); err != nil {
		slog.Warn("Failed to set tags or category", "vendor", vendor, "id", created.URI, "error", err)
	}
	return nil
}

// transfer sends the file to the tus upload link, resuming from the offset
// the server acknowledges after each chunk.
func (a *Adapter) transfer(ctx context.Context, client *http.Client, link string, as *asset.Asset) error {
	f, err := os.Open(as.Path())
	if err != nil {
		return fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var offset int64
	for offset < as.Size() {
		n := min(int64(tusChunkSize), as.Size()-offset)

		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, link, io.NewSectionReader(f, offset, n))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.ContentLength = n
		req.Header.Set(tusHeader, tusVersion)
		req.Header.Set(offsetHeader, strconv.FormatInt(offset, 10))
		req.Header.Set("Content-Type", tusBodyFormat)
		req.Header.Set("Accept", acceptHeader)

		resp, err := client.Do(req)
		if err != nil {
			return &distribution.VendorError{Vendor: vendor, Op: "upload", Message: err.Error()}
		}
		err = distribution.CheckResponse(vendor, "upload", resp)
		_ = resp.Body.Close()
		if err != nil {
			return err
		}

		next, err := strconv.ParseInt(resp.Header.Get(offsetHeader), 10, 64)
		if err != nil || next <= offset {
			return &distribution.VendorError{Vendor: vendor, Op: "upload", Status: resp.StatusCode, Message: "upload did not advance"}
		}
		offset = next
		slog.Debug("Uploaded chunk", "vendor", vendor, "offset", offset, "size", as.Size())
	}
	return nil
}

func (a *Adapter) Update(ctx context.Context, as *asset.Asset) error {
	if !a.Support(as) {
		return distribution.Unsupported(vendor, as)
	}

	uri, err := a.mapper.Known(ctx, as)
	if err != nil {
		return err
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}

	if err := a.call(ctx, client, "update", http.MethodPatch, uri, a.video(as), nil); err != nil {
		return err
	}
	slog.Info("Update complete", "vendor", vendor, "id", uri)

	if err := a.decorate(ctx, client, uri, as); err != nil {
		slog.Warn("Failed to set tags or category", "vendor", vendor, "id", uri, "error", err)
	}
	return nil
}

func (a *Adapter) Remove(ctx context.Context, as *asset.Asset) error {
	uri, err := a.mapper.Known(ctx, as)
	if err != nil {
		return err
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}

	if err := a.call(ctx, client, "remove", http.MethodDelete, uri, nil, nil); err != nil {
		return err
	}
	slog.Info("Remove complete", "vendor", vendor, "id", uri)

	return a.mapper.Forget(ctx, as)
}

// decorate sets tags and category, which Vimeo keeps outside the video body.
// Callers only warn on failure: the video itself is already in place.
func (a *Adapter) decorate(ctx context.Context, client *http.Client, uri string, as *asset.Asset) error {
	if len(as.Tags) > 0 {
		tags := make([]tag, 0, len(as.Tags))
		for _, t := range as.Tags {
			tags = append(tags, tag{Name: t})
		}
		if err := a.call(ctx, client, "tag", http.MethodPut, uri+"/tags", tags, nil); err != nil {
			return err
		}
	}

	if as.Category != "" && a.categories != nil {
		if category, ok := a.categories.Lookup(as.Category, string(vendor)); ok {
			body := map[string][]string{"categories": {category}}
			if err := a.call(ctx, client, "categorize", http.MethodPut, uri+"/categories", body, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) video(as *asset.Asset) videoRequest {
	return videoRequest{
		Name:        as.Title,
		Description: as.Description,
		Privacy:     &privacy{View: view(as.Visibility)},
	}
}

func view(v asset.Visibility) string {
	switch v {
	case asset.Private:
		return "nobody"
	case asset.Hidden:
		return "unlisted"
	default:
		return "anybody"
	}
}

func (a *Adapter) call(ctx context.Context, client *http.Client, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return &distribution.VendorError{Vendor: vendor, Op: op, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := distribution.CheckResponse(vendor, op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
