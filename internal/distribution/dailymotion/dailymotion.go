package dailymotion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
	"assetdistributor/internal/distribution"
)

const vendor = distribution.Dailymotion

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

	var target struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.call(ctx, client, "upload", http.MethodGet, "/file/upload", nil, &target); err != nil {
		return err
	}
	if target.UploadURL == "" {
		return &distribution.VendorError{Vendor: vendor, Op: "upload", Message: "response has no upload url"}
	}

	fileURL, err := a.send(ctx, client, target.UploadURL, as)
	if err != nil {
		return err
	}

	form := a.video(as)
	form.Set("url", fileURL)

	var created struct {
		ID string `json:"id"`
	}
	if err := a.call(ctx, client, "upload", http.MethodPost, "/me/videos", form, &created); err != nil {
		return err
	}
	if created.ID == "" {
		return &distribution.VendorError{Vendor: vendor, Op: "upload", Message: "response has no video id"}
	}

	if err := a.mapper.Remember(ctx, as, created.ID); err != nil {
		return err
	}
	slog.Info("Upload complete", "vendor", vendor, "id", created.ID)
	return nil
}

// send streams the file to the upload server and returns the url Dailymotion
// hands back for publishing.
func (a *Adapter) send(ctx context.Context, client *http.Client, uploadURL string, as *asset.Asset) (string, error) {
	f, err := os.Open(as.Path())
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(as.Path()))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", &distribution.VendorError{Vendor: vendor, Op: "upload", Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := distribution.CheckResponse(vendor, "upload", resp); err != nil {
		return "", err
	}

	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if uploaded.URL == "" {
		return "", &distribution.VendorError{Vendor: vendor, Op: "upload", Status: resp.StatusCode, Message: "upload server returned no url"}
	}
	slog.Debug("File transferred", "vendor", vendor, "size", as.Size())
	return uploaded.URL, nil
}

func (a *Adapter) Update(ctx context.Context, as *asset.Asset) error {
	if !a.Support(as) {
		return distribution.Unsupported(vendor, as)
	}

	id, err := a.mapper.Known(ctx, as)
	if err != nil {
		return err
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}

	if err := a.call(ctx, client, "update", http.MethodPost, "/video/"+id, a.video(as), nil); err != nil {
		return err
	}
	slog.Info("Update complete", "vendor", vendor, "id", id)
	return nil
}

func (a *Adapter) Remove(ctx context.Context, as *asset.Asset) error {
	id, err := a.mapper.Known(ctx, as)
	if err != nil {
		return err
	}

	client, err := a.client(ctx)
	if err != nil {
		return err
	}

	if err := a.call(ctx, client, "remove", http.MethodDelete, "/video/"+id, nil, nil); err != nil {
		return err
	}
	slog.Info("Remove complete", "vendor", vendor, "id", id)

	return a.mapper.Forget(ctx, as)
}

// video builds the form fields shared by create and update. Hidden videos
// are left unpublished.
func (a *Adapter) video(as *asset.Asset) url.Values {
	form := url.Values{}
	if as.Title != "" {
		form.Set("title", as.Title)
	}
	if as.Description != "" {
		form.Set("description", as.Description)
	}
	if len(as.Tags) > 0 {
		form.Set("tags", strings.Join(as.Tags, ","))
	}
	if as.Category != "" && a.categories != nil {
		if channel, ok := a.categories.Lookup(as.Category, string(vendor)); ok {
			form.Set("channel", channel)
		}
	}
	form.Set("published", strconv.FormatBool(as.Visibility != asset.Hidden))
	form.Set("private", strconv.FormatBool(as.Visibility == asset.Private))
	return form
}

func (a *Adapter) call(ctx context.Context, client *http.Client, op, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, a.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
