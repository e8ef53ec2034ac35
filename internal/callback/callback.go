package callback

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"assetdistributor/internal/auth"
	"assetdistributor/internal/distribution"
)

// Resumer completes a vendor authentication and replays the owner's pending
// work for that vendor.
type Resumer interface {
	Resume(ctx context.Context, owner string, v distribution.Vendor, cb auth.Callback) (*distribution.Result, error)
}

// Completion is reported once per handled redirect.
type Completion struct {
	Owner  string
	Vendor distribution.Vendor
	Result *distribution.Result
	Err    error
}

type Options struct {
	// Owner is used when the redirect carries no owner query parameter.
	Owner string
	// Notify, when set, receives every completion after the page is rendered.
	Notify func(Completion)
}

type handler struct {
	resumer Resumer
	opts    Options
}

// NewRouter serves GET /callback/{vendor}.
func NewRouter(resumer Resumer, opts Options) http.Handler {
	h := &handler{resumer: resumer, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/callback/{vendor}", h.serve)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request) {
	v, err := distribution.ParseVendor(chi.URLParam(r, "vendor"))
	if err != nil {
		render(w, http.StatusNotFound, page{Title: "Unknown vendor", Message: err.Error()})
		return
	}

	q := r.URL.Query()
	owner := q.Get("owner")
	if owner == "" {
		owner = h.opts.Owner
	}
	if owner == "" {
		render(w, http.StatusBadRequest, page{Title: "Unknown owner", Message: "No owner was given for this authorization."})
		return
	}

	cb := auth.Callback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	result, err := h.resumer.Resume(r.Context(), owner, v, cb)
	if err != nil {
		slog.Warn("Authorization callback failed", "vendor", v, "owner", owner, "error", err)
		render(w, status(err), page{Title: v.DisplayName() + " authorization failed", Message: err.Error()})
	} else {
		slog.Info("Authorization callback handled", "vendor", v, "owner", owner, "result", result.Summary())
		render(w, http.StatusOK, page{
			Title:   v.DisplayName() + " connected",
			Message: "You can close this window and return to the terminal.",
			Result:  result,
		})
	}

	if h.opts.Notify != nil {
		h.opts.Notify(Completion{Owner: owner, Vendor: v, Result: result, Err: err})
	}
}

func status(err error) int {
	switch {
	case errors.Is(err, auth.ErrStateMismatch):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrFailed), errors.Is(err, distribution.ErrVendorOperationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type page struct {
	Title   string
	Message string
	Result  *distribution.Result
}

var pageTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- with .Result}}{{if .Outcomes}}
<ul>
{{- range .Outcomes}}
<li>{{.Vendor.DisplayName}}: {{.Status}}{{with .Message}} ({{.}}){{end}}</li>
{{- end}}
</ul>
{{- end}}{{end}}
</body>
</html>
`))

func render(w http.ResponseWriter, code int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pageTemplate.Execute(w, p); err != nil {
		slog.Error("Failed to render callback page", "error", err)
	}
}
