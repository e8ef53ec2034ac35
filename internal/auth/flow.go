// Package auth drives the OAuth2 authorization-code flow shared by every
// vendor adapter: stored credential, silent refresh, redirect for consent and
// code exchange on return.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"assetdistributor/internal/session"
	"assetdistributor/pkg/config"
)

var (
	ErrRequired      = errors.New("authentication required")
	ErrDenied        = errors.New("authentication denied")
	ErrFailed        = errors.New("authentication failed")
	ErrStateMismatch = errors.New("state mismatch")
)

// RequiredError tells the caller to send the user to URL. It is a
// suspension, not a failure.
type RequiredError struct {
	Vendor string
	URL    string
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("%s: authentication required: %s", e.Vendor, e.URL)
}

func (e *RequiredError) Is(target error) bool {
	return target == ErrRequired
}

type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Error
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Callback carries the query parameters of a redirect return.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Credential is the owner's credential slot for one vendor.
type Credential interface {
	Load(ctx context.Context) (string, bool, error)
	Store(ctx context.Context, credential string) error
}

type Options struct {
	Vendor          string
	Owner           string
	Config          *oauth2.Config
	AuthCodeOptions []oauth2.AuthCodeOption
	Credential      Credential
	Session         *session.Session
	// HTTPClient carries token exchange and API traffic; nil uses the default.
	HTTPClient *http.Client
}

// refreshes collapses concurrent refreshes of the same owner's vendor token.
var refreshes singleflight.Group

type Flow struct {
	vendor     string
	owner      string
	config     *oauth2.Config
	codeOpts   []oauth2.AuthCodeOption
	credential Credential
	session    *session.Session
	httpClient *http.Client

	mu      sync.Mutex
	state   State
	token   *oauth2.Token
	pending *RequiredError
	err     error
}

func NewFlow(opts Options) *Flow {
	return &Flow{
		vendor:     opts.Vendor,
		owner:      opts.Owner,
		config:     opts.Config,
		codeOpts:   opts.AuthCodeOptions,
		credential: opts.Credential,
		session:    opts.Session,
		httpClient: opts.HTTPClient,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) IsAuthenticated() bool {
	return f.State() == Authenticated
}

func (f *Flow) withClient(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// Authenticate is idempotent. It returns nil once a usable token is held and
// a *RequiredError while the user's consent is outstanding.
func (f *Flow) Authenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case Error:
		return f.err
	case Authenticating:
		return f.pending
	case Authenticated:
		if f.token.Valid() {
			return nil
		}
	}

	tok, err := f.load(ctx)
	if err != nil {
		return err
	}

	if tok != nil {
		if tok.Valid() {
			f.token = tok
			f.state = Authenticated
			return nil
		}
		if tok.RefreshToken != "" {
			refreshed, err := f.refresh(ctx, tok)
			if err == nil {
				f.token = refreshed
				f.state = Authenticated
				return nil
			}
			slog.Warn("Token refresh failed", "vendor", f.vendor, "owner", f.owner, "error", err)
		}
	}

	return f.begin(ctx)
}

func (f *Flow) load(ctx context.Context) (*oauth2.Token, error) {
	blob, ok, err := f.credential.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s credential: %w", f.vendor, err)
	}
	if !ok || blob == "" {
		return nil, nil
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(blob), &tok); err != nil {
		slog.Warn("Ignoring unreadable credential", "vendor", f.vendor, "error", err)
		return nil, nil
	}
	return &tok, nil
}

func (f *Flow) save(ctx context.Context, tok *oauth2.Token) error {
	blob, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode %s token: %w", f.vendor, err)
	}
	if err := f.credential.Store(ctx, string(blob)); err != nil {
		return fmt.Errorf("failed to store %s credential: %w", f.vendor, err)
	}
	return nil
}

func (f *Flow) refresh(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	v, err, _ := refreshes.Do(f.owner+"/"+f.vendor, func() (any, error) {
		tok, err := f.config.TokenSource(f.withClient(ctx), expired).Token()
		if err != nil {
			return nil, err
		}
		if err := f.save(ctx, tok); err != nil {
			return nil, err
		}
		slog.Debug("Refreshed token", "vendor", f.vendor, "owner", f.owner)
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

func (f *Flow) begin(ctx context.Context) error {
	state := uuid.NewString()
	if err := f.session.SetState(ctx, f.vendor, state); err != nil {
		return err
	}

	f.pending = &RequiredError{
		Vendor: f.vendor,
		URL:    f.config.AuthCodeURL(state, f.codeOpts...),
	}
	f.state = Authenticating
	return f.pending
}

func (f *Flow) fail(err error) error {
	f.state = Error
	f.err = err
	f.pending = nil
	slog.Error("Authentication failed", "vendor", f.vendor, "owner", f.owner, "error", err)
	return err
}

// Complete finishes the flow from a redirect return. Nothing is stored unless
// the state token matches the one issued for this vendor.
func (f *Flow) Complete(ctx context.Context, cb Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Error {
		return f.err
	}

	if cb.Error != "" {
		kind := ErrFailed
		if cb.Error == "access_denied" {
			kind = ErrDenied
		}
		msg := cb.Error
		if cb.ErrorDescription != "" {
			msg = cb.ErrorDescription
		}
		return f.fail(fmt.Errorf("%w: %s", kind, msg))
	}

	expected, ok, err := f.session.ExpectedState(ctx, f.vendor)
	if err != nil {
		return err
	}
	if !ok || cb.State == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(cb.State)) != 1 {
		return f.fail(ErrStateMismatch)
	}
	if cb.Code == "" {
		return f.fail(fmt.Errorf("%w: no authorization code", ErrFailed))
	}

	fresh, err := f.session.ConsumeCode(ctx, f.vendor, cb.Code)
	if err != nil {
		return err
	}
	if !fresh {
		return f.fail(fmt.Errorf("%w: authorization code already used", ErrStateMismatch))
	}
	if err := f.session.ClearState(ctx, f.vendor); err != nil {
		slog.Warn("Failed to clear state", "vendor", f.vendor, "error", err)
	}

	tok, err := f.config.Exchange(f.withClient(ctx), cb.Code)
	if err != nil {
		return f.fail(fmt.Errorf("%w: %s", ErrFailed, exchangeMessage(err)))
	}
	if err := f.save(ctx, tok); err != nil {
		return f.fail(err)
	}

	f.token = tok
	f.pending = nil
	f.state = Authenticated
	slog.Info("Authenticated", "vendor", f.vendor, "owner", f.owner)
	return nil
}

func exchangeMessage(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
	}
	return err.Error()
}

// Client returns an HTTP client that authorizes requests with the held token
// and stores refreshed tokens back to the owner's credential slot.
func (f *Flow) Client(ctx context.Context) (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Authenticated {
		return nil, fmt.Errorf("%s: %w", f.vendor, ErrRequired)
	}

	ctx = f.withClient(ctx)
	src := &persistingSource{
		flow: f,
		ctx:  ctx,
		base: f.config.TokenSource(ctx, f.token),
		last: f.token.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(f.token, src)), nil
}

type persistingSource struct {
	flow *Flow
	ctx  context.Context
	base oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.flow.save(s.ctx, tok); err != nil {
			slog.Warn("Failed to persist refreshed token", "vendor", s.flow.vendor, "error", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// OAuth2Config builds the client configuration for a vendor section.
func OAuth2Config(cfg config.VendorConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
}
