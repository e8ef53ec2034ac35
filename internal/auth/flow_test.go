package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"assetdistributor/internal/cache"
	"assetdistributor/internal/session"
)

type memCredential struct {
	mu    sync.Mutex
	value string
	ok    bool
	saves int
}

func (m *memCredential) Load(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.ok, nil
}

func (m *memCredential) Store(_ context.Context, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value, m.ok = v, true
	m.saves++
	return nil
}

func (m *memCredential) token(t *testing.T) oauth2.Token {
	t.Helper()
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(m.value), &tok); err != nil {
		t.Fatalf("stored credential is not a token: %v", err)
	}
	return tok
}

func storedToken(t *testing.T, tok oauth2.Token) *memCredential {
	t.Helper()
	b, err := json.Marshal(tok)
	if err != nil {
		t.Fatal(err)
	}
	return &memCredential{value: string(b), ok: true}
}

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"bearer","refresh_token":"rt-1","expires_in":3600}`))
		case "refresh_token":
			if r.Form.Get("refresh_token") != "rt-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at-2","token_type":"bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFlow(srv *httptest.Server, cred Credential, sess *session.Session) *Flow {
	return NewFlow(Options{
		Vendor: "vimeo",
		Owner:  "alice",
		Config: &oauth2.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost:8085/callback/vimeo",
			Scopes:       []string{"upload"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://vendor.example/authorize",
				TokenURL:  srv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Credential: cred,
		Session:    sess,
		HTTPClient: srv.Client(),
	})
}

func TestAuthenticateWithoutCredentialRequiresRedirect(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	sess := session.New(cache.NewMemory(), "alice")
	f := newFlow(srv, &memCredential{}, sess)

	err := f.Authenticate(ctx)
	var required *RequiredError
	if !errors.As(err, &required) || !errors.Is(err, ErrRequired) {
		t.Fatalf("Authenticate() error = %v, want RequiredError", err)
	}
	if f.State() != Authenticating {
		t.Errorf("State() = %v, want authenticating", f.State())
	}

	u, err := url.Parse(required.URL)
	if err != nil {
		t.Fatal(err)
	}
	state, _, _ := sess.ExpectedState(ctx, "vimeo")
	if got := u.Query().Get("state"); got == "" || got != state {
		t.Errorf("URL state = %q, session state = %q", got, state)
	}

	again := f.Authenticate(ctx)
	if again != err {
		t.Errorf("second Authenticate() = %v, want the same pending redirect", again)
	}
	if calls.Load() != 0 {
		t.Errorf("token endpoint called %d times", calls.Load())
	}
}

func TestAuthenticateWithValidCredential(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	cred := storedToken(t, oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(time.Hour)})
	f := newFlow(srv, cred, session.New(cache.NewMemory(), "alice"))

	if err := f.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !f.IsAuthenticated() {
		t.Error("IsAuthenticated() = false")
	}
	if calls.Load() != 0 {
		t.Errorf("token endpoint called %d times", calls.Load())
	}
}

func TestAuthenticateRefreshesExpiredCredential(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	cred := storedToken(t, oauth2.Token{AccessToken: "old", RefreshToken: "rt-1", Expiry: time.Now().Add(-time.Hour)})
	f := newFlow(srv, cred, session.New(cache.NewMemory(), "alice"))

	if err := f.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	tok := cred.token(t)
	if tok.AccessToken != "at-2" || tok.RefreshToken != "rt-1" {
		t.Errorf("stored token = %+v, want refreshed at-2 keeping rt-1", tok)
	}
}

func TestAuthenticateFallsThroughWhenRefreshFails(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	cred := storedToken(t, oauth2.Token{AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)})
	f := newFlow(srv, cred, session.New(cache.NewMemory(), "alice"))

	err := f.Authenticate(context.Background())
	if !errors.Is(err, ErrRequired) {
		t.Fatalf("Authenticate() error = %v, want ErrRequired", err)
	}
	if cred.saves != 0 {
		t.Error("failed refresh stored a credential")
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name      string
		callback  func(state string) Callback
		wantErr   error
		wantSaved bool
	}{
		{
			name:      "success",
			callback:  func(s string) Callback { return Callback{Code: "good-code", State: s} },
			wantSaved: true,
		},
		{
			name:     "stateMismatch",
			callback: func(string) Callback { return Callback{Code: "good-code", State: "forged"} },
			wantErr:  ErrStateMismatch,
		},
		{
			name:     "missingState",
			callback: func(string) Callback { return Callback{Code: "good-code"} },
			wantErr:  ErrStateMismatch,
		},
		{
			name:     "denied",
			callback: func(s string) Callback { return Callback{Error: "access_denied", State: s} },
			wantErr:  ErrDenied,
		},
		{
			name:     "vendorError",
			callback: func(s string) Callback { return Callback{Error: "server_error", State: s} },
			wantErr:  ErrFailed,
		},
		{
			name:     "exchangeFails",
			callback: func(s string) Callback { return Callback{Code: "bad-code", State: s} },
			wantErr:  ErrFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			var calls atomic.Int32
			srv := tokenServer(t, &calls)
			sess := session.New(cache.NewMemory(), "alice")
			cred := &memCredential{}

			_ = newFlow(srv, cred, sess).Authenticate(ctx)
			state, _, _ := sess.ExpectedState(ctx, "vimeo")

			// the return leg runs in a fresh flow, as after a process restart
			f := newFlow(srv, cred, sess)
			err := f.Complete(ctx, tt.callback(state))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Complete() error = %v, want %v", err, tt.wantErr)
				}
				if f.State() != Error {
					t.Errorf("State() = %v, want error", f.State())
				}
			} else if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}

			if cred.ok != tt.wantSaved {
				t.Errorf("credential saved = %v, want %v", cred.ok, tt.wantSaved)
			}
			if tt.wantSaved {
				if tok := cred.token(t); tok.AccessToken != "at-1" {
					t.Errorf("stored access token = %q", tok.AccessToken)
				}
				if !f.IsAuthenticated() {
					t.Error("IsAuthenticated() = false after Complete")
				}
			}
		})
	}
}

func TestCompleteRejectsReplayedCode(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	sess := session.New(cache.NewMemory(), "alice")

	_ = newFlow(srv, &memCredential{}, sess).Authenticate(ctx)
	state, _, _ := sess.ExpectedState(ctx, "vimeo")
	if err := newFlow(srv, &memCredential{}, sess).Complete(ctx, Callback{Code: "good-code", State: state}); err != nil {
		t.Fatal(err)
	}

	// restore the state so only the code check can reject the replay
	_ = sess.SetState(ctx, "vimeo", state)
	cred := &memCredential{}
	err := newFlow(srv, cred, sess).Complete(ctx, Callback{Code: "good-code", State: state})
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Complete() error = %v, want ErrStateMismatch", err)
	}
	if cred.ok {
		t.Error("replayed code stored a credential")
	}
}

func TestErrorStateIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	srv := tokenServer(t, &calls)
	sess := session.New(cache.NewMemory(), "alice")
	f := newFlow(srv, &memCredential{}, sess)

	_ = f.Authenticate(ctx)
	first := f.Complete(ctx, Callback{Error: "access_denied"})

	if err := f.Authenticate(ctx); err != first {
		t.Errorf("Authenticate() after failure = %v, want %v", err, first)
	}
	if f.State() != Error {
		t.Errorf("State() = %v, want error", f.State())
	}
}

func TestClientPersistsRefreshedToken(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer api.Close()

	cred := storedToken(t, oauth2.Token{AccessToken: "at", RefreshToken: "rt-1", Expiry: time.Now().Add(time.Hour)})
	f := newFlow(srv, cred, session.New(cache.NewMemory(), "alice"))
	ctx := context.Background()
	if err := f.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}

	// expire the held token so the client has to refresh
	f.token.Expiry = time.Now().Add(-time.Minute)

	client, err := f.Client(ctx)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if got := cred.token(t).AccessToken; got != "at-2" {
		t.Errorf("stored access token = %q, want at-2", got)
	}
}

func TestClientRequiresAuthentication(t *testing.T) {
	var calls atomic.Int32
	f := newFlow(tokenServer(t, &calls), &memCredential{}, session.New(cache.NewMemory(), "alice"))
	if _, err := f.Client(context.Background()); !errors.Is(err, ErrRequired) {
		t.Errorf("Client() error = %v, want ErrRequired", err)
	}
}
