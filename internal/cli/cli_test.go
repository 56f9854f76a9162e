package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/launchkit/config"
	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/logger"
	"github.com/yoockh/launchkit/internal/models"
)

type fakeProvider struct {
	mu      sync.Mutex
	session *identity.Session
	subs    []func(identity.Event)
}

func (f *fakeProvider) GetSession(context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone(), nil
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	if password != "correct-horse" {
		return nil, &identity.AuthError{Op: "token", Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}
	}
	s := &identity.Session{AccessToken: "tok", User: identity.User{ID: "u-1", Email: email}}
	f.mu.Lock()
	f.session = s.Clone()
	subs := append([]func(identity.Event){}, f.subs...)
	f.mu.Unlock()
	go func() {
		for _, fn := range subs {
			fn(identity.Event{Kind: identity.EventSignedIn, Session: s})
		}
	}()
	return s, nil
}

func (f *fakeProvider) SignInWithOAuth(_ context.Context, provider, _ string) (string, error) {
	return "https://idp.example.org/authorize?provider=" + provider, nil
}

func (f *fakeProvider) ExchangeOAuthCallback(context.Context, string) (*identity.Session, error) {
	return nil, &identity.AuthError{Op: "oauth_callback", Status: 401, Message: "denied"}
}

func (f *fakeProvider) SignUp(_ context.Context, email, _, _ string) (*identity.User, error) {
	return &identity.User{ID: "new", Email: email}, nil
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) ResetPasswordForEmail(context.Context, string, string) error { return nil }

func (f *fakeProvider) OnAuthStateChange(fn func(identity.Event)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func signedIn(email string) *fakeProvider {
	return &fakeProvider{session: &identity.Session{AccessToken: "tok", User: identity.User{ID: "u-1", Email: email}}}
}

type fakeProfiles struct {
	profiles map[string]*models.Profile
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, identity.ErrNotFound
}

func (f *fakeProfiles) UpdateProfile(context.Context, string, models.ProfileUpdate) error { return nil }

func newTestApp(t *testing.T, p *fakeProvider, apiURL string) (*app, *bytes.Buffer) {
	t.Helper()
	return newTestAppWithProfiles(t, p, nil, apiURL)
}

func newTestAppWithProfiles(t *testing.T, p *fakeProvider, profiles identity.ProfileStore, apiURL string) (*app, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	a := &app{
		settings: config.Settings{APIURL: apiURL, AppURL: "https://app.example.org", AdminEmail: "admin@example.org"},
		out:      &buf,
		log:      logger.Discard(),
		connect: func(*app) (identity.Provider, identity.ProfileStore, func(), error) {
			return p, profiles, nil, nil
		},
		queries: apiclient.NewQueryCache(time.Minute),
	}
	t.Cleanup(a.close)
	return a, &buf
}

func run(a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// ==========================================
// Session commands
// ==========================================

func TestWhoami_NotSignedIn(t *testing.T) {
	a, _ := newTestApp(t, &fakeProvider{}, "")

	err := run(a, "whoami")

	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestWhoami_JSON(t *testing.T) {
	a, out := newTestApp(t, signedIn("admin@example.org"), "")

	require.NoError(t, run(a, "whoami", "--json"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "admin@example.org", got["email"])
	assert.Equal(t, true, got["is_admin"])
}

func TestLogin(t *testing.T) {
	a, out := newTestApp(t, &fakeProvider{}, "")

	require.NoError(t, run(a, "login", "--email", "ada@example.org", "--password", "correct-horse"))

	assert.Contains(t, out.String(), "Signed in as ada@example.org (admin: no)")
}

func TestLogin_InvalidForm(t *testing.T) {
	a, _ := newTestApp(t, &fakeProvider{}, "")

	err := run(a, "login", "--email", "not-an-email", "--password", "x")

	assert.ErrorContains(t, err, "must be a valid email address")
}

func TestLogin_WrongPassword(t *testing.T) {
	a, _ := newTestApp(t, &fakeProvider{}, "")

	err := run(a, "login", "--email", "ada@example.org", "--password", "nope")

	assert.True(t, identity.IsAuthError(err))
}

// ==========================================
// Route guards
// ==========================================

func TestRoute_SignedOut(t *testing.T) {
	a, out := newTestApp(t, &fakeProvider{}, "")

	require.NoError(t, run(a, "route", "/", "/dashboard", "/admin", "/nope"))

	text := out.String()
	assert.Regexp(t, `/\s+allow`, text)
	assert.Regexp(t, `/dashboard\s+redirect\s+/login`, text)
	assert.Regexp(t, `/admin\s+redirect\s+/login`, text)
	assert.Regexp(t, `/nope\s+not_found`, text)
}

func TestRoute_SignedInUser(t *testing.T) {
	a, out := newTestApp(t, signedIn("ada@example.org"), "")

	require.NoError(t, run(a, "route", "/dashboard", "/admin"))

	assert.Regexp(t, `/dashboard\s+allow`, out.String())
	assert.Regexp(t, `/admin\s+redirect\s+/dashboard`, out.String())
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	a, _ := newTestApp(t, signedIn("ada@example.org"), "")
	assert.ErrorIs(t, run(a, "admin", "stats"), errAdminRequired)

	a, _ = newTestApp(t, &fakeProvider{}, "")
	assert.ErrorIs(t, run(a, "admin", "stats"), errNotSignedIn)
}

func TestAdminGate_ProfileFlagGrantsAccess(t *testing.T) {
	profiles := &fakeProfiles{profiles: map[string]*models.Profile{"u-1": {ID: "u-1", IsAdmin: true}}}
	a, _ := newTestAppWithProfiles(t, signedIn("promoted@example.org"), profiles, "")

	st, err := a.enter(context.Background(), "/admin")

	require.NoError(t, err)
	assert.True(t, st.State().IsAdmin)
}

func TestAdminGate_ProfileFlagRevokesAdminEmail(t *testing.T) {
	profiles := &fakeProfiles{profiles: map[string]*models.Profile{"u-1": {ID: "u-1", IsAdmin: false}}}
	a, _ := newTestAppWithProfiles(t, signedIn("admin@example.org"), profiles, "")

	_, err := a.enter(context.Background(), "/admin")

	assert.ErrorIs(t, err, errAdminRequired)
}

func TestAdminGate_FailedLookupKeepsFallback(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("network down")}
	a, _ := newTestAppWithProfiles(t, signedIn("admin@example.org"), profiles, "")

	_, err := a.enter(context.Background(), "/admin")

	assert.NoError(t, err)
}

func TestRoute_UsesProfileFlag(t *testing.T) {
	profiles := &fakeProfiles{profiles: map[string]*models.Profile{"u-1": {ID: "u-1", IsAdmin: true}}}
	a, out := newTestAppWithProfiles(t, signedIn("promoted@example.org"), profiles, "")

	require.NoError(t, run(a, "route", "/admin"))

	assert.Regexp(t, `/admin\s+allow`, out.String())
}

// ==========================================
// Backend commands
// ==========================================

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Health{Status: "healthy", Service: "launchkit-api"})
	})
	mux.HandleFunc("/api/admin/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		name := "Ada"
		_ = json.NewEncoder(w).Encode(models.UserList{
			Users: []models.User{{ID: "u-1", Email: "ada@example.org", Name: &name, Language: "en"}},
			Total: 1, Page: 1, PerPage: 20,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth_NoSession(t *testing.T) {
	srv := newBackend(t)
	a, out := newTestApp(t, &fakeProvider{}, srv.URL)

	require.NoError(t, run(a, "health"))

	assert.Contains(t, out.String(), "launchkit-api")
	assert.Contains(t, out.String(), "healthy")
}

func TestAdminUsers(t *testing.T) {
	srv := newBackend(t)
	a, out := newTestApp(t, signedIn("admin@example.org"), srv.URL)

	require.NoError(t, run(a, "admin", "users"))

	assert.Contains(t, out.String(), "ada@example.org")
	assert.Contains(t, out.String(), "page 1 of 1 (1 users)")
}

func TestProfileDelete_NeedsConfirmation(t *testing.T) {
	a, _ := newTestApp(t, signedIn("ada@example.org"), "")

	err := run(a, "profile", "delete")

	assert.ErrorContains(t, err, "--yes")
}
