package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/logger"
	"github.com/yoockh/launchkit/internal/models"
)

type fakeGoTrue struct {
	mu           sync.Mutex
	logouts      int
	refreshCalls int
	lastPatch    map[string]any
}

func (f *fakeGoTrue) snapshot() (logouts, refreshCalls int, lastPatch map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts, f.refreshCalls, f.lastPatch
}

func (f *fakeGoTrue) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "correct-horse" {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error":             "invalid_grant",
					"error_description": "Invalid login credentials",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "bearer",
				"expires_in":    3600,
				"user":          map[string]any{"id": "u-1", "email": body["email"]},
			})
		case "refresh_token":
			f.mu.Lock()
			f.refreshCalls++
			f.mu.Unlock()
			if body["refresh_token"] != "refresh-1" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Refresh Token Not Found"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access-2",
				"refresh_token": "refresh-2",
				"expires_in":    3600,
				"user":          map[string]any{"id": "u-1", "email": "ada@example.org"},
			})
		}
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer oauth-access" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "u-9", "email": "google@example.org"})
	})
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://app.example.org/dashboard", r.URL.Query().Get("redirect_to"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "u-new", "email": "new@example.org"})
	})
	mux.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("id") != "eq.u-1" {
				writeJSON(w, http.StatusNotAcceptable, map[string]string{"message": "JSON object requested, multiple (or no) rows returned"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": "u-1", "is_admin": true, "language": "de"})
		case http.MethodPatch:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.lastPatch = body
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeGoTrue, *MemoryStorage) {
	t.Helper()
	fake := &fakeGoTrue{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	storage := NewMemoryStorage()
	c := NewClient(NewAPI(srv.URL, "anon-key"), storage, logger.Discard())
	t.Cleanup(c.Close)
	return c, fake, storage
}

func collectEvents(c *Client) (<-chan identity.Event, func()) {
	ch := make(chan identity.Event, 16)
	unsub := c.OnAuthStateChange(func(ev identity.Event) { ch <- ev })
	return ch, unsub
}

func nextEvent(t *testing.T, ch <-chan identity.Event) identity.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return identity.Event{}
	}
}

func TestClient_SignInWithPassword_StoresSessionAndEmits(t *testing.T) {
	c, _, storage := newTestClient(t)
	events, unsub := collectEvents(c)
	defer unsub()

	s, err := c.SignInWithPassword(context.Background(), "ada@example.org", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.NotZero(t, s.ExpiresAt)

	ev := nextEvent(t, events)
	assert.Equal(t, identity.EventSignedIn, ev.Kind)
	assert.Equal(t, "u-1", ev.Session.User.ID)

	stored, _ := storage.Load()
	assert.Equal(t, "access-1", stored.AccessToken)
}

func TestClient_SignInWithPassword_InvalidCredentials(t *testing.T) {
	c, _, storage := newTestClient(t)

	_, err := c.SignInWithPassword(context.Background(), "bad@x.com", "wrong")

	var ae *identity.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invalid login credentials", ae.Message)
	assert.True(t, ae.InvalidCredentials())
	stored, _ := storage.Load()
	assert.Nil(t, stored)
}

func TestClient_GetSession_RefreshesExpired(t *testing.T) {
	c, fake, storage := newTestClient(t)
	require.NoError(t, storage.Save(&identity.Session{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		User:         identity.User{ID: "u-1"},
	}))
	events, unsub := collectEvents(c)
	defer unsub()

	s, err := c.GetSession(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "access-2", s.AccessToken)
	assert.Equal(t, identity.EventTokenRefreshed, nextEvent(t, events).Kind)
	_, refreshes, _ := fake.snapshot()
	assert.Equal(t, 1, refreshes)
}

func TestClient_GetSession_RejectedRefreshSignsOut(t *testing.T) {
	c, _, storage := newTestClient(t)
	require.NoError(t, storage.Save(&identity.Session{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
	}))
	events, unsub := collectEvents(c)
	defer unsub()

	s, err := c.GetSession(context.Background())

	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, identity.EventSignedOut, nextEvent(t, events).Kind)
}

func TestClient_SignOut(t *testing.T) {
	c, fake, storage := newTestClient(t)
	require.NoError(t, storage.Save(&identity.Session{AccessToken: "access-1"}))
	events, unsub := collectEvents(c)
	defer unsub()

	require.NoError(t, c.SignOut(context.Background()))

	assert.Equal(t, identity.EventSignedOut, nextEvent(t, events).Kind)
	logouts, _, _ := fake.snapshot()
	assert.Equal(t, 1, logouts)
	stored, _ := storage.Load()
	assert.Nil(t, stored)
}

func TestClient_ExchangeOAuthCallback(t *testing.T) {
	c, _, _ := newTestClient(t)
	events, unsub := collectEvents(c)
	defer unsub()

	s, err := c.ExchangeOAuthCallback(context.Background(),
		"https://app.example.org/dashboard#access_token=oauth-access&refresh_token=r&expires_in=3600&token_type=bearer")

	require.NoError(t, err)
	assert.Equal(t, "google@example.org", s.User.Email)
	assert.Equal(t, identity.EventSignedIn, nextEvent(t, events).Kind)

	_, err = c.ExchangeOAuthCallback(context.Background(), "#error=access_denied&error_description=User+denied")
	var ae *identity.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "User denied", ae.Message)
}

func TestClient_SignInWithOAuth_URL(t *testing.T) {
	c, _, _ := newTestClient(t)

	u, err := c.SignInWithOAuth(context.Background(), "google", "https://app.example.org/dashboard")

	require.NoError(t, err)
	assert.Contains(t, u, "/auth/v1/authorize?")
	assert.Contains(t, u, "provider=google")
	assert.Contains(t, u, "redirect_to=https%3A%2F%2Fapp.example.org%2Fdashboard")
}

func TestClient_SignUp_WithoutSession(t *testing.T) {
	c, _, storage := newTestClient(t)

	u, err := c.SignUp(context.Background(), "new@example.org", "longpassword", "https://app.example.org/dashboard")

	require.NoError(t, err)
	assert.Equal(t, "u-new", u.ID)
	stored, _ := storage.Load()
	assert.Nil(t, stored)
}

func TestClient_Profiles(t *testing.T) {
	c, fake, storage := newTestClient(t)
	require.NoError(t, storage.Save(&identity.Session{AccessToken: "access-1"}))
	ctx := context.Background()

	p, err := c.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)

	_, err = c.GetProfile(ctx, "missing")
	assert.True(t, IsNotFound(err))

	name := "Ada"
	require.NoError(t, c.UpdateProfile(ctx, "u-1", models.ProfileUpdate{Name: &name}))
	_, _, patch := fake.snapshot()
	assert.Equal(t, map[string]any{"name": "Ada"}, patch)
}

func TestFileStorage_RoundTrip(t *testing.T) {
	fs := NewFileStorage(filepath.Join(t.TempDir(), "nested", "session.json"))

	s, err := fs.Load()
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, fs.Save(&identity.Session{AccessToken: "a", RefreshToken: "r", User: identity.User{ID: "u"}}))
	s, err = fs.Load()
	require.NoError(t, err)
	assert.Equal(t, "u", s.User.ID)

	require.NoError(t, fs.Remove())
	require.NoError(t, fs.Remove())
	s, _ = fs.Load()
	assert.Nil(t, s)
}
