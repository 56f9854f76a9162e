package authstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/logger"
	"github.com/yoockh/launchkit/internal/models"
)

// ==========================================
// Fakes
// ==========================================

type fakeProvider struct {
	mu      sync.Mutex
	subs    []func(identity.Event)
	session *identity.Session
	getErr  error

	signInErr  error
	signOutErr error
	// emitOnSignIn pushes SIGNED_IN after a successful password sign-in.
	emitOnSignIn bool

	lastRedirect string
}

func (f *fakeProvider) push(ev identity.Event) {
	f.mu.Lock()
	subs := append([]func(identity.Event){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeProvider) GetSession(context.Context) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone(), f.getErr
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, _ string) (*identity.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := &identity.Session{AccessToken: "tok", User: identity.User{ID: "u-" + email, Email: email}}
	if f.emitOnSignIn {
		go func() {
			time.Sleep(20 * time.Millisecond)
			f.push(identity.Event{Kind: identity.EventSignedIn, Session: s})
		}()
	}
	return s, nil
}

func (f *fakeProvider) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	f.mu.Lock()
	f.lastRedirect = redirectTo
	f.mu.Unlock()
	return "https://idp.example.org/authorize?provider=" + provider, nil
}

func (f *fakeProvider) ExchangeOAuthCallback(context.Context, string) (*identity.Session, error) {
	return nil, &identity.AuthError{Op: "oauth_callback", Status: 401, Message: "denied"}
}

func (f *fakeProvider) SignUp(_ context.Context, email, _, redirectTo string) (*identity.User, error) {
	f.mu.Lock()
	f.lastRedirect = redirectTo
	f.mu.Unlock()
	return &identity.User{ID: "new", Email: email}, nil
}

func (f *fakeProvider) SignOut(context.Context) error { return f.signOutErr }

func (f *fakeProvider) ResetPasswordForEmail(_ context.Context, _, redirectTo string) error {
	f.mu.Lock()
	f.lastRedirect = redirectTo
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) OnAuthStateChange(fn func(identity.Event)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.subs = nil
		f.mu.Unlock()
	}
}

type fakeProfiles struct {
	mu      sync.Mutex
	profile map[string]*models.Profile
	err     error
	gate    chan struct{} // when set, lookups block until closed
	updates []models.ProfileUpdate
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profile[userID]; ok {
		return p, nil
	}
	return nil, identity.ErrNotFound
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, _ string, upd models.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, upd)
	return nil
}

func session(id, email string) *identity.Session {
	return &identity.Session{AccessToken: "tok-" + id, User: identity.User{ID: id, Email: email}}
}

func newStore(t *testing.T, p *fakeProvider, profiles identity.ProfileStore) *Store {
	t.Helper()
	s := New(p, profiles, Options{
		AdminEmail:          "admin@example.org",
		AppURL:              "https://app.example.org/",
		LoginConfirmTimeout: 300 * time.Millisecond,
		Logger:              logger.Discard(),
	})
	t.Cleanup(s.Close)
	return s
}

// settle waits for in-flight profile lookups and every queued message.
func settle(s *Store) {
	s.flush()
	s.lookups.Wait()
	s.flush()
}

// ==========================================
// Initialize
// ==========================================

func TestInitialize_NoSession(t *testing.T) {
	s := newStore(t, &fakeProvider{}, nil)
	assert.True(t, s.State().IsLoading)

	require.NoError(t, s.Initialize(context.Background()))

	st := s.State()
	assert.False(t, st.IsLoading)
	assert.Nil(t, st.User)
	assert.False(t, st.IsAdmin)
}

func TestInitialize_AdminEmailWithFailingProfile(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "Admin@Example.org")}
	profiles := &fakeProfiles{err: errors.New("network down")}
	s := newStore(t, p, profiles)

	require.NoError(t, s.Initialize(context.Background()))
	settle(s)

	st := s.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "u-1", st.User.ID)
	assert.True(t, st.IsAdmin)
	assert.False(t, st.IsLoading)
}

func TestInitialize_ProviderErrorStillResolvesLoading(t *testing.T) {
	p := &fakeProvider{getErr: errors.New("boom")}
	s := newStore(t, p, nil)

	err := s.Initialize(context.Background())

	assert.Error(t, err)
	assert.False(t, s.State().IsLoading)
	assert.Nil(t, s.State().User)
}

func TestInitialize_SecondCallIsNoop(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "a@example.org")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	require.NoError(t, s.Initialize(context.Background()))

	assert.NotNil(t, s.State().User)
	p.mu.Lock()
	assert.Len(t, p.subs, 1)
	p.mu.Unlock()
}

// ==========================================
// Events
// ==========================================

func TestSignedOut_ClearsRegardlessOfPriorState(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "admin@example.org")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))
	require.True(t, s.State().IsAdmin)

	p.push(identity.Event{Kind: identity.EventSignedOut})
	s.flush()

	st := s.State()
	assert.Nil(t, st.User)
	assert.Nil(t, st.Session)
	assert.False(t, st.IsAdmin)
	assert.False(t, st.IsLoading)
}

func TestTokenRefreshed_NeverClearsUser(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "a@example.org")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	refreshed := session("u-1", "a@example.org")
	refreshed.AccessToken = "tok-2"
	p.push(identity.Event{Kind: identity.EventTokenRefreshed, Session: refreshed})
	p.push(identity.Event{Kind: identity.EventTokenRefreshed})
	s.flush()

	st := s.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "u-1", st.User.ID)
	assert.Equal(t, "tok-2", st.Session.AccessToken)
}

func TestTokenRefreshed_BackfillsMissingUser(t *testing.T) {
	p := &fakeProvider{}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	p.push(identity.Event{Kind: identity.EventTokenRefreshed, Session: session("u-2", "b@example.org")})
	s.flush()

	require.NotNil(t, s.State().User)
	assert.Equal(t, "u-2", s.State().User.ID)
}

func TestUnhandledEventsAreIgnored(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "a@example.org")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	p.push(identity.Event{Kind: identity.EventPasswordRecovery})
	p.push(identity.Event{Kind: identity.EventUserUpdated, Session: session("u-9", "z@example.org")})
	s.flush()

	assert.Equal(t, "u-1", s.State().User.ID)
}

func TestIsLoading_IsMonotonic(t *testing.T) {
	p := &fakeProvider{}
	s := newStore(t, p, nil)

	var (
		mu   sync.Mutex
		seen []bool
	)
	stop := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		for {
			ch := s.Changes()
			mu.Lock()
			seen = append(seen, s.State().IsLoading)
			mu.Unlock()
			select {
			case <-ch:
			case <-stop:
				return
			}
		}
	}()

	require.NoError(t, s.Initialize(context.Background()))
	p.push(identity.Event{Kind: identity.EventSignedIn, Session: session("u-1", "a@example.org")})
	p.push(identity.Event{Kind: identity.EventSignedOut})
	p.push(identity.Event{Kind: identity.EventTokenRefreshed, Session: session("u-1", "a@example.org")})
	s.flush()
	close(stop)
	<-watching

	mu.Lock()
	defer mu.Unlock()
	resolved := false
	for _, loading := range seen {
		if resolved {
			assert.False(t, loading, "isLoading went back to true")
		}
		if !loading {
			resolved = true
		}
	}
	assert.False(t, s.State().IsLoading)
}

// ==========================================
// Admin resolution
// ==========================================

func TestAdmin_ProfileOverridesEmail(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "admin@example.org")}
	profiles := &fakeProfiles{
		profile: map[string]*models.Profile{"u-1": {IsAdmin: false}},
		gate:    make(chan struct{}),
	}
	s := newStore(t, p, profiles)

	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.State().IsAdmin, "email fallback applies before the profile arrives")

	close(profiles.gate)
	settle(s)
	assert.False(t, s.State().IsAdmin)
}

func TestAdmin_ProfileGrantsAdmin(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "someone@example.org")}
	profiles := &fakeProfiles{profile: map[string]*models.Profile{"u-1": {IsAdmin: true}}}
	s := newStore(t, p, profiles)

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.WaitFor(context.Background(), func(st State) bool { return st.IsAdmin }))
}

func TestAdmin_MetadataOverridesEmail(t *testing.T) {
	sess := session("u-1", "admin@example.org")
	sess.User.UserMetadata = map[string]any{"is_admin": false}
	s := newStore(t, &fakeProvider{session: sess}, nil)

	require.NoError(t, s.Initialize(context.Background()))

	assert.False(t, s.State().IsAdmin)
}

func TestAdmin_AppMetadataGrantsAdmin(t *testing.T) {
	sess := session("u-1", "x@example.org")
	sess.User.AppMetadata = map[string]any{"is_admin": true}
	s := newStore(t, &fakeProvider{session: sess}, nil)

	require.NoError(t, s.Initialize(context.Background()))

	assert.True(t, s.State().IsAdmin)
}

func TestAdminSettled_WaitsForProfileFlag(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "promoted@example.org")}
	profiles := &fakeProfiles{
		profile: map[string]*models.Profile{"u-1": {IsAdmin: true}},
		gate:    make(chan struct{}),
	}
	s := newStore(t, p, profiles)
	require.NoError(t, s.Initialize(context.Background()))

	st := s.State()
	assert.False(t, st.AdminSettled)
	assert.False(t, st.IsAdmin)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(profiles.gate)
	}()
	require.NoError(t, s.WaitAdminSettled(context.Background(), time.Second))

	st = s.State()
	assert.True(t, st.AdminSettled)
	assert.True(t, st.IsAdmin)
}

func TestAdminSettled_TimeoutKeepsFallback(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "admin@example.org")}
	profiles := &fakeProfiles{gate: make(chan struct{})}
	s := newStore(t, p, profiles)
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.WaitAdminSettled(context.Background(), 30*time.Millisecond))

	st := s.State()
	assert.False(t, st.AdminSettled)
	assert.True(t, st.IsAdmin)
}

func TestAdminSettled_FailedLookupSettles(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "admin@example.org")}
	s := newStore(t, p, &fakeProfiles{err: errors.New("network down")})
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.WaitAdminSettled(context.Background(), time.Second))

	st := s.State()
	assert.True(t, st.AdminSettled)
	assert.True(t, st.IsAdmin)
}

func TestAdminSettled_WithoutProfileStore(t *testing.T) {
	s := newStore(t, &fakeProvider{session: session("u-1", "x@example.org")}, nil)
	require.NoError(t, s.Initialize(context.Background()))

	assert.True(t, s.State().AdminSettled)
}

func TestAdminSettled_ClearedOnSignOut(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "x@example.org")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	p.push(identity.Event{Kind: identity.EventSignedOut})
	s.flush()

	assert.False(t, s.State().AdminSettled)
}

func TestEnrichment_StaleResultDropped(t *testing.T) {
	p := &fakeProvider{}
	profiles := &fakeProfiles{
		profile: map[string]*models.Profile{"u-1": {IsAdmin: true}},
		gate:    make(chan struct{}),
	}
	s := newStore(t, p, profiles)
	require.NoError(t, s.Initialize(context.Background()))

	p.push(identity.Event{Kind: identity.EventSignedIn, Session: session("u-1", "a@example.org")})
	s.flush()
	p.push(identity.Event{Kind: identity.EventSignedOut})
	s.flush()

	close(profiles.gate)
	settle(s)

	st := s.State()
	assert.Nil(t, st.User)
	assert.False(t, st.IsAdmin)
}

func TestEnrichment_ResultForEarlierSignInDropped(t *testing.T) {
	p := &fakeProvider{}
	profiles := &fakeProfiles{
		profile: map[string]*models.Profile{"u-1": {IsAdmin: true}},
		gate:    make(chan struct{}),
	}
	s := newStore(t, p, profiles)
	require.NoError(t, s.Initialize(context.Background()))

	p.push(identity.Event{Kind: identity.EventSignedIn, Session: session("u-1", "a@example.org")})
	p.push(identity.Event{Kind: identity.EventSignedIn, Session: session("u-2", "b@example.org")})
	s.flush()
	close(profiles.gate)
	settle(s)

	st := s.State()
	assert.Equal(t, "u-2", st.User.ID)
	assert.False(t, st.IsAdmin)
}

// ==========================================
// Operations
// ==========================================

func TestLogin_InvalidCredentials(t *testing.T) {
	p := &fakeProvider{signInErr: &identity.AuthError{Op: "sign_in", Status: 400, Message: "Invalid login credentials"}}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	err := s.Login(context.Background(), "bad@x.com", "wrong")

	var ae *identity.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invalid login credentials", ae.Message)
	assert.Nil(t, s.State().User)
}

func TestLogin_WaitsForSessionEvent(t *testing.T) {
	p := &fakeProvider{emitOnSignIn: true}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.Login(context.Background(), "ada@example.org", "pw"))

	st := s.State()
	require.NotNil(t, st.User)
	assert.Equal(t, "ada@example.org", st.User.Email)
}

func TestLogin_NotConfirmed(t *testing.T) {
	p := &fakeProvider{}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	err := s.Login(context.Background(), "ada@example.org", "pw")

	assert.ErrorIs(t, err, ErrLoginNotConfirmed)
}

func TestLogin_CallerContextCancelled(t *testing.T) {
	s := newStore(t, &fakeProvider{}, nil)
	require.NoError(t, s.Initialize(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Login(ctx, "ada@example.org", "pw")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogout_ClearsState(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "admin@example.org")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.Logout(context.Background()))

	st := s.State()
	assert.Nil(t, st.User)
	assert.Nil(t, st.Session)
	assert.False(t, st.IsAdmin)
}

func TestLogout_ProviderFailureKeepsState(t *testing.T) {
	p := &fakeProvider{session: session("u-1", "a@example.org"), signOutErr: errors.New("offline")}
	s := newStore(t, p, nil)
	require.NoError(t, s.Initialize(context.Background()))

	assert.Error(t, s.Logout(context.Background()))
	assert.NotNil(t, s.State().User)
}

func TestUpdateProfile_NoSession(t *testing.T) {
	profiles := &fakeProfiles{}
	s := newStore(t, &fakeProvider{}, profiles)
	require.NoError(t, s.Initialize(context.Background()))

	name := "Ada"
	err := s.UpdateProfile(context.Background(), models.ProfileUpdate{Name: &name})

	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, profiles.updates)
}

func TestUpdateProfile_RemoteFailureIsAuthError(t *testing.T) {
	profiles := &fakeProfiles{profile: map[string]*models.Profile{}}
	s := newStore(t, &fakeProvider{session: session("u-1", "a@example.org")}, profiles)
	require.NoError(t, s.Initialize(context.Background()))
	settle(s)

	profiles.mu.Lock()
	profiles.err = errors.New("row level security")
	profiles.mu.Unlock()

	lang := "fr"
	err := s.UpdateProfile(context.Background(), models.ProfileUpdate{Language: &lang})

	var ae *identity.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "update_profile", ae.Op)
}

func TestUpdateProfile_Writes(t *testing.T) {
	profiles := &fakeProfiles{profile: map[string]*models.Profile{}}
	s := newStore(t, &fakeProvider{session: session("u-1", "a@example.org")}, profiles)
	require.NoError(t, s.Initialize(context.Background()))
	settle(s)

	lang := "fr"
	require.NoError(t, s.UpdateProfile(context.Background(), models.ProfileUpdate{Language: &lang}))

	profiles.mu.Lock()
	defer profiles.mu.Unlock()
	require.Len(t, profiles.updates, 1)
	assert.Equal(t, "fr", *profiles.updates[0].Language)
}

func TestRedirects(t *testing.T) {
	p := &fakeProvider{}
	s := newStore(t, p, nil)
	ctx := context.Background()

	u, err := s.LoginWithGoogle(ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "provider=google")
	assert.Equal(t, "https://app.example.org/dashboard", p.lastRedirect)

	require.NoError(t, s.ResetPassword(ctx, "ada@example.org"))
	assert.Equal(t, "https://app.example.org/reset-password", p.lastRedirect)

	user, err := s.Signup(ctx, "new@example.org", "longpassword")
	require.NoError(t, err)
	assert.Equal(t, "new", user.ID)
	assert.Nil(t, s.State().User)
}

func TestCompleteOAuth_ProviderError(t *testing.T) {
	s := newStore(t, &fakeProvider{}, nil)

	err := s.CompleteOAuth(context.Background(), "#error=access_denied")

	assert.True(t, identity.IsAuthError(err))
}

func TestClose_StopsWaiters(t *testing.T) {
	s := New(&fakeProvider{}, nil, Options{Logger: logger.Discard()})
	errc := make(chan error, 1)
	go func() {
		errc <- s.WaitFor(context.Background(), func(st State) bool { return st.User != nil })
	}()

	s.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

func TestClose_BeforeInitializeUnsubscribes(t *testing.T) {
	p := &fakeProvider{}
	s := newStore(t, p, nil)
	s.Close()

	err := s.Initialize(context.Background())

	assert.ErrorIs(t, err, ErrClosed)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.subs)
}

func TestClose_ConcurrentWithInitialize(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := &fakeProvider{session: session("u-1", "x@example.org")}
		s := newStore(t, p, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Initialize(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
		wg.Wait()

		p.mu.Lock()
		assert.Empty(t, p.subs)
		p.mu.Unlock()
	}
}
