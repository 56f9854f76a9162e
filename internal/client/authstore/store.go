// Package authstore mirrors the identity provider's session inside a running
// client: who is logged in, whether they are an administrator, and whether
// the first provider query has resolved yet.
package authstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
)

var (
	// ErrNoSession is returned by operations that need a logged-in user.
	ErrNoSession = errors.New("authstore: no user logged in")
	// ErrLoginNotConfirmed means the provider accepted the credentials but
	// no session event reached the store within LoginConfirmTimeout.
	ErrLoginNotConfirmed = errors.New("authstore: login not confirmed by session event")
	ErrClosed            = errors.New("authstore: store closed")
)

const (
	defaultConfirmTimeout = 5 * time.Second
	profileLookupTimeout  = 10 * time.Second
)

type State struct {
	User      *identity.User
	Session   *identity.Session
	IsLoading bool
	IsAdmin   bool
	// AdminSettled is set once the profile lookup for the current user has
	// finished, successfully or not. Until then IsAdmin is the fallback.
	AdminSettled bool
}

func (s State) Authenticated() bool { return s.User != nil }

func (s State) clone() State {
	s.User = s.User.Clone()
	s.Session = s.Session.Clone()
	return s
}

type Options struct {
	// AdminEmail is the hard-wired administrator address.
	AdminEmail string
	// AppURL is the base for provider redirects (OAuth, confirmation and
	// password-reset links).
	AppURL        string
	OAuthProvider string
	// LoginConfirmTimeout bounds how long Login waits for the session event.
	LoginConfirmTimeout time.Duration
	Logger              logrus.FieldLogger
}

// Store is the single owner of AuthState. Every mutation is applied by one
// dispatcher goroutine, in the order messages arrive; readers get copies.
type Store struct {
	provider identity.Provider
	profiles identity.ProfileStore
	opts     Options
	log      logrus.FieldLogger

	mu      sync.RWMutex
	state   State
	changed chan struct{}

	// owned by the dispatcher goroutine
	generation   uint64
	eventApplied bool

	msgs        chan message
	done        chan struct{}
	baseCtx     context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	initOnce    sync.Once
	unsubscribe func() // guarded by mu
	// in-flight profile lookups; they exit on their own once done is closed
	lookups sync.WaitGroup
}

// New starts the dispatcher. profiles may be nil, in which case admin status
// comes from metadata and the admin address only.
func New(provider identity.Provider, profiles identity.ProfileStore, opts Options) *Store {
	if opts.LoginConfirmTimeout <= 0 {
		opts.LoginConfirmTimeout = defaultConfirmTimeout
	}
	if opts.OAuthProvider == "" {
		opts.OAuthProvider = "google"
	}
	opts.AppURL = strings.TrimRight(opts.AppURL, "/")
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		provider: provider,
		profiles: profiles,
		opts:     opts,
		log:      opts.Logger.WithField("component", "authstore"),
		state:    State{IsLoading: true},
		changed:  make(chan struct{}),
		msgs:     make(chan message, 64),
		done:     make(chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	go s.run()
	return s
}

// State returns a snapshot of the current auth state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Changes returns a channel that is closed on the next state change.
func (s *Store) Changes() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// WaitAdminSettled waits, at most d, for the current user's profile lookup so
// that IsAdmin reflects the profile flag. On timeout the fallback stands and
// nil is returned; only cancellation of ctx or Close are errors.
func (s *Store) WaitAdminSettled(ctx context.Context, d time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := s.WaitFor(wctx, func(st State) bool { return st.User == nil || st.AdminSettled })
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		s.log.Debug("profile lookup still pending, using fallback admin status")
		return nil
	}
	return err
}

// WaitFor blocks until pred holds for the current state.
func (s *Store) WaitFor(ctx context.Context, pred func(State) bool) error {
	for {
		s.mu.RLock()
		st := s.state.clone()
		ch := s.changed
		s.mu.RUnlock()

		if pred(st) {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		}
	}
}

// Close unsubscribes from the provider and stops the dispatcher.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		close(s.done)
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		s.cancel()
	})
}

// Initialize subscribes to provider events and resolves the initial session.
// When it returns, IsLoading is false. Only the first call does anything.
func (s *Store) Initialize(ctx context.Context) error {
	var err error
	s.initOnce.Do(func() {
		unsubscribe := s.provider.OnAuthStateChange(func(ev identity.Event) {
			_ = s.post(eventMsg{ev: ev})
		})
		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			unsubscribe()
			err = ErrClosed
			return
		default:
			s.unsubscribe = unsubscribe
		}
		s.mu.Unlock()

		sess, qerr := s.provider.GetSession(ctx)
		if qerr != nil {
			s.log.WithError(qerr).Error("auth initialization failed")
			err = qerr
		}
		ack := make(chan struct{})
		if perr := s.post(initialMsg{session: sess, failed: qerr != nil, ack: ack}); perr != nil {
			err = perr
			return
		}
		s.await(ack)
	})
	return err
}

// Login verifies credentials with the provider and waits until the
// resulting session event has populated the store.
func (s *Store) Login(ctx context.Context, email, password string) error {
	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	return s.awaitUser(ctx, sess)
}

// LoginWithGoogle returns the consent URL. The session arrives later through
// CompleteOAuth and the provider's push events.
func (s *Store) LoginWithGoogle(ctx context.Context) (string, error) {
	return s.provider.SignInWithOAuth(ctx, s.opts.OAuthProvider, s.opts.AppURL+"/dashboard")
}

// CompleteOAuth hands the redirect-back URL to the provider and waits for the
// session event, exactly like Login.
func (s *Store) CompleteOAuth(ctx context.Context, callbackURL string) error {
	sess, err := s.provider.ExchangeOAuthCallback(ctx, callbackURL)
	if err != nil {
		return err
	}
	return s.awaitUser(ctx, sess)
}

// Signup creates the account. It never logs the user in; the provider may
// require email confirmation first.
func (s *Store) Signup(ctx context.Context, email, password string) (*identity.User, error) {
	return s.provider.SignUp(ctx, email, password, s.opts.AppURL+"/dashboard")
}

// Logout signs out at the provider, then clears local state. On provider
// failure local state is left untouched.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return err
	}
	ack := make(chan struct{})
	if err := s.post(clearMsg{ack: ack}); err != nil {
		return err
	}
	s.await(ack)
	return nil
}

// UpdateProfile writes partial fields to the caller's profile row. Local
// state is not refreshed; callers re-fetch what they display.
func (s *Store) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) error {
	st := s.State()
	if st.User == nil {
		return ErrNoSession
	}
	if s.profiles == nil {
		return &identity.AuthError{Op: "update_profile", Message: "profile store is not configured"}
	}
	if err := s.profiles.UpdateProfile(ctx, st.User.ID, upd); err != nil {
		if identity.IsAuthError(err) {
			return err
		}
		return &identity.AuthError{Op: "update_profile", Message: err.Error()}
	}
	return nil
}

func (s *Store) ResetPassword(ctx context.Context, email string) error {
	return s.provider.ResetPasswordForEmail(ctx, email, s.opts.AppURL+"/reset-password")
}

func (s *Store) awaitUser(ctx context.Context, sess *identity.Session) error {
	wantID := ""
	if sess != nil {
		wantID = sess.User.ID
	}

	wctx, cancel := context.WithTimeout(ctx, s.opts.LoginConfirmTimeout)
	defer cancel()

	err := s.WaitFor(wctx, func(st State) bool {
		return st.User != nil && (wantID == "" || st.User.ID == wantID)
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrLoginNotConfirmed
	}
	return err
}

func (s *Store) post(m message) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.msgs <- m:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *Store) await(ack chan struct{}) {
	select {
	case <-ack:
	case <-s.done:
	}
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}
