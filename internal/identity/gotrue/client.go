package gotrue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
)

// refreshLeeway refreshes sessions slightly before the provider would
// reject them.
const refreshLeeway = 30 * time.Second

// Client is the stateful session client used by front-ends. It keeps one
// session in Storage and pushes session events to subscribers in order, on
// its own goroutine, after the call that caused them has returned its result.
type Client struct {
	api     *API
	storage Storage
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.Mutex
	subs   map[int]func(identity.Event)
	nextID int

	events chan identity.Event
	done   chan struct{}
	once   sync.Once
}

var (
	_ identity.Provider     = (*Client)(nil)
	_ identity.ProfileStore = (*Client)(nil)
)

func NewClient(api *API, storage Storage, log logrus.FieldLogger) *Client {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{
		api:     api,
		storage: storage,
		log:     log,
		now:     time.Now,
		subs:    map[int]func(identity.Event){},
		events:  make(chan identity.Event, 64),
		done:    make(chan struct{}),
	}
	go c.deliver()
	return c
}

// Close stops event delivery. Pending events are dropped.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) deliver() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.mu.Lock()
			fns := make([]func(identity.Event), 0, len(c.subs))
			for _, fn := range c.subs {
				fns = append(fns, fn)
			}
			c.mu.Unlock()
			for _, fn := range fns {
				fn(ev)
			}
		}
	}
}

func (c *Client) emit(kind identity.EventKind, s *identity.Session) {
	select {
	case c.events <- identity.Event{Kind: kind, Session: s.Clone()}:
	case <-c.done:
	}
}

func (c *Client) OnAuthStateChange(fn func(identity.Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Client) GetSession(ctx context.Context) (*identity.Session, error) {
	s, err := c.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	if !s.Expired(c.now(), refreshLeeway) {
		return s, nil
	}
	if s.RefreshToken == "" {
		_ = c.storage.Remove()
		c.emit(identity.EventSignedOut, nil)
		return nil, nil
	}

	fresh, err := c.api.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if identity.IsAuthError(err) {
			c.log.WithError(err).Info("session refresh rejected, dropping session")
			_ = c.storage.Remove()
			c.emit(identity.EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}
	if err := c.storage.Save(fresh); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.emit(identity.EventTokenRefreshed, fresh)
	return fresh, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	s, err := c.api.Token(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.storage.Save(s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.emit(identity.EventSignedIn, s)
	return s, nil
}

func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	if provider == "" {
		return "", &identity.AuthError{Op: "sign_in_oauth", Status: http.StatusBadRequest, Message: "provider is required"}
	}
	return c.api.AuthorizeURL(provider, redirectTo), nil
}

// ExchangeOAuthCallback accepts the full redirect-back URL (or just its
// fragment) carrying implicit-flow tokens.
func (c *Client) ExchangeOAuthCallback(ctx context.Context, callbackURL string) (*identity.Session, error) {
	params, err := callbackParams(callbackURL)
	if err != nil {
		return nil, err
	}
	if e := params.Get("error"); e != "" {
		msg := params.Get("error_description")
		if msg == "" {
			msg = e
		}
		return nil, &identity.AuthError{Op: "oauth_callback", Status: http.StatusUnauthorized, Code: e, Message: msg}
	}

	s := &identity.Session{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
		TokenType:    params.Get("token_type"),
	}
	if s.AccessToken == "" {
		return nil, &identity.AuthError{Op: "oauth_callback", Status: http.StatusBadRequest, Message: "callback carries no access token"}
	}
	s.ExpiresIn, _ = strconv.ParseInt(params.Get("expires_in"), 10, 64)
	s.ExpiresAt, _ = strconv.ParseInt(params.Get("expires_at"), 10, 64)
	if s.ExpiresAt == 0 && s.ExpiresIn == 0 {
		s.ExpiresAt = tokenExpiry(s.AccessToken)
	}
	normalizeSession(s, c.now())

	u, err := c.api.GetUser(ctx, s.AccessToken)
	if err != nil {
		return nil, err
	}
	s.User = *u

	if err := c.storage.Save(s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.emit(identity.EventSignedIn, s)
	return s, nil
}

func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*identity.User, error) {
	s, err := c.api.Signup(ctx, email, password, redirectTo, nil)
	if err != nil {
		return nil, err
	}
	return &s.User, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.storage.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s != nil && s.AccessToken != "" {
		if err := c.api.Logout(ctx, s.AccessToken); err != nil && !alreadySignedOut(err) {
			return err
		}
	}
	if err := c.storage.Remove(); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	c.emit(identity.EventSignedOut, nil)
	return nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.api.Recover(ctx, email, redirectTo)
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return c.api.GetProfile(ctx, c.bearer(ctx), userID)
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) error {
	return c.api.UpdateProfile(ctx, c.bearer(ctx), userID, upd)
}

func (c *Client) bearer(ctx context.Context) string {
	s, err := c.GetSession(ctx)
	if err != nil || s == nil {
		return ""
	}
	return s.AccessToken
}

func alreadySignedOut(err error) bool {
	if errors.Is(err, identity.ErrNotFound) {
		return true
	}
	var ae *identity.AuthError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

func callbackParams(callback string) (url.Values, error) {
	raw := strings.TrimSpace(callback)
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[i+1:]
	} else if u, err := url.Parse(raw); err == nil && u.RawQuery != "" {
		raw = u.RawQuery
	}
	raw = strings.TrimPrefix(raw, "?")
	v, err := url.ParseQuery(raw)
	if err != nil {
		return nil, &identity.AuthError{Op: "oauth_callback", Status: http.StatusBadRequest, Message: "malformed callback"}
	}
	return v, nil
}

// tokenExpiry reads exp from an access token without verifying it; the
// provider verifies on every use.
func tokenExpiry(token string) int64 {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Unix()
}
