// Package identity describes the hosted authentication provider the rest of
// the module talks to: sessions, users, push events and the profiles
// relation the provider exposes as a data store.
package identity

import (
	"context"
	"time"

	"github.com/yoockh/launchkit/internal/models"
)

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// MetadataFlag looks up a boolean flag in user metadata, then app metadata.
// present is false when neither carries the key as a boolean.
func (u *User) MetadataFlag(key string) (value, present bool) {
	if u == nil {
		return false, false
	}
	for _, md := range []map[string]any{u.UserMetadata, u.AppMetadata} {
		if v, ok := md[key].(bool); ok {
			return v, true
		}
	}
	return false, false
}

// Clone returns a deep-enough copy for handing out of a locked container.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.AppMetadata = cloneMap(u.AppMetadata)
	cp.UserMetadata = cloneMap(u.UserMetadata)
	return &cp
}

type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expired reports whether the access token expires within leeway of now.
// Sessions without an expiry never expire locally.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(leeway).Before(time.Unix(s.ExpiresAt, 0))
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.User = *s.User.Clone()
	return &cp
}

type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// Event is a session change pushed by the provider. Session is nil for
// EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider is the client-side view of the hosted identity service.
type Provider interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignInWithOAuth returns the consent URL the user must be sent to.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	// ExchangeOAuthCallback completes an OAuth redirect-back.
	ExchangeOAuthCallback(ctx context.Context, callbackURL string) (*Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*User, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	// OnAuthStateChange registers fn for every subsequent session event.
	OnAuthStateChange(fn func(Event)) (unsubscribe func())
}

// ProfileStore is the provider-hosted "profiles" relation.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) error
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
