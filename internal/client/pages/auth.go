package pages

import (
	"context"

	"github.com/yoockh/launchkit/internal/identity"
)

// Auth backs the login, signup and forgot-password screens.
type Auth struct {
	session Session
}

func NewAuth(session Session) *Auth { return &Auth{session: session} }

func (a *Auth) Login(ctx context.Context, f LoginForm) error {
	if err := Validate(f); err != nil {
		return err
	}
	return a.session.Login(ctx, f.Email, f.Password)
}

// Signup creates the account; the user is not logged in afterwards.
func (a *Auth) Signup(ctx context.Context, f SignupForm) (*identity.User, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	return a.session.Signup(ctx, f.Email, f.Password)
}

func (a *Auth) ForgotPassword(ctx context.Context, f ForgotPasswordForm) error {
	if err := Validate(f); err != nil {
		return err
	}
	return a.session.ResetPassword(ctx, f.Email)
}

func (a *Auth) Logout(ctx context.Context) error { return a.session.Logout(ctx) }
