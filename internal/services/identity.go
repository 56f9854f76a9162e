package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/identity/gotrue"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

// IdentityAuth is the user-facing half of the provider, called with the
// anon key.
type IdentityAuth interface {
	Token(ctx context.Context, email, password string) (*identity.Session, error)
	Signup(ctx context.Context, email, password, redirectTo string, data map[string]any) (*identity.Session, error)
	Recover(ctx context.Context, email, redirectTo string) error
	Logout(ctx context.Context, accessToken string) error
}

// IdentityAdmin needs the service key.
type IdentityAdmin interface {
	AdminGetUser(ctx context.Context, userID string) (*identity.User, error)
	AdminDeleteUser(ctx context.Context, userID string) error
	AdminCreateUser(ctx context.Context, p gotrue.AdminUserParams) (*identity.User, error)
	AdminListUsers(ctx context.Context, page, perPage int) ([]identity.User, error)
}

var (
	_ IdentityAuth  = (*gotrue.API)(nil)
	_ IdentityAdmin = (*gotrue.API)(nil)
)

// defaultUser is the view of an account that has no profile row yet.
func defaultUser(id, email, adminEmail string) models.User {
	return models.User{
		ID:       id,
		Email:    email,
		IsAdmin:  isAdminEmail(email, adminEmail),
		Language: models.DefaultLanguage,
	}
}

func isAdminEmail(email, adminEmail string) bool {
	return adminEmail != "" && strings.EqualFold(strings.TrimSpace(email), adminEmail)
}

// removeAccount deletes the user at the provider, then their profile row. The
// row is not left to a foreign key: tables migrated by this service have none.
// A user already gone at the provider still has a leftover row removed, so a
// retry after a failed row delete converges.
func removeAccount(ctx context.Context, idp IdentityAdmin, profiles pgrepo.ProfileRepository, id string) error {
	idpErr := idp.AdminDeleteUser(ctx, id)
	if idpErr != nil && !errors.Is(idpErr, identity.ErrNotFound) {
		return idpErr
	}
	switch err := profiles.Delete(ctx, id); {
	case err == nil:
		return nil
	case errors.Is(err, utils.ErrNotFound):
		return idpErr
	default:
		return err
	}
}
