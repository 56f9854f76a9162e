package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/identity/gotrue"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

const (
	seedPageSize = 100
	seedMaxPages = 50
)

// SeedAdmin makes sure the administrator account exists at the provider and
// that its profile carries is_admin.
func SeedAdmin(ctx context.Context, idp IdentityAdmin, profiles pgrepo.ProfileRepository, email string, log logrus.FieldLogger) error {
	const op = "SeedAdmin"

	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}

	u, err := findUserByEmail(ctx, idp, email)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to list users", err)
	}
	if u == nil {
		u, err = idp.AdminCreateUser(ctx, gotrue.AdminUserParams{
			Email:        email,
			Password:     uuid.NewString(),
			EmailConfirm: true,
			UserMetadata: map[string]any{"is_admin": true},
		})
		if err != nil {
			return utils.E(utils.CodeUnavailable, op, "failed to create admin account", err)
		}
		log.WithField("email", email).Warn("admin account created with a temporary password, set a new one through password reset")
	}

	if err := profiles.Insert(ctx, &models.Profile{
		ID:       u.ID,
		Email:    email,
		Language: models.DefaultLanguage,
		IsAdmin:  true,
	}); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to create admin profile", err)
	}
	if err := profiles.UpdateColumns(ctx, u.ID, map[string]any{"is_admin": true}); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to flag admin profile", err)
	}
	return nil
}

func findUserByEmail(ctx context.Context, idp IdentityAdmin, email string) (*identity.User, error) {
	for page := 1; page <= seedMaxPages; page++ {
		users, err := idp.AdminListUsers(ctx, page, seedPageSize)
		if err != nil {
			return nil, err
		}
		for i := range users {
			if strings.EqualFold(users[i].Email, email) {
				return &users[i], nil
			}
		}
		if len(users) < seedPageSize {
			break
		}
	}
	return nil, nil
}
