package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

type UserService interface {
	Me(ctx context.Context, userID, email string) (*models.User, error)
	UpdateMe(ctx context.Context, userID, email string, upd models.ProfileUpdate) (*models.User, error)
	DeleteMe(ctx context.Context, userID string) error
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type userService struct {
	adminEmail string
	profiles   pgrepo.ProfileRepository
	admin      IdentityAdmin
	activity   ActivityService
}

func NewUserService(adminEmail string, profiles pgrepo.ProfileRepository, admin IdentityAdmin, activity ActivityService) UserService {
	return &userService{adminEmail: adminEmail, profiles: profiles, admin: admin, activity: activity}
}

func (s *userService) Me(ctx context.Context, userID, email string) (*models.User, error) {
	const op = "UserService.Me"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			u := defaultUser(userID, email, s.adminEmail)
			return &u, nil
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	u := p.ToUser(email, p.CreatedAt)
	return &u, nil
}

func (s *userService) UpdateMe(ctx context.Context, userID, email string, upd models.ProfileUpdate) (*models.User, error) {
	const op = "UserService.UpdateMe"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if len([]rune(name)) > models.MaxNameLength {
			return nil, utils.E(utils.CodeInvalidArgument, op, "name must be at most 100 characters", nil)
		}
		upd.Name = &name
	}
	if upd.Language != nil && !models.IsSupportedLanguage(*upd.Language) {
		return nil, utils.E(utils.CodeInvalidArgument, op,
			"language must be one of "+strings.Join(models.SupportedLanguages, ", "), nil)
	}
	if upd.Empty() {
		return s.Me(ctx, userID, email)
	}

	err := s.profiles.UpdateColumns(ctx, userID, upd.Columns())
	if errors.Is(err, utils.ErrNotFound) {
		p := &models.Profile{
			ID:       userID,
			Email:    email,
			Language: models.DefaultLanguage,
			IsAdmin:  isAdminEmail(email, s.adminEmail),
		}
		if upd.Name != nil {
			p.Name = upd.Name
		}
		if upd.Language != nil {
			p.Language = *upd.Language
		}
		err = s.profiles.Insert(ctx, p)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update profile", err)
	}

	s.activity.Record(ctx, models.Activity{
		Kind:    models.ActivityProfileUpdated,
		UserID:  userID,
		Details: upd.Columns(),
	})
	return s.Me(ctx, userID, email)
}

func (s *userService) DeleteMe(ctx context.Context, userID string) error {
	const op = "UserService.DeleteMe"

	if userID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if err := removeAccount(ctx, s.admin, s.profiles, userID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "User not found", err)
		}
		return utils.E(utils.CodeInternal, op, "Failed to delete account", err)
	}
	s.activity.Record(ctx, models.Activity{Kind: models.ActivityAccountDeleted, UserID: userID})
	return nil
}

func (s *userService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	const op = "UserService.IsAdmin"

	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, utils.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to get profile", err)
	}
	return p.IsAdmin, nil
}
