package services

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type AdminService interface {
	ListUsers(ctx context.Context, q models.UserQuery) (*models.UserList, error)
	SetAdmin(ctx context.Context, actorID, targetID string, isAdmin bool) error
	DeleteUser(ctx context.Context, actorID, targetID string) error
	ExportCSV(ctx context.Context, actorID string, w io.Writer) error
	Activity(ctx context.Context, limit int) ([]models.Activity, error)
}

type adminService struct {
	profiles pgrepo.ProfileRepository
	idp      IdentityAdmin
	activity ActivityService
}

func NewAdminService(profiles pgrepo.ProfileRepository, idp IdentityAdmin, activity ActivityService) AdminService {
	return &adminService{profiles: profiles, idp: idp, activity: activity}
}

func (s *adminService) ListUsers(ctx context.Context, q models.UserQuery) (*models.UserList, error) {
	const op = "AdminService.ListUsers"

	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}
	if q.Page < 1 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "page must be at least 1", nil)
	}
	if q.PerPage < 1 || q.PerPage > MaxPerPage {
		return nil, utils.E(utils.CodeInvalidArgument, op, "per_page must be between 1 and 100", nil)
	}

	f := pgrepo.ProfileFilter{
		Search: strings.TrimSpace(q.Search),
		Offset: (q.Page - 1) * q.PerPage,
		Limit:  q.PerPage,
	}
	switch q.Role {
	case "":
	case string(models.RoleAdmin), string(models.RoleUser):
		admin := q.Role == string(models.RoleAdmin)
		f.Admin = &admin
	default:
		return nil, utils.E(utils.CodeInvalidArgument, op, "role must be admin or user", nil)
	}

	rows, total, err := s.profiles.List(ctx, f)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list users", err)
	}

	out := &models.UserList{Users: make([]models.User, 0, len(rows)), Total: total, Page: q.Page, PerPage: q.PerPage}
	for i := range rows {
		out.Users = append(out.Users, rows[i].ToUser("", time.Time{}))
	}
	return out, nil
}

func (s *adminService) SetAdmin(ctx context.Context, actorID, targetID string, isAdmin bool) error {
	const op = "AdminService.SetAdmin"

	if targetID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user id is required", nil)
	}
	if actorID == targetID {
		return utils.E(utils.CodeInvalidArgument, op, "Cannot change your own admin status", nil)
	}

	err := s.profiles.UpdateColumns(ctx, targetID, map[string]any{"is_admin": isAdmin})
	if errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeNotFound, op, "User not found", err)
	}
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update user", err)
	}

	s.activity.Record(ctx, models.Activity{
		Kind:     models.ActivityAdminToggled,
		UserID:   actorID,
		TargetID: targetID,
		Details:  map[string]any{"is_admin": isAdmin},
	})
	return nil
}

func (s *adminService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	const op = "AdminService.DeleteUser"

	if targetID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user id is required", nil)
	}
	if actorID == targetID {
		return utils.E(utils.CodeInvalidArgument, op, "Cannot delete your own account", nil)
	}

	if err := removeAccount(ctx, s.idp, s.profiles, targetID); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "User not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete user", err)
	}

	s.activity.Record(ctx, models.Activity{Kind: models.ActivityUserDeleted, UserID: actorID, TargetID: targetID})
	return nil
}

func (s *adminService) ExportCSV(ctx context.Context, actorID string, w io.Writer) error {
	const op = "AdminService.ExportCSV"

	rows, err := s.profiles.All(ctx)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to load users", err)
	}

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"ID", "Email", "Name", "Admin", "Language", "Created At"})
	for _, p := range rows {
		name := ""
		if p.Name != nil {
			name = *p.Name
		}
		admin := "No"
		if p.IsAdmin {
			admin = "Yes"
		}
		lang := p.Language
		if lang == "" {
			lang = models.DefaultLanguage
		}
		_ = cw.Write([]string{p.ID, p.Email, name, admin, lang, p.CreatedAt.UTC().Format(time.RFC3339)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to write export", err)
	}

	s.activity.Record(ctx, models.Activity{
		Kind:    models.ActivityUsersExported,
		UserID:  actorID,
		Details: map[string]any{"rows": len(rows)},
	})
	return nil
}

func (s *adminService) Activity(ctx context.Context, limit int) ([]models.Activity, error) {
	return s.activity.Recent(ctx, limit)
}
