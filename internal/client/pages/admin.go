package pages

import (
	"context"
	"fmt"
	"io"

	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/models"
)

const AdminPageSize = 20

type Admin struct {
	api     API
	queries *apiclient.QueryCache
}

func NewAdmin(api API, queries *apiclient.QueryCache) *Admin {
	return &Admin{api: api, queries: queries}
}

// Load lists one page of users. role is "", "admin" or "user".
func (a *Admin) Load(ctx context.Context, page int, search, role string) (*models.UserList, error) {
	if page < 1 {
		page = 1
	}
	q := models.UserQuery{Page: page, PerPage: AdminPageSize, Search: search, Role: role}
	key := fmt.Sprintf("%s%d:%s:%s", keyAdminUsers, page, search, role)
	return apiclient.Query(ctx, a.queries, key, func(ctx context.Context) (*models.UserList, error) {
		return a.api.AdminUsers(ctx, q)
	})
}

func (a *Admin) Stats(ctx context.Context) (*models.UserStats, error) {
	return apiclient.Query(ctx, a.queries, keyAdminStats, a.api.AdminStats)
}

func (a *Admin) ToggleAdmin(ctx context.Context, userID string, isAdmin bool) error {
	if err := a.api.SetAdmin(ctx, userID, isAdmin); err != nil {
		return err
	}
	a.queries.Invalidate(keyAdminUsers)
	return nil
}

func (a *Admin) DeleteUser(ctx context.Context, userID string) error {
	if err := a.api.AdminDeleteUser(ctx, userID); err != nil {
		return err
	}
	a.queries.Invalidate(keyAdminUsers)
	a.queries.Invalidate(keyAdminStats)
	return nil
}

// Export writes the users CSV to w.
func (a *Admin) Export(ctx context.Context, w io.Writer) error {
	b, err := a.api.ExportUsers(ctx)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (a *Admin) Activity(ctx context.Context, limit int) ([]models.Activity, error) {
	return a.api.AdminActivity(ctx, limit)
}

// TotalPages is the page count for a listing.
func TotalPages(l *models.UserList) int {
	if l == nil || l.PerPage <= 0 {
		return 0
	}
	return int((l.Total + int64(l.PerPage) - 1) / int64(l.PerPage))
}
