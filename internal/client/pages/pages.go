// Package pages holds the view-models behind each client screen. They load
// through the query cache, validate forms and call the API and auth store.
package pages

import (
	"context"

	"github.com/yoockh/launchkit/internal/client/authstore"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
)

// API is the subset of the backend client the pages use.
type API interface {
	UserStats(ctx context.Context) (*models.UserStats, error)
	Me(ctx context.Context) (*models.User, error)
	UpdateMe(ctx context.Context, upd models.ProfileUpdate) (*models.User, error)
	DeleteMe(ctx context.Context) error

	AdminStats(ctx context.Context) (*models.UserStats, error)
	AdminUsers(ctx context.Context, q models.UserQuery) (*models.UserList, error)
	SetAdmin(ctx context.Context, userID string, isAdmin bool) error
	AdminDeleteUser(ctx context.Context, userID string) error
	ExportUsers(ctx context.Context) ([]byte, error)
	AdminActivity(ctx context.Context, limit int) ([]models.Activity, error)

	Subscription(ctx context.Context) (*models.Subscription, error)
	CreateCheckoutSession(ctx context.Context, plan string) (string, error)
	CreatePortalSession(ctx context.Context) (string, error)
}

// Session is the auth store as seen by pages.
type Session interface {
	State() authstore.State
	Login(ctx context.Context, email, password string) error
	Signup(ctx context.Context, email, password string) (*identity.User, error)
	ResetPassword(ctx context.Context, email string) error
	Logout(ctx context.Context) error
}

var _ Session = (*authstore.Store)(nil)

// Query keys. Invalidate uses them as prefixes.
const (
	keyDashboardStats = "dashboard-stats"
	keyProfile        = "profile:"
	keyAdminUsers     = "admin-users:"
	keyAdminStats     = "admin-stats"
	keySubscription   = "subscription"
)
