package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yoockh/launchkit/internal/models"
)

func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var out models.Health
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserStats(ctx context.Context) (*models.UserStats, error) {
	var out models.UserStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMe(ctx context.Context, upd models.ProfileUpdate) (*models.User, error) {
	var out models.User
	if err := c.doJSON(ctx, http.MethodPut, "/api/users/me", nil, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMe(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/users/me", nil, nil, nil)
}

func (c *Client) AdminStats(ctx context.Context) (*models.UserStats, error) {
	var out models.UserStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminUsers(ctx context.Context, q models.UserQuery) (*models.UserList, error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Role != "" {
		v.Set("role", q.Role)
	}

	var out models.UserList
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/users", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetAdmin(ctx context.Context, userID string, isAdmin bool) error {
	body := models.SetAdminRequest{IsAdmin: &isAdmin}
	return c.doJSON(ctx, http.MethodPut, "/api/admin/users/"+url.PathEscape(userID)+"/admin", nil, body, nil)
}

func (c *Client) AdminDeleteUser(ctx context.Context, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/admin/users/"+url.PathEscape(userID), nil, nil, nil)
}

// ExportUsers returns the raw CSV export.
func (c *Client) ExportUsers(ctx context.Context) ([]byte, error) {
	return c.send(ctx, http.MethodGet, "/api/admin/users/export", nil, nil)
}

func (c *Client) AdminActivity(ctx context.Context, limit int) ([]models.Activity, error) {
	var v url.Values
	if limit > 0 {
		v = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []models.Activity
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/activity", v, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Subscription(ctx context.Context) (*models.Subscription, error) {
	var out models.Subscription
	if err := c.doJSON(ctx, http.MethodGet, "/api/billing/subscription", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCheckoutSession returns the hosted checkout URL for plan
// (models.PlanMonthly or models.PlanYearly).
func (c *Client) CreateCheckoutSession(ctx context.Context, plan string) (string, error) {
	var out models.RedirectURL
	err := c.doJSON(ctx, http.MethodPost, "/api/billing/create-checkout-session", nil,
		models.CheckoutRequest{PriceID: plan}, &out)
	return out.URL, err
}

func (c *Client) CreatePortalSession(ctx context.Context) (string, error) {
	var out models.RedirectURL
	err := c.doJSON(ctx, http.MethodPost, "/api/billing/create-portal-session", nil, nil, &out)
	return out.URL, err
}
