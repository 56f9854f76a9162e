package pages

import (
	"context"

	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/models"
)

type Dashboard struct {
	api     API
	queries *apiclient.QueryCache
}

func NewDashboard(api API, queries *apiclient.QueryCache) *Dashboard {
	return &Dashboard{api: api, queries: queries}
}

func (d *Dashboard) Load(ctx context.Context) (*models.UserStats, error) {
	return apiclient.Query(ctx, d.queries, keyDashboardStats, d.api.UserStats)
}
