package pages

import (
	"context"
	"errors"

	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/models"
)

var ErrBillingDisabled = errors.New("billing is not enabled for this application")

type Billing struct {
	api     API
	queries *apiclient.QueryCache
	enabled bool
}

func NewBilling(api API, queries *apiclient.QueryCache, enabled bool) *Billing {
	return &Billing{api: api, queries: queries, enabled: enabled}
}

func (b *Billing) Enabled() bool { return b.enabled }

// Subscription never calls the backend while billing is off.
func (b *Billing) Subscription(ctx context.Context) (*models.Subscription, error) {
	if !b.enabled {
		return &models.Subscription{Status: models.SubscriptionDisabled}, nil
	}
	return apiclient.Query(ctx, b.queries, keySubscription, b.api.Subscription)
}

// Checkout returns the hosted checkout URL for plan.
func (b *Billing) Checkout(ctx context.Context, plan string) (string, error) {
	if !b.enabled {
		return "", ErrBillingDisabled
	}
	if plan != models.PlanMonthly && plan != models.PlanYearly {
		return "", &FormError{Fields: map[string]string{"price_id": "must be price_monthly or price_yearly"}}
	}
	return b.api.CreateCheckoutSession(ctx, plan)
}

func (b *Billing) Portal(ctx context.Context) (string, error) {
	if !b.enabled {
		return "", ErrBillingDisabled
	}
	return b.api.CreatePortalSession(ctx)
}
