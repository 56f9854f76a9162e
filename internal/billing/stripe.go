package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/yoockh/launchkit/internal/models"
)

type StripeGateway struct {
	sc            *client.API
	webhookSecret string
}

var _ Gateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	c, err := g.sc.Customers.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", p.UserID)

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := g.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

func (g *StripeGateway) ActiveSubscription(ctx context.Context, customerID string) (*models.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := g.sc.Subscriptions.List(params)
	for it.Next() {
		sub := it.Subscription()
		return &models.Subscription{
			Status:            models.SubscriptionActive,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}, nil
	}
	return nil, it.Err()
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, errors.New("billing: webhook secret is not configured")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}
