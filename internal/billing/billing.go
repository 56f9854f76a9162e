// Package billing wraps the payment provider: customers, hosted checkout and
// portal sessions, subscription lookups and signed webhooks.
package billing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yoockh/launchkit/internal/models"
)

var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

type CheckoutParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	SuccessURL string
	CancelURL  string
}

// Event is a verified webhook.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

type Gateway interface {
	CreateCustomer(ctx context.Context, email, userID string) (customerID string, err error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (url string, err error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error)
	// ActiveSubscription returns nil when the customer has none.
	ActiveSubscription(ctx context.Context, customerID string) (*models.Subscription, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// Webhook event types the service reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// StatusChange is what a webhook means for one profile. Either UserID or
// CustomerID identifies it.
type StatusChange struct {
	UserID     string
	CustomerID string
	Status     string
}

// Interpret maps a webhook to a subscription status change. ok is false for
// events that do not affect subscriptions.
func Interpret(ev *Event) (change StatusChange, ok bool, err error) {
	var obj struct {
		Customer string            `json:"customer"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	}
	switch ev.Type {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted:
		if err := json.Unmarshal(ev.Object, &obj); err != nil {
			return StatusChange{}, false, err
		}
	default:
		return StatusChange{}, false, nil
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		uid := obj.Metadata["user_id"]
		if uid == "" {
			return StatusChange{}, false, errors.New("billing: checkout session without user_id metadata")
		}
		return StatusChange{UserID: uid, CustomerID: obj.Customer, Status: models.SubscriptionActive}, true, nil
	case EventSubscriptionUpdated:
		return StatusChange{CustomerID: obj.Customer, Status: obj.Status}, obj.Customer != "" && obj.Status != "", nil
	default:
		return StatusChange{CustomerID: obj.Customer, Status: models.SubscriptionCancelled}, obj.Customer != "", nil
	}
}
