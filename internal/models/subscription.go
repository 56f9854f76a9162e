package models

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionFree      = "free"
	SubscriptionDisabled  = "disabled"
	SubscriptionError     = "error"
)

// Subscription is what the billing page shows for the caller.
type Subscription struct {
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end,omitempty"` // unix seconds
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Billing plans accepted by the checkout endpoint.
const (
	PlanMonthly = "price_monthly"
	PlanYearly  = "price_yearly"
)

type CheckoutRequest struct {
	PriceID string `json:"price_id" binding:"required,oneof=price_monthly price_yearly"`
}

// RedirectURL is returned by endpoints that hand the user to a hosted page.
type RedirectURL struct {
	URL string `json:"url"`
}
