package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/yoockh/launchkit/internal/billing"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

type BillingConfig struct {
	Enabled      bool
	AppURL       string
	PriceMonthly string
	PriceYearly  string
}

// EventQueue hands a stored webhook to the background worker.
type EventQueue interface {
	Enqueue(ctx context.Context, eventID string) error
}

type BillingService interface {
	// Subscription never fails; problems are reported through the status.
	Subscription(ctx context.Context, userID string) models.Subscription
	Checkout(ctx context.Context, userID, email, plan string) (string, error)
	Portal(ctx context.Context, userID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ProcessEvent(ctx context.Context, eventID string) error
	// ReplayPending processes stored events that never completed.
	ReplayPending(ctx context.Context, limit int) (int, error)
}

type billingService struct {
	cfg      BillingConfig
	gateway  billing.Gateway
	profiles pgrepo.ProfileRepository
	events   pgrepo.BillingEventRepo
	queue    EventQueue
	activity ActivityService
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewBillingService(cfg BillingConfig, gateway billing.Gateway, profiles pgrepo.ProfileRepository,
	events pgrepo.BillingEventRepo, queue EventQueue, activity ActivityService, log logrus.FieldLogger) BillingService {
	return &billingService{
		cfg:      cfg,
		gateway:  gateway,
		profiles: profiles,
		events:   events,
		queue:    queue,
		activity: activity,
		log:      log,
		now:      time.Now,
	}
}

func (s *billingService) Subscription(ctx context.Context, userID string) models.Subscription {
	if !s.cfg.Enabled {
		return models.Subscription{Status: models.SubscriptionDisabled}
	}

	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, utils.ErrNotFound) {
		return models.Subscription{Status: models.SubscriptionFree}
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("subscription lookup failed")
		return models.Subscription{Status: models.SubscriptionError, Message: "Failed to fetch subscription"}
	}
	if p.StripeCustomerID == nil || *p.StripeCustomerID == "" {
		return models.Subscription{Status: models.SubscriptionFree}
	}

	sub, err := s.gateway.ActiveSubscription(ctx, *p.StripeCustomerID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("subscription lookup failed")
		return models.Subscription{Status: models.SubscriptionError, Message: "Failed to fetch subscription"}
	}
	if sub == nil {
		return models.Subscription{Status: models.SubscriptionFree}
	}
	return *sub
}

func (s *billingService) priceFor(plan string) string {
	switch plan {
	case models.PlanMonthly:
		return s.cfg.PriceMonthly
	case models.PlanYearly:
		return s.cfg.PriceYearly
	}
	return ""
}

func (s *billingService) Checkout(ctx context.Context, userID, email, plan string) (string, error) {
	const op = "BillingService.Checkout"

	if !s.cfg.Enabled {
		return "", utils.E(utils.CodeUnavailable, op, "Billing is not enabled", nil)
	}
	price := s.priceFor(plan)
	if price == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "Invalid price", nil)
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "Failed to create checkout session", err)
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    price,
		UserID:     userID,
		SuccessURL: s.cfg.AppURL + "/billing?success=true",
		CancelURL:  s.cfg.AppURL + "/billing?canceled=true",
	})
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "Failed to create checkout session", err)
	}
	return url, nil
}

// ensureCustomer returns the caller's customer id, creating the customer and
// the profile row when missing.
func (s *billingService) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		p = &models.Profile{ID: userID, Email: email, Language: models.DefaultLanguage}
		if err := s.profiles.Insert(ctx, p); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	}
	if p.StripeCustomerID != nil && *p.StripeCustomerID != "" {
		return *p.StripeCustomerID, nil
	}

	if email == "" {
		email = p.Email
	}
	id, err := s.gateway.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", err
	}
	if err := s.profiles.UpdateColumns(ctx, userID, map[string]any{"stripe_customer_id": id}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *billingService) Portal(ctx context.Context, userID string) (string, error) {
	const op = "BillingService.Portal"

	if !s.cfg.Enabled {
		return "", utils.E(utils.CodeUnavailable, op, "Billing is not enabled", nil)
	}

	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return "", utils.E(utils.CodeInternal, op, "Failed to create portal session", err)
	}
	if p == nil || p.StripeCustomerID == nil || *p.StripeCustomerID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "No billing account found", nil)
	}

	url, err := s.gateway.CreatePortalSession(ctx, *p.StripeCustomerID, s.cfg.AppURL+"/billing")
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "Failed to create portal session", err)
	}
	return url, nil
}

func (s *billingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "BillingService.HandleWebhook"

	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return utils.E(utils.CodeInvalidArgument, op, "Invalid signature", err)
		}
		return utils.E(utils.CodeInvalidArgument, op, "Invalid payload", err)
	}

	inserted, err := s.events.Record(ctx, &models.BillingEvent{
		ID:      ev.ID,
		Type:    ev.Type,
		Payload: datatypes.JSON(payload),
	})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to store event", err)
	}
	log := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "type": ev.Type})
	if !inserted {
		log.Info("billing event replayed, ignoring")
		return nil
	}

	if s.queue != nil {
		err := s.queue.Enqueue(ctx, ev.ID)
		if err == nil {
			return nil
		}
		log.WithError(err).Warn("enqueue failed, processing inline")
	}
	return s.ProcessEvent(ctx, ev.ID)
}

func (s *billingService) ProcessEvent(ctx context.Context, eventID string) error {
	const op = "BillingService.ProcessEvent"

	stored, err := s.events.GetByID(ctx, eventID)
	if errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeNotFound, op, "event not found", err)
	}
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to load event", err)
	}
	if stored.ProcessedAt != nil {
		return nil
	}
	log := s.log.WithFields(logrus.Fields{"event_id": stored.ID, "type": stored.Type})

	var envelope struct {
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(stored.Payload, &envelope); err != nil {
		log.WithError(err).Warn("undecodable billing event, dropping")
		return s.markProcessed(ctx, op, stored.ID)
	}

	change, ok, err := billing.Interpret(&billing.Event{ID: stored.ID, Type: stored.Type, Object: envelope.Data.Object})
	if err != nil {
		log.WithError(err).Warn("malformed billing event, dropping")
		return s.markProcessed(ctx, op, stored.ID)
	}
	if !ok {
		return s.markProcessed(ctx, op, stored.ID)
	}

	userID := change.UserID
	cols := map[string]any{"subscription_status": change.Status}
	if userID != "" {
		if change.CustomerID != "" {
			cols["stripe_customer_id"] = change.CustomerID
		}
	} else {
		p, err := s.profiles.GetByStripeCustomer(ctx, change.CustomerID)
		if errors.Is(err, utils.ErrNotFound) {
			log.WithField("customer_id", change.CustomerID).Warn("billing event for unknown customer")
			return s.markProcessed(ctx, op, stored.ID)
		}
		if err != nil {
			return utils.E(utils.CodeInternal, op, "failed to resolve customer", err)
		}
		userID = p.ID
	}

	err = s.profiles.UpdateColumns(ctx, userID, cols)
	if errors.Is(err, utils.ErrNotFound) {
		log.WithField("user_id", userID).Warn("billing event for unknown user")
		return s.markProcessed(ctx, op, stored.ID)
	}
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update subscription", err)
	}

	s.activity.Record(ctx, models.Activity{
		Kind:    models.ActivitySubscription,
		UserID:  userID,
		Details: map[string]any{"status": change.Status, "event_id": stored.ID},
	})
	log.WithFields(logrus.Fields{"user_id": userID, "status": change.Status}).Info("subscription updated")
	return s.markProcessed(ctx, op, stored.ID)
}

func (s *billingService) markProcessed(ctx context.Context, op, id string) error {
	if err := s.events.MarkProcessed(ctx, id, s.now().UTC()); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to mark event processed", err)
	}
	return nil
}

func (s *billingService) ReplayPending(ctx context.Context, limit int) (int, error) {
	const op = "BillingService.ReplayPending"

	pending, err := s.events.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to list pending events", err)
	}
	done := 0
	for _, ev := range pending {
		if err := s.ProcessEvent(ctx, ev.ID); err != nil {
			s.log.WithError(err).WithField("event_id", ev.ID).Warn("replay failed")
			continue
		}
		done++
	}
	return done, nil
}
