package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classable/classable/internal/models"
	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/metrics"
)

// BillingConfig holds Stripe credentials and the price catalogue.
type BillingConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
	// Plans maps a plan name (e.g. "pro") to a Stripe price id.
	Plans map[string]string `mapstructure:"plans"`
}

// ErrBillingDisabled is returned when no Stripe credentials are configured.
var ErrBillingDisabled = apperrors.New("BILLING_DISABLED", "Billing is not enabled on this deployment", 501)

// BillingService creates checkout sessions and keeps subscription state in
// sync via Stripe webhooks. Teachers subscribe; students never see billing.
type BillingService struct {
	db  *gorm.DB
	cfg BillingConfig
	api *client.API
	log *zap.Logger
}

func NewBillingService(db *gorm.DB, cfg BillingConfig, log *zap.Logger) (*BillingService, error) {
	if db == nil {
		return nil, errors.New("billing service: db is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &BillingService{db: db, cfg: cfg, log: log}
	if cfg.SecretKey != "" {
		s.api = &client.API{}
		s.api.Init(cfg.SecretKey, nil)
	}
	return s, nil
}

// Enabled reports whether Stripe credentials are configured.
func (s *BillingService) Enabled() bool { return s.api != nil }

// CreateCheckoutSession starts a Stripe Checkout flow for the given plan and
// returns the hosted payment URL.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, user Identity, plan string) (string, error) {
	ctx = ensureContext(ctx)

	if !s.Enabled() {
		return "", ErrBillingDisabled
	}

	priceID, ok := s.cfg.Plans[plan]
	if !ok {
		return "", apperrors.NewBadRequest(fmt.Sprintf("unknown plan %q", plan))
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", user.ID)
	params.AddMetadata("plan", plan)

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("billing service: create checkout session: %w", err)
	}

	metrics.CheckoutSessions.WithLabelValues(plan).Inc()
	return session.URL, nil
}

// HandleWebhook verifies a Stripe webhook payload and applies subscription
// state changes. Unknown event types are acknowledged and ignored.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx = ensureContext(ctx)

	if s.cfg.WebhookSecret == "" {
		return ErrBillingDisabled
	}

	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		return apperrors.NewBadRequest("invalid webhook signature")
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return apperrors.NewBadRequest("malformed checkout.session.completed payload")
		}
		return s.activateSubscription(ctx, &session)

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return apperrors.NewBadRequest("malformed subscription payload")
		}
		return s.syncSubscription(ctx, &sub)

	default:
		s.log.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
		return nil
	}
}

// GetCustomer returns the billing record for a user, if any.
func (s *BillingService) GetCustomer(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	ctx = ensureContext(ctx)

	var customer models.BillingCustomer
	err := s.db.WithContext(ctx).First(&customer, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return &customer, nil
}

func (s *BillingService) ensureCustomer(ctx context.Context, user Identity) (string, error) {
	var existing models.BillingCustomer
	err := s.db.WithContext(ctx).First(&existing, "user_id = ?", user.ID).Error
	if err == nil {
		return existing.StripeCustomerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.ErrStoreUnavailable.WithInternal(err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(user.Email)}
	params.Context = ctx
	params.AddMetadata("user_id", user.ID)

	customer, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("billing service: create customer: %w", err)
	}

	record := models.BillingCustomer{
		UserID:           user.ID,
		StripeCustomerID: customer.ID,
		Status:           "incomplete",
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return "", apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return customer.ID, nil
}

func (s *BillingService) activateSubscription(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Customer == nil {
		return nil
	}

	updates := map[string]any{"status": "active"}
	if plan, ok := session.Metadata["plan"]; ok {
		updates["plan"] = plan
	}

	err := s.db.WithContext(ctx).
		Model(&models.BillingCustomer{}).
		Where("stripe_customer_id = ?", session.Customer.ID).
		Updates(updates).Error
	if err != nil {
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return nil
}

func (s *BillingService) syncSubscription(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil {
		return nil
	}

	updates := map[string]any{"status": string(sub.Status)}
	if sub.CurrentPeriodEnd > 0 {
		updates["current_period_end"] = time.Unix(sub.CurrentPeriodEnd, 0)
	}

	err := s.db.WithContext(ctx).
		Model(&models.BillingCustomer{}).
		Where("stripe_customer_id = ?", sub.Customer.ID).
		Updates(updates).Error
	if err != nil {
		return apperrors.ErrStoreUnavailable.WithInternal(err)
	}
	return nil
}
