package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService manages the Stripe integration: customer lifecycle, checkout
// and portal sessions, and webhook event handling. It parses provider
// payloads and hands normalized snapshots to the SubscriptionService.
type StripeService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	subRepo  repository.SubscriptionRepository
	subSvc   SubscriptionService
	logger   zerolog.Logger
}

// NewStripeService initializes the Stripe API key and returns the service
// with a scoped logger.
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, subRepo repository.SubscriptionRepository, subSvc SubscriptionService, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	lg := logger.With().Str("service", "StripeService").Logger()
	return &StripeService{cfg: cfg, userRepo: userRepo, subRepo: subRepo, subSvc: subSvc, logger: lg}
}

// PlanFromPriceID maps a Stripe price ID to a plan tier. Unknown prices map
// to free so a misconfigured price can never grant paid quota.
func (s *StripeService) PlanFromPriceID(priceID string) model.PlanTier {
	switch priceID {
	case s.cfg.StripePriceHobbyMonthly, s.cfg.StripePriceHobbyYearly:
		return model.PlanHobby
	case s.cfg.StripePriceProMonthly, s.cfg.StripePriceProYearly:
		return model.PlanPro
	default:
		return model.PlanFree
	}
}

// priceIDFor resolves the configured price ID for a plan and billing interval.
func (s *StripeService) priceIDFor(plan model.PlanTier, interval string) (string, error) {
	switch {
	case plan == model.PlanHobby && interval == "monthly":
		return s.cfg.StripePriceHobbyMonthly, nil
	case plan == model.PlanHobby && interval == "yearly":
		return s.cfg.StripePriceHobbyYearly, nil
	case plan == model.PlanPro && interval == "monthly":
		return s.cfg.StripePriceProMonthly, nil
	case plan == model.PlanPro && interval == "yearly":
		return s.cfg.StripePriceProYearly, nil
	}
	return "", fmt.Errorf("no price configured for plan %s interval %s", plan, interval)
}

// getUserIDFromEvent resolves a user ID from webhook metadata, falling back
// to a customer ID lookup.
func (s *StripeService) getUserIDFromEvent(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if userID, ok := metadata["user_id"]; ok && userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user by Stripe customer ID: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer ID: %s", customerID)
	}
	return u.ID, nil
}

// GetOrCreateCustomer ensures a Stripe customer exists for a user.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.ID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.ID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for upgrading to a
// paid plan and returns its URL.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID string, plan model.PlanTier, interval string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for checkout session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	customerID, err := s.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}
	priceID, err := s.priceIDFor(plan, interval)
	if err != nil {
		return "", err
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(stripe.CheckoutSessionModeSubscription),
		SuccessURL:         stripe.String(s.cfg.StripeCheckoutSuccessURL),
		CancelURL:          stripe.String(s.cfg.StripeCheckoutCancelURL),
		Metadata:           map[string]string{"user_id": userID},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("plan", string(plan)).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe customer portal session for the user
// and returns its URL.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for portal session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", fmt.Errorf("no stripe customer for user: %s", userID)
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.StripePortalReturnURL),
	}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// CancelAtPeriodEnd schedules the user's subscription to cancel at the end
// of the current billing period.
func (s *StripeService) CancelAtPeriodEnd(ctx context.Context, userID string) error {
	return s.setCancelAtPeriodEnd(ctx, userID, true)
}

// Reactivate clears a pending cancellation on the user's subscription.
func (s *StripeService) Reactivate(ctx context.Context, userID string) error {
	return s.setCancelAtPeriodEnd(ctx, userID, false)
}

func (s *StripeService) setCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error {
	sub, err := s.subRepo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if sub == nil || sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		return fmt.Errorf("no provider subscription for user: %s", userID)
	}
	updated, err := subscriptionpkg.Update(*sub.StripeSubscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Bool("cancel", cancel).Msg("Failed to update cancel_at_period_end")
		return fmt.Errorf("update subscription: %w", err)
	}
	// Reflect the change locally right away instead of waiting for the
	// webhook round trip.
	snap, err := snapshotFromSubscription(updated, s.PlanFromPriceID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to build snapshot after cancel update")
		return nil
	}
	return s.subSvc.ApplySubscriptionSnapshot(ctx, userID, snap)
}

// snapshotFromSubscription normalizes a full Stripe subscription object into
// the reconciler's snapshot form.
func snapshotFromSubscription(sub *stripe.Subscription, planFromPrice func(string) model.PlanTier) (model.SubscriptionSnapshot, error) {
	if sub == nil || len(sub.Items.Data) == 0 {
		return model.SubscriptionSnapshot{}, errors.New("subscription has no items")
	}
	item := sub.Items.Data[0]
	if item.Price == nil || item.Price.ID == "" {
		return model.SubscriptionSnapshot{}, errors.New("subscription item has no price")
	}
	start := time.Unix(item.CurrentPeriodStart, 0)
	end := time.Unix(item.CurrentPeriodEnd, 0)

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	return model.SubscriptionSnapshot{
		ProviderSubscriptionID: sub.ID,
		CustomerID:             customerID,
		PriceID:                item.Price.ID,
		Plan:                   planFromPrice(item.Price.ID),
		ProviderStatus:         string(sub.Status),
		PeriodStart:            &start,
		PeriodEnd:              &end,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}, nil
}

// subscriptionIDFromInvoice finds the subscription ID on an invoice's line
// items. Empty for one-time invoices.
func subscriptionIDFromInvoice(invoice *stripe.Invoice) string {
	if invoice.Lines == nil {
		return ""
	}
	for _, line := range invoice.Lines.Data {
		if line.Subscription != nil && line.Subscription.ID != "" {
			return line.Subscription.ID
		}
	}
	return ""
}

// HandleWebhook processes Stripe webhook events. Subscription events are
// reconciled from a fresh fetch of the provider's state, never from the
// event payload alone.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		// The customer.subscription.created event carries the authoritative
		// state; nothing to reconcile here.
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			http.Error(w, "invalid checkout.session data", http.StatusBadRequest)
			return
		}
		s.logger.Info().Str("session_id", cs.ID).Msg("Checkout completed")
	case "customer.subscription.created", "customer.subscription.updated":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid subscription payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		// Refetch: the event payload can be stale when events arrive out of
		// order.
		full, err := subscriptionpkg.Get(ss.ID, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to fetch subscription details")
			http.Error(w, "failed to fetch subscription details", http.StatusInternalServerError)
			return
		}
		snap, err := snapshotFromSubscription(full, s.PlanFromPriceID)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to normalize subscription")
			http.Error(w, "failed to normalize subscription", http.StatusInternalServerError)
			return
		}
		userID, err := s.getUserIDFromEvent(ctx, full.Metadata, snap.CustomerID)
		if err != nil {
			s.logger.Warn().Err(err).Str("subscription_id", ss.ID).Msg("Could not match subscription event to a user, dropping")
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.subSvc.ApplySubscriptionSnapshot(ctx, userID, snap); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to reconcile subscription event")
			http.Error(w, "failed to reconcile subscription", http.StatusInternalServerError)
			return
		}
	case "customer.subscription.deleted":
		var ss stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		if err := s.subSvc.HandleSubscriptionDeleted(ctx, ss.ID); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", ss.ID).Msg("Failed to handle subscription deletion")
			http.Error(w, "failed to handle deletion", http.StatusInternalServerError)
			return
		}
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice.payment_failed payload")
			http.Error(w, "invalid invoice data", http.StatusBadRequest)
			return
		}
		subID := subscriptionIDFromInvoice(&invoice)
		if subID == "" {
			s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping")
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.subSvc.HandlePaymentFailed(ctx, subID); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to handle payment failure")
			http.Error(w, "failed to handle payment failure", http.StatusInternalServerError)
			return
		}
	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice.payment_succeeded payload")
			http.Error(w, "invalid invoice data", http.StatusBadRequest)
			return
		}
		subID := subscriptionIDFromInvoice(&invoice)
		if subID == "" {
			s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping")
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.subSvc.HandlePaymentSucceeded(ctx, subID); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to handle payment success")
			http.Error(w, "failed to handle payment success", http.StatusInternalServerError)
			return
		}
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	w.WriteHeader(http.StatusOK)
}
