package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Recognized payment provider event types. Anything else is acknowledged
// without processing.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
	EventAccountUpdated      = "account.updated"
	EventChargeRefunded      = "charge.refunded"
)

// Checkout metadata flow markers set by the frontend when the session is created.
const (
	FlowBHMQuickAdd     = "bhm_quick_add"
	FlowCorporateSignup = "corporate_signup"
)

// SubscriptionStore is the subscription persistence needed by the reconciler.
type SubscriptionStore interface {
	CreateIfAbsent(ctx context.Context, sub *domain.Subscription) (bool, error)
	UpdateByStripeID(ctx context.Context, stripeSubID string, upd domain.SubscriptionUpdate) (bool, error)
	CancelByStripeID(ctx context.Context, stripeSubID string) (bool, error)
	CreateBenefits(ctx context.Context, benefits []*domain.Benefit) error
	CreateImpactMetric(ctx context.Context, m *domain.ImpactMetric) error
}

// LeadStore is the lead persistence needed by the quick-add checkout branch.
type LeadStore interface {
	FindPendingByWebsite(ctx context.Context, source, website string) (*domain.Lead, error)
	FindPendingByEmail(ctx context.Context, source, email string) (*domain.Lead, error)
	MarkPaid(ctx context.Context, id string, amount int64, paidAt, expiresAt time.Time) error
}

// TransactionStore is the transaction/account persistence needed by the
// payment and account branches.
type TransactionStore interface {
	UpdateStatusByPaymentIntent(ctx context.Context, paymentIntentID, status string) (bool, error)
	UpdateStatusByCharge(ctx context.Context, chargeID, status string) (bool, error)
	UpsertConnectedAccount(ctx context.Context, a *domain.ConnectedAccount) error
}

// UserFinder resolves local users by email for corporate signups.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CustomerResolver looks up the billing customer's email when the checkout
// payload doesn't carry it inline.
type CustomerResolver interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// Reconciler applies payment provider events to local subscription, benefit,
// lead, and transaction state. One event is processed per call; idempotence
// comes from update-by-reference semantics and the unique index on
// stripe_subscription_id, not from any coordination between calls.
type Reconciler struct {
	subs      SubscriptionStore
	leads     LeadStore
	txs       TransactionStore
	users     UserFinder
	customers CustomerResolver
	notifier  Notifier
	validate  *validator.Validate
	now       func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(subs SubscriptionStore, leads LeadStore, txs TransactionStore, users UserFinder, customers CustomerResolver, notifier Notifier) *Reconciler {
	return &Reconciler{
		subs:      subs,
		leads:     leads,
		txs:       txs,
		users:     users,
		customers: customers,
		notifier:  notifier,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// --- Event payloads ---
// Declared locally rather than reusing SDK structs so each recognized type
// has an explicit schema with field-level validation.

type checkoutSessionPayload struct {
	ID              string `json:"id" validate:"required"`
	Customer        string `json:"customer"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	Subscription string            `json:"subscription"`
	AmountTotal  int64             `json:"amount_total" validate:"gte=0"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID                 string `json:"id" validate:"required"`
	Customer           string `json:"customer"`
	Status             string `json:"status" validate:"required"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

type paymentIntentPayload struct {
	ID string `json:"id" validate:"required"`
}

type accountPayload struct {
	ID             string `json:"id" validate:"required"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
	Requirements   struct {
		CurrentlyDue []string `json:"currently_due"`
	} `json:"requirements"`
}

type chargePayload struct {
	ID string `json:"id" validate:"required"`
}

// Process validates and dispatches one provider event. The caller has already
// authenticated the sender via the webhook signature.
func (s *Reconciler) Process(ctx context.Context, eventType string, raw json.RawMessage) error {
	switch eventType {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, raw)
	case EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, raw)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, raw)
	case EventPaymentSucceeded:
		return s.handlePaymentIntent(ctx, raw, domain.TxStatusSucceeded)
	case EventPaymentFailed:
		return s.handlePaymentIntent(ctx, raw, domain.TxStatusFailed)
	case EventAccountUpdated:
		return s.handleAccountUpdated(ctx, raw)
	case EventChargeRefunded:
		return s.handleChargeRefunded(ctx, raw)
	default:
		log.Printf("[Webhook] Unrecognized event type %q, acknowledging without processing", eventType)
		return nil
	}
}

// decode unmarshals and validates a recognized event payload. Failures are
// returned as 400-class errors with a field-level description.
func (s *Reconciler) decode(eventType string, raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.ErrBadRequest(fmt.Sprintf("malformed %s payload: %v", eventType, err))
	}
	if err := s.validate.Struct(v); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return domain.ErrBadRequest(fmt.Sprintf("invalid %s payload: field %s failed %q", eventType, errs[0].Field(), errs[0].Tag()))
		}
		return domain.ErrBadRequest(fmt.Sprintf("invalid %s payload: %v", eventType, err))
	}
	return nil
}

func (s *Reconciler) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var session checkoutSessionPayload
	if err := s.decode(EventCheckoutCompleted, raw, &session); err != nil {
		return err
	}

	switch session.Metadata["flow"] {
	case FlowBHMQuickAdd:
		return s.promoteLead(ctx, &session)
	case FlowCorporateSignup:
		if session.Subscription == "" {
			log.Printf("[Webhook] Corporate signup session %s has no subscription attached, skipping", session.ID)
			return nil
		}
		return s.provisionSponsor(ctx, &session)
	default:
		log.Printf("[Webhook] Checkout session %s completed with no known flow marker, nothing to do", session.ID)
		return nil
	}
}

// promoteLead transitions a pending promotional lead to paid. Match by
// source+website first, then source+owner-email. A missed match is
// acknowledged, not errored — the lead may have been imported elsewhere.
func (s *Reconciler) promoteLead(ctx context.Context, session *checkoutSessionPayload) error {
	paidAt := s.now()
	expiresAt := paidAt.AddDate(1, 0, 0) // listing runs one year from payment

	lead, err := s.leads.FindPendingByWebsite(ctx, domain.LeadSourceBHMPromo, session.Metadata["website"])
	if err != nil {
		return fmt.Errorf("lead lookup by website: %w", err)
	}
	if lead == nil {
		email := session.CustomerDetails.Email
		if email == "" {
			email = session.Metadata["email"]
		}
		lead, err = s.leads.FindPendingByEmail(ctx, domain.LeadSourceBHMPromo, email)
		if err != nil {
			return fmt.Errorf("lead lookup by email: %w", err)
		}
	}
	if lead == nil {
		log.Printf("[Webhook] No pending lead matched checkout session %s (website=%q), no state change",
			session.ID, session.Metadata["website"])
		return nil
	}

	if err := s.leads.MarkPaid(ctx, lead.ID, session.AmountTotal, paidAt, expiresAt); err != nil {
		return fmt.Errorf("mark lead paid: %w", err)
	}
	log.Printf("[Webhook] Lead %s (%s) promoted to paid, listing expires %s",
		lead.ID, lead.BusinessName, expiresAt.Format(time.RFC3339))
	return nil
}

// provisionSponsor creates the subscription, its tier benefit batch, and a
// zeroed impact snapshot for a corporate signup. Creation is keyed on the
// Stripe subscription ID, so a redelivered event finds the row already
// present and skips the batch.
func (s *Reconciler) provisionSponsor(ctx context.Context, session *checkoutSessionPayload) error {
	email := session.CustomerDetails.Email
	if email == "" && session.Customer != "" {
		var err error
		email, err = s.customers.CustomerEmail(ctx, session.Customer)
		if err != nil {
			return fmt.Errorf("resolve customer email: %w", err)
		}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if user == nil {
		log.Printf("[Webhook] No local user for customer email %q (session %s), skipping provisioning", email, session.ID)
		return nil
	}

	tier := domain.GetTier(session.Metadata["tier"])
	name := session.Metadata["company_name"]
	if name == "" {
		name = session.CustomerDetails.Name
	}

	now := s.now()
	sub := &domain.Subscription{
		ID:                   domain.NewID(),
		UserID:               user.ID,
		Name:                 name,
		Tier:                 tier.ID,
		StripeSubscriptionID: session.Subscription,
		StripeCustomerID:     session.Customer,
		Status:               domain.SubStatusActive,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     now.AddDate(0, 1, 0), // corrected by the next subscription.updated
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	created, err := s.subs.CreateIfAbsent(ctx, sub)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	if !created {
		log.Printf("[Webhook] Subscription %s already provisioned, skipping benefit batch", session.Subscription)
		return nil
	}

	benefits := make([]*domain.Benefit, 0, len(domain.BenefitTemplates(tier.ID)))
	for _, tmpl := range domain.BenefitTemplates(tier.ID) {
		benefits = append(benefits, &domain.Benefit{
			ID:             domain.NewID(),
			SubscriptionID: sub.ID,
			Name:           tmpl.Name,
			Value:          tmpl.Value,
			CreatedAt:      now,
		})
	}
	if err := s.subs.CreateBenefits(ctx, benefits); err != nil {
		return fmt.Errorf("create benefit batch: %w", err)
	}

	metric := &domain.ImpactMetric{
		ID:             domain.NewID(),
		SubscriptionID: sub.ID,
		SnapshotDate:   now,
		CreatedAt:      now,
	}
	if err := s.subs.CreateImpactMetric(ctx, metric); err != nil {
		return fmt.Errorf("create impact metric: %w", err)
	}

	// Best effort: a failed notification must not fail the webhook.
	if err := s.notifier.WelcomeSponsor(ctx, user.Email, tier.ID); err != nil {
		log.Printf("[Webhook] Welcome notification for %s failed: %v", user.Email, err)
	}

	log.Printf("[Webhook] Provisioned %s sponsor %q for user %s (%d benefits)", tier.ID, name, user.ID, len(benefits))
	return nil
}

func (s *Reconciler) handleSubscriptionUpdated(ctx context.Context, raw json.RawMessage) error {
	var sub subscriptionPayload
	if err := s.decode(EventSubscriptionUpdated, raw, &sub); err != nil {
		return err
	}

	matched, err := s.subs.UpdateByStripeID(ctx, sub.ID, domain.SubscriptionUpdate{
		Status:             sub.Status,
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	})
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if !matched {
		log.Printf("[Webhook] subscription.updated for unknown subscription %s, no-op", sub.ID)
	}
	return nil
}

func (s *Reconciler) handleSubscriptionDeleted(ctx context.Context, raw json.RawMessage) error {
	var sub subscriptionPayload
	if err := s.decode(EventSubscriptionDeleted, raw, &sub); err != nil {
		return err
	}

	matched, err := s.subs.CancelByStripeID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if !matched {
		log.Printf("[Webhook] subscription.deleted for unknown subscription %s, no-op", sub.ID)
	}
	return nil
}

func (s *Reconciler) handlePaymentIntent(ctx context.Context, raw json.RawMessage, status string) error {
	var pi paymentIntentPayload
	if err := s.decode("payment_intent", raw, &pi); err != nil {
		return err
	}

	matched, err := s.txs.UpdateStatusByPaymentIntent(ctx, pi.ID, status)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if !matched {
		log.Printf("[Webhook] payment intent %s has no matching transaction, no-op", pi.ID)
	}
	return nil
}

func (s *Reconciler) handleAccountUpdated(ctx context.Context, raw json.RawMessage) error {
	var acct accountPayload
	if err := s.decode(EventAccountUpdated, raw, &acct); err != nil {
		return err
	}

	account := &domain.ConnectedAccount{
		StripeAccountID: acct.ID,
		ChargesEnabled:  acct.ChargesEnabled,
		PayoutsEnabled:  acct.PayoutsEnabled,
		Status:          domain.DeriveAccountStatus(acct.ChargesEnabled, acct.PayoutsEnabled),
		RequirementsDue: acct.Requirements.CurrentlyDue,
	}
	if err := s.txs.UpsertConnectedAccount(ctx, account); err != nil {
		return fmt.Errorf("upsert connected account: %w", err)
	}
	return nil
}

func (s *Reconciler) handleChargeRefunded(ctx context.Context, raw json.RawMessage) error {
	var charge chargePayload
	if err := s.decode(EventChargeRefunded, raw, &charge); err != nil {
		return err
	}

	matched, err := s.txs.UpdateStatusByCharge(ctx, charge.ID, domain.TxStatusRefunded)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if !matched {
		log.Printf("[Webhook] charge %s has no matching transaction, no-op", charge.ID)
	}
	return nil
}
