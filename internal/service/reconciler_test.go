package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSubStore struct {
	subs     map[string]*domain.Subscription // by stripe subscription ID
	benefits []*domain.Benefit
	metrics  []*domain.ImpactMetric
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{subs: make(map[string]*domain.Subscription)}
}

func (f *fakeSubStore) CreateIfAbsent(_ context.Context, sub *domain.Subscription) (bool, error) {
	if _, ok := f.subs[sub.StripeSubscriptionID]; ok {
		return false, nil
	}
	copied := *sub
	f.subs[sub.StripeSubscriptionID] = &copied
	return true, nil
}

func (f *fakeSubStore) UpdateByStripeID(_ context.Context, stripeSubID string, upd domain.SubscriptionUpdate) (bool, error) {
	sub, ok := f.subs[stripeSubID]
	if !ok {
		return false, nil
	}
	sub.Status = upd.Status
	sub.CurrentPeriodStart = upd.CurrentPeriodStart
	sub.CurrentPeriodEnd = upd.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = upd.CancelAtPeriodEnd
	return true, nil
}

func (f *fakeSubStore) CancelByStripeID(_ context.Context, stripeSubID string) (bool, error) {
	sub, ok := f.subs[stripeSubID]
	if !ok {
		return false, nil
	}
	sub.Status = domain.SubStatusCancelled
	return true, nil
}

func (f *fakeSubStore) CreateBenefits(_ context.Context, benefits []*domain.Benefit) error {
	f.benefits = append(f.benefits, benefits...)
	return nil
}

func (f *fakeSubStore) CreateImpactMetric(_ context.Context, m *domain.ImpactMetric) error {
	f.metrics = append(f.metrics, m)
	return nil
}

type paidLead struct {
	amount    int64
	paidAt    time.Time
	expiresAt time.Time
}

type fakeLeadStore struct {
	leads []*domain.Lead
	paid  map[string]paidLead
}

func newFakeLeadStore(leads ...*domain.Lead) *fakeLeadStore {
	return &fakeLeadStore{leads: leads, paid: make(map[string]paidLead)}
}

func (f *fakeLeadStore) FindPendingByWebsite(_ context.Context, source, website string) (*domain.Lead, error) {
	for _, l := range f.leads {
		if l.Source == source && l.Website == website && l.Status == domain.LeadStatusPendingPayment {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLeadStore) FindPendingByEmail(_ context.Context, source, email string) (*domain.Lead, error) {
	for _, l := range f.leads {
		if l.Source == source && l.OwnerEmail == email && l.Status == domain.LeadStatusPendingPayment {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLeadStore) MarkPaid(_ context.Context, id string, amount int64, paidAt, expiresAt time.Time) error {
	for _, l := range f.leads {
		if l.ID == id {
			l.Status = domain.LeadStatusPaid
		}
	}
	f.paid[id] = paidLead{amount: amount, paidAt: paidAt, expiresAt: expiresAt}
	return nil
}

type fakeTxStore struct {
	byIntent map[string]string // payment intent ID -> status
	byCharge map[string]string
	accounts map[string]*domain.ConnectedAccount
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{
		byIntent: make(map[string]string),
		byCharge: make(map[string]string),
		accounts: make(map[string]*domain.ConnectedAccount),
	}
}

func (f *fakeTxStore) UpdateStatusByPaymentIntent(_ context.Context, id, status string) (bool, error) {
	if _, ok := f.byIntent[id]; !ok {
		return false, nil
	}
	f.byIntent[id] = status
	return true, nil
}

func (f *fakeTxStore) UpdateStatusByCharge(_ context.Context, id, status string) (bool, error) {
	if _, ok := f.byCharge[id]; !ok {
		return false, nil
	}
	f.byCharge[id] = status
	return true, nil
}

func (f *fakeTxStore) UpsertConnectedAccount(_ context.Context, a *domain.ConnectedAccount) error {
	f.accounts[a.StripeAccountID] = a
	return nil
}

type fakeUsers struct {
	byEmail map[string]*domain.User
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return f.byEmail[email], nil
}

type fakeResolver struct {
	emails map[string]string
}

func (f *fakeResolver) CustomerEmail(_ context.Context, customerID string) (string, error) {
	email, ok := f.emails[customerID]
	if !ok {
		return "", fmt.Errorf("unknown customer %s", customerID)
	}
	return email, nil
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) WelcomeSponsor(_ context.Context, _, _ string) error {
	f.calls++
	return f.err
}

type fixture struct {
	reconciler *Reconciler
	subs       *fakeSubStore
	leads      *fakeLeadStore
	txs        *fakeTxStore
	users      *fakeUsers
	notifier   *fakeNotifier
	now        time.Time
}

func newFixture(leads ...*domain.Lead) *fixture {
	f := &fixture{
		subs:     newFakeSubStore(),
		leads:    newFakeLeadStore(leads...),
		txs:      newFakeTxStore(),
		users:    &fakeUsers{byEmail: make(map[string]*domain.User)},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	f.reconciler = NewReconciler(f.subs, f.leads, f.txs, f.users,
		&fakeResolver{emails: map[string]string{"cus_42": "sponsor@example.com"}}, f.notifier)
	f.reconciler.now = func() time.Time { return f.now }
	return f
}

// ---------------------------------------------------------------------------
// Dispatch & validation
// ---------------------------------------------------------------------------

func TestUnrecognizedEventIsAcknowledged(t *testing.T) {
	f := newFixture()
	if err := f.reconciler.Process(context.Background(), "invoice.finalized", json.RawMessage(`{"id":"in_1"}`)); err != nil {
		t.Fatalf("unrecognized event should be acknowledged, got %v", err)
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	f := newFixture()
	err := f.reconciler.Process(context.Background(), EventSubscriptionUpdated, json.RawMessage(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code != 400 {
		t.Fatalf("expected 400 AppError, got %v", err)
	}
}

func TestMissingRequiredFieldRejected(t *testing.T) {
	f := newFixture()
	// subscription.updated without an id
	err := f.reconciler.Process(context.Background(), EventSubscriptionUpdated, json.RawMessage(`{"status":"active"}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code != 400 {
		t.Fatalf("expected 400 AppError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Subscription lifecycle
// ---------------------------------------------------------------------------

func corporateCheckout() json.RawMessage {
	return json.RawMessage(`{
		"id": "cs_1",
		"customer": "cus_42",
		"subscription": "sub_99",
		"amount_total": 150000,
		"metadata": {"flow": "corporate_signup", "tier": "silver", "company_name": "Acme Corp"}
	}`)
}

func TestCorporateSignupProvisionsSponsor(t *testing.T) {
	f := newFixture()
	f.users.byEmail["sponsor@example.com"] = &domain.User{ID: "u1", Email: "sponsor@example.com"}

	if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted, corporateCheckout()); err != nil {
		t.Fatalf("process: %v", err)
	}

	sub, ok := f.subs.subs["sub_99"]
	if !ok {
		t.Fatal("subscription not created")
	}
	if sub.Tier != "silver" || sub.Name != "Acme Corp" || sub.UserID != "u1" {
		t.Errorf("unexpected subscription: %+v", sub)
	}
	if sub.Status != domain.SubStatusActive {
		t.Errorf("status: got %q, want active", sub.Status)
	}

	wantBenefits := len(domain.BenefitTemplates("silver"))
	if len(f.subs.benefits) != wantBenefits {
		t.Errorf("benefits: got %d, want %d", len(f.subs.benefits), wantBenefits)
	}
	if len(f.subs.metrics) != 1 {
		t.Fatalf("impact metrics: got %d, want 1", len(f.subs.metrics))
	}
	m := f.subs.metrics[0]
	if m.BusinessesSupported != 0 || m.JobsCreated != 0 || m.DollarsCirculated != 0 {
		t.Errorf("impact metric should be zeroed: %+v", m)
	}
	if f.notifier.calls != 1 {
		t.Errorf("notifier calls: got %d, want 1", f.notifier.calls)
	}
}

func TestCorporateSignupReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	f.users.byEmail["sponsor@example.com"] = &domain.User{ID: "u1", Email: "sponsor@example.com"}

	for i := 0; i < 2; i++ {
		if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted, corporateCheckout()); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if len(f.subs.subs) != 1 {
		t.Errorf("subscriptions: got %d, want 1", len(f.subs.subs))
	}
	wantBenefits := len(domain.BenefitTemplates("silver"))
	if len(f.subs.benefits) != wantBenefits {
		t.Errorf("replay must not duplicate the benefit batch: got %d, want %d", len(f.subs.benefits), wantBenefits)
	}
	if len(f.subs.metrics) != 1 {
		t.Errorf("replay must not duplicate the impact metric: got %d, want 1", len(f.subs.metrics))
	}
}

func TestCorporateSignupUnknownUserIsAcknowledged(t *testing.T) {
	f := newFixture()
	// No local user registered for the resolved email.
	if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted, corporateCheckout()); err != nil {
		t.Fatalf("unknown user must not fail the webhook: %v", err)
	}
	if len(f.subs.subs) != 0 || len(f.subs.benefits) != 0 {
		t.Error("nothing should be provisioned for an unknown user")
	}
}

func TestCorporateSignupNotifierFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	f.users.byEmail["sponsor@example.com"] = &domain.User{ID: "u1", Email: "sponsor@example.com"}
	f.notifier.err = errors.New("smtp down")

	if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted, corporateCheckout()); err != nil {
		t.Fatalf("notification failure must be best-effort: %v", err)
	}
	if len(f.subs.subs) != 1 {
		t.Error("subscription should still be provisioned")
	}
}

func TestSubscriptionUpdatedIsIdempotent(t *testing.T) {
	f := newFixture()
	f.subs.subs["sub_99"] = &domain.Subscription{StripeSubscriptionID: "sub_99", Status: domain.SubStatusActive}

	payload := json.RawMessage(`{
		"id": "sub_99",
		"status": "past_due",
		"current_period_start": 1767225600,
		"current_period_end": 1769904000,
		"cancel_at_period_end": true
	}`)

	if err := f.reconciler.Process(context.Background(), EventSubscriptionUpdated, payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	first := *f.subs.subs["sub_99"]

	if err := f.reconciler.Process(context.Background(), EventSubscriptionUpdated, payload); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	second := *f.subs.subs["sub_99"]

	if first != second {
		t.Errorf("replay changed state:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if second.Status != "past_due" || !second.CancelAtPeriodEnd {
		t.Errorf("update not applied: %+v", second)
	}
}

func TestSubscriptionUpdatedUnknownIsNoOp(t *testing.T) {
	f := newFixture()
	payload := json.RawMessage(`{"id": "sub_missing", "status": "active"}`)
	if err := f.reconciler.Process(context.Background(), EventSubscriptionUpdated, payload); err != nil {
		t.Fatalf("unmatched update must be acknowledged: %v", err)
	}
}

func TestSubscriptionDeletedRetainsRow(t *testing.T) {
	f := newFixture()
	f.subs.subs["sub_99"] = &domain.Subscription{StripeSubscriptionID: "sub_99", Status: domain.SubStatusActive}

	payload := json.RawMessage(`{"id": "sub_99", "status": "canceled"}`)
	for i := 0; i < 2; i++ {
		if err := f.reconciler.Process(context.Background(), EventSubscriptionDeleted, payload); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	sub, ok := f.subs.subs["sub_99"]
	if !ok {
		t.Fatal("cancelled subscription must be retained, not removed")
	}
	if sub.Status != domain.SubStatusCancelled {
		t.Errorf("status: got %q, want cancelled", sub.Status)
	}
}

// ---------------------------------------------------------------------------
// Lead promotion
// ---------------------------------------------------------------------------

func quickAddCheckout(website, email string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"id": "cs_2",
		"amount_total": 9900,
		"customer_details": {"email": %q},
		"metadata": {"flow": "bhm_quick_add", "website": %q}
	}`, email, website))
}

func TestQuickAddPromotesLeadByWebsite(t *testing.T) {
	lead := &domain.Lead{
		ID: "l1", Source: domain.LeadSourceBHMPromo, BusinessName: "Soul Kitchen",
		Website: "https://soulkitchen.example", Status: domain.LeadStatusPendingPayment,
	}
	f := newFixture(lead)

	if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted,
		quickAddCheckout("https://soulkitchen.example", "owner@soulkitchen.example")); err != nil {
		t.Fatalf("process: %v", err)
	}

	paid, ok := f.leads.paid["l1"]
	if !ok {
		t.Fatal("lead not promoted")
	}
	if paid.amount != 9900 {
		t.Errorf("amount: got %d, want 9900", paid.amount)
	}
	wantExpiry := f.now.AddDate(1, 0, 0)
	if !paid.expiresAt.Equal(wantExpiry) {
		t.Errorf("expiry: got %s, want %s", paid.expiresAt, wantExpiry)
	}
	if lead.Status != domain.LeadStatusPaid {
		t.Errorf("status: got %q, want paid", lead.Status)
	}
}

func TestQuickAddFallsBackToEmailMatch(t *testing.T) {
	lead := &domain.Lead{
		ID: "l2", Source: domain.LeadSourceBHMPromo, BusinessName: "Harlem Prints",
		Website: "https://harlemprints.example", OwnerEmail: "owner@harlemprints.example",
		Status: domain.LeadStatusPendingPayment,
	}
	f := newFixture(lead)

	// Website in the event doesn't match the stored one; the email does.
	if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted,
		quickAddCheckout("https://other.example", "owner@harlemprints.example")); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, ok := f.leads.paid["l2"]; !ok {
		t.Fatal("lead should match by email fallback")
	}
}

func TestQuickAddNoMatchIsAcknowledged(t *testing.T) {
	f := newFixture()
	if err := f.reconciler.Process(context.Background(), EventCheckoutCompleted,
		quickAddCheckout("https://nowhere.example", "nobody@example.com")); err != nil {
		t.Fatalf("no matching lead must still be acknowledged: %v", err)
	}
	if len(f.leads.paid) != 0 {
		t.Error("no lead should be promoted")
	}
}

// ---------------------------------------------------------------------------
// Transactions & accounts
// ---------------------------------------------------------------------------

func TestPaymentIntentStatusTransitions(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{EventPaymentSucceeded, domain.TxStatusSucceeded},
		{EventPaymentFailed, domain.TxStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			f := newFixture()
			f.txs.byIntent["pi_7"] = domain.TxStatusPending

			payload := json.RawMessage(`{"id": "pi_7"}`)
			if err := f.reconciler.Process(context.Background(), tt.eventType, payload); err != nil {
				t.Fatalf("process: %v", err)
			}
			if got := f.txs.byIntent["pi_7"]; got != tt.want {
				t.Errorf("status: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChargeRefunded(t *testing.T) {
	f := newFixture()
	f.txs.byCharge["ch_3"] = domain.TxStatusSucceeded

	if err := f.reconciler.Process(context.Background(), EventChargeRefunded, json.RawMessage(`{"id": "ch_3"}`)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := f.txs.byCharge["ch_3"]; got != domain.TxStatusRefunded {
		t.Errorf("status: got %q, want refunded", got)
	}
}

func TestAccountUpdatedDerivesStatus(t *testing.T) {
	tests := []struct {
		charges, payouts bool
		want             string
	}{
		{true, true, domain.AccountStatusActive},
		{true, false, domain.AccountStatusRestricted},
		{false, true, domain.AccountStatusRestricted},
		{false, false, domain.AccountStatusRestricted},
	}

	for _, tt := range tests {
		f := newFixture()
		payload := json.RawMessage(fmt.Sprintf(`{
			"id": "acct_1",
			"charges_enabled": %t,
			"payouts_enabled": %t,
			"requirements": {"currently_due": ["external_account"]}
		}`, tt.charges, tt.payouts))

		if err := f.reconciler.Process(context.Background(), EventAccountUpdated, payload); err != nil {
			t.Fatalf("process: %v", err)
		}
		acct := f.txs.accounts["acct_1"]
		if acct == nil {
			t.Fatal("account not persisted")
		}
		if acct.Status != tt.want {
			t.Errorf("charges=%t payouts=%t: status %q, want %q", tt.charges, tt.payouts, acct.Status, tt.want)
		}
		if len(acct.RequirementsDue) != 1 {
			t.Errorf("requirements not persisted: %v", acct.RequirementsDue)
		}
	}
}
