package domain

import "time"

// Subscription statuses mirror the billing provider's vocabulary.
const (
	SubStatusActive    = "active"
	SubStatusPastDue   = "past_due"
	SubStatusCancelled = "cancelled"
)

// Subscription represents a corporate sponsor's recurring billing relationship.
// At most one row exists per Stripe subscription ID (enforced by a unique index).
type Subscription struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	Name                 string    `json:"name"`
	Tier                 string    `json:"tier"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId"`
	StripeCustomerID     string    `json:"stripeCustomerId"`
	Status               string    `json:"status"`
	CurrentPeriodStart   time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool      `json:"cancelAtPeriodEnd"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// SubscriptionUpdate carries the mutable fields of a subscription.updated event.
type SubscriptionUpdate struct {
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// Benefit is a named entitlement attached to a subscription. The set of
// benefits is fixed per tier at signup time (see BenefitTemplates).
type Benefit struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscriptionId"`
	Name           string    `json:"name"`
	Value          string    `json:"value"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ImpactMetric is a dated snapshot of a sponsor's community impact. A zeroed
// row is seeded at subscription creation and updated by background jobs.
type ImpactMetric struct {
	ID                  string    `json:"id"`
	SubscriptionID      string    `json:"subscriptionId"`
	SnapshotDate        time.Time `json:"snapshotDate"`
	BusinessesSupported int       `json:"businessesSupported"`
	JobsCreated         int       `json:"jobsCreated"`
	DollarsCirculated   int64     `json:"dollarsCirculated"` // cents
	CreatedAt           time.Time `json:"createdAt"`
}
