package domain

import "time"

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusSucceeded = "succeeded"
	TxStatusFailed    = "failed"
	TxStatusRefunded  = "refunded"
)

// Transaction records a single payment attempt, keyed to the provider by
// payment-intent and charge references.
type Transaction struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"userId"`
	Amount                int64     `json:"amount"` // cents
	Status                string    `json:"status"`
	StripePaymentIntentID string    `json:"stripePaymentIntentId"`
	StripeChargeID        string    `json:"stripeChargeId"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Connected account statuses, derived from the provider's capability flags.
const (
	AccountStatusActive     = "active"
	AccountStatusRestricted = "restricted"
)

// ConnectedAccount mirrors a seller's payment account state. Status is
// derived: active when both charges and payouts are enabled.
type ConnectedAccount struct {
	StripeAccountID string    `json:"stripeAccountId"`
	UserID          string    `json:"userId"`
	ChargesEnabled  bool      `json:"chargesEnabled"`
	PayoutsEnabled  bool      `json:"payoutsEnabled"`
	Status          string    `json:"status"`
	RequirementsDue []string  `json:"requirementsDue"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DeriveAccountStatus computes the stored status from capability flags.
func DeriveAccountStatus(chargesEnabled, payoutsEnabled bool) string {
	if chargesEnabled && payoutsEnabled {
		return AccountStatusActive
	}
	return AccountStatusRestricted
}
