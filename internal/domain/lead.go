package domain

import "time"

// Lead statuses.
const (
	LeadStatusPendingPayment = "pending_payment"
	LeadStatusPaid           = "paid"
)

// LeadSourceBHMPromo marks leads imported through the Black History Month
// quick-add promotional flow.
const LeadSourceBHMPromo = "bhm_promo"

// Lead is an externally-sourced business listing awaiting payment. A paid
// listing stays live until ListingExpiresAt (one year after payment).
type Lead struct {
	ID               string     `json:"id"`
	Source           string     `json:"source"`
	BusinessName     string     `json:"businessName"`
	Website          string     `json:"website"`
	OwnerEmail       string     `json:"ownerEmail"`
	Status           string     `json:"status"`
	PaymentAmount    int64      `json:"paymentAmount"` // cents
	ListingExpiresAt *time.Time `json:"listingExpiresAt,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}
