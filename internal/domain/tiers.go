package domain

// Tier represents a corporate sponsorship level.
type Tier struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PriceUSD  int    `json:"priceUsd"` // Monthly price in USD cents (50000 = $500)
	MaxSeats  int    `json:"maxSeats"` // Employee accounts included, 0 = unlimited
	Spotlight bool   `json:"spotlight"`
	Popular   bool   `json:"popular"` // Show "Most Popular" badge
}

// BenefitTemplate is one entitlement in a tier's fixed benefit batch.
type BenefitTemplate struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AvailableTiers returns all sponsorship tiers.
func AvailableTiers() []Tier {
	return []Tier{
		{
			ID:       "bronze",
			Name:     "Bronze Sponsor",
			PriceUSD: 50000, // $500/mo
			MaxSeats: 25,
		},
		{
			ID:        "silver",
			Name:      "Silver Sponsor",
			PriceUSD:  150000, // $1,500/mo
			MaxSeats:  100,
			Spotlight: true,
			Popular:   true,
		},
		{
			ID:        "gold",
			Name:      "Gold Sponsor",
			PriceUSD:  350000, // $3,500/mo
			MaxSeats:  500,
			Spotlight: true,
		},
		{
			ID:        "platinum",
			Name:      "Platinum Sponsor",
			PriceUSD:  750000, // $7,500/mo
			MaxSeats:  0, // unlimited
			Spotlight: true,
		},
	}
}

// GetTier returns the tier for a given ID, or the bronze tier if not found.
func GetTier(id string) Tier {
	for _, t := range AvailableTiers() {
		if t.ID == id {
			return t
		}
	}
	return AvailableTiers()[0] // default to bronze
}

// BenefitTemplates returns the fixed benefit batch created for a tier at
// signup. Every tier gets the base set; higher tiers upgrade the listing and
// extend the batch.
func BenefitTemplates(tierID string) []BenefitTemplate {
	base := []BenefitTemplate{
		{Name: "employee_discounts", Value: "enabled"},
		{Name: "impact_dashboard", Value: "enabled"},
	}

	switch tierID {
	case "silver":
		return append(base,
			BenefitTemplate{Name: "directory_listing", Value: "featured"},
			BenefitTemplate{Name: "newsletter_spotlight", Value: "quarterly"},
		)
	case "gold":
		return append(base,
			BenefitTemplate{Name: "directory_listing", Value: "featured"},
			BenefitTemplate{Name: "newsletter_spotlight", Value: "monthly"},
			BenefitTemplate{Name: "event_sponsorship", Value: "2_per_year"},
		)
	case "platinum":
		return append(base,
			BenefitTemplate{Name: "directory_listing", Value: "premium"},
			BenefitTemplate{Name: "newsletter_spotlight", Value: "monthly"},
			BenefitTemplate{Name: "event_sponsorship", Value: "unlimited"},
			BenefitTemplate{Name: "dedicated_account_manager", Value: "enabled"},
		)
	default:
		return append(base, BenefitTemplate{Name: "directory_listing", Value: "standard"})
	}
}
