package common

import "time"

// Ad is an advertiser's funded campaign. Do NOT confuse this
// with an Offer, which is a single channel owner's placement of it.
type Ad struct {
	Id     string `json:"id"`
	UserId string `json:"userId"` // advertiser

	Budget   float64 `json:"budget"`   // rate per duration unit
	Duration int     `json:"duration"` // units (days)

	// Derived at funding time, feeRate * budget * duration
	PlatformFee float64 `json:"platformFee,omitempty"`

	// Budget the advertiser withdrew back out of escrow. Counts
	// against spendable exactly like a committed offer does.
	UnlockedAmount float64 `json:"unlockedAmount,omitempty"`

	// Sum of amounts of offers that made it to posted
	SpentBudget float64 `json:"spentBudget,omitempty"`

	// Escrow wallet holding the funds for this campaign
	ContractAddress string `json:"contractAddress,omitempty"`
	EscrowSecretId  string `json:"escrowSecretId,omitempty"`

	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Content     *Content `json:"content,omitempty"`

	ApprovedOffers []string `json:"approvedOffers,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
}

func (ad *Ad) Total() float64 {
	return ad.Budget * float64(ad.Duration)
}

// IsActive reports whether the campaign's run window is still open.
// Status is derived, never stored.
func (ad *Ad) IsActive(now time.Time) bool {
	end := time.Unix(ad.CreatedAt, 0).AddDate(0, 0, ad.Duration)
	return now.Before(end)
}

func (ad *Ad) Status(now time.Time) string {
	if ad.IsActive(now) {
		return "active"
	}
	return "completed"
}
