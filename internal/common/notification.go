package common

// Notification types
const (
	NotifyDealRequest    = "deal_request"
	NotifyDealNegotiated = "deal_negotiated"
	NotifyDealAccepted   = "deal_accepted"
	NotifyDealRejected   = "deal_rejected"
	NotifyDealReverted   = "deal_reverted"
	NotifyDealPosted     = "deal_posted"
	NotifyDealCompleted  = "deal_completed"
)

// Notification is an in-app message stored under the receiving user's
// namespace. The chat message mirroring it is best effort only.
type Notification struct {
	Id      string `json:"id"`
	UserId  string `json:"userId"`
	Type    string `json:"type"`
	Message string `json:"message"`

	OfferId string `json:"offerId,omitempty"`
	AdId    string `json:"adId,omitempty"`

	Read      bool  `json:"read"`
	CreatedAt int64 `json:"createdAt"`
}
