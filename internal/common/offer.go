package common

// Offer statuses. "approved" is a transient claim held only while the
// publish call is in flight; it settles into posted or failed_post.
const (
	StatusPending     = "pending"
	StatusNegotiating = "negotiating"
	StatusAccepted    = "accepted"
	StatusApproved    = "approved"
	StatusPosted      = "posted"
	StatusFailedPost  = "failed_post"
	StatusSuspended   = "suspended"
	StatusCompleted   = "completed"
	StatusRejected    = "rejected"
)

// Negotiation is one entry of the append-only haggling trail.
type Negotiation struct {
	Price float64 `json:"price"`
	By    string  `json:"by"` // user id
	At    int64   `json:"at"`
}

// Offer represents one channel owner's placement deal against an Ad.
type Offer struct {
	Id          string `json:"id"`
	AdId        string `json:"adId"`
	AdOwnerId   string `json:"adOwnerId"`   // advertiser
	RequesterId string `json:"requesterId"` // channel owner
	ChannelId   string `json:"channelId"`

	Amount        float64 `json:"amount"` // current asking/agreed price
	Duration      int     `json:"duration,omitempty"`
	ProofDuration int     `json:"proofDuration,omitempty"`

	// Per-placement override of the ad's post content
	ModifiedContent *Content `json:"modifiedContent,omitempty"`

	Status string `json:"status"`

	NegotiationHistory []*Negotiation `json:"negotiationHistory,omitempty"`
	LastNegotiatorId   string         `json:"lastNegotiatorId,omitempty"`

	// Set once the placement is published
	MessageId         int64  `json:"message_id,omitempty"`
	PostedAt          int64  `json:"postedAt,omitempty"`
	VerificationDueAt int64  `json:"verificationDueAt,omitempty"`
	Error             string `json:"error,omitempty"`

	FundsReleased bool `json:"fundsReleased,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
}

// IsCommitting reports whether the offer's status reserves funds
// against the ad's budget. Pending and negotiating offers hold nothing.
func (o *Offer) IsCommitting() bool {
	switch o.Status {
	case StatusAccepted, StatusApproved, StatusPosted, StatusCompleted:
		return true
	}
	return false
}

// IsLive reports whether the requester still has a horse in this race,
// which blocks them from opening a second offer on the same ad.
func (o *Offer) IsLive() bool {
	switch o.Status {
	case StatusPending, StatusNegotiating, StatusAccepted, StatusApproved, StatusPosted:
		return true
	}
	return false
}

// LastPriceBy walks the negotiation history backwards for the given
// user's own most recent counter. Used by the smart-rejection revert.
func (o *Offer) LastPriceBy(userId string) (float64, bool) {
	for i := len(o.NegotiationHistory) - 1; i >= 0; i-- {
		if n := o.NegotiationHistory[i]; n.By == userId {
			return n.Price, true
		}
	}
	return 0, false
}

// PostContent resolves what actually gets published for this offer.
func (o *Offer) PostContent(ad *Ad) *Content {
	if o.ModifiedContent != nil {
		return o.ModifiedContent
	}
	return ad.Content
}
