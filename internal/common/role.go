package common

// Role is a participant's side of an offer, resolved once per request
// instead of re-deriving it from id equality all over the handlers.
type Role int

const (
	RoleNone Role = iota
	RoleAdvertiser
	RoleChannelOwner
)

func (r Role) String() string {
	switch r {
	case RoleAdvertiser:
		return "advertiser"
	case RoleChannelOwner:
		return "channel_owner"
	}
	return "none"
}

// RoleOf resolves which side of the offer the given user is on.
func (o *Offer) RoleOf(userId string) Role {
	switch userId {
	case o.AdOwnerId:
		return RoleAdvertiser
	case o.RequesterId:
		return RoleChannelOwner
	}
	return RoleNone
}

// CounterpartyId returns the other participant's user id.
func (o *Offer) CounterpartyId(userId string) string {
	if userId == o.AdOwnerId {
		return o.RequesterId
	}
	return o.AdOwnerId
}
