package common

// Channel is a Telegram channel registered by its owner as a placement
// surface. Id is the chat id the bot resolves for it.
type Channel struct {
	Id      string `json:"id"`
	OwnerId string `json:"ownerId"`

	Title       string `json:"title,omitempty"`
	Username    string `json:"username,omitempty"`
	MemberCount int64  `json:"memberCount,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
}
