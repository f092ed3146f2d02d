package common

// User is the minimal profile kept for a verified identity. The
// identity provider owns credentials; this is just display data.
type User struct {
	Id       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	ChatId   string `json:"chatId,omitempty"` // private chat for bot messages

	CreatedAt int64 `json:"createdAt,omitempty"`
}
