package common

// Entity is a rich-text span inside a post's text, matching the
// messaging platform's entity shape so it can be passed through as-is.
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// Content is everything needed to publish a placement to a channel.
// An offer may carry its own modified copy, otherwise the ad's is used.
type Content struct {
	Text     string    `json:"text,omitempty"`
	Entities []*Entity `json:"entities,omitempty"`

	// Media is an opaque file reference understood by the messaging platform
	Media string `json:"media,omitempty"`

	Link       string `json:"link,omitempty"`
	ButtonText string `json:"buttonText,omitempty"`
}

func (ct *Content) HasMedia() bool {
	return ct != nil && ct.Media != ""
}
