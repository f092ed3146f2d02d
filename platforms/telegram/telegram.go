package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
)

const (
	sendMessageUrl = "%s%s/sendMessage"
	sendPhotoUrl   = "%s%s/sendPhoto"
	getChatUrl     = "%s%s/getChat?chat_id=%s"
	getFileUrl     = "%s%s/getFile?file_id=%s"
	fileLinkUrl    = "%sfile/bot%s/%s"
)

var (
	ErrSend     = errors.New("message was not sent")
	ErrChat     = errors.New("chat not found")
	ErrNoToken  = errors.New("missing bot token")
	ErrNoResult = errors.New("empty api result")
)

// Client is a thin wrapper over the Bot API http surface.
type Client struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Client {
	return &Client{cfg: cfg}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type Chat struct {
	Id          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Username    string `json:"username"`
	MemberCount int64  `json:"member_count"`
}

type sendReq struct {
	ChatId          string           `json:"chat_id"`
	Text            string           `json:"text,omitempty"`
	Photo           string           `json:"photo,omitempty"`
	Caption         string           `json:"caption,omitempty"`
	Entities        []*common.Entity `json:"entities,omitempty"`
	CaptionEntities []*common.Entity `json:"caption_entities,omitempty"`
	ReplyMarkup     *replyMarkup     `json:"reply_markup,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]button `json:"inline_keyboard"`
}

type button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func markupFor(link, buttonText string) *replyMarkup {
	if link == "" {
		return nil
	}
	if buttonText == "" {
		buttonText = "Open"
	}
	return &replyMarkup{InlineKeyboard: [][]button{{{Text: buttonText, URL: link}}}}
}

// SendMessage publishes a text message and returns its message id.
func (c *Client) SendMessage(chatId, text string, entities []*common.Entity, link, buttonText string) (int64, error) {
	req := &sendReq{
		ChatId:      chatId,
		Text:        text,
		Entities:    entities,
		ReplyMarkup: markupFor(link, buttonText),
	}
	return c.send(sendMessageUrl, req)
}

// SendPhoto publishes a photo with a caption and returns its message id.
// Callers fall back to SendMessage when this fails.
func (c *Client) SendPhoto(chatId, photo, caption string, entities []*common.Entity, link, buttonText string) (int64, error) {
	req := &sendReq{
		ChatId:          chatId,
		Photo:           photo,
		Caption:         caption,
		CaptionEntities: entities,
		ReplyMarkup:     markupFor(link, buttonText),
	}
	return c.send(sendPhotoUrl, req)
}

func (c *Client) send(urlFmt string, req *sendReq) (int64, error) {
	if c.cfg.Telegram.Token == "" {
		return 0, ErrNoToken
	}

	b, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf(urlFmt, c.cfg.Telegram.Endpoint, c.cfg.Telegram.Token)

	var resp apiResponse
	if err := misc.Request("POST", endpoint, string(b), &resp); err != nil {
		return 0, err
	}
	if !resp.OK {
		if resp.Description != "" {
			return 0, errors.New(resp.Description)
		}
		return 0, ErrSend
	}

	return ParseMessageId(resp.Result), nil
}

// ParseMessageId digs the message id out of whatever shape the api
// handed back. An unparseable result normalizes to 0 rather than
// failing the transition that triggered the send.
func ParseMessageId(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var msg struct {
		MessageId int64 `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &msg); err == nil && msg.MessageId != 0 {
		return msg.MessageId
	}

	// Some gateways answer with the bare id
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}

	return 0
}

// GetChat resolves channel/user metadata. ref is a numeric chat id or
// an @username.
func (c *Client) GetChat(ref string) (*Chat, error) {
	if c.cfg.Telegram.Token == "" {
		return nil, ErrNoToken
	}

	endpoint := fmt.Sprintf(getChatUrl, c.cfg.Telegram.Endpoint, c.cfg.Telegram.Token, url.QueryEscape(ref))

	var resp apiResponse
	if err := misc.Request("GET", endpoint, "", &resp); err != nil {
		return nil, err
	}
	if !resp.OK || len(resp.Result) == 0 {
		return nil, ErrChat
	}

	var chat Chat
	if err := json.Unmarshal(resp.Result, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetFileLink resolves a file reference to a downloadable url.
func (c *Client) GetFileLink(fileId string) (string, error) {
	if c.cfg.Telegram.Token == "" {
		return "", ErrNoToken
	}

	endpoint := fmt.Sprintf(getFileUrl, c.cfg.Telegram.Endpoint, c.cfg.Telegram.Token, url.QueryEscape(fileId))

	var resp apiResponse
	if err := misc.Request("GET", endpoint, "", &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", ErrNoResult
	}

	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return "", err
	}

	// The configured endpoint conventionally ends in "bot"; the file
	// host is the same origin without it.
	base := strings.TrimSuffix(c.cfg.Telegram.Endpoint, "bot")
	return fmt.Sprintf(fileLinkUrl, base, c.cfg.Telegram.Token, file.FilePath), nil
}
