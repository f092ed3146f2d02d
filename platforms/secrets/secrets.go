package secrets

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/misc"
)

const secretUrl = "%ssecrets/%s"

var (
	ErrNotFound = errors.New("secret not found")
	ErrPut      = errors.New("secret was not stored")
)

// Client fronts the external vault holding wallet mnemonics. Only
// opaque secret ids ever leave this package's callers.
type Client struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Client {
	return &Client{cfg: cfg}
}

type secretDoc struct {
	Value string `json:"value"`
}

func (c *Client) Put(id, value string) error {
	b, err := json.Marshal(&secretDoc{Value: value})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf(secretUrl, c.cfg.Secrets.Endpoint, id)

	var resp struct {
		OK bool `json:"ok"`
	}
	if err := misc.AuthRequest("PUT", endpoint, c.cfg.Secrets.Token, string(b), &resp); err != nil {
		return err
	}
	if !resp.OK {
		return ErrPut
	}
	return nil
}

func (c *Client) Get(id string) (string, error) {
	endpoint := fmt.Sprintf(secretUrl, c.cfg.Secrets.Endpoint, id)

	var resp struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := misc.AuthRequest("GET", endpoint, c.cfg.Secrets.Token, "", &resp); err != nil {
		return "", err
	}
	if !resp.OK || resp.Value == "" {
		return "", ErrNotFound
	}
	return resp.Value, nil
}
