package ton

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/misc"
)

const (
	createWalletUrl = "%swalletCreate?api_key=%s"
	balanceUrl      = "%sgetAddressBalance?address=%s&api_key=%s"
	transferUrl     = "%ssendTransfer?api_key=%s"

	// nanotons per TON
	nano = 1e9
)

var (
	ErrWallet   = errors.New("wallet creation failed")
	ErrBalance  = errors.New("balance lookup failed")
	ErrTransfer = errors.New("transfer was not accepted")
)

// Wallet is a freshly generated keypair. The mnemonic exists only in
// memory here; callers hand it to the secret store and drop it.
type Wallet struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	Mnemonic  string `json:"mnemonic"`
}

// Client wraps the chain gateway which does key generation, signing
// and broadcast on our behalf.
type Client struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Client {
	return &Client{cfg: cfg}
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (c *Client) CreateWallet() (*Wallet, error) {
	endpoint := fmt.Sprintf(createWalletUrl, c.cfg.TON.Endpoint, c.cfg.TON.APIKey)

	var resp apiResponse
	if err := misc.Request("POST", endpoint, "{}", &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, ErrWallet
	}

	var w Wallet
	if err := json.Unmarshal(resp.Result, &w); err != nil {
		return nil, err
	}
	if w.Address == "" || w.Mnemonic == "" {
		return nil, ErrWallet
	}
	return &w, nil
}

// Balance returns the confirmed balance in TON.
func (c *Client) Balance(address string) (float64, error) {
	endpoint := fmt.Sprintf(balanceUrl, c.cfg.TON.Endpoint, url.QueryEscape(address), c.cfg.TON.APIKey)

	var resp apiResponse
	if err := misc.Request("GET", endpoint, "", &resp); err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, ErrBalance
	}

	// The gateway answers nanotons as a decimal string
	var raw string
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, ErrBalance
	}
	return n / nano, nil
}

type transferReq struct {
	Mnemonic string `json:"mnemonic"`
	To       string `json:"to"`
	Amount   int64  `json:"amount"` // nanotons
}

// Transfer signs and broadcasts a value transfer, returning the tx hash.
func (c *Client) Transfer(mnemonic, to string, amount float64) (string, error) {
	req := &transferReq{
		Mnemonic: mnemonic,
		To:       to,
		Amount:   int64(amount * nano),
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf(transferUrl, c.cfg.TON.Endpoint, c.cfg.TON.APIKey)

	var resp apiResponse
	if err := misc.Request("POST", endpoint, string(b), &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		if resp.Error != "" {
			return "", errors.New(resp.Error)
		}
		return "", ErrTransfer
	}

	var out struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return "", err
	}
	return out.Hash, nil
}
