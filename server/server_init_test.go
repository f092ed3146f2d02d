package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/internal/escrow"
	"github.com/adgram/adgram/platforms/telegram"
	"github.com/adgram/adgram/platforms/ton"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

type M map[string]interface{}

var (
	ts  *httptest.Server
	srv *Server

	chain *fakeChain
	vault *fakeSecrets
	bot   *fakeMessenger
)

func TestMain(m *testing.M) {
	log.SetFlags(log.Lshortfile | log.Ltime)

	var code int = 1
	defer func() { os.Exit(code) }()

	cfg := testConfig()

	dir, err := os.MkdirTemp("", "adgram-srv")
	panicIf(err)
	defer os.RemoveAll(dir) // clean up
	cfg.DBPath = dir + "/"

	// disable all the gin spam
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	srv, err = New(cfg, r)
	panicIf(err)
	defer srv.Close()

	// swap the external collaborators for fakes
	chain = newFakeChain()
	vault = newFakeSecrets()
	bot = newFakeMessenger()
	srv.chain, srv.secrets, srv.tg = chain, vault, bot
	srv.sweeper = escrow.NewSweeper(srv.db, cfg, chain, vault, srv.mt)

	ts = httptest.NewServer(r)
	defer ts.Close()

	code = m.Run()
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Host:           "localhost",
		Port:           "0",
		DBName:         "adgram-test",
		Sandbox:        true,
		FeeRate:        0.05,
		PlatformWallet: "EQplatform",
		SweepInterval:  time.Millisecond,
		SweepAttempts:  10,
		VerifyWindow:   24 * time.Hour,
		AdminKey:       "test-admin-key",
	}
	cfg.Bucket.Ad = "ads"
	cfg.Bucket.Offer = "offers"
	cfg.Bucket.Notification = "notifications"
	cfg.Bucket.Wallet = "wallets"
	cfg.Bucket.User = "users"
	cfg.Bucket.Channel = "channels"
	cfg.Bucket.Sweep = "sweeps"
	return cfg
}

func panicIf(err error) {
	if err != nil {
		panic(err)
	}
}

// doReq hits the test server as the given sandbox user and decodes the
// response into out (when non-nil).
func doReq(t *testing.T, method, path, token string, body, out interface{}) int {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		panicIf(err)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.URL+path, rdr)
	panicIf(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("bad response %s: %v", raw, err)
		}
	}
	return resp.StatusCode
}

func adminReq(t *testing.T, path string, out interface{}) int {
	t.Helper()

	req, err := http.NewRequest("GET", ts.URL+path, nil)
	panicIf(err)
	req.Header.Set("x-apikey", srv.Cfg.AdminKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil {
		json.Unmarshal(raw, out)
	}
	return resp.StatusCode
}

///////// fakes /////////

type transferCall struct {
	mnemonic string
	to       string
	amount   float64
}

type fakeChain struct {
	mu        sync.Mutex
	seq       int
	balances  map[string]float64
	transfers []transferCall

	failTransfer bool
	delay        time.Duration
}

func newFakeChain() *fakeChain {
	return &fakeChain{balances: map[string]float64{}}
}

func (f *fakeChain) CreateWallet() (*ton.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &ton.Wallet{
		Address:   fmt.Sprintf("EQtest%d", f.seq),
		PublicKey: fmt.Sprintf("pub%d", f.seq),
		Mnemonic:  fmt.Sprintf("mnemonic %d", f.seq),
	}, nil
}

func (f *fakeChain) Balance(address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeChain) Transfer(mnemonic, to string, amount float64) (string, error) {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		return "", errors.New("chain rejected the transfer")
	}
	f.transfers = append(f.transfers, transferCall{mnemonic, to, amount})
	f.balances[to] += amount
	return fmt.Sprintf("tx%d", len(f.transfers)), nil
}

func (f *fakeChain) setDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *fakeChain) transfersTo(addr string) []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transferCall
	for _, tr := range f.transfers {
		if tr.to == addr {
			out = append(out, tr)
		}
	}
	return out
}

type fakeSecrets struct {
	mu sync.Mutex
	m  map[string]string
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{m: map[string]string{}}
}

func (f *fakeSecrets) Put(id, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[id] = value
	return nil
}

func (f *fakeSecrets) Get(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[id]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

type sentMsg struct {
	chatId string
	text   string
	photo  string
}

type fakeMessenger struct {
	mu   sync.Mutex
	seq  int64
	sent []sentMsg

	failPhoto bool
	failAll   bool
	delay     time.Duration

	chats map[string]*telegram.Chat
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{chats: map[string]*telegram.Chat{}}
}

func (f *fakeMessenger) SendMessage(chatId, text string, entities []*common.Entity, link, buttonText string) (int64, error) {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errors.New("bot was kicked from the channel")
	}
	f.seq++
	f.sent = append(f.sent, sentMsg{chatId: chatId, text: text})
	return f.seq, nil
}

func (f *fakeMessenger) sleep() {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (f *fakeMessenger) setDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

func (f *fakeMessenger) SendPhoto(chatId, photo, caption string, entities []*common.Entity, link, buttonText string) (int64, error) {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failPhoto {
		return 0, errors.New("photo send failed")
	}
	f.seq++
	f.sent = append(f.sent, sentMsg{chatId: chatId, text: caption, photo: photo})
	return f.seq, nil
}

func (f *fakeMessenger) GetChat(ref string) (*telegram.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat, ok := f.chats[ref]; ok {
		return chat, nil
	}
	return nil, telegram.ErrChat
}

func (f *fakeMessenger) GetFileLink(fileId string) (string, error) {
	if fileId == "" {
		return "", telegram.ErrNoResult
	}
	return "https://files.test/" + fileId, nil
}

func (f *fakeMessenger) addChannel(ref string, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[ref] = &telegram.Chat{Id: id, Type: "channel", Title: ref, Username: ref}
}

func (f *fakeMessenger) sentTo(chatId string) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, m := range f.sent {
		if m.chatId == chatId {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessenger) setFail(photo, all bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPhoto, f.failAll = photo, all
}

///////// scenario helpers /////////

var chanSeq int64 = 1000

// mkWallet provisions the sandbox user and their wallet.
func mkWallet(t *testing.T, token string) {
	t.Helper()
	if code := doReq(t, "POST", "/api/v1/wallet", token, M{}, nil); code != 200 {
		t.Fatalf("wallet create failed for %s: %d", token, code)
	}
}

func mkChannel(t *testing.T, token, ref string) string {
	t.Helper()

	chanSeq++
	bot.addChannel(ref, chanSeq)

	var ch common.Channel
	if code := doReq(t, "POST", "/api/v1/channels", token, M{"ref": ref}, &ch); code != 200 {
		t.Fatalf("channel create failed for %s: %d", ref, code)
	}
	return ch.Id
}

func mkAd(t *testing.T, token string, budget float64, duration int) string {
	t.Helper()

	var resp struct {
		Success bool   `json:"success"`
		AdId    string `json:"adId"`
	}
	code := doReq(t, "POST", "/api/v1/ads/create-contract", token, M{
		"budget":   budget,
		"duration": duration,
		"title":    "ad by " + token,
		"content":  M{"text": "check out " + token},
	}, &resp)
	if code != 200 || !resp.Success {
		t.Fatalf("ad create failed: %d", code)
	}
	return resp.AdId
}

func mkOffer(t *testing.T, token, adId, channelId string, amount float64) string {
	t.Helper()

	var resp struct {
		Success bool   `json:"success"`
		OfferId string `json:"offerId"`
	}
	code := doReq(t, "POST", "/api/v1/deals/request", token, M{
		"adId": adId, "channelId": channelId, "amount": amount,
	}, &resp)
	if code != 200 || !resp.Success {
		t.Fatalf("deal request failed: %d", code)
	}
	return resp.OfferId
}

func updateOffer(t *testing.T, token, dealId, status string) (int, string) {
	t.Helper()

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	code := doReq(t, "POST", "/api/v1/deals/update", token, M{
		"dealId": dealId, "status": status,
	}, &resp)
	if resp.Error != "" {
		return code, resp.Error
	}
	return code, resp.Status
}

func getOfferDoc(t *testing.T, id string) *common.Offer {
	t.Helper()
	o := srv.getOffer(id)
	if o == nil {
		t.Fatalf("offer %s not found", id)
	}
	return o
}

func getAdDoc(t *testing.T, id string) *common.Ad {
	t.Helper()
	ad := srv.getAd(id)
	if ad == nil {
		t.Fatalf("ad %s not found", id)
	}
	return ad
}

// backdatePost rewinds a posted offer past its verification window.
func backdatePost(t *testing.T, offerId string) {
	t.Helper()

	err := srv.db.Update(func(tx *bolt.Tx) error {
		o := getOfferTx(tx, srv, offerId)
		if o == nil {
			return errors.New("offer not found")
		}
		past := time.Now().Add(-time.Hour)
		o.PostedAt = past.Add(-srv.Cfg.VerifyWindow).Unix()
		o.VerificationDueAt = past.Unix()
		return saveOfferTx(tx, srv, o)
	})
	if err != nil {
		t.Fatal(err)
	}
}
