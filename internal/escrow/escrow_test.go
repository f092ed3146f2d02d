package escrow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/metrics"
	"github.com/adgram/adgram/platforms/ton"
	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// one registry per test binary
var mt = metrics.New()

type transfer struct {
	mnemonic string
	to       string
	amount   float64
}

type fakeChain struct {
	mu        sync.Mutex
	seq       int
	balances  map[string]float64
	transfers []transfer

	failTransfer bool
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
	defer f.mu.Unlock()
	if f.failTransfer {
		return "", errors.New("chain rejected the transfer")
	}
	f.transfers = append(f.transfers, transfer{mnemonic, to, amount})
	f.balances[to] += amount
	return fmt.Sprintf("tx%d", len(f.transfers)), nil
}

func (f *fakeChain) setBalance(address string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = v
}

func (f *fakeChain) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
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

func testConfig(t *testing.T) (*config.Config, *bolt.DB) {
	t.Helper()

	cfg := &config.Config{
		FeeRate:        0.05,
		PlatformWallet: "EQplatform",
		SweepInterval:  time.Millisecond,
		SweepAttempts:  5,
	}
	cfg.Bucket.Sweep = "sweeps"

	dir, err := os.MkdirTemp("", "adgram-escrow")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := bolt.Open(filepath.Join(dir, "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cfg.Bucket.Sweep))
		return err
	}))

	return cfg, db
}

func TestCost(t *testing.T) {
	totalCost, totalFee := Cost(10, 2, 0.05)
	assert.Equal(t, 21.0, totalCost)
	assert.Equal(t, 1.0, totalFee)
}

func TestFund(t *testing.T) {
	chain := newFakeChain()
	sec := newFakeSecrets()
	sec.Put("adv-secret", "advertiser mnemonic")

	esc, err := Fund(chain, sec, "adv-secret", 21)
	require.NoError(t, err)
	require.NotNil(t, esc)

	// The escrow mnemonic made it to the vault under the new id
	m, err := sec.Get(esc.SecretId)
	require.NoError(t, err)
	assert.Equal(t, "mnemonic 1", m)

	// One transfer: totalCost from the advertiser into escrow
	require.Len(t, chain.transfers, 1)
	assert.Equal(t, "advertiser mnemonic", chain.transfers[0].mnemonic)
	assert.Equal(t, esc.Address, chain.transfers[0].to)
	assert.Equal(t, 21.0, chain.transfers[0].amount)
}

func TestFundNoAdvertiserSecret(t *testing.T) {
	chain := newFakeChain()
	sec := newFakeSecrets()

	_, err := Fund(chain, sec, "", 21)
	assert.Equal(t, ErrNoFunds, err)

	_, err = Fund(chain, sec, "missing", 21)
	assert.Error(t, err)
	assert.Zero(t, chain.transferCount())
}

func waitForStatus(t *testing.T, db *bolt.DB, cfg *config.Config, adId, want string) *Sweep {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var sw Sweep
		db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(cfg.Bucket.Sweep)).Get([]byte(adId))
			if len(b) != 0 {
				return json.Unmarshal(b, &sw)
			}
			return nil
		})
		if sw.Status == want {
			return &sw
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sweep for ad %s never reached %s", adId, want)
	return nil
}

func TestSweepCollectsFee(t *testing.T) {
	cfg, db := testConfig(t)
	chain := newFakeChain()
	sec := newFakeSecrets()
	sec.Put("esc-secret", "escrow mnemonic")

	chain.setBalance("EQescrow", 21)

	sw := &Sweep{AdId: "ad1", Address: "EQescrow", SecretId: "esc-secret", Fee: 1}
	sweeper := NewSweeper(db, cfg, chain, sec, mt)
	require.NoError(t, sweeper.Start(sw))

	done := waitForStatus(t, db, cfg, "ad1", SweepSwept)
	assert.Equal(t, SweepSwept, done.Status)

	require.Equal(t, 1, chain.transferCount())
	assert.Equal(t, "escrow mnemonic", chain.transfers[0].mnemonic)
	assert.Equal(t, cfg.PlatformWallet, chain.transfers[0].to)
	assert.Equal(t, 1.0, chain.transfers[0].amount)
}

func TestSweepExpires(t *testing.T) {
	// Funds never clear: the loop must stop after the attempt budget,
	// not run forever.
	cfg, db := testConfig(t)
	chain := newFakeChain()
	sec := newFakeSecrets()

	sw := &Sweep{AdId: "ad2", Address: "EQempty", SecretId: "esc-secret", Fee: 1}
	sweeper := NewSweeper(db, cfg, chain, sec, mt)
	require.NoError(t, sweeper.Start(sw))

	done := waitForStatus(t, db, cfg, "ad2", SweepExpired)
	assert.Equal(t, 0, done.Attempts)
	assert.Zero(t, chain.transferCount())
}

func TestSweepResume(t *testing.T) {
	cfg, db := testConfig(t)
	chain := newFakeChain()
	sec := newFakeSecrets()
	sec.Put("esc-secret", "escrow mnemonic")
	chain.setBalance("EQescrow2", 30)

	// A sweep left pending by a dead process
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, _ := json.Marshal(&Sweep{
			AdId: "ad3", Address: "EQescrow2", SecretId: "esc-secret",
			Fee: 2, Attempts: 3, Status: SweepPending,
		})
		return tx.Bucket([]byte(cfg.Bucket.Sweep)).Put([]byte("ad3"), b)
	}))

	sweeper := NewSweeper(db, cfg, chain, sec, mt)
	require.NoError(t, sweeper.Resume())

	waitForStatus(t, db, cfg, "ad3", SweepSwept)
	assert.Equal(t, 1, chain.transferCount())
}
