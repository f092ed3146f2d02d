package escrow

import (
	"encoding/json"
	"log"
	"time"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/metrics"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
)

// Sweep statuses
const (
	SweepPending = "pending"
	SweepSwept   = "swept"
	SweepExpired = "expired"
)

// Sweep is the persisted state of one fee-collection loop. Keeping it
// in the store lets a restarted process pick the loop back up instead
// of silently dropping the platform's fee.
type Sweep struct {
	AdId     string  `json:"adId"`
	Address  string  `json:"address"`  // escrow wallet being watched
	SecretId string  `json:"secretId"` // escrow mnemonic reference
	Fee      float64 `json:"fee"`

	Attempts int    `json:"attempts"` // remaining balance checks
	Status   string `json:"status"`

	CreatedAt int64 `json:"createdAt"`
}

// Sweeper watches funded escrow wallets and skims the platform fee as
// soon as the funding transfer confirms on chain.
type Sweeper struct {
	db    *bolt.DB
	cfg   *config.Config
	chain Chain
	sec   Secrets
	mt    *metrics.Metrics
}

func NewSweeper(db *bolt.DB, cfg *config.Config, chain Chain, sec Secrets, mt *metrics.Metrics) *Sweeper {
	return &Sweeper{db: db, cfg: cfg, chain: chain, sec: sec, mt: mt}
}

// Start persists the sweep and kicks off its poll loop.
func (s *Sweeper) Start(sw *Sweep) error {
	sw.Status = SweepPending
	if sw.Attempts == 0 {
		sw.Attempts = s.cfg.SweepAttempts
	}
	sw.CreatedAt = time.Now().Unix()

	if err := s.save(sw); err != nil {
		return err
	}

	go s.run(sw)
	return nil
}

// Resume restarts every pending sweep found in the store. Called once
// on server startup.
func (s *Sweeper) Resume() error {
	var pending []*Sweep
	if err := s.db.View(func(tx *bolt.Tx) error {
		return misc.GetBucket(tx, s.cfg.Bucket.Sweep).ForEach(func(k, v []byte) error {
			var sw Sweep
			if err := json.Unmarshal(v, &sw); err != nil {
				log.Println("error when unmarshalling sweep", string(k))
				return nil
			}
			if sw.Status == SweepPending {
				pending = append(pending, &sw)
			}
			return nil
		})
	}); err != nil {
		return err
	}

	for _, sw := range pending {
		log.Println("Resuming fee sweep for ad", sw.AdId)
		go s.run(sw)
	}
	return nil
}

func (s *Sweeper) run(sw *Sweep) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		if sw.Attempts <= 0 {
			break
		}

		sw.Attempts--

		balance, err := s.chain.Balance(sw.Address)
		if err != nil {
			log.Println("Fee sweep balance check failed for ad", sw.AdId, err)
			s.save(sw)
			continue
		}

		if balance >= sw.Fee {
			if err := s.collect(sw); err != nil {
				log.Println("Fee transfer failed for ad", sw.AdId, err)
				s.save(sw)
				continue
			}

			sw.Status = SweepSwept
			s.save(sw)
			s.mt.FeeSweepsTotal.WithLabelValues(SweepSwept).Inc()
			s.mt.FeeSweptAmount.Add(sw.Fee)
			return
		}

		s.save(sw)
	}

	// Attempt budget exhausted without the funds ever clearing
	sw.Status = SweepExpired
	s.save(sw)
	s.mt.FeeSweepsTotal.WithLabelValues(SweepExpired).Inc()
	log.Println("Fee sweep expired without collection for ad", sw.AdId)
}

func (s *Sweeper) collect(sw *Sweep) error {
	mnemonic, err := s.sec.Get(sw.SecretId)
	if err != nil {
		return err
	}
	_, err = s.chain.Transfer(mnemonic, s.cfg.PlatformWallet, sw.Fee)
	return err
}

func (s *Sweeper) save(sw *Sweep) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return misc.PutTxJson(tx, s.cfg.Bucket.Sweep, sw.AdId, sw)
	})
}
