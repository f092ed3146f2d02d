package budget

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
)

var (
	ErrAdNotFound = errors.New("ad not found")
	ErrExceeded   = errors.New("amount exceeds remaining budget")
)

// Remaining answers how much of the ad's budget is still open to new
// commitments: budget minus the sum of all committing offers minus
// whatever the advertiser already unlocked back out.
//
// excludeId removes one offer from its own sum so a counter-price on an
// already-committing offer isn't double counted against itself. A
// negative result means the ad is already over-committed and the caller
// must refuse any new commitment.
func Remaining(ad *common.Ad, offers []*common.Offer, excludeId string) float64 {
	committed := ad.UnlockedAmount
	for _, o := range offers {
		if o.AdId != ad.Id || o.Id == excludeId {
			continue
		}
		if o.IsCommitting() {
			committed += o.Amount
		}
	}
	return ad.Budget - committed
}

// RemainingTx is Remaining against the store, inside the caller's
// transaction. Every mutating call recomputes from the offer set
// rather than trusting a running counter; bolt's single writer makes
// the read-check-write sequence around it serializable.
func RemainingTx(tx *bolt.Tx, cfg *config.Config, adId, excludeId string) (float64, error) {
	var ad common.Ad
	if misc.GetTxJson(tx, cfg.Bucket.Ad, adId, &ad) != nil || ad.Id == "" {
		return 0, ErrAdNotFound
	}

	offers, err := OffersForAd(tx, cfg, adId)
	if err != nil {
		return 0, err
	}

	return Remaining(&ad, offers, excludeId), nil
}

// OffersForAd scans the offer bucket for every offer against the ad.
func OffersForAd(tx *bolt.Tx, cfg *config.Config, adId string) ([]*common.Offer, error) {
	var offers []*common.Offer
	err := misc.GetBucket(tx, cfg.Bucket.Offer).ForEach(func(k, v []byte) error {
		var o common.Offer
		if err := json.Unmarshal(v, &o); err != nil {
			log.Println("error when unmarshalling offer", string(k))
			return nil
		}
		if o.AdId == adId {
			offers = append(offers, &o)
		}
		return nil
	})
	return offers, err
}
