package server

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/budget"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

///////// Insights /////////

// adInsight is the per-campaign rollup for the advertiser side.
type adInsight struct {
	AdId  string `json:"adId"`
	Title string `json:"title"`

	Budget         float64 `json:"budget"`
	SpentBudget    float64 `json:"spentBudget"`
	UnlockedAmount float64 `json:"unlockedAmount"`
	Remaining      float64 `json:"remaining"`

	// Offer counts keyed by status
	Offers map[string]int `json:"offers"`
}

type insights struct {
	Ads []*adInsight `json:"ads"`

	// Channel-owner side of the same user
	DealsCompleted int     `json:"dealsCompleted"`
	Earned         float64 `json:"earned"`
	PendingPayout  float64 `json:"pendingPayout"`
}

func getInsights(s *Server) gin.HandlerFunc {
	// Spend and placement rollups derived live from the stored docs
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)

		var (
			ads    []*common.Ad
			offers []*common.Offer
		)
		s.db.View(func(tx *bolt.Tx) error {
			if err := forEachAd(tx, s, func(ad *common.Ad) {
				if ad.UserId == user.Id {
					ads = append(ads, ad)
				}
			}); err != nil {
				return err
			}
			return misc.GetBucket(tx, s.Cfg.Bucket.Offer).ForEach(func(k, v []byte) error {
				var o common.Offer
				if err := json.Unmarshal(v, &o); err != nil {
					log.Println("error when unmarshalling offer", string(k))
					return nil
				}
				offers = append(offers, &o)
				return nil
			})
		})

		out := &insights{Ads: make([]*adInsight, 0, len(ads))}
		for _, ad := range ads {
			in := &adInsight{
				AdId:           ad.Id,
				Title:          ad.Title,
				Budget:         ad.Budget,
				SpentBudget:    ad.SpentBudget,
				UnlockedAmount: ad.UnlockedAmount,
				Remaining:      budget.Remaining(ad, offers, ""),
				Offers:         map[string]int{},
			}
			for _, o := range offers {
				if o.AdId == ad.Id {
					in.Offers[o.Status]++
				}
			}
			out.Ads = append(out.Ads, in)
		}

		for _, o := range offers {
			if o.RequesterId != user.Id {
				continue
			}
			switch o.Status {
			case common.StatusCompleted:
				out.DealsCompleted++
				out.Earned += o.Amount
			case common.StatusPosted:
				out.PendingPayout += o.Amount
			}
		}

		sort.Slice(out.Ads, func(i, j int) bool { return out.Ads[i].AdId < out.Ads[j].AdId })
		c.JSON(200, out)
	}
}
