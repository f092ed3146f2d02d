package server

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/budget"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/internal/escrow"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

///////// Ads /////////

type adRequest struct {
	Budget   float64 `json:"budget"`
	Duration int     `json:"duration"`

	Title       string          `json:"title"`
	Description string          `json:"description"`
	Content     *common.Content `json:"content"`
}

type adCreated struct {
	Success         bool    `json:"success"`
	AdId            string  `json:"adId"`
	ContractAddress string  `json:"contractAddress"`
	TotalCost       float64 `json:"totalCost"`
}

func createAdContract(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  adRequest
		)

		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		// Malformed or non-positive numbers are hard errors, never
		// silently zeroed.
		if req.Budget <= 0 {
			c.JSON(400, misc.StatusErr("Please provide a valid budget"))
			return
		}
		if req.Duration <= 0 {
			c.JSON(400, misc.StatusErr("Please provide a valid duration"))
			return
		}
		if req.Title == "" {
			c.JSON(400, misc.StatusErr("Please provide a title"))
			return
		}

		var wallet *common.Wallet
		s.db.View(func(tx *bolt.Tx) error {
			wallet = getWalletTx(tx, s, user.Id)
			return nil
		})
		if wallet == nil {
			c.JSON(400, misc.StatusErr("Please create a wallet before funding an ad"))
			return
		}

		totalCost, totalFee := escrow.Cost(req.Budget, req.Duration, s.Cfg.FeeRate)

		esc, err := escrow.Fund(s.chain, s.secrets, wallet.SecretId, totalCost)
		if err != nil {
			// Funding failed: no ad record is created. The escrow
			// wallet, if it got that far, stays orphaned in the vault.
			s.mt.AdsFundedTotal.WithLabelValues("failed").Inc()
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		ad := &common.Ad{
			UserId:          user.Id,
			Budget:          req.Budget,
			Duration:        req.Duration,
			PlatformFee:     totalFee,
			ContractAddress: esc.Address,
			EscrowSecretId:  esc.SecretId,
			Title:           req.Title,
			Description:     req.Description,
			Content:         req.Content,
			CreatedAt:       time.Now().Unix(),
		}

		if err := s.db.Update(func(tx *bolt.Tx) (err error) {
			if ad.Id, err = misc.GetNextIndex(tx, s.Cfg.Bucket.Ad); err != nil {
				return err
			}
			return saveAdTx(tx, s, ad)
		}); err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		// Fire-and-forget fee collection; state is persisted so a
		// restart resumes it.
		if err := s.sweeper.Start(&escrow.Sweep{
			AdId:     ad.Id,
			Address:  esc.Address,
			SecretId: esc.SecretId,
			Fee:      totalFee,
		}); err != nil {
			log.Println("Error starting fee sweep for ad", ad.Id, err)
		}

		s.mt.AdsFundedTotal.WithLabelValues("funded").Inc()

		c.JSON(200, &adCreated{
			Success:         true,
			AdId:            ad.Id,
			ContractAddress: esc.Address,
			TotalCost:       totalCost,
		})
	}
}

func getMyAds(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)

		var ads []*common.Ad
		s.db.View(func(tx *bolt.Tx) error {
			return forEachAd(tx, s, func(ad *common.Ad) {
				if ad.UserId == user.Id {
					ads = append(ads, ad)
				}
			})
		})

		sort.Slice(ads, func(i, j int) bool { return ads[i].CreatedAt > ads[j].CreatedAt })
		c.JSON(200, ads)
	}
}

type unlockRequest struct {
	AdId   string  `json:"adId"`
	Amount float64 `json:"amount"`
}

// unlockFunds lets the advertiser pull uncommitted budget back out of
// escrow. The unlocked amount counts against spendable from then on.
func unlockFunds(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  unlockRequest
		)

		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}
		if req.Amount <= 0 {
			c.JSON(400, misc.StatusErr("Please provide a valid amount"))
			return
		}

		var (
			ad        *common.Ad
			remaining float64
		)
		err := s.db.Update(func(tx *bolt.Tx) error {
			if ad = getAdTx(tx, s, req.AdId); ad == nil {
				return budget.ErrAdNotFound
			}
			if ad.UserId != user.Id {
				return errNotParticipant
			}

			offers, err := budget.OffersForAd(tx, s.Cfg, ad.Id)
			if err != nil {
				return err
			}
			if remaining = budget.Remaining(ad, offers, ""); req.Amount > remaining {
				return budget.ErrExceeded
			}

			ad.UnlockedAmount += req.Amount
			return saveAdTx(tx, s, ad)
		})
		switch err {
		case nil:
		case budget.ErrAdNotFound:
			c.JSON(404, misc.StatusErr(err.Error()))
			return
		case errNotParticipant:
			c.JSON(403, misc.StatusErr("Only the ad owner may unlock funds"))
			return
		case budget.ErrExceeded:
			c.JSON(400, misc.StatusErr(fmt.Sprintf("amount exceeds remaining budget (%.2f available)", remaining)))
			return
		default:
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		var wallet *common.Wallet
		s.db.View(func(tx *bolt.Tx) error {
			wallet = getWalletTx(tx, s, user.Id)
			return nil
		})
		if wallet == nil {
			s.revertUnlock(ad.Id, req.Amount)
			c.JSON(400, misc.StatusErr("No wallet on file to receive the funds"))
			return
		}

		mnemonic, err := s.secrets.Get(ad.EscrowSecretId)
		if err == nil {
			_, err = s.chain.Transfer(mnemonic, wallet.Address, req.Amount)
		}
		if err != nil {
			s.revertUnlock(ad.Id, req.Amount)
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		c.JSON(200, misc.StatusOK(ad.Id))
	}
}

// revertUnlock rolls the reservation back when the chain transfer
// never happened.
func (s *Server) revertUnlock(adId string, amount float64) {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		ad := getAdTx(tx, s, adId)
		if ad == nil {
			return budget.ErrAdNotFound
		}
		ad.UnlockedAmount -= amount
		return saveAdTx(tx, s, ad)
	}); err != nil {
		log.Println("Error reverting unlock for ad", adId, err)
	}
}

func forEachAd(tx *bolt.Tx, s *Server, fn func(*common.Ad)) error {
	return misc.GetBucket(tx, s.Cfg.Bucket.Ad).ForEach(func(k, v []byte) error {
		var ad common.Ad
		if err := json.Unmarshal(v, &ad); err != nil {
			log.Println("error when unmarshalling ad", string(k))
			return nil
		}
		fn(&ad)
		return nil
	})
}
