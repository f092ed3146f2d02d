package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/budget"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

///////// Deals /////////

var (
	errDealNotFound   = errors.New("deal not found")
	errNotParticipant = errors.New("you are not a participant of this deal")
	errAdInactive     = errors.New("ad is no longer active")
	errOwnAd          = errors.New("cannot request a deal on your own ad")
	errDuplicateOffer = errors.New("you already have an active offer for this ad")
	errBadChannel     = errors.New("channel not found or not owned by you")
	errBadState       = errors.New("invalid status transition")
	errNotYourTurn    = errors.New("no counter-offer from the other side to reject")
	errWindowOpen     = errors.New("verification window still open")
	errNoPayout       = errors.New("channel owner has no wallet on file")
)

type dealRequest struct {
	AdId          string          `json:"adId"`
	ChannelId     string          `json:"channelId"`
	Amount        float64         `json:"amount"`
	Duration      int             `json:"duration"`
	ProofDuration int             `json:"proofDuration"`
	Modified      *common.Content `json:"modifiedContent"`
}

func requestDeal(s *Server) gin.HandlerFunc {
	// Channel owner proposing to host an ad
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  dealRequest
		)

		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}
		if req.Amount <= 0 {
			c.JSON(400, misc.StatusErr("Please provide a valid amount"))
			return
		}
		if req.AdId == "" || req.ChannelId == "" {
			c.JSON(400, misc.StatusErr("Please provide an ad and a channel"))
			return
		}

		var (
			offer     *common.Offer
			ad        *common.Ad
			remaining float64
			now       = time.Now()
		)
		err := s.db.Update(func(tx *bolt.Tx) error {
			if ad = getAdTx(tx, s, req.AdId); ad == nil {
				return budget.ErrAdNotFound
			}
			if !ad.IsActive(now) {
				return errAdInactive
			}
			if ad.UserId == user.Id {
				return errOwnAd
			}

			if ch := getChannelTx(tx, s, req.ChannelId); ch == nil || ch.OwnerId != user.Id {
				return errBadChannel
			}

			offers, err := budget.OffersForAd(tx, s.Cfg, ad.Id)
			if err != nil {
				return err
			}
			for _, o := range offers {
				if o.RequesterId == user.Id && o.IsLive() {
					return errDuplicateOffer
				}
			}

			// Pending offers hold no funds, so only committing ones
			// count against the budget here.
			if remaining = budget.Remaining(ad, offers, ""); req.Amount > remaining {
				return budget.ErrExceeded
			}

			id, err := misc.GetNextIndex(tx, s.Cfg.Bucket.Offer)
			if err != nil {
				return err
			}

			offer = &common.Offer{
				Id:              id,
				AdId:            ad.Id,
				AdOwnerId:       ad.UserId,
				RequesterId:     user.Id,
				ChannelId:       req.ChannelId,
				Amount:          req.Amount,
				Duration:        req.Duration,
				ProofDuration:   req.ProofDuration,
				ModifiedContent: req.Modified,
				Status:          common.StatusPending,
				NegotiationHistory: []*common.Negotiation{
					{Price: req.Amount, By: user.Id, At: now.Unix()},
				},
				LastNegotiatorId: user.Id,
				CreatedAt:        now.Unix(),
			}
			return saveOfferTx(tx, s, offer)
		})
		if err != nil {
			s.mt.OfferTransitionsTotal.WithLabelValues("request", "rejected").Inc()
			abortDealErr(c, err, remaining)
			return
		}

		s.mt.OfferTransitionsTotal.WithLabelValues("request", common.StatusPending).Inc()
		s.notify(ad.UserId, common.NotifyDealRequest,
			fmt.Sprintf("New deal request for %q at %.2f TON", ad.Title, req.Amount), offer.Id, ad.Id)

		c.JSON(200, gin.H{"success": true, "offerId": offer.Id})
	}
}

type negotiateRequest struct {
	DealId string  `json:"dealId"`
	Price  float64 `json:"price"`
}

func negotiateDeal(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  negotiateRequest
		)

		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}
		if req.Price <= 0 {
			c.JSON(400, misc.StatusErr("Please provide a valid price"))
			return
		}

		var (
			offer     *common.Offer
			remaining float64
		)
		err := s.db.Update(func(tx *bolt.Tx) error {
			if offer = getOfferTx(tx, s, req.DealId); offer == nil {
				return errDealNotFound
			}
			if offer.RoleOf(user.Id) == common.RoleNone {
				return errNotParticipant
			}
			switch offer.Status {
			case common.StatusPending, common.StatusNegotiating:
			default:
				return errBadState
			}

			// The offer's own current amount must not count against
			// the new proposed price.
			var err error
			if remaining, err = budget.RemainingTx(tx, s.Cfg, offer.AdId, offer.Id); err != nil {
				return err
			}
			if req.Price > remaining {
				return budget.ErrExceeded
			}

			offer.Amount = req.Price
			offer.Status = common.StatusNegotiating
			offer.NegotiationHistory = append(offer.NegotiationHistory, &common.Negotiation{
				Price: req.Price, By: user.Id, At: time.Now().Unix(),
			})
			offer.LastNegotiatorId = user.Id
			return saveOfferTx(tx, s, offer)
		})
		if err != nil {
			s.mt.OfferTransitionsTotal.WithLabelValues("negotiate", "rejected").Inc()
			abortDealErr(c, err, remaining)
			return
		}

		s.mt.OfferTransitionsTotal.WithLabelValues("negotiate", common.StatusNegotiating).Inc()
		s.notify(offer.CounterpartyId(user.Id), common.NotifyDealNegotiated,
			fmt.Sprintf("Counter-offer of %.2f TON on deal %s", req.Price, offer.Id), offer.Id, offer.AdId)

		c.JSON(200, gin.H{"success": true})
	}
}

type updateRequest struct {
	DealId string `json:"dealId"`
	Status string `json:"status"` // approved | accepted | rejected | reject_counter
}

func updateDeal(s *Server) gin.HandlerFunc {
	// Drives every transition that isn't a price change
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  updateRequest
		)

		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		switch req.Status {
		case "accepted":
			acceptDeal(s, c, user, req.DealId)
		case "approved":
			approveDeal(s, c, user, req.DealId)
		case "rejected":
			rejectDeal(s, c, user, req.DealId)
		case "reject_counter":
			rejectCounter(s, c, user, req.DealId)
		default:
			c.JSON(400, misc.StatusErr("Please provide a valid status"))
		}
	}
}

func acceptDeal(s *Server, c *gin.Context, user *common.User, dealId string) {
	var offer *common.Offer
	err := s.db.Update(func(tx *bolt.Tx) error {
		if offer = getOfferTx(tx, s, dealId); offer == nil {
			return errDealNotFound
		}
		// Accepting the current price is the channel owner's move;
		// the advertiser's equivalent is approve.
		if offer.RoleOf(user.Id) != common.RoleChannelOwner {
			return errNotParticipant
		}
		switch offer.Status {
		case common.StatusPending, common.StatusNegotiating:
		default:
			return errBadState
		}

		offer.Status = common.StatusAccepted
		return saveOfferTx(tx, s, offer)
	})
	if err != nil {
		s.mt.OfferTransitionsTotal.WithLabelValues("accept", "rejected").Inc()
		abortDealErr(c, err, 0)
		return
	}

	s.mt.OfferTransitionsTotal.WithLabelValues("accept", common.StatusAccepted).Inc()
	s.notify(offer.AdOwnerId, common.NotifyDealAccepted,
		fmt.Sprintf("Deal %s accepted at %.2f TON, awaiting your approval", offer.Id, offer.Amount), offer.Id, offer.AdId)

	c.JSON(200, gin.H{"success": true, "status": offer.Status})
}

func approveDeal(s *Server, c *gin.Context, user *common.User, dealId string) {
	var (
		offer *common.Offer
		ad    *common.Ad
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if offer = getOfferTx(tx, s, dealId); offer == nil {
			return errDealNotFound
		}
		if offer.RoleOf(user.Id) != common.RoleAdvertiser {
			return errNotParticipant
		}
		switch offer.Status {
		// failed_post stays approvable so a human can retry the publish
		case common.StatusPending, common.StatusAccepted, common.StatusFailedPost:
		default:
			return errBadState
		}
		if ad = getAdTx(tx, s, offer.AdId); ad == nil {
			return budget.ErrAdNotFound
		}

		// Claim the offer before the publish call leaves the single
		// writer; a concurrent approve sees approved and bails.
		offer.Status = common.StatusApproved
		return saveOfferTx(tx, s, offer)
	})
	if err != nil {
		s.mt.OfferTransitionsTotal.WithLabelValues("approve", "rejected").Inc()
		abortDealErr(c, err, 0)
		return
	}

	msgId, err := s.publishOffer(offer, ad)
	if err != nil {
		// The failure is captured as domain state so both parties can
		// see it and the approve can be retried.
		if dberr := s.db.Update(func(tx *bolt.Tx) error {
			if o := getOfferTx(tx, s, dealId); o != nil {
				o.Status = common.StatusFailedPost
				o.Error = err.Error()
				return saveOfferTx(tx, s, o)
			}
			return errDealNotFound
		}); dberr != nil {
			log.Println("Error recording failed post for deal", dealId, dberr)
		}

		s.mt.OfferTransitionsTotal.WithLabelValues("approve", common.StatusFailedPost).Inc()
		c.JSON(500, misc.StatusErr(err.Error()))
		return
	}

	now := time.Now()
	err = s.db.Update(func(tx *bolt.Tx) error {
		o := getOfferTx(tx, s, dealId)
		if o == nil {
			return errDealNotFound
		}

		o.Status = common.StatusPosted
		o.MessageId = msgId
		o.PostedAt = now.Unix()
		o.VerificationDueAt = now.Add(s.Cfg.VerifyWindow).Unix()
		o.Error = ""
		if err := saveOfferTx(tx, s, o); err != nil {
			return err
		}
		offer = o

		a := getAdTx(tx, s, o.AdId)
		if a == nil {
			return budget.ErrAdNotFound
		}
		if !misc.IsInList(a.ApprovedOffers, o.Id) {
			a.ApprovedOffers = append(a.ApprovedOffers, o.Id)
		}
		a.SpentBudget += o.Amount
		return saveAdTx(tx, s, a)
	})
	if err != nil {
		c.JSON(500, misc.StatusErr(err.Error()))
		return
	}

	s.mt.OfferTransitionsTotal.WithLabelValues("approve", common.StatusPosted).Inc()
	s.notify(offer.RequesterId, common.NotifyDealPosted,
		fmt.Sprintf("Deal %s approved, post published to your channel", offer.Id), offer.Id, offer.AdId)

	c.JSON(200, gin.H{"success": true, "status": offer.Status})
}

// publishOffer pushes the placement content into the channel. Photo
// posts fall back to plain text with the caption entities carried over.
func (s *Server) publishOffer(offer *common.Offer, ad *common.Ad) (int64, error) {
	ct := offer.PostContent(ad)
	if ct == nil {
		return 0, errors.New("deal has no content to post")
	}

	if ct.HasMedia() {
		msgId, err := s.tg.SendPhoto(offer.ChannelId, ct.Media, ct.Text, ct.Entities, ct.Link, ct.ButtonText)
		if err == nil {
			return msgId, nil
		}
		log.Println("Photo post failed for deal", offer.Id, "- falling back to text:", err)
	}

	return s.tg.SendMessage(offer.ChannelId, ct.Text, ct.Entities, ct.Link, ct.ButtonText)
}

func rejectDeal(s *Server, c *gin.Context, user *common.User, dealId string) {
	var offer *common.Offer
	err := s.db.Update(func(tx *bolt.Tx) error {
		if offer = getOfferTx(tx, s, dealId); offer == nil {
			return errDealNotFound
		}
		if offer.RoleOf(user.Id) == common.RoleNone {
			return errNotParticipant
		}
		switch offer.Status {
		case common.StatusPending, common.StatusNegotiating, common.StatusAccepted:
		default:
			return errBadState
		}

		offer.Status = common.StatusRejected
		return saveOfferTx(tx, s, offer)
	})
	if err != nil {
		s.mt.OfferTransitionsTotal.WithLabelValues("reject", "rejected").Inc()
		abortDealErr(c, err, 0)
		return
	}

	s.mt.OfferTransitionsTotal.WithLabelValues("reject", common.StatusRejected).Inc()
	s.notify(offer.CounterpartyId(user.Id), common.NotifyDealRejected,
		fmt.Sprintf("Deal %s was rejected", offer.Id), offer.Id, offer.AdId)

	c.JSON(200, gin.H{"success": true, "status": offer.Status})
}

// rejectCounter is the smart-rejection revert: turning down the other
// side's counter stands the deal back at the rejector's own last price
// instead of killing it.
func rejectCounter(s *Server, c *gin.Context, user *common.User, dealId string) {
	var offer *common.Offer
	err := s.db.Update(func(tx *bolt.Tx) error {
		if offer = getOfferTx(tx, s, dealId); offer == nil {
			return errDealNotFound
		}
		role := offer.RoleOf(user.Id)
		if role == common.RoleNone {
			return errNotParticipant
		}
		if offer.Status != common.StatusNegotiating {
			return errBadState
		}
		if offer.LastNegotiatorId == user.Id {
			return errNotYourTurn
		}

		price, ok := offer.LastPriceBy(user.Id)
		if !ok {
			// Never countered: nothing to stand by, plain rejection
			offer.Status = common.StatusRejected
			return saveOfferTx(tx, s, offer)
		}

		offer.Amount = price
		if role == common.RoleAdvertiser {
			// The advertiser stands by their price; the channel
			// owner gets the final say.
			offer.Status = common.StatusAccepted
		} else {
			offer.Status = common.StatusNegotiating
		}
		offer.LastNegotiatorId = user.Id
		return saveOfferTx(tx, s, offer)
	})
	if err != nil {
		s.mt.OfferTransitionsTotal.WithLabelValues("reject_counter", "rejected").Inc()
		abortDealErr(c, err, 0)
		return
	}

	s.mt.OfferTransitionsTotal.WithLabelValues("reject_counter", offer.Status).Inc()
	if offer.Status == common.StatusRejected {
		s.notify(offer.CounterpartyId(user.Id), common.NotifyDealRejected,
			fmt.Sprintf("Deal %s was rejected", offer.Id), offer.Id, offer.AdId)
	} else {
		s.notify(offer.CounterpartyId(user.Id), common.NotifyDealReverted,
			fmt.Sprintf("Counter-offer declined, deal %s back at %.2f TON", offer.Id, offer.Amount), offer.Id, offer.AdId)
	}

	c.JSON(200, gin.H{"success": true, "status": offer.Status})
}

func verifyDeal(s *Server) gin.HandlerFunc {
	// Time-gated completion, meant for the trusted scheduler
	return func(c *gin.Context) {
		if !s.auth.CheckAdminKey(c) {
			return
		}

		offer, err := s.completeOffer(c.Param("dealId"), time.Now())
		if err != nil {
			abortDealErr(c, err, 0)
			return
		}

		c.JSON(200, gin.H{"success": true, "status": offer.Status})
	}
}

// completeOffer releases the payout for a posted placement whose
// verification window has elapsed. Shared by the verify endpoint and
// the engine's auto-verify pass.
//
// The payout is claimed by flipping FundsReleased inside the single
// writer before the chain transfer runs, so a concurrent verify (admin
// endpoint racing the engine tick) cannot release it twice. A failed
// transfer gives the claim back with the error on record.
func (s *Server) completeOffer(dealId string, now time.Time) (*common.Offer, error) {
	var (
		offer  *common.Offer
		ad     *common.Ad
		wallet *common.Wallet
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if offer = getOfferTx(tx, s, dealId); offer == nil {
			return errDealNotFound
		}
		if offer.Status != common.StatusPosted || offer.FundsReleased {
			return errBadState
		}
		if now.Unix() < offer.VerificationDueAt {
			return errWindowOpen
		}
		if ad = getAdTx(tx, s, offer.AdId); ad == nil {
			return budget.ErrAdNotFound
		}
		if wallet = getWalletTx(tx, s, offer.RequesterId); wallet == nil {
			return errNoPayout
		}

		offer.FundsReleased = true
		return saveOfferTx(tx, s, offer)
	})
	if err != nil {
		return nil, err
	}

	mnemonic, err := s.secrets.Get(ad.EscrowSecretId)
	if err == nil {
		_, err = s.chain.Transfer(mnemonic, wallet.Address, offer.Amount)
	}
	if err != nil {
		// Hand the claim back so verification can be retried once the
		// underlying problem is fixed.
		s.db.Update(func(tx *bolt.Tx) error {
			if o := getOfferTx(tx, s, dealId); o != nil {
				o.FundsReleased = false
				o.Error = err.Error()
				return saveOfferTx(tx, s, o)
			}
			return nil
		})
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		o := getOfferTx(tx, s, dealId)
		if o == nil {
			return errDealNotFound
		}
		o.Status = common.StatusCompleted
		o.FundsReleased = true
		o.Error = ""
		offer = o
		return saveOfferTx(tx, s, o)
	})
	if err != nil {
		return nil, err
	}

	s.mt.OfferTransitionsTotal.WithLabelValues("verify", common.StatusCompleted).Inc()
	s.notify(offer.RequesterId, common.NotifyDealCompleted,
		fmt.Sprintf("Deal %s completed, %.2f TON released to your wallet", offer.Id, offer.Amount), offer.Id, offer.AdId)

	return offer, nil
}

func getSentDeals(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)
		c.JSON(200, s.offersWhere(func(o *common.Offer) bool { return o.RequesterId == user.Id }))
	}
}

func getReceivedDeals(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)
		c.JSON(200, s.offersWhere(func(o *common.Offer) bool { return o.AdOwnerId == user.Id }))
	}
}

func getSingleDeal(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)

		offer := s.getOffer(c.Param("id"))
		if offer == nil {
			c.JSON(404, misc.StatusErr(errDealNotFound.Error()))
			return
		}
		if offer.RoleOf(user.Id) == common.RoleNone {
			c.JSON(403, misc.StatusErr(errNotParticipant.Error()))
			return
		}

		c.JSON(200, offer)
	}
}

func (s *Server) offersWhere(keep func(*common.Offer) bool) []*common.Offer {
	offers := []*common.Offer{}
	s.db.View(func(tx *bolt.Tx) error {
		return misc.GetBucket(tx, s.Cfg.Bucket.Offer).ForEach(func(k, v []byte) error {
			var o common.Offer
			if err := json.Unmarshal(v, &o); err != nil {
				log.Println("error when unmarshalling offer", string(k))
				return nil
			}
			if keep(&o) {
				offers = append(offers, &o)
			}
			return nil
		})
	})
	sort.Slice(offers, func(i, j int) bool { return offers[i].CreatedAt > offers[j].CreatedAt })
	return offers
}

// abortDealErr maps the state machine's sentinels onto REST codes.
func abortDealErr(c *gin.Context, err error, remaining float64) {
	switch err {
	case errDealNotFound, budget.ErrAdNotFound:
		c.JSON(404, misc.StatusErr(err.Error()))
	case errNotParticipant:
		c.JSON(403, misc.StatusErr(err.Error()))
	case budget.ErrExceeded:
		c.JSON(400, misc.StatusErr(fmt.Sprintf("amount exceeds remaining budget (%.2f available)", remaining)))
	case errAdInactive, errOwnAd, errDuplicateOffer, errBadChannel, errBadState, errNotYourTurn, errWindowOpen:
		c.JSON(400, misc.StatusErr(err.Error()))
	default:
		c.JSON(500, misc.StatusErr(err.Error()))
	}
}
