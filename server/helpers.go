package server

import (
	"strconv"
	"time"

	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

func getAdTx(tx *bolt.Tx, s *Server, id string) *common.Ad {
	var ad common.Ad
	if misc.GetTxJson(tx, s.Cfg.Bucket.Ad, id, &ad) == nil && ad.Id != "" {
		return &ad
	}
	return nil
}

func saveAdTx(tx *bolt.Tx, s *Server, ad *common.Ad) error {
	return misc.PutTxJson(tx, s.Cfg.Bucket.Ad, ad.Id, ad)
}

func getOfferTx(tx *bolt.Tx, s *Server, id string) *common.Offer {
	var o common.Offer
	if misc.GetTxJson(tx, s.Cfg.Bucket.Offer, id, &o) == nil && o.Id != "" {
		return &o
	}
	return nil
}

func saveOfferTx(tx *bolt.Tx, s *Server, o *common.Offer) error {
	return misc.PutTxJson(tx, s.Cfg.Bucket.Offer, o.Id, o)
}

func getWalletTx(tx *bolt.Tx, s *Server, userId string) *common.Wallet {
	var w common.Wallet
	if misc.GetTxJson(tx, s.Cfg.Bucket.Wallet, userId, &w) == nil && w.Address != "" {
		return &w
	}
	return nil
}

func getChannelTx(tx *bolt.Tx, s *Server, id string) *common.Channel {
	var ch common.Channel
	if misc.GetTxJson(tx, s.Cfg.Bucket.Channel, id, &ch) == nil && ch.Id != "" {
		return &ch
	}
	return nil
}

// getOffer is the read-only single-doc load used by the non-mutating paths.
func (s *Server) getOffer(id string) *common.Offer {
	var o *common.Offer
	s.db.View(func(tx *bolt.Tx) error {
		o = getOfferTx(tx, s, id)
		return nil
	})
	return o
}

func (s *Server) getAd(id string) *common.Ad {
	var ad *common.Ad
	s.db.View(func(tx *bolt.Tx) error {
		ad = getAdTx(tx, s, id)
		return nil
	})
	return ad
}

// measure is the request counter/latency middleware.
func (s *Server) measure() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.mt.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		s.mt.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
