package server

import (
	"time"

	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

///////// Wallets /////////

func createWallet(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)

		var existing *common.Wallet
		s.db.View(func(tx *bolt.Tx) error {
			existing = getWalletTx(tx, s, user.Id)
			return nil
		})
		if existing != nil {
			c.JSON(400, misc.StatusErr("wallet already exists"))
			return
		}

		w, err := s.chain.CreateWallet()
		if err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		// Mnemonic goes to the vault, only its reference is stored
		secretId := uuid.NewString()
		if err := s.secrets.Put(secretId, w.Mnemonic); err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		wallet := &common.Wallet{
			UserId:    user.Id,
			Address:   w.Address,
			PublicKey: w.PublicKey,
			SecretId:  secretId,
			CreatedAt: time.Now().Unix(),
		}
		if err := s.db.Update(func(tx *bolt.Tx) error {
			return misc.PutTxJson(tx, s.Cfg.Bucket.Wallet, user.Id, wallet)
		}); err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		c.JSON(200, gin.H{"success": true, "address": wallet.Address})
	}
}

func getWallet(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)

		var wallet *common.Wallet
		s.db.View(func(tx *bolt.Tx) error {
			wallet = getWalletTx(tx, s, user.Id)
			return nil
		})
		if wallet == nil {
			c.JSON(404, misc.StatusErr("wallet not found"))
			return
		}

		balance, err := s.chain.Balance(wallet.Address)
		if err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		c.JSON(200, gin.H{"address": wallet.Address, "balance": balance})
	}
}
