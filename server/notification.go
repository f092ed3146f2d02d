package server

import (
	"log"
	"time"

	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/jaevor/go-nanoid"
)

// notify writes the in-app notification for a state transition and
// best-effort mirrors it to the user's bot chat. The stored doc is the
// source of truth; a lost chat message only costs a log line.
func (s *Server) notify(userId, typ, message, offerId, adId string) {
	gen, err := nanoid.Standard(12)
	if err != nil {
		log.Println("Error creating notification id", err)
		return
	}

	n := &common.Notification{
		Id:        gen(),
		UserId:    userId,
		Type:      typ,
		Message:   message,
		OfferId:   offerId,
		AdId:      adId,
		CreatedAt: time.Now().Unix(),
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		// Keyed under the user's namespace for cheap prefix scans
		return misc.PutTxJson(tx, s.Cfg.Bucket.Notification, userId+"/"+n.Id, n)
	}); err != nil {
		log.Println("Error saving notification for", userId, err)
		return
	}

	var chatId string
	s.db.View(func(tx *bolt.Tx) error {
		if u := s.auth.GetUserTx(tx, userId); u != nil {
			chatId = u.ChatId
		}
		return nil
	})
	if chatId == "" {
		return
	}

	if _, err := s.tg.SendMessage(chatId, message, nil, "", ""); err != nil {
		log.Println("Error sending chat notification to", userId, err)
	}
}
