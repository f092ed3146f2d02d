package server

import (
	"bytes"
	"encoding/json"
	"log"
	"sort"

	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

///////// Inbox /////////

func getInbox(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)
		prefix := []byte(user.Id + "/")

		notifications := []*common.Notification{}
		s.db.View(func(tx *bolt.Tx) error {
			cur := misc.GetBucket(tx, s.Cfg.Bucket.Notification).Cursor()
			for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
				var n common.Notification
				if err := json.Unmarshal(v, &n); err != nil {
					log.Println("error when unmarshalling notification", string(k))
					continue
				}
				notifications = append(notifications, &n)
			}
			return nil
		})

		sort.Slice(notifications, func(i, j int) bool {
			return notifications[i].CreatedAt > notifications[j].CreatedAt
		})
		c.JSON(200, notifications)
	}
}

type readRequest struct {
	Ids []string `json:"ids"`
}

func markInboxRead(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  readRequest
		)

		if err := misc.BindJSON(c, &req); err != nil || len(req.Ids) == 0 {
			c.JSON(400, misc.StatusErr("Please provide notification ids"))
			return
		}

		if err := s.db.Update(func(tx *bolt.Tx) error {
			for _, id := range req.Ids {
				key := user.Id + "/" + id
				var n common.Notification
				if misc.GetTxJson(tx, s.Cfg.Bucket.Notification, key, &n) != nil || n.Id == "" {
					continue
				}
				n.Read = true
				if err := misc.PutTxJson(tx, s.Cfg.Bucket.Notification, key, &n); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		c.JSON(200, misc.StatusOK(user.Id))
	}
}
