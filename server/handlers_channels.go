package server

import (
	"encoding/json"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

///////// Channels /////////

type channelRequest struct {
	Ref string `json:"ref"` // @username or numeric chat id
}

func postChannel(s *Server) gin.HandlerFunc {
	// Registers a channel the bot can already see
	return func(c *gin.Context) {
		var (
			user = auth.GetCtxUser(c)
			req  channelRequest
		)

		if err := misc.BindJSON(c, &req); err != nil || req.Ref == "" {
			c.JSON(400, misc.StatusErr("Please provide a channel reference"))
			return
		}

		chat, err := s.tg.GetChat(req.Ref)
		if err != nil {
			c.JSON(400, misc.StatusErr(err.Error()))
			return
		}
		if chat.Type != "channel" {
			c.JSON(400, misc.StatusErr("Provided chat is not a channel"))
			return
		}

		ch := &common.Channel{
			Id:          strconv.FormatInt(chat.Id, 10),
			OwnerId:     user.Id,
			Title:       chat.Title,
			Username:    chat.Username,
			MemberCount: chat.MemberCount,
			CreatedAt:   time.Now().Unix(),
		}

		if err := s.db.Update(func(tx *bolt.Tx) error {
			if existing := getChannelTx(tx, s, ch.Id); existing != nil && existing.OwnerId != user.Id {
				return errBadChannel
			}
			return misc.PutTxJson(tx, s.Cfg.Bucket.Channel, ch.Id, ch)
		}); err != nil {
			if err == errBadChannel {
				c.JSON(400, misc.StatusErr("Channel is already registered to another user"))
				return
			}
			c.JSON(500, misc.StatusErr(err.Error()))
			return
		}

		c.JSON(200, ch)
	}
}

func getChannels(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.GetCtxUser(c)

		channels := []*common.Channel{}
		s.db.View(func(tx *bolt.Tx) error {
			return misc.GetBucket(tx, s.Cfg.Bucket.Channel).ForEach(func(k, v []byte) error {
				var ch common.Channel
				if err := json.Unmarshal(v, &ch); err != nil {
					log.Println("error when unmarshalling channel", string(k))
					return nil
				}
				if ch.OwnerId == user.Id {
					channels = append(channels, &ch)
				}
				return nil
			})
		})

		sort.Slice(channels, func(i, j int) bool { return channels[i].CreatedAt > channels[j].CreatedAt })
		c.JSON(200, channels)
	}
}
