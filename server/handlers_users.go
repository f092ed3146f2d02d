package server

import (
	"encoding/json"
	"strings"

	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/adgram/adgram/internal/common"
)

///////// Users /////////

func resolveUsername(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := misc.TrimUsername(c.Param("username"))
		if username == "" {
			c.JSON(400, misc.StatusErr("Please provide a username"))
			return
		}

		var found *common.User
		s.db.View(func(tx *bolt.Tx) error {
			return misc.GetBucket(tx, s.Cfg.Bucket.User).ForEach(func(k, v []byte) error {
				var u common.User
				if json.Unmarshal(v, &u) != nil {
					return nil
				}
				if strings.EqualFold(u.Username, username) {
					found = &u
				}
				return nil
			})
		})

		if found == nil {
			c.JSON(404, misc.StatusErr("user not found"))
			return
		}

		c.JSON(200, gin.H{"id": found.Id, "username": found.Username, "name": found.Name})
	}
}
