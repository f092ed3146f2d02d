package server

import (
	"sort"
	"time"

	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/misc"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
)

///////// Feed /////////

// feedAd is the public projection of an ad; escrow internals stay out.
type feedAd struct {
	Id          string          `json:"id"`
	UserId      string          `json:"userId"`
	Budget      float64         `json:"budget"`
	Duration    int             `json:"duration"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Content     *common.Content `json:"content,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   int64           `json:"createdAt"`
}

func getFeed(s *Server) gin.HandlerFunc {
	// Active ads channel owners can pick up, newest first
	return func(c *gin.Context) {
		now := time.Now()

		feed := []*feedAd{}
		s.db.View(func(tx *bolt.Tx) error {
			return forEachAd(tx, s, func(ad *common.Ad) {
				if !ad.IsActive(now) {
					return
				}
				feed = append(feed, &feedAd{
					Id:          ad.Id,
					UserId:      ad.UserId,
					Budget:      ad.Budget,
					Duration:    ad.Duration,
					Title:       ad.Title,
					Description: ad.Description,
					Content:     ad.Content,
					Status:      ad.Status(now),
					CreatedAt:   ad.CreatedAt,
				})
			})
		})

		sort.Slice(feed, func(i, j int) bool { return feed[i].CreatedAt > feed[j].CreatedAt })
		c.JSON(200, feed)
	}
}

// resolveMedia turns a post's opaque media reference into a url the
// mini-app can render.
func resolveMedia(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		link, err := s.tg.GetFileLink(c.Param("fileId"))
		if err != nil {
			c.JSON(400, misc.StatusErr(err.Error()))
			return
		}
		c.JSON(200, gin.H{"url": link})
	}
}
