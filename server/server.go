package server

import (
	"github.com/adgram/adgram/config"
	"github.com/adgram/adgram/internal/auth"
	"github.com/adgram/adgram/internal/common"
	"github.com/adgram/adgram/internal/escrow"
	"github.com/adgram/adgram/internal/metrics"
	"github.com/adgram/adgram/misc"
	"github.com/adgram/adgram/platforms/secrets"
	"github.com/adgram/adgram/platforms/telegram"
	"github.com/adgram/adgram/platforms/ton"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Messenger is the slice of the Bot API the server publishes and
// notifies through. Tests inject a fake.
type Messenger interface {
	SendMessage(chatId, text string, entities []*common.Entity, link, buttonText string) (int64, error)
	SendPhoto(chatId, photo, caption string, entities []*common.Entity, link, buttonText string) (int64, error)
	GetChat(ref string) (*telegram.Chat, error)
	GetFileLink(fileId string) (string, error)
}

type Server struct {
	Cfg *config.Config

	r    *gin.Engine
	db   *bolt.DB
	auth *auth.Auth
	mt   *metrics.Metrics

	tg      Messenger
	chain   escrow.Chain
	secrets escrow.Secrets
	sweeper *escrow.Sweeper
}

func New(cfg *config.Config, r *gin.Engine) (*Server, error) {
	srv := &Server{
		Cfg:     cfg,
		r:       r,
		db:      misc.OpenDB(cfg.DBPath, cfg.DBName),
		mt:      metrics.New(),
		tg:      telegram.New(cfg),
		chain:   ton.New(cfg),
		secrets: secrets.New(cfg),
	}
	srv.auth = auth.New(srv.db, cfg)
	srv.sweeper = escrow.NewSweeper(srv.db, cfg, srv.chain, srv.secrets, srv.mt)

	if err := srv.initBuckets(); err != nil {
		return nil, err
	}

	srv.initializeRoutes(r)

	if err := newEngine(srv); err != nil {
		return nil, err
	}

	return srv, nil
}

func (s *Server) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range append(s.Cfg.AllBuckets(), "index") {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		if err := misc.InitIndex(tx, s.Cfg.Bucket.Ad, 1); err != nil {
			return err
		}
		return misc.InitIndex(tx, s.Cfg.Bucket.Offer, 1)
	})
}

func (s *Server) initializeRoutes(r *gin.Engine) {
	r.Use(s.measure())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Trusted scheduler only, gated by the admin api key
	r.GET("/api/v1/deals/verify/:dealId", verifyDeal(s))

	v := r.Group("/api/v1", s.auth.VerifyUser())

	ads := v.Group("/ads")
	ads.POST("/create-contract", createAdContract(s))
	ads.GET("/my-ads", getMyAds(s))
	ads.POST("/unlock", unlockFunds(s))

	deals := v.Group("/deals")
	deals.POST("/request", requestDeal(s))
	deals.POST("/negotiate", negotiateDeal(s))
	deals.POST("/update", updateDeal(s))
	deals.GET("/sent", getSentDeals(s))
	deals.GET("/received", getReceivedDeals(s))
	deals.GET("/single/:id", getSingleDeal(s))

	v.POST("/wallet", createWallet(s))
	v.GET("/wallet", getWallet(s))

	v.POST("/channels", postChannel(s))
	v.GET("/channels", getChannels(s))

	v.GET("/feed", getFeed(s))
	v.GET("/media/:fileId", resolveMedia(s))

	v.GET("/insights", getInsights(s))

	v.GET("/inbox", getInbox(s))
	v.POST("/inbox/read", markInboxRead(s))

	v.GET("/users/resolve/:username", resolveUsername(s))
}

func (s *Server) Run() error {
	return s.r.Run(s.Cfg.Host + ":" + s.Cfg.Port)
}

func (s *Server) Close() error {
	return s.db.Close()
}
