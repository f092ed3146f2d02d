package server

import (
	"log"
	"time"

	"github.com/adgram/adgram/internal/common"
)

const engineRunTime = time.Minute

func newEngine(srv *Server) error {
	// Pick dropped fee sweeps back up from the store
	if err := srv.sweeper.Resume(); err != nil {
		return err
	}

	// Auto-verify posted placements whose window has elapsed so
	// completion doesn't hinge on the external scheduler showing up
	ticker := time.NewTicker(engineRunTime)
	go func() {
		for range ticker.C {
			if err := runVerification(srv); err != nil {
				log.Println("Err running verification pass", err)
			}
		}
	}()

	return nil
}

func runVerification(srv *Server) error {
	now := time.Now()

	due := srv.offersWhere(func(o *common.Offer) bool {
		return o.Status == common.StatusPosted && now.Unix() >= o.VerificationDueAt
	})

	for _, o := range due {
		if _, err := srv.completeOffer(o.Id, now); err != nil {
			log.Println("Err completing deal", o.Id, err)
		}
	}
	return nil
}
