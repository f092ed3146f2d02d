package server

import (
	"testing"

	"github.com/adgram/adgram/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEngineAutoVerify runs the periodic verification pass by hand and
// checks it completes overdue posted placements on its own.
func TestEngineAutoVerify(t *testing.T) {
	adv, chp := "eng-adv:engadv", "eng-chp:engchp"
	mkWallet(t, adv)
	mkWallet(t, chp)
	chanId := mkChannel(t, chp, "@eng_chan")
	adId := mkAd(t, adv, 10, 2)

	offerId := mkOffer(t, chp, adId, chanId, 5)
	code, _ := updateOffer(t, chp, offerId, "accepted")
	require.Equal(t, 200, code)
	code, _ = updateOffer(t, adv, offerId, "approved")
	require.Equal(t, 200, code)

	// still inside the window: the pass must not touch it
	require.NoError(t, runVerification(srv))
	assert.Equal(t, common.StatusPosted, getOfferDoc(t, offerId).Status)

	backdatePost(t, offerId)

	require.NoError(t, runVerification(srv))
	offer := getOfferDoc(t, offerId)
	assert.Equal(t, common.StatusCompleted, offer.Status)
	assert.True(t, offer.FundsReleased)
}
