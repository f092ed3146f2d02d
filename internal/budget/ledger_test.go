package budget

import (
	"testing"

	"github.com/adgram/adgram/internal/common"
	"github.com/stretchr/testify/assert"
)

func offer(id, adId, status string, amount float64) *common.Offer {
	return &common.Offer{Id: id, AdId: adId, Status: status, Amount: amount}
}

func TestRemainingCommittingSet(t *testing.T) {
	ad := &common.Ad{Id: "a1", Budget: 100}

	offers := []*common.Offer{
		offer("1", "a1", common.StatusPending, 40),
		offer("2", "a1", common.StatusNegotiating, 35),
		offer("3", "a1", common.StatusAccepted, 20),
		offer("4", "a1", common.StatusPosted, 30),
		offer("5", "a1", common.StatusCompleted, 10),
		offer("6", "a1", common.StatusRejected, 50),
		offer("7", "a1", common.StatusFailedPost, 25),
		offer("8", "other", common.StatusAccepted, 99),
		offer("9", "a1", common.StatusApproved, 5),
	}

	// Only accepted+approved+posted+completed hold funds: 20+5+30+10
	assert.Equal(t, 35.0, Remaining(ad, offers, ""))
}

func TestRemainingUnlockedCounts(t *testing.T) {
	ad := &common.Ad{Id: "a1", Budget: 100, UnlockedAmount: 15}

	offers := []*common.Offer{
		offer("1", "a1", common.StatusAccepted, 20),
	}

	assert.Equal(t, 65.0, Remaining(ad, offers, ""))
}

func TestRemainingSelfExclusion(t *testing.T) {
	// Negotiating a price on an offer must not double-count its own
	// old amount, even when that offer is already committing.
	ad := &common.Ad{Id: "a1", Budget: 100}

	offers := []*common.Offer{
		offer("1", "a1", common.StatusAccepted, 60),
		offer("2", "a1", common.StatusAccepted, 30),
	}

	assert.Equal(t, 10.0, Remaining(ad, offers, ""))
	assert.Equal(t, 70.0, Remaining(ad, offers, "1"))
	assert.Equal(t, 40.0, Remaining(ad, offers, "2"))
}

func TestRemainingOverCommitGoesNegative(t *testing.T) {
	ad := &common.Ad{Id: "a1", Budget: 50}

	offers := []*common.Offer{
		offer("1", "a1", common.StatusPosted, 40),
		offer("2", "a1", common.StatusAccepted, 30),
	}

	// Negative signals an existing over-commitment; callers must
	// refuse any new commit.
	assert.Equal(t, -20.0, Remaining(ad, offers, ""))
}

func TestRemainingPendingHoldsNothing(t *testing.T) {
	// budget=10: a pending offer of 8 does not block a second
	// request of 5.
	ad := &common.Ad{Id: "a1", Budget: 10}

	offers := []*common.Offer{
		offer("1", "a1", common.StatusPending, 8),
	}

	remaining := Remaining(ad, offers, "")
	assert.Equal(t, 10.0, remaining)
	assert.True(t, 5 <= remaining)
}
