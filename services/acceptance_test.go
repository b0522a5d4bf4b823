package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/models"
)

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, ErrLockTimeout
}

func TestPlaceBidReportsEveryFailedCondition(t *testing.T) {
	env := newTestEnv(t)
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "20")
	post := env.post(t, chef, "10", 2)

	_, err := env.market.Acceptance.PlaceBid(context.Background(), diner, post.ID, dec("9"), 3)
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "below min_price")
	assert.Contains(t, err.Error(), "exceeds 2 available")
	assert.Contains(t, err.Error(), "exceeds balance")

	var count int64
	env.db.Model(&models.Bid{}).Count(&count)
	assert.Zero(t, count)
}

func TestPlaceBidGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chef := env.account(t, "chef", models.RoleChef|models.RoleDiner, "100")
	diner := env.account(t, "diner", models.RoleDiner, "100")
	post := env.post(t, chef, "10", 2)

	_, err := env.market.Acceptance.PlaceBid(ctx, chef, post.ID, dec("10"), 1)
	assert.ErrorIs(t, err, ErrValidationFailed, "own post")

	_, err = env.market.Acceptance.PlaceBid(ctx, diner, 404, dec("10"), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.market.Acceptance.PlaceBid(ctx, models.Actor{AccountID: diner.AccountID, Roles: models.RoleChef}, post.ID, dec("10"), 1)
	assert.ErrorIs(t, err, ErrForbidden)

	env.now = post.LastCall
	_, err = env.market.Acceptance.PlaceBid(ctx, diner, post.ID, dec("10"), 1)
	assert.ErrorIs(t, err, ErrConflict, "last call passed")
}

func TestAcceptBidSettlesAndRejectsSiblings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "1000")
	rival := env.account(t, "rival", models.RoleDiner, "1000")
	post := env.post(t, chef, "10", 5)

	winner := env.bid(t, diner, post.ID, "12.5", 3)
	loser := env.bid(t, rival, post.ID, "11", 2)

	order, err := env.market.Acceptance.AcceptBid(ctx, chef, post.ID, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, order.Status)
	assert.Equal(t, 3, order.NumServings)
	assertDecimal(t, "37.5", order.Total())
	assert.True(t, order.Total().Equal(order.Bid.Price.Mul(dec("3"))))

	assertDecimal(t, "962.5", env.balance(t, diner))
	assertDecimal(t, "37.5", env.balance(t, chef))
	assertDecimal(t, "1000", env.balance(t, rival))

	var reloaded models.Bid
	require.NoError(t, env.db.First(&reloaded, loser.ID).Error)
	assert.Equal(t, models.ProposalRejected, reloaded.Status)

	var entries []models.LedgerEntry
	require.NoError(t, env.db.Where("subject = ?", fmt.Sprintf("bid:%d", winner.ID)).Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].Reference, entries[1].Reference)

	available, err := env.market.Listings.AvailableServings(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	assert.Contains(t, env.recorder.Types(), events.BidAccepted)
	assert.Contains(t, env.recorder.Types(), events.BidRejected)

	_, err = env.market.Acceptance.AcceptBid(ctx, chef, post.ID, loser.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.market.Acceptance.PlaceBid(ctx, rival, post.ID, dec("10"), 1)
	assert.ErrorIs(t, err, ErrConflict, "post already has an accepted bid")
}

func TestAcceptBidDiscountsVIPDiner(t *testing.T) {
	env := newTestEnv(t)
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "vip", models.RoleDiner, "6000")
	post := env.post(t, chef, "100", 2)
	bid := env.bid(t, diner, post.ID, "100", 2)

	_, err := env.market.Acceptance.AcceptBid(context.Background(), chef, post.ID, bid.ID)
	require.NoError(t, err)

	assertDecimal(t, "5820", env.balance(t, diner))
	assertDecimal(t, "200", env.balance(t, chef))
}

func TestAcceptBidInsufficientFundsMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "50")
	post := env.post(t, chef, "10", 5)
	bid := env.bid(t, diner, post.ID, "10", 5)

	_, err := env.market.Ledger.Withdraw(ctx, diner, dec("30"))
	require.NoError(t, err)

	_, err = env.market.Acceptance.AcceptBid(ctx, chef, post.ID, bid.ID)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var reloaded models.Bid
	require.NoError(t, env.db.First(&reloaded, bid.ID).Error)
	assert.Equal(t, models.ProposalPending, reloaded.Status)
	var orders int64
	env.db.Model(&models.Order{}).Count(&orders)
	assert.Zero(t, orders)
	assertDecimal(t, "20", env.balance(t, diner))
	assertDecimal(t, "0", env.balance(t, chef))
}

func TestAcceptBidOnlyByOwningChef(t *testing.T) {
	env := newTestEnv(t)
	chef := env.account(t, "chef", models.RoleChef, "0")
	other := env.account(t, "other", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "100")
	post := env.post(t, chef, "10", 1)
	bid := env.bid(t, diner, post.ID, "10", 1)

	_, err := env.market.Acceptance.AcceptBid(context.Background(), other, post.ID, bid.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPlaceBidWaitsForListingLock(t *testing.T) {
	env := newTestEnv(t)
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "100")
	post := env.post(t, chef, "10", 2)
	env.market.Acceptance.locker = busyLocker{}

	_, err := env.market.Acceptance.PlaceBid(context.Background(), diner, post.ID, dec("10"), 1)
	require.ErrorIs(t, err, ErrConflict)

	var bids int64
	require.NoError(t, env.db.Model(&models.Bid{}).Where("dish_post_id = ?", post.ID).Count(&bids).Error)
	assert.Zero(t, bids)
}

func TestPlaceBidAfterAcceptanceIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chef := env.account(t, "chef", models.RoleChef, "0")
	first := env.account(t, "first", models.RoleDiner, "100")
	late := env.account(t, "late", models.RoleDiner, "100")
	post := env.post(t, chef, "10", 3)
	bid := env.bid(t, first, post.ID, "10", 1)

	_, err := env.market.Acceptance.AcceptBid(ctx, chef, post.ID, bid.ID)
	require.NoError(t, err)

	_, err = env.market.Acceptance.PlaceBid(ctx, late, post.ID, dec("10"), 1)
	require.ErrorIs(t, err, ErrConflict)

	var pending int64
	require.NoError(t, env.db.Model(&models.Bid{}).
		Where("dish_post_id = ? AND status = ?", post.ID, models.ProposalPending).
		Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestPlaceOfferWaitsForListingLock(t *testing.T) {
	env := newTestEnv(t)
	diner := env.account(t, "diner", models.RoleDiner, "100")
	chef := env.account(t, "chef", models.RoleChef, "0")
	req := env.request(t, diner, "10", 1)
	env.market.Acceptance.locker = busyLocker{}

	_, err := env.market.Acceptance.PlaceOffer(context.Background(), chef, req.ID, dec("10"))
	require.ErrorIs(t, err, ErrConflict)
}

func TestAcceptBidFailsWhenListingLockIsBusy(t *testing.T) {
	env := newTestEnv(t)
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "100")
	post := env.post(t, chef, "10", 1)
	bid := env.bid(t, diner, post.ID, "10", 1)
	env.market.Acceptance.locker = busyLocker{}

	_, err := env.market.Acceptance.AcceptBid(context.Background(), chef, post.ID, bid.ID)
	require.ErrorIs(t, err, ErrConflict)
	assertDecimal(t, "100", env.balance(t, diner))
}

func TestConcurrentAcceptBidOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	chef := env.account(t, "chef", models.RoleChef, "0")
	post := env.post(t, chef, "10", 3)

	var bids []*models.Bid
	for i := 0; i < 5; i++ {
		diner := env.account(t, fmt.Sprintf("diner%d", i), models.RoleDiner, "100")
		bids = append(bids, env.bid(t, diner, post.ID, "10", 1))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(bids))
	start := make(chan struct{})
	for i, b := range bids {
		wg.Add(1)
		go func(i int, bidID uint) {
			defer wg.Done()
			<-start
			_, errs[i] = env.market.Acceptance.AcceptBid(context.Background(), chef, post.ID, bidID)
		}(i, b.ID)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, wins)

	var orders, accepted int64
	env.db.Model(&models.Order{}).Where("dish_post_id = ?", post.ID).Count(&orders)
	env.db.Model(&models.Bid{}).Where("dish_post_id = ? AND status = ?", post.ID, models.ProposalAccepted).Count(&accepted)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, int64(1), accepted)
	assertDecimal(t, "10", env.balance(t, chef))
}

func TestRejectBid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chef := env.account(t, "chef", models.RoleChef, "0")
	diner := env.account(t, "diner", models.RoleDiner, "100")
	post := env.post(t, chef, "10", 1)
	bid := env.bid(t, diner, post.ID, "10", 1)

	rejected, err := env.market.Acceptance.RejectBid(ctx, chef, post.ID, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, rejected.Status)

	hook := captureErrorLog(t)
	_, err = env.market.Acceptance.RejectBid(ctx, chef, post.ID, bid.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrConflict)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "invalid transition", hook.LastEntry().Message)
	assert.Equal(t, bid.ID, hook.LastEntry().Data["bid"])

	_, err = env.market.Acceptance.AcceptBid(ctx, chef, post.ID, bid.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAcceptOfferSettlesAndAdvancesRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	diner := env.account(t, "diner", models.RoleDiner, "100")
	chefA := env.account(t, "chefa", models.RoleChef, "0")
	chefB := env.account(t, "chefb", models.RoleChef, "0")
	req := env.request(t, diner, "10", 2)

	_, err := env.market.Acceptance.PlaceOffer(ctx, chefA, req.ID, dec("9"))
	assert.ErrorIs(t, err, ErrValidationFailed)

	offerA, err := env.market.Acceptance.PlaceOffer(ctx, chefA, req.ID, dec("12"))
	require.NoError(t, err)
	offerB, err := env.market.Acceptance.PlaceOffer(ctx, chefB, req.ID, dec("15"))
	require.NoError(t, err)

	accepted, err := env.market.Acceptance.AcceptOffer(ctx, diner, req.ID, offerB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalAccepted, accepted.Status)
	assertDecimal(t, "30", accepted.Total())

	assertDecimal(t, "70", env.balance(t, diner))
	assertDecimal(t, "30", env.balance(t, chefB))
	assertDecimal(t, "0", env.balance(t, chefA))

	var reloaded models.DishRequest
	require.NoError(t, env.db.First(&reloaded, req.ID).Error)
	assert.Equal(t, models.StatusAccepted, reloaded.Status)

	var other models.Offer
	require.NoError(t, env.db.First(&other, offerA.ID).Error)
	assert.Equal(t, models.ProposalRejected, other.Status)

	_, err = env.market.Acceptance.AcceptOffer(ctx, diner, req.ID, offerA.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = env.market.Acceptance.PlaceOffer(ctx, chefA, req.ID, dec("20"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAcceptOfferInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	diner := env.account(t, "diner", models.RoleDiner, "10")
	chef := env.account(t, "chef", models.RoleChef, "0")
	req := env.request(t, diner, "10", 2)
	offer, err := env.market.Acceptance.PlaceOffer(context.Background(), chef, req.ID, dec("10"))
	require.NoError(t, err)

	_, err = env.market.Acceptance.AcceptOffer(context.Background(), diner, req.ID, offer.ID)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var reloaded models.DishRequest
	require.NoError(t, env.db.First(&reloaded, req.ID).Error)
	assert.Equal(t, models.StatusOpen, reloaded.Status)
	assertDecimal(t, "10", env.balance(t, diner))
}

func TestRejectOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	diner := env.account(t, "diner", models.RoleDiner, "100")
	chef := env.account(t, "chef", models.RoleChef, "0")
	req := env.request(t, diner, "10", 1)
	offer, err := env.market.Acceptance.PlaceOffer(ctx, chef, req.ID, dec("10"))
	require.NoError(t, err)

	_, err = env.market.Acceptance.RejectOffer(ctx, chef, req.ID, offer.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	rejected, err := env.market.Acceptance.RejectOffer(ctx, diner, req.ID, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, rejected.Status)
	assert.WithinDuration(t, time.Now(), rejected.UpdatedAt, time.Hour)

	hook := captureErrorLog(t)
	_, err = env.market.Acceptance.RejectOffer(ctx, diner, req.ID, offer.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "invalid transition", hook.LastEntry().Message)
	assert.Equal(t, offer.ID, hook.LastEntry().Data["offer"])
	assert.Equal(t, models.ProposalRejected, hook.LastEntry().Data["from"])
}
