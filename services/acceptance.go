package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/metrics"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AcceptanceService resolves competing bids and offers into one accepted match.
// Acceptance on a listing is serialized by the listing lock, and every status
// change is a compare-and-swap inside one transaction.
type AcceptanceService struct {
	*core
	ledger *Ledger
}

func (s *AcceptanceService) PlaceBid(ctx context.Context, actor models.Actor, postID uint, price decimal.Decimal, numServings int) (*models.Bid, error) {
	const op = "place_bid"
	if !actor.Can(models.RoleDiner) {
		return nil, fail(op, ErrForbidden, "diner role required")
	}
	if numServings < 1 || !price.IsPositive() {
		return nil, fail(op, ErrValidationFailed, "price must be positive and num_servings at least 1")
	}

	// bid baru tidak boleh masuk di tengah acceptance pada post yang sama
	release, err := s.lockListing(ctx, op, postLockKey(postID))
	if err != nil {
		return nil, err
	}
	defer release()

	var bid models.Bid
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.DishPost
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, postID).Error; err != nil {
			return lookupErr(op, "dish post", postID, err)
		}
		if post.ChefID != nil && *post.ChefID == actor.AccountID {
			return fail(op, ErrValidationFailed, "cannot bid on your own dish post")
		}
		if post.Status != models.StatusOpen {
			return fail(op, ErrConflict, "dish post %d is %s", postID, post.Status)
		}
		if !s.now().Before(post.LastCall) {
			return fail(op, ErrConflict, "last call for dish post %d has passed", postID)
		}
		var accepted int64
		if err := tx.Model(&models.Bid{}).
			Where("dish_post_id = ? AND status = ?", postID, models.ProposalAccepted).
			Count(&accepted).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if accepted > 0 {
			return fail(op, ErrConflict, "dish post %d already has an accepted bid", postID)
		}

		available, err := availableServings(tx, &post)
		if err != nil {
			return err
		}
		var balance models.Balance
		if err := tx.Where("account_id = ?", actor.AccountID).First(&balance).Error; err != nil {
			return lookupErr(op, "balance of account", actor.AccountID, err)
		}

		total := price.Mul(decimal.NewFromInt(int64(numServings)))
		var problems []string
		if price.LessThan(post.MinPrice) {
			problems = append(problems, fmt.Sprintf("price %s is below min_price %s", price, post.MinPrice))
		}
		if numServings > available {
			problems = append(problems, fmt.Sprintf("num_servings %d exceeds %d available", numServings, available))
		}
		if total.GreaterThan(balance.Amount) {
			problems = append(problems, fmt.Sprintf("total %s exceeds balance %s", total, balance.Amount))
		}
		if len(problems) > 0 {
			return fail(op, ErrValidationFailed, "%s", strings.Join(problems, "; "))
		}

		dinerID := actor.AccountID
		bid = models.Bid{
			DinerID:     &dinerID,
			DishPostID:  postID,
			NumServings: numServings,
			Price:       price.Round(models.MoneyPlaces),
			Status:      models.ProposalPending,
		}
		return tx.Create(&bid).Error
	})
	if err != nil {
		return nil, err
	}

	var box outbox
	box.add(events.BidPlaced, 0, bid)
	s.publish(ctx, box)
	return &bid, nil
}

// AcceptBid is invoked by the chef owning the post. It accepts the bid, rejects
// every other pending bid, creates the order and settles payment.
func (s *AcceptanceService) AcceptBid(ctx context.Context, actor models.Actor, postID, bidID uint) (*models.Order, error) {
	const op = "accept_bid"
	order, err := s.acceptBid(ctx, actor, postID, bidID)
	recordAcceptance("bid", err)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"post": postID, "bid": bidID, "chef": actor.AccountID}).
			Warnf("%s failed: %v", op, err)
		return nil, err
	}
	return order, nil
}

func (s *AcceptanceService) acceptBid(ctx context.Context, actor models.Actor, postID, bidID uint) (*models.Order, error) {
	const op = "accept_bid"
	if !actor.Can(models.RoleChef) {
		return nil, fail(op, ErrForbidden, "chef role required")
	}
	release, err := s.lockListing(ctx, op, postLockKey(postID))
	if err != nil {
		return nil, err
	}
	defer release()

	var order models.Order
	var box outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.DishPost
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, postID).Error; err != nil {
			return lookupErr(op, "dish post", postID, err)
		}
		if post.ChefID == nil || *post.ChefID != actor.AccountID {
			return fail(op, ErrForbidden, "only the posting chef may accept bids")
		}
		if post.Status != models.StatusOpen {
			return fail(op, ErrConflict, "dish post %d is %s", postID, post.Status)
		}

		var bid models.Bid
		if err := tx.Where("id = ? AND dish_post_id = ?", bidID, postID).First(&bid).Error; err != nil {
			return lookupErr(op, "bid", bidID, err)
		}
		if bid.Status != models.ProposalPending {
			return fail(op, ErrConflict, "bid %d is %s", bidID, bid.Status)
		}
		if bid.DinerID == nil {
			return fail(op, ErrNotFound, "diner of bid %d no longer exists", bidID)
		}
		var accepted int64
		if err := tx.Model(&models.Bid{}).
			Where("dish_post_id = ? AND status = ?", postID, models.ProposalAccepted).
			Count(&accepted).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if accepted > 0 {
			return fail(op, ErrConflict, "dish post %d already has an accepted bid", postID)
		}
		available, err := availableServings(tx, &post)
		if err != nil {
			return err
		}
		if bid.NumServings > available {
			return fail(op, ErrConflict, "bid %d wants %d servings, %d left", bidID, bid.NumServings, available)
		}

		st, err := s.ledger.prepareSettlement(tx, op, *bid.DinerID, *post.ChefID, bid.Total())
		if err != nil {
			return err
		}

		res := tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bid.ID, models.ProposalPending).
			Update("status", models.ProposalAccepted)
		if res.Error != nil {
			return fmt.Errorf("%s: accept bid %d: %w", op, bid.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fail(op, ErrConflict, "bid %d was resolved concurrently", bid.ID)
		}
		bid.Status = models.ProposalAccepted

		rejected, err := rejectPendingBids(tx, op, postID, bid.ID)
		if err != nil {
			return err
		}

		order = models.Order{
			DinerID:     bid.DinerID,
			DishPostID:  postID,
			BidID:       bid.ID,
			NumServings: bid.NumServings,
			Status:      models.StatusOpen,
		}
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return fmt.Errorf("%s: create order: %w", op, err)
		}
		order.Bid = bid

		if err := s.ledger.commit(tx, st, models.EntryBidPayment, models.EntryBidPayout, fmt.Sprintf("bid:%d", bid.ID)); err != nil {
			return err
		}

		box.add(events.BidAccepted, *bid.DinerID, order)
		for _, r := range rejected {
			if r.DinerID != nil {
				box.add(events.BidRejected, *r.DinerID, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	utils.InfoLogger.WithFields(logrus.Fields{
		"post":  postID,
		"bid":   bidID,
		"order": order.ID,
	}).Info("bid accepted")
	return &order, nil
}

// RejectBid is invoked by the chef owning the post.
func (s *AcceptanceService) RejectBid(ctx context.Context, actor models.Actor, postID, bidID uint) (*models.Bid, error) {
	const op = "reject_bid"
	var bid models.Bid
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.DishPost
		if err := tx.First(&post, postID).Error; err != nil {
			return lookupErr(op, "dish post", postID, err)
		}
		if post.ChefID == nil || *post.ChefID != actor.AccountID {
			return fail(op, ErrForbidden, "only the posting chef may reject bids")
		}
		if err := tx.Where("id = ? AND dish_post_id = ?", bidID, postID).First(&bid).Error; err != nil {
			return lookupErr(op, "bid", bidID, err)
		}
		if bid.Status != models.ProposalPending {
			return invalidTransition(op, "bid", bidID, bid.Status, models.ProposalRejected)
		}
		res := tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", bidID, models.ProposalPending).
			Update("status", models.ProposalRejected)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return fail(op, ErrConflict, "bid %d was resolved concurrently", bidID)
		}
		bid.Status = models.ProposalRejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bid.DinerID != nil {
		s.publish(ctx, outbox{events.New(events.BidRejected, *bid.DinerID, bid)})
	}
	return &bid, nil
}

func (s *AcceptanceService) PlaceOffer(ctx context.Context, actor models.Actor, requestID uint, price decimal.Decimal) (*models.Offer, error) {
	const op = "place_offer"
	if !actor.Can(models.RoleChef) {
		return nil, fail(op, ErrForbidden, "chef role required")
	}
	if !price.IsPositive() {
		return nil, fail(op, ErrValidationFailed, "price must be positive")
	}

	release, err := s.lockListing(ctx, op, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer release()

	var offer models.Offer
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.DishRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, requestID).Error; err != nil {
			return lookupErr(op, "dish request", requestID, err)
		}
		if req.DinerID != nil && *req.DinerID == actor.AccountID {
			return fail(op, ErrValidationFailed, "cannot offer on your own dish request")
		}
		if req.Status != models.StatusOpen {
			return fail(op, ErrConflict, "dish request %d is %s", requestID, req.Status)
		}
		if price.LessThan(req.MinPrice) {
			return fail(op, ErrValidationFailed, "price %s is below min_price %s", price, req.MinPrice)
		}

		chefID := actor.AccountID
		offer = models.Offer{
			ChefID:        &chefID,
			DishRequestID: requestID,
			Price:         price.Round(models.MoneyPlaces),
			Status:        models.ProposalPending,
		}
		if err := tx.Omit(clause.Associations).Create(&offer).Error; err != nil {
			return err
		}
		offer.DishRequest = &req
		return nil
	})
	if err != nil {
		return nil, err
	}

	target := uint(0)
	if offer.DishRequest.DinerID != nil {
		target = *offer.DishRequest.DinerID
	}
	s.publish(ctx, outbox{events.New(events.OfferPlaced, target, offer)})
	return &offer, nil
}

// AcceptOffer is invoked by the diner owning the request. It mirrors AcceptBid
// and also moves the request to Accepted.
func (s *AcceptanceService) AcceptOffer(ctx context.Context, actor models.Actor, requestID, offerID uint) (*models.Offer, error) {
	offer, err := s.acceptOffer(ctx, actor, requestID, offerID)
	recordAcceptance("offer", err)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"request": requestID, "offer": offerID, "diner": actor.AccountID}).
			Warnf("accept_offer failed: %v", err)
		return nil, err
	}
	return offer, nil
}

func (s *AcceptanceService) acceptOffer(ctx context.Context, actor models.Actor, requestID, offerID uint) (*models.Offer, error) {
	const op = "accept_offer"
	release, err := s.lockListing(ctx, op, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer release()

	var offer models.Offer
	var box outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.DishRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, requestID).Error; err != nil {
			return lookupErr(op, "dish request", requestID, err)
		}
		if req.DinerID == nil || *req.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the requesting diner may accept offers")
		}
		if req.Status != models.StatusOpen {
			return fail(op, ErrConflict, "dish request %d is %s", requestID, req.Status)
		}
		if err := tx.Where("id = ? AND dish_request_id = ?", offerID, requestID).First(&offer).Error; err != nil {
			return lookupErr(op, "offer", offerID, err)
		}
		if offer.Status != models.ProposalPending {
			return fail(op, ErrConflict, "offer %d is %s", offerID, offer.Status)
		}
		if offer.ChefID == nil {
			return fail(op, ErrNotFound, "chef of offer %d no longer exists", offerID)
		}
		offer.DishRequest = &req

		st, err := s.ledger.prepareSettlement(tx, op, *req.DinerID, *offer.ChefID, offer.Total())
		if err != nil {
			return err
		}

		res := tx.Model(&models.Offer{}).
			Where("id = ? AND status = ?", offer.ID, models.ProposalPending).
			Update("status", models.ProposalAccepted)
		if res.Error != nil {
			return fmt.Errorf("%s: accept offer %d: %w", op, offer.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fail(op, ErrConflict, "offer %d was resolved concurrently", offer.ID)
		}
		offer.Status = models.ProposalAccepted

		rejected, err := rejectPendingOffers(tx, op, requestID, offer.ID)
		if err != nil {
			return err
		}
		if err := moveStatus(tx, &models.DishRequest{}, op, "dish request", requestID, models.StatusOpen, models.StatusAccepted); err != nil {
			return err
		}
		req.Status = models.StatusAccepted

		if err := s.ledger.commit(tx, st, models.EntryOfferPayment, models.EntryOfferPayout, fmt.Sprintf("offer:%d", offer.ID)); err != nil {
			return err
		}

		box.add(events.OfferAccepted, *offer.ChefID, offer)
		for _, r := range rejected {
			if r.ChefID != nil {
				box.add(events.OfferRejected, *r.ChefID, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	utils.InfoLogger.WithFields(logrus.Fields{"request": requestID, "offer": offerID}).Info("offer accepted")
	return &offer, nil
}

// RejectOffer is invoked by the diner owning the request.
func (s *AcceptanceService) RejectOffer(ctx context.Context, actor models.Actor, requestID, offerID uint) (*models.Offer, error) {
	const op = "reject_offer"
	var offer models.Offer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.DishRequest
		if err := tx.First(&req, requestID).Error; err != nil {
			return lookupErr(op, "dish request", requestID, err)
		}
		if req.DinerID == nil || *req.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the requesting diner may reject offers")
		}
		if err := tx.Where("id = ? AND dish_request_id = ?", offerID, requestID).First(&offer).Error; err != nil {
			return lookupErr(op, "offer", offerID, err)
		}
		if offer.Status != models.ProposalPending {
			return invalidTransition(op, "offer", offerID, offer.Status, models.ProposalRejected)
		}
		res := tx.Model(&models.Offer{}).
			Where("id = ? AND status = ?", offerID, models.ProposalPending).
			Update("status", models.ProposalRejected)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return fail(op, ErrConflict, "offer %d was resolved concurrently", offerID)
		}
		offer.Status = models.ProposalRejected
		offer.DishRequest = &req
		return nil
	})
	if err != nil {
		return nil, err
	}
	if offer.ChefID != nil {
		s.publish(ctx, outbox{events.New(events.OfferRejected, *offer.ChefID, offer)})
	}
	return &offer, nil
}

func recordAcceptance(kind string, err error) {
	result := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientFunds):
		result = "insufficient_funds"
	case errors.Is(err, ErrConflict):
		result = "conflict"
	default:
		result = "error"
	}
	metrics.Acceptances.WithLabelValues(kind, result).Inc()
}
