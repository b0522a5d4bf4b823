package services

import (
	"context"
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

// ReputationService records feedback, ratings and complaints, and decides
// suspensions and red flags from them. Each submission and the checks it
// triggers run in one transaction.
type ReputationService struct {
	*core
	ledger *Ledger
}

type Feedback struct {
	Text   string
	Tip    decimal.Decimal
	Rating int
}

func (f Feedback) validate(op string) error {
	if f.Rating < 1 || f.Rating > 5 {
		return fail(op, ErrValidationFailed, "rating must be between 1 and 5")
	}
	if f.Tip.IsNegative() {
		return fail(op, ErrValidationFailed, "tip must not be negative")
	}
	if strings.TrimSpace(f.Text) == "" {
		return fail(op, ErrValidationFailed, "feedback text is required")
	}
	return nil
}

func validRating(op string, rating int) error {
	if rating < 1 || rating > 5 {
		return fail(op, ErrValidationFailed, "rating must be between 1 and 5")
	}
	return nil
}

// SubmitFeedback is the diner's review of an order: feedback, optional tip and
// a rating of the chef. The order becomes Complete.
func (s *ReputationService) SubmitFeedback(ctx context.Context, actor models.Actor, orderID uint, fb Feedback) (*models.Order, error) {
	const op = "submit_feedback"
	if err := fb.validate(op); err != nil {
		return nil, err
	}

	var order models.Order
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			return lookupErr(op, "order", orderID, err)
		}
		if order.DinerID == nil || *order.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the ordering diner may leave feedback")
		}
		if order.DinerRated {
			return fail(op, ErrConflict, "order %d already has diner feedback", orderID)
		}
		if err := orderMoves.check(op, "order", orderID, order.Status, models.StatusComplete); err != nil {
			return err
		}
		var post models.DishPost
		if err := tx.First(&post, order.DishPostID).Error; err != nil {
			return lookupErr(op, "dish post", order.DishPostID, err)
		}
		if post.ChefID == nil {
			return fail(op, ErrNotFound, "chef of order %d no longer exists", orderID)
		}
		chefID := *post.ChefID

		feedback := models.OrderFeedback{
			OrderID:   &order.ID,
			Feedback:  fb.Text,
			Tip:       fb.Tip.Round(models.MoneyPlaces),
			CreatedAt: s.now(),
		}
		if err := tx.Create(&feedback).Error; err != nil {
			return fmt.Errorf("%s: save feedback: %w", op, err)
		}
		if _, err := s.ledger.tip(tx, op, actor.AccountID, chefID, feedback.Tip, fmt.Sprintf("order:%d", orderID)); err != nil {
			return err
		}
		if err := s.rate(tx, actor.AccountID, chefID, fb.Rating); err != nil {
			return err
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, order.Status).
			Updates(map[string]interface{}{"diner_rated": true, "status": models.StatusComplete})
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return fail(op, ErrConflict, "order %d changed concurrently", orderID)
		}
		order.DinerRated = true
		order.Status = models.StatusComplete
		order.Feedback = &feedback
		box.add(events.OrderCompleted, chefID, order)

		return s.afterRating(tx, &box, actor.AccountID, chefID)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return &order, nil
}

// SubmitDinerRating is the chef's rating of the diner on an order. An Open
// order moves to PendingFeedback.
func (s *ReputationService) SubmitDinerRating(ctx context.Context, actor models.Actor, orderID uint, rating int) (*models.Order, error) {
	const op = "submit_diner_rating"
	if err := validRating(op, rating); err != nil {
		return nil, err
	}

	var order models.Order
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			return lookupErr(op, "order", orderID, err)
		}
		var post models.DishPost
		if err := tx.First(&post, order.DishPostID).Error; err != nil {
			return lookupErr(op, "dish post", order.DishPostID, err)
		}
		if post.ChefID == nil || *post.ChefID != actor.AccountID {
			return fail(op, ErrForbidden, "only the posting chef may rate the diner")
		}
		if order.ChefRated {
			return fail(op, ErrConflict, "order %d already has a chef rating", orderID)
		}
		if order.Status == models.StatusCancelled {
			return orderMoves.check(op, "order", orderID, order.Status, models.StatusPendingFeedback)
		}
		if order.DinerID == nil {
			return fail(op, ErrNotFound, "diner of order %d no longer exists", orderID)
		}
		dinerID := *order.DinerID

		if err := s.rate(tx, actor.AccountID, dinerID, rating); err != nil {
			return err
		}

		updates := map[string]interface{}{"chef_rated": true}
		if order.Status == models.StatusOpen {
			updates["status"] = models.StatusPendingFeedback
		}
		res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", orderID, order.Status).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return fail(op, ErrConflict, "order %d changed concurrently", orderID)
		}
		order.ChefRated = true
		if order.Status == models.StatusOpen {
			order.Status = models.StatusPendingFeedback
		}

		return s.afterRating(tx, &box, actor.AccountID, dinerID)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return &order, nil
}

// SubmitRequestFeedback is the diner's review of an Accepted request. It rates
// the chef of the accepted offer and completes the request.
func (s *ReputationService) SubmitRequestFeedback(ctx context.Context, actor models.Actor, requestID uint, fb Feedback) (*models.DishRequest, error) {
	const op = "submit_request_feedback"
	if err := fb.validate(op); err != nil {
		return nil, err
	}

	var req models.DishRequest
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, requestID).Error; err != nil {
			return lookupErr(op, "dish request", requestID, err)
		}
		if req.DinerID == nil || *req.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the requesting diner may leave feedback")
		}
		if err := requestMoves.check(op, "dish_request", requestID, req.Status, models.StatusComplete); err != nil {
			return err
		}
		var offer models.Offer
		if err := tx.Where("dish_request_id = ? AND status = ?", requestID, models.ProposalAccepted).First(&offer).Error; err != nil {
			return lookupErr(op, "accepted offer of request", requestID, err)
		}
		if offer.ChefID == nil {
			return fail(op, ErrNotFound, "chef of request %d no longer exists", requestID)
		}
		chefID := *offer.ChefID

		feedback := models.OrderFeedback{
			DishRequestID: &req.ID,
			Feedback:      fb.Text,
			Tip:           fb.Tip.Round(models.MoneyPlaces),
			CreatedAt:     s.now(),
		}
		if err := tx.Create(&feedback).Error; err != nil {
			return fmt.Errorf("%s: save feedback: %w", op, err)
		}
		if _, err := s.ledger.tip(tx, op, actor.AccountID, chefID, feedback.Tip, fmt.Sprintf("request:%d", requestID)); err != nil {
			return err
		}
		if err := s.rate(tx, actor.AccountID, chefID, fb.Rating); err != nil {
			return err
		}
		if err := moveStatus(tx, &models.DishRequest{}, op, "dish request", requestID, models.StatusAccepted, models.StatusComplete); err != nil {
			return err
		}
		req.Status = models.StatusComplete
		box.add(events.RequestCompleted, chefID, req)

		return s.afterRating(tx, &box, actor.AccountID, chefID)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return &req, nil
}

// FileComplaint records the diner's complaint against the chef of an order,
// then checks the complainant for a Critical flag.
func (s *ReputationService) FileComplaint(ctx context.Context, actor models.Actor, orderID uint, description string) (*models.Complaint, error) {
	const op = "file_complaint"
	if strings.TrimSpace(description) == "" {
		return nil, fail(op, ErrValidationFailed, "description is required")
	}

	var complaint models.Complaint
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			return lookupErr(op, "order", orderID, err)
		}
		if order.DinerID == nil || *order.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the ordering diner may complain")
		}
		var existing int64
		if err := tx.Model(&models.Complaint{}).Where("order_id = ?", orderID).Count(&existing).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if existing > 0 {
			return fail(op, ErrConflict, "order %d already has a complaint", orderID)
		}
		var post models.DishPost
		if err := tx.First(&post, order.DishPostID).Error; err != nil {
			return lookupErr(op, "dish post", order.DishPostID, err)
		}
		if post.ChefID == nil {
			return fail(op, ErrNotFound, "chef of order %d no longer exists", orderID)
		}

		complaint = models.Complaint{
			ComplainantID: actor.AccountID,
			ComplaineeID:  *post.ChefID,
			OrderID:       orderID,
			Description:   description,
			Status:        models.ReviewPending,
		}
		if err := tx.Omit(clause.Associations).Create(&complaint).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		_, err := s.checkRedFlagComplainant(tx, &box, actor.AccountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return &complaint, nil
}

func (s *ReputationService) rate(tx *gorm.DB, raterID, rateeID uint, value int) error {
	rating := models.Rating{
		RaterID:   &raterID,
		RateeID:   &rateeID,
		Rating:    value,
		CreatedAt: s.now(),
	}
	if err := tx.Create(&rating).Error; err != nil {
		return fmt.Errorf("save rating: %w", err)
	}
	return nil
}

// afterRating runs the checks every rating triggers: suspension of the ratee
// unless already suspended, then the red flag checks on the rater.
func (s *ReputationService) afterRating(tx *gorm.DB, box *outbox, raterID, rateeID uint) error {
	info, err := lockSuspension(tx, rateeID)
	if err != nil {
		return err
	}
	if !info.Suspended {
		if _, err := s.checkSuspendRatee(tx, box, info); err != nil {
			return err
		}
	}
	_, err = s.checkRedFlagRater(tx, box, raterID)
	return err
}

func lockSuspension(tx *gorm.DB, accountID uint) (*models.SuspensionInfo, error) {
	var info models.SuspensionInfo
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("account_id = ?", accountID).First(&info).Error
	if err != nil {
		return nil, lookupErr("reputation", "suspension info of account", accountID, err)
	}
	return &info, nil
}

// CheckSuspendRatee evaluates the ratee's received ratings and suspends when
// either rule fires. It reports whether the account was suspended.
func (s *ReputationService) CheckSuspendRatee(ctx context.Context, rateeID uint) (bool, error) {
	var suspended bool
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		info, err := lockSuspension(tx, rateeID)
		if err != nil {
			return err
		}
		suspended, err = s.checkSuspendRatee(tx, &box, info)
		return err
	})
	if err != nil {
		return false, err
	}
	s.publish(ctx, box)
	return suspended, nil
}

func (s *ReputationService) checkSuspendRatee(tx *gorm.DB, box *outbox, info *models.SuspensionInfo) (bool, error) {
	rateeID := info.AccountID
	log := utils.InfoLogger.WithField("account_id", rateeID)

	var bad []models.Rating
	if err := tx.Where("ratee_id = ? AND rating <= ? AND struck = ?", rateeID, s.policy.BadRatingMax, false).
		Order("id asc").
		Find(&bad).Error; err != nil {
		return false, fmt.Errorf("load bad ratings: %w", err)
	}

	suspend := false
	if n := s.policy.BadRatingsToSuspend; len(bad) >= n {
		if err := strikeRatings(tx, bad[:n]); err != nil {
			return false, err
		}
		suspend = true
		log.WithField("struck", n).Info("suspending: repeated low ratings")
	} else {
		var stats struct {
			Total int64
			Mean  float64
		}
		if err := tx.Model(&models.Rating{}).
			Select("COUNT(*) AS total, COALESCE(AVG(rating), 0) AS mean").
			Where("ratee_id = ?", rateeID).
			Scan(&stats).Error; err != nil {
			return false, fmt.Errorf("rating stats: %w", err)
		}
		if stats.Total >= int64(s.policy.MeanMinRatings) && (stats.Mean < s.policy.MeanLow || stats.Mean > s.policy.MeanHigh) {
			suspend = true
			log.WithField("mean", stats.Mean).Info("suspending: mean rating out of bounds")
		}
	}

	if suspend {
		info.Suspend()
		if err := tx.Model(&models.SuspensionInfo{}).Where("id = ?", info.ID).
			Updates(map[string]interface{}{"suspended": true, "count": info.Count}).Error; err != nil {
			return false, fmt.Errorf("suspend account %d: %w", rateeID, err)
		}
		metrics.Suspensions.Inc()
		box.add(events.AccountSuspended, rateeID, info)
	}
	return suspend, s.checkForceQuit(tx, box, info)
}

// checkForceQuit deactivates the account on exactly its ForceQuitAt-th suspension.
func (s *ReputationService) checkForceQuit(tx *gorm.DB, box *outbox, info *models.SuspensionInfo) error {
	if info.Count != s.policy.ForceQuitAt {
		return nil
	}
	res := tx.Model(&models.Account{}).Where("id = ? AND active = ?", info.AccountID, true).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate account %d: %w", info.AccountID, res.Error)
	}
	if res.RowsAffected > 0 {
		utils.InfoLogger.WithField("account_id", info.AccountID).Warn("account deactivated after repeated suspensions")
		box.add(events.AccountDeactivated, info.AccountID, info)
	}
	return nil
}

// CheckRedFlagRater runs the Critical check and, when it did not flag, the
// Generous check on the rater's latest ratings.
func (s *ReputationService) CheckRedFlagRater(ctx context.Context, raterID uint) (*models.RedFlag, error) {
	var flag *models.RedFlag
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		flag, err = s.checkRedFlagRater(tx, &box, raterID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return flag, nil
}

func (s *ReputationService) checkRedFlagRater(tx *gorm.DB, box *outbox, raterID uint) (*models.RedFlag, error) {
	flag, err := s.checkRedFlagComplainant(tx, box, raterID)
	if err != nil || flag != nil {
		return flag, err
	}

	window := s.policy.GenerousWindow
	var latest []models.Rating
	if err := tx.Where("rater_id = ?", raterID).
		Order("created_at desc").Order("id desc").
		Limit(window).
		Find(&latest).Error; err != nil {
		return nil, fmt.Errorf("load latest ratings: %w", err)
	}
	if len(latest) < window {
		return nil, nil
	}
	for _, r := range latest {
		if r.Struck || r.Rating < 5 {
			return nil, nil
		}
	}
	if err := strikeRatings(tx, latest); err != nil {
		return nil, err
	}
	return raiseFlag(tx, box, raterID, models.FlagGenerous)
}

// CheckRedFlagComplainant flags a user with enough unstruck 1-star ratings made
// and unstruck complaints filed, striking the oldest of each.
func (s *ReputationService) CheckRedFlagComplainant(ctx context.Context, accountID uint) (*models.RedFlag, error) {
	var flag *models.RedFlag
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		flag, err = s.checkRedFlagComplainant(tx, &box, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return flag, nil
}

func (s *ReputationService) checkRedFlagComplainant(tx *gorm.DB, box *outbox, accountID uint) (*models.RedFlag, error) {
	var low []models.Rating
	if err := tx.Where("rater_id = ? AND rating = ? AND struck = ?", accountID, 1, false).
		Order("id asc").Find(&low).Error; err != nil {
		return nil, fmt.Errorf("load low ratings made: %w", err)
	}
	var complaints []models.Complaint
	if err := tx.Where("complainant_id = ? AND struck = ?", accountID, false).
		Order("id asc").Find(&complaints).Error; err != nil {
		return nil, fmt.Errorf("load complaints filed: %w", err)
	}

	nr, nc := s.policy.CriticalLowRatings, s.policy.CriticalComplaints
	if len(low) < nr || len(complaints) < nc {
		return nil, nil
	}
	if err := strikeRatings(tx, low[:nr]); err != nil {
		return nil, err
	}
	ids := make([]uint, nc)
	for i := range complaints[:nc] {
		ids[i] = complaints[i].ID
	}
	if err := tx.Model(&models.Complaint{}).Where("id IN ?", ids).Update("struck", true).Error; err != nil {
		return nil, fmt.Errorf("strike complaints: %w", err)
	}
	return raiseFlag(tx, box, accountID, models.FlagCritical)
}

func strikeRatings(tx *gorm.DB, ratings []models.Rating) error {
	ids := make([]uint, len(ratings))
	for i := range ratings {
		ids[i] = ratings[i].ID
	}
	if err := tx.Model(&models.Rating{}).Where("id IN ?", ids).Update("struck", true).Error; err != nil {
		return fmt.Errorf("strike ratings: %w", err)
	}
	return nil
}

func raiseFlag(tx *gorm.DB, box *outbox, accountID uint, reason models.FlagReason) (*models.RedFlag, error) {
	flag := models.RedFlag{AccountID: accountID, Reason: reason, Status: models.ReviewPending}
	if err := tx.Create(&flag).Error; err != nil {
		return nil, fmt.Errorf("raise %s flag: %w", reason, err)
	}
	metrics.RedFlags.WithLabelValues(string(reason)).Inc()
	utils.InfoLogger.WithFields(logrus.Fields{"account_id": accountID, "reason": reason}).Warn("red flag raised")
	box.add(events.RedFlagRaised, 0, flag)
	return &flag, nil
}
