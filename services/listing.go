package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Labeler tags a dish with an opaque category string.
type Labeler interface {
	Label(ctx context.Context, dishName string) (string, error)
}

type NopLabeler struct{}

func (NopLabeler) Label(context.Context, string) (string, error) { return "", nil }

// statusGraph lists the allowed moves out of each status. Cancelled and
// Complete have no entry, so nothing leaves them.
type statusGraph map[models.ListingStatus][]models.ListingStatus

var (
	postMoves = statusGraph{
		models.StatusOpen:            {models.StatusCancelled, models.StatusPendingFeedback, models.StatusComplete},
		models.StatusPendingFeedback: {models.StatusComplete},
	}
	requestMoves = statusGraph{
		models.StatusOpen:     {models.StatusAccepted, models.StatusCancelled},
		models.StatusAccepted: {models.StatusCancelled, models.StatusComplete},
	}
	orderMoves = statusGraph{
		models.StatusOpen:            {models.StatusCancelled, models.StatusPendingFeedback, models.StatusComplete},
		models.StatusPendingFeedback: {models.StatusComplete},
	}
)

func (g statusGraph) check(op, what string, id uint, from, to models.ListingStatus) error {
	for _, next := range g[from] {
		if next == to {
			return nil
		}
	}
	return invalidTransition(op, what, id, from, to)
}

// invalidTransition logs the refused move and returns an InvalidTransition error.
// Every status machine in the engine reports refusals through here.
func invalidTransition(op, what string, id uint, from, to interface{}) error {
	utils.ErrorLogger.WithFields(logrus.Fields{
		"op":   op,
		what:   id,
		"from": from,
		"to":   to,
	}).Warn("invalid transition")
	return fail(op, ErrInvalidTransition, "%s %d cannot move from %v to %v", what, id, from, to)
}

// moveStatus is a compare-and-swap on the status column.
func moveStatus(tx *gorm.DB, model interface{}, op, what string, id uint, from, to models.ListingStatus) error {
	res := tx.Model(model).Where("id = ? AND status = ?", id, from).Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("%s: update %s %d: %w", op, what, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fail(op, ErrConflict, "%s %d is no longer %s", what, id, from)
	}
	return nil
}

type ListingService struct {
	*core
	labeler Labeler
}

type PostInput struct {
	DishName    string
	Description string
	MinPrice    decimal.Decimal
	MaxServings int
	ServingSize decimal.Decimal
	LastCall    time.Time
	MealTime    time.Time
	Latitude    decimal.Decimal
	Longitude   decimal.Decimal
}

func (in PostInput) validate(now time.Time) []string {
	var problems []string
	if strings.TrimSpace(in.DishName) == "" {
		problems = append(problems, "dish name is required")
	}
	if !in.MinPrice.IsPositive() {
		problems = append(problems, "min_price must be positive")
	}
	if in.MaxServings < 1 {
		problems = append(problems, "max_servings must be at least 1")
	}
	if !in.ServingSize.IsPositive() {
		problems = append(problems, "serving_size must be positive")
	}
	if !in.LastCall.After(now) {
		problems = append(problems, "last_call must be in the future")
	}
	if in.MealTime.Before(in.LastCall) {
		problems = append(problems, "meal_time must not precede last_call")
	}
	return problems
}

type RequestInput struct {
	DishName    string
	Description string
	PortionSize decimal.Decimal
	NumServings int
	MinPrice    decimal.Decimal
	MealTime    time.Time
	Latitude    decimal.Decimal
	Longitude   decimal.Decimal
}

func (in RequestInput) validate(now time.Time) []string {
	var problems []string
	if strings.TrimSpace(in.DishName) == "" {
		problems = append(problems, "dish name is required")
	}
	if !in.MinPrice.IsPositive() {
		problems = append(problems, "min_price must be positive")
	}
	if in.NumServings < 1 {
		problems = append(problems, "num_servings must be at least 1")
	}
	if !in.PortionSize.IsPositive() {
		problems = append(problems, "portion_size must be positive")
	}
	if !in.MealTime.After(now) {
		problems = append(problems, "meal_time must be in the future")
	}
	return problems
}

func (s *ListingService) label(ctx context.Context, name string) string {
	label, err := s.labeler.Label(ctx, name)
	if err != nil {
		utils.ErrorLogger.WithField("dish", name).Warnf("labeler failed: %v", err)
		return ""
	}
	return label
}

func (s *ListingService) CreatePost(ctx context.Context, actor models.Actor, in PostInput) (*models.DishPost, error) {
	const op = "create_post"
	if !actor.Can(models.RoleChef) {
		return nil, fail(op, ErrForbidden, "chef role required")
	}
	if problems := in.validate(s.now()); len(problems) > 0 {
		return nil, fail(op, ErrValidationFailed, "%s", strings.Join(problems, "; "))
	}

	chefID := actor.AccountID
	post := models.DishPost{
		ChefID: &chefID,
		Dish: models.Dish{
			Name:         in.DishName,
			Description:  in.Description,
			Label:        s.label(ctx, in.DishName),
			DefaultPrice: in.MinPrice,
			ServingSize:  in.ServingSize,
		},
		MinPrice:    in.MinPrice.Round(models.MoneyPlaces),
		MaxServings: in.MaxServings,
		ServingSize: in.ServingSize,
		LastCall:    in.LastCall,
		MealTime:    in.MealTime,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      models.StatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"post": post.ID, "chef": chefID}).Info("dish post created")
	return &post, nil
}

func (s *ListingService) CreateRequest(ctx context.Context, actor models.Actor, in RequestInput) (*models.DishRequest, error) {
	const op = "create_request"
	if !actor.Can(models.RoleDiner) {
		return nil, fail(op, ErrForbidden, "diner role required")
	}
	if problems := in.validate(s.now()); len(problems) > 0 {
		return nil, fail(op, ErrValidationFailed, "%s", strings.Join(problems, "; "))
	}

	dinerID := actor.AccountID
	req := models.DishRequest{
		DinerID: &dinerID,
		Dish: models.Dish{
			Name:         in.DishName,
			Description:  in.Description,
			Label:        s.label(ctx, in.DishName),
			DefaultPrice: in.MinPrice,
			ServingSize:  in.PortionSize,
		},
		PortionSize: in.PortionSize,
		NumServings: in.NumServings,
		MinPrice:    in.MinPrice.Round(models.MoneyPlaces),
		MealTime:    in.MealTime,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      models.StatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"request": req.ID, "diner": dinerID}).Info("dish request created")
	return &req, nil
}

// EditPost replaces the terms of an Open post that has no orders yet.
func (s *ListingService) EditPost(ctx context.Context, actor models.Actor, postID uint, in PostInput) (*models.DishPost, error) {
	const op = "edit_post"
	if problems := in.validate(s.now()); len(problems) > 0 {
		return nil, fail(op, ErrValidationFailed, "%s", strings.Join(problems, "; "))
	}
	release, err := s.lockListing(ctx, op, postLockKey(postID))
	if err != nil {
		return nil, err
	}
	defer release()

	var post models.DishPost
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Dish").Preload("Orders").First(&post, postID).Error; err != nil {
			return lookupErr(op, "dish post", postID, err)
		}
		if post.ChefID == nil || *post.ChefID != actor.AccountID {
			return fail(op, ErrForbidden, "only the posting chef may edit")
		}
		if post.Status != models.StatusOpen {
			return fail(op, ErrConflict, "dish post %d is %s", postID, post.Status)
		}
		if in.MaxServings < post.ServingsOrdered() {
			return fail(op, ErrValidationFailed, "max_servings below %d already ordered", post.ServingsOrdered())
		}

		post.Dish.Name = in.DishName
		post.Dish.Description = in.Description
		post.Dish.DefaultPrice = in.MinPrice
		post.Dish.ServingSize = in.ServingSize
		if err := tx.Save(&post.Dish).Error; err != nil {
			return fmt.Errorf("%s: save dish: %w", op, err)
		}
		post.MinPrice = in.MinPrice.Round(models.MoneyPlaces)
		post.MaxServings = in.MaxServings
		post.ServingSize = in.ServingSize
		post.LastCall = in.LastCall
		post.MealTime = in.MealTime
		post.Latitude = in.Latitude
		post.Longitude = in.Longitude
		return tx.Omit(clause.Associations).Save(&post).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// EditRequest replaces the terms of an Open request.
func (s *ListingService) EditRequest(ctx context.Context, actor models.Actor, requestID uint, in RequestInput) (*models.DishRequest, error) {
	const op = "edit_request"
	if problems := in.validate(s.now()); len(problems) > 0 {
		return nil, fail(op, ErrValidationFailed, "%s", strings.Join(problems, "; "))
	}
	release, err := s.lockListing(ctx, op, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer release()

	var req models.DishRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Dish").First(&req, requestID).Error; err != nil {
			return lookupErr(op, "dish request", requestID, err)
		}
		if req.DinerID == nil || *req.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the requesting diner may edit")
		}
		if req.Status != models.StatusOpen {
			return fail(op, ErrConflict, "dish request %d is %s", requestID, req.Status)
		}

		req.Dish.Name = in.DishName
		req.Dish.Description = in.Description
		req.Dish.DefaultPrice = in.MinPrice
		req.Dish.ServingSize = in.PortionSize
		if err := tx.Save(&req.Dish).Error; err != nil {
			return fmt.Errorf("%s: save dish: %w", op, err)
		}
		req.PortionSize = in.PortionSize
		req.NumServings = in.NumServings
		req.MinPrice = in.MinPrice.Round(models.MoneyPlaces)
		req.MealTime = in.MealTime
		req.Latitude = in.Latitude
		req.Longitude = in.Longitude
		return tx.Omit(clause.Associations).Save(&req).Error
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetPost loads the post with its dish, orders and pending bids.
func (s *ListingService) GetPost(ctx context.Context, postID uint) (*models.DishPost, error) {
	var post models.DishPost
	err := s.db.WithContext(ctx).
		Preload("Dish").
		Preload("Orders").
		Preload("Bids", "status = ?", models.ProposalPending).
		First(&post, postID).Error
	if err != nil {
		return nil, lookupErr("get_post", "dish post", postID, err)
	}
	return &post, nil
}

func (s *ListingService) GetRequest(ctx context.Context, requestID uint) (*models.DishRequest, error) {
	var req models.DishRequest
	err := s.db.WithContext(ctx).
		Preload("Dish").
		Preload("Offers", "status <> ?", models.ProposalRejected).
		First(&req, requestID).Error
	if err != nil {
		return nil, lookupErr("get_request", "dish request", requestID, err)
	}
	return &req, nil
}

func (s *ListingService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Bid").Preload("Feedback").Preload("DishPost").First(&order, orderID).Error
	if err != nil {
		return nil, lookupErr("get_order", "order", orderID, err)
	}
	return &order, nil
}

// OpenPosts lists Open posts whose last call has not passed, soonest meal first.
func (s *ListingService) OpenPosts(ctx context.Context) ([]models.DishPost, error) {
	var posts []models.DishPost
	err := s.db.WithContext(ctx).
		Preload("Dish").
		Preload("Orders").
		Where("status = ? AND last_call > ?", models.StatusOpen, s.now()).
		Order("meal_time asc").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("open posts: %w", err)
	}
	return posts, nil
}

func (s *ListingService) OpenRequests(ctx context.Context) ([]models.DishRequest, error) {
	var reqs []models.DishRequest
	err := s.db.WithContext(ctx).
		Preload("Dish").
		Where("status = ?", models.StatusOpen).
		Order("meal_time asc").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("open requests: %w", err)
	}
	return reqs, nil
}

// OrdersFor lists the diner's orders, newest first.
func (s *ListingService) OrdersFor(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Bid").
		Preload("Feedback").
		Where("diner_id = ?", actor.AccountID).
		Order("id desc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("orders for %d: %w", actor.AccountID, err)
	}
	return orders, nil
}

// AvailableServings is zero for a Complete post, otherwise max_servings minus
// the servings of every linked order.
func (s *ListingService) AvailableServings(ctx context.Context, postID uint) (int, error) {
	var post models.DishPost
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		return 0, lookupErr("available_servings", "dish post", postID, err)
	}
	return availableServings(s.db.WithContext(ctx), &post)
}

func availableServings(tx *gorm.DB, post *models.DishPost) (int, error) {
	if post.Status == models.StatusComplete {
		return 0, nil
	}
	var ordered int64
	err := tx.Model(&models.Order{}).
		Where("dish_post_id = ?", post.ID).
		Select("COALESCE(SUM(num_servings), 0)").
		Scan(&ordered).Error
	if err != nil {
		return 0, fmt.Errorf("sum servings of post %d: %w", post.ID, err)
	}
	return post.MaxServings - int(ordered), nil
}

// CancelPost moves an Open post to Cancelled and rejects its pending bids.
// Allowed for the posting chef and for admins.
func (s *ListingService) CancelPost(ctx context.Context, actor models.Actor, postID uint) (*models.DishPost, error) {
	const op = "cancel_post"
	release, err := s.lockListing(ctx, op, postLockKey(postID))
	if err != nil {
		return nil, err
	}
	defer release()

	var post models.DishPost
	var box outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, postID).Error; err != nil {
			return lookupErr(op, "dish post", postID, err)
		}
		owner := post.ChefID != nil && *post.ChefID == actor.AccountID
		if !owner && !actor.Can(models.RoleAdmin) {
			return fail(op, ErrForbidden, "only the posting chef may cancel")
		}
		if err := postMoves.check(op, "dish_post", postID, post.Status, models.StatusCancelled); err != nil {
			return err
		}
		if err := moveStatus(tx, &models.DishPost{}, op, "dish post", postID, post.Status, models.StatusCancelled); err != nil {
			return err
		}
		post.Status = models.StatusCancelled

		rejected, err := rejectPendingBids(tx, op, postID, 0)
		if err != nil {
			return err
		}
		for _, bid := range rejected {
			if bid.DinerID != nil {
				box.add(events.BidRejected, *bid.DinerID, bid)
			}
		}
		box.add(events.PostCancelled, 0, post)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	utils.InfoLogger.WithFields(logrus.Fields{"post": postID, "by": actor.AccountID}).Info("dish post cancelled")
	return &post, nil
}

// CompletePost closes a post administratively.
func (s *ListingService) CompletePost(ctx context.Context, actor models.Actor, postID uint) (*models.DishPost, error) {
	const op = "complete_post"
	if !actor.Can(models.RoleAdmin) {
		return nil, fail(op, ErrForbidden, "admin role required")
	}
	release, err := s.lockListing(ctx, op, postLockKey(postID))
	if err != nil {
		return nil, err
	}
	defer release()

	var post models.DishPost
	var box outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, postID).Error; err != nil {
			return lookupErr(op, "dish post", postID, err)
		}
		if err := postMoves.check(op, "dish_post", postID, post.Status, models.StatusComplete); err != nil {
			return err
		}
		if err := moveStatus(tx, &models.DishPost{}, op, "dish post", postID, post.Status, models.StatusComplete); err != nil {
			return err
		}
		post.Status = models.StatusComplete

		rejected, err := rejectPendingBids(tx, op, postID, 0)
		if err != nil {
			return err
		}
		for _, bid := range rejected {
			if bid.DinerID != nil {
				box.add(events.BidRejected, *bid.DinerID, bid)
			}
		}
		if post.ChefID != nil {
			box.add(events.PostCompleted, *post.ChefID, post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return &post, nil
}

// CancelRequest moves an Open or Accepted request to Cancelled. Only the
// requesting diner may do this.
func (s *ListingService) CancelRequest(ctx context.Context, actor models.Actor, requestID uint) (*models.DishRequest, error) {
	const op = "cancel_request"
	release, err := s.lockListing(ctx, op, requestLockKey(requestID))
	if err != nil {
		return nil, err
	}
	defer release()

	var req models.DishRequest
	var box outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, requestID).Error; err != nil {
			return lookupErr(op, "dish request", requestID, err)
		}
		if req.DinerID == nil || *req.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the requesting diner may cancel")
		}
		if err := requestMoves.check(op, "dish_request", requestID, req.Status, models.StatusCancelled); err != nil {
			return err
		}
		if err := moveStatus(tx, &models.DishRequest{}, op, "dish request", requestID, req.Status, models.StatusCancelled); err != nil {
			return err
		}
		req.Status = models.StatusCancelled

		rejected, err := rejectPendingOffers(tx, op, requestID, 0)
		if err != nil {
			return err
		}
		for _, offer := range rejected {
			if offer.ChefID != nil {
				box.add(events.OfferRejected, *offer.ChefID, offer)
			}
		}
		box.add(events.RequestCancelled, 0, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	return &req, nil
}

// CancelOrder moves an Open order to Cancelled. Only the order's diner may
// cancel, and no money moves back.
func (s *ListingService) CancelOrder(ctx context.Context, actor models.Actor, orderID uint) (*models.Order, error) {
	const op = "cancel_order"
	var order models.Order
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			return lookupErr(op, "order", orderID, err)
		}
		if order.DinerID == nil || *order.DinerID != actor.AccountID {
			return fail(op, ErrForbidden, "only the ordering diner may cancel")
		}
		if err := orderMoves.check(op, "order", orderID, order.Status, models.StatusCancelled); err != nil {
			return err
		}
		if err := moveStatus(tx, &models.Order{}, op, "order", orderID, order.Status, models.StatusCancelled); err != nil {
			return err
		}
		order.Status = models.StatusCancelled

		var post models.DishPost
		if err := tx.First(&post, order.DishPostID).Error; err == nil && post.ChefID != nil {
			box.add(events.OrderCancelled, *post.ChefID, order)
		}
		return tx.Preload("Bid").First(&order, orderID).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	utils.InfoLogger.WithFields(logrus.Fields{"order": orderID, "diner": actor.AccountID}).Info("order cancelled")
	return &order, nil
}

// rejectPendingBids rejects every pending bid on the post except keep.
func rejectPendingBids(tx *gorm.DB, op string, postID, keep uint) ([]models.Bid, error) {
	var bids []models.Bid
	if err := tx.Where("dish_post_id = ? AND id <> ? AND status = ?", postID, keep, models.ProposalPending).
		Find(&bids).Error; err != nil {
		return nil, fmt.Errorf("%s: load pending bids: %w", op, err)
	}
	if len(bids) == 0 {
		return nil, nil
	}
	ids := make([]uint, len(bids))
	for i := range bids {
		ids[i] = bids[i].ID
		bids[i].Status = models.ProposalRejected
	}
	if err := tx.Model(&models.Bid{}).Where("id IN ?", ids).Update("status", models.ProposalRejected).Error; err != nil {
		return nil, fmt.Errorf("%s: reject bids: %w", op, err)
	}
	return bids, nil
}

func rejectPendingOffers(tx *gorm.DB, op string, requestID, keep uint) ([]models.Offer, error) {
	var offers []models.Offer
	if err := tx.Where("dish_request_id = ? AND id <> ? AND status = ?", requestID, keep, models.ProposalPending).
		Find(&offers).Error; err != nil {
		return nil, fmt.Errorf("%s: load pending offers: %w", op, err)
	}
	if len(offers) == 0 {
		return nil, nil
	}
	ids := make([]uint, len(offers))
	for i := range offers {
		ids[i] = offers[i].ID
		offers[i].Status = models.ProposalRejected
	}
	if err := tx.Model(&models.Offer{}).Where("id IN ?", ids).Update("status", models.ProposalRejected).Error; err != nil {
		return nil, fmt.Errorf("%s: reject offers: %w", op, err)
	}
	return offers, nil
}
