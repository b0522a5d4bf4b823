package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func requireAdmin(op string, actor models.Actor) error {
	if !actor.Can(models.RoleAdmin) {
		return fail(op, ErrForbidden, "admin role required")
	}
	return nil
}

// closeReview moves a pending red flag or complaint to Closed.
func (s *ReputationService) closeReview(ctx context.Context, op, what string, model interface{}, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(model, id).Error; err != nil {
			return lookupErr(op, what, id, err)
		}
		res := tx.Model(model).Where("id = ? AND status = ?", id, models.ReviewPending).Update("status", models.ReviewClosed)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return invalidTransition(op, what, id, models.ReviewClosed, models.ReviewClosed)
		}
		return nil
	})
}

func (s *ReputationService) CloseRedFlag(ctx context.Context, actor models.Actor, flagID uint) (*models.RedFlag, error) {
	const op = "close_red_flag"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	var flag models.RedFlag
	if err := s.closeReview(ctx, op, "red flag", &flag, flagID); err != nil {
		return nil, err
	}
	flag.Status = models.ReviewClosed
	utils.InfoLogger.WithFields(logrus.Fields{"flag": flagID, "admin": actor.AccountID}).Info("red flag closed")
	return &flag, nil
}

func (s *ReputationService) CloseComplaint(ctx context.Context, actor models.Actor, complaintID uint) (*models.Complaint, error) {
	const op = "close_complaint"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	var complaint models.Complaint
	if err := s.closeReview(ctx, op, "complaint", &complaint, complaintID); err != nil {
		return nil, err
	}
	complaint.Status = models.ReviewClosed
	utils.InfoLogger.WithFields(logrus.Fields{"complaint": complaintID, "admin": actor.AccountID}).Info("complaint closed")
	return &complaint, nil
}

func (s *ReputationService) PendingRedFlags(ctx context.Context, actor models.Actor) ([]models.RedFlag, error) {
	if err := requireAdmin("pending_red_flags", actor); err != nil {
		return nil, err
	}
	var flags []models.RedFlag
	if err := s.db.WithContext(ctx).Where("status = ?", models.ReviewPending).Order("id asc").Find(&flags).Error; err != nil {
		return nil, fmt.Errorf("pending red flags: %w", err)
	}
	return flags, nil
}

func (s *ReputationService) PendingComplaints(ctx context.Context, actor models.Actor) ([]models.Complaint, error) {
	if err := requireAdmin("pending_complaints", actor); err != nil {
		return nil, err
	}
	var complaints []models.Complaint
	if err := s.db.WithContext(ctx).Where("status = ?", models.ReviewPending).Order("id asc").Find(&complaints).Error; err != nil {
		return nil, fmt.Errorf("pending complaints: %w", err)
	}
	return complaints, nil
}

// RequestSuspensionRemoval files the caller's appeal. A suspended account may
// have one pending appeal at a time.
func (s *ReputationService) RequestSuspensionRemoval(ctx context.Context, actor models.Actor, justification string) (*models.RemoveSuspensionRequest, error) {
	const op = "request_suspension_removal"
	if strings.TrimSpace(justification) == "" {
		return nil, fail(op, ErrValidationFailed, "justification is required")
	}

	var appeal models.RemoveSuspensionRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		info, err := lockSuspension(tx, actor.AccountID)
		if err != nil {
			return err
		}
		if !info.Suspended {
			return fail(op, ErrConflict, "account %d is not suspended", actor.AccountID)
		}
		var pending int64
		if err := tx.Model(&models.RemoveSuspensionRequest{}).
			Where("account_id = ? AND status = ?", actor.AccountID, models.AppealPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if pending > 0 {
			return fail(op, ErrConflict, "an appeal is already pending")
		}
		appeal = models.RemoveSuspensionRequest{
			AccountID:     actor.AccountID,
			Justification: justification,
			Status:        models.AppealPending,
		}
		return tx.Create(&appeal).Error
	})
	if err != nil {
		return nil, err
	}
	return &appeal, nil
}

func (s *ReputationService) PendingAppeals(ctx context.Context, actor models.Actor) ([]models.RemoveSuspensionRequest, error) {
	if err := requireAdmin("pending_appeals", actor); err != nil {
		return nil, err
	}
	var appeals []models.RemoveSuspensionRequest
	if err := s.db.WithContext(ctx).Where("status = ?", models.AppealPending).Order("id asc").Find(&appeals).Error; err != nil {
		return nil, fmt.Errorf("pending appeals: %w", err)
	}
	return appeals, nil
}

// ApproveSuspensionRemoval lifts the suspension. The lifetime count is kept,
// and a deactivated account stays inactive.
func (s *ReputationService) ApproveSuspensionRemoval(ctx context.Context, actor models.Actor, appealID uint) (*models.RemoveSuspensionRequest, error) {
	return s.resolveAppeal(ctx, actor, "approve_suspension_removal", appealID, models.AppealApproved)
}

func (s *ReputationService) DenySuspensionRemoval(ctx context.Context, actor models.Actor, appealID uint) (*models.RemoveSuspensionRequest, error) {
	return s.resolveAppeal(ctx, actor, "deny_suspension_removal", appealID, models.AppealDenied)
}

func (s *ReputationService) resolveAppeal(ctx context.Context, actor models.Actor, op string, appealID uint, to models.AppealStatus) (*models.RemoveSuspensionRequest, error) {
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}

	var appeal models.RemoveSuspensionRequest
	var box outbox
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&appeal, appealID).Error; err != nil {
			return lookupErr(op, "appeal", appealID, err)
		}
		res := tx.Model(&models.RemoveSuspensionRequest{}).
			Where("id = ? AND status = ?", appealID, models.AppealPending).
			Update("status", to)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		if res.RowsAffected == 0 {
			return invalidTransition(op, "appeal", appealID, appeal.Status, to)
		}
		appeal.Status = to
		if to != models.AppealApproved {
			return nil
		}

		if err := tx.Model(&models.SuspensionInfo{}).
			Where("account_id = ?", appeal.AccountID).
			Update("suspended", false).Error; err != nil {
			return fmt.Errorf("%s: lift suspension: %w", op, err)
		}
		box.add(events.AccountReinstated, appeal.AccountID, appeal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, box)
	utils.InfoLogger.WithFields(logrus.Fields{"appeal": appealID, "admin": actor.AccountID, "result": to}).Info("suspension appeal resolved")
	return &appeal, nil
}
