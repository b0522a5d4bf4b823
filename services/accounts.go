package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/neighborhood-grub/models"
	"gorm.io/gorm"
)

type AccountService struct {
	*core
}

// NewAccount is the input for Create. PasswordHash is already hashed by the caller.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	Roles        models.RoleSet
	Latitude     decimal.Decimal
	Longitude    decimal.Decimal
}

// Create stores the account together with its Balance and SuspensionInfo.
func (s *AccountService) Create(ctx context.Context, in NewAccount) (*models.Account, error) {
	const op = "create_account"
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" {
		return nil, fail(op, ErrValidationFailed, "username and email are required")
	}
	if in.Roles == 0 {
		in.Roles = models.RoleDiner
	}

	account := models.Account{
		Username:   in.Username,
		Email:      strings.ToLower(in.Email),
		Password:   in.PasswordHash,
		Roles:      in.Roles,
		Active:     true,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Balance:    &models.Balance{Amount: decimal.Zero},
		Suspension: &models.SuspensionInfo{},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Account{}).
			Where("username = ? OR email = ?", account.Username, account.Email).
			Count(&taken).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if taken > 0 {
			return fail(op, ErrConflict, "username or email already registered")
		}
		// Balance dan SuspensionInfo ikut dibuat lewat asosiasi has-one
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByLogin looks the account up by username or email.
func (s *AccountService) FindByLogin(ctx context.Context, login string) (*models.Account, error) {
	var account models.Account
	login = strings.TrimSpace(login)
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, strings.ToLower(login)).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail("find_account", ErrNotFound, "no account for %q", login)
	}
	if err != nil {
		return nil, fmt.Errorf("find_account: %w", err)
	}
	return &account, nil
}

func (s *AccountService) Get(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Preload("Balance").Preload("Suspension").First(&account, id).Error
	if err != nil {
		return nil, lookupErr("get_account", "account", id, err)
	}
	return &account, nil
}

// Standing reports whether the account may trade: it must be active and not suspended.
func (s *AccountService) Standing(ctx context.Context, id uint) (active, suspended bool, err error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return false, false, err
	}
	if account.Suspension != nil {
		suspended = account.Suspension.Suspended
	}
	return account.Active, suspended, nil
}
