package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/metrics"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger owns account balances and VIP status. Every mutation appends a
// LedgerEntry in the same transaction.
type Ledger struct {
	*core
}

func (l *Ledger) Balance(ctx context.Context, accountID uint) (*models.Balance, error) {
	var bal models.Balance
	if err := l.db.WithContext(ctx).Where("account_id = ?", accountID).First(&bal).Error; err != nil {
		return nil, lookupErr("balance", "balance of account", accountID, err)
	}
	return &bal, nil
}

func (l *Ledger) HasFunds(ctx context.Context, accountID uint, amt decimal.Decimal) (bool, error) {
	bal, err := l.Balance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return bal.HasFunds(amt), nil
}

// Credit adds amt to the account and recomputes VIP status.
func (l *Ledger) Credit(ctx context.Context, accountID uint, amt decimal.Decimal) (*models.Balance, error) {
	return l.mutate(ctx, "credit", accountID, amt, models.EntryCredit)
}

// Debit subtracts amt without checking funds. Callers validate with HasFunds first.
func (l *Ledger) Debit(ctx context.Context, accountID uint, amt decimal.Decimal) (*models.Balance, error) {
	return l.mutate(ctx, "debit", accountID, amt.Neg(), models.EntryDebit)
}

func (l *Ledger) Deposit(ctx context.Context, actor models.Actor, amt decimal.Decimal) (*models.Balance, error) {
	if !amt.IsPositive() {
		return nil, fail("deposit", ErrValidationFailed, "amount must be positive")
	}
	return l.mutate(ctx, "deposit", actor.AccountID, amt, models.EntryDeposit)
}

func (l *Ledger) Withdraw(ctx context.Context, actor models.Actor, amt decimal.Decimal) (*models.Balance, error) {
	const op = "withdraw"
	if !amt.IsPositive() {
		return nil, fail(op, ErrValidationFailed, "amount must be positive")
	}

	var bal *models.Balance
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := l.lockBalances(tx, op, actor.AccountID)
		if err != nil {
			return err
		}
		bal = locked[actor.AccountID]
		if !bal.HasFunds(amt) {
			return fail(op, ErrInsufficientFunds, "balance %s is below %s", bal.Amount, amt)
		}
		return l.apply(tx, bal, amt.Neg(), models.EntryWithdrawal, uuid.NewString(), "")
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// Entries returns the account's journal, newest first.
func (l *Ledger) Entries(ctx context.Context, accountID uint, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	q := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ledger entries: %w", err)
	}
	return entries, nil
}

func (l *Ledger) mutate(ctx context.Context, op string, accountID uint, delta decimal.Decimal, kind string) (*models.Balance, error) {
	var bal *models.Balance
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := l.lockBalances(tx, op, accountID)
		if err != nil {
			return err
		}
		bal = locked[accountID]
		return l.apply(tx, bal, delta, kind, uuid.NewString(), "")
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// lockBalances loads and row-locks the balances in ascending account order so
// two transfers between the same pair can never deadlock.
func (l *Ledger) lockBalances(tx *gorm.DB, op string, accountIDs ...uint) (map[uint]*models.Balance, error) {
	ids := make([]uint, 0, len(accountIDs))
	seen := make(map[uint]bool, len(accountIDs))
	for _, id := range accountIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(map[uint]*models.Balance, len(ids))
	for _, id := range ids {
		var bal models.Balance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("account_id = ?", id).First(&bal).Error
		if err != nil {
			return nil, lookupErr(op, "balance of account", id, err)
		}
		out[id] = &bal
	}
	return out, nil
}

// apply moves bal by delta, recomputes VIP and journals the movement.
func (l *Ledger) apply(tx *gorm.DB, bal *models.Balance, delta decimal.Decimal, kind, ref, subject string) error {
	if delta.IsNegative() {
		bal.Debit(delta.Neg())
	} else {
		bal.Credit(delta)
	}

	vip, err := l.vipStatus(tx, bal)
	if err != nil {
		return err
	}
	bal.IsVIP = vip

	err = tx.Model(&models.Balance{}).Where("id = ?", bal.ID).Updates(map[string]interface{}{
		"amount": bal.Amount,
		"is_vip": bal.IsVIP,
	}).Error
	if err != nil {
		return fmt.Errorf("update balance %d: %w", bal.AccountID, err)
	}

	entry := models.LedgerEntry{
		Reference:    ref,
		AccountID:    bal.AccountID,
		Kind:         kind,
		Amount:       delta.Round(models.MoneyPlaces),
		BalanceAfter: bal.Amount,
		Subject:      subject,
		CreatedAt:    l.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("journal %s for account %d: %w", kind, bal.AccountID, err)
	}
	metrics.LedgerMovements.WithLabelValues(kind).Inc()
	return nil
}

// vipStatus: a balance above the threshold is VIP. More than
// LoyaltyTransactions completed trades also make the account VIP, optionally
// only when it has never received a complaint.
func (l *Ledger) vipStatus(tx *gorm.DB, bal *models.Balance) (bool, error) {
	vip := bal.Amount.GreaterThan(l.policy.VIPThreshold)

	n, err := completedTransactions(tx, bal.AccountID)
	if err != nil {
		return false, err
	}
	if n <= int64(l.policy.LoyaltyTransactions) {
		return vip, nil
	}
	if !l.policy.LoyaltyRequiresCleanRecord {
		return true, nil
	}

	var complaints int64
	if err := tx.Model(&models.Complaint{}).Where("complainee_id = ?", bal.AccountID).Count(&complaints).Error; err != nil {
		return false, fmt.Errorf("count complaints: %w", err)
	}
	return vip || complaints == 0, nil
}

func completedTransactions(tx *gorm.DB, accountID uint) (int64, error) {
	var orders, requests, posts int64
	if err := tx.Model(&models.Order{}).
		Where("diner_id = ? AND status = ?", accountID, models.StatusComplete).
		Count(&orders).Error; err != nil {
		return 0, fmt.Errorf("count completed orders: %w", err)
	}
	if err := tx.Model(&models.DishRequest{}).
		Where("diner_id = ? AND status = ?", accountID, models.StatusComplete).
		Count(&requests).Error; err != nil {
		return 0, fmt.Errorf("count completed requests: %w", err)
	}
	if err := tx.Model(&models.DishPost{}).
		Where("chef_id = ? AND status = ?", accountID, models.StatusComplete).
		Count(&posts).Error; err != nil {
		return 0, fmt.Errorf("count completed posts: %w", err)
	}
	return orders + requests + posts, nil
}

// settlement is a validated, not yet applied, buyer to seller transfer.
type settlement struct {
	buyer   *models.Balance
	seller  *models.Balance
	nominal decimal.Decimal
	charged decimal.Decimal
}

// prepareSettlement locks both balances and checks the buyer can pay the
// nominal total, discounted when the buyer is VIP. Nothing is mutated.
func (l *Ledger) prepareSettlement(tx *gorm.DB, op string, buyerID, sellerID uint, nominal decimal.Decimal) (*settlement, error) {
	locked, err := l.lockBalances(tx, op, buyerID, sellerID)
	if err != nil {
		return nil, err
	}
	s := &settlement{
		buyer:   locked[buyerID],
		seller:  locked[sellerID],
		nominal: nominal.Round(models.MoneyPlaces),
		charged: nominal.Round(models.MoneyPlaces),
	}
	if s.buyer.IsVIP {
		s.charged = nominal.Mul(l.policy.VIPRate()).Round(models.MoneyPlaces)
	}
	if !s.buyer.HasFunds(s.charged) {
		return nil, fail(op, ErrInsufficientFunds, "buyer %d has %s, needs %s", buyerID, s.buyer.Amount, s.charged)
	}
	return s, nil
}

// commit debits the buyer the charged amount and credits the seller the
// nominal amount. The platform absorbs the VIP discount.
func (l *Ledger) commit(tx *gorm.DB, s *settlement, payKind, payoutKind, subject string) error {
	ref := uuid.NewString()
	if err := l.apply(tx, s.buyer, s.charged.Neg(), payKind, ref, subject); err != nil {
		return err
	}
	if err := l.apply(tx, s.seller, s.nominal, payoutKind, ref, subject); err != nil {
		return err
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"reference": ref,
		"subject":   subject,
		"buyer":     s.buyer.AccountID,
		"seller":    s.seller.AccountID,
		"charged":   s.charged.String(),
		"nominal":   s.nominal.String(),
	}).Info("settlement committed")
	return nil
}

// tip moves amt from rater to ratee when the rater can afford it. An
// unaffordable tip is skipped, not an error.
func (l *Ledger) tip(tx *gorm.DB, op string, fromID, toID uint, amt decimal.Decimal, subject string) (bool, error) {
	if !amt.IsPositive() {
		return false, nil
	}
	locked, err := l.lockBalances(tx, op, fromID, toID)
	if err != nil {
		return false, err
	}
	from, to := locked[fromID], locked[toID]
	if !from.HasFunds(amt) {
		utils.InfoLogger.WithFields(logrus.Fields{"from": fromID, "to": toID, "tip": amt.String()}).
			Info("tip skipped, insufficient funds")
		return false, nil
	}
	ref := uuid.NewString()
	if err := l.apply(tx, from, amt.Neg(), models.EntryTipPayment, ref, subject); err != nil {
		return false, err
	}
	if err := l.apply(tx, to, amt, models.EntryTipPayout, ref, subject); err != nil {
		return false, err
	}
	return true, nil
}
