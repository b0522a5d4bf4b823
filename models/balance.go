package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for every monetary amount.
const MoneyPlaces = 6

// Balance is owned by exactly one Account and only changes through Credit/Debit.
type Balance struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	AccountID uint            `gorm:"uniqueIndex;not null" json:"account_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(17,6);not null;default:0" json:"amount"`
	IsVIP     bool            `gorm:"column:is_vip;not null;default:false" json:"is_vip"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (b *Balance) Credit(amt decimal.Decimal) {
	b.Amount = b.Amount.Add(amt).Round(MoneyPlaces)
}

// Debit does not guard against overdraft; callers check HasFunds first.
func (b *Balance) Debit(amt decimal.Decimal) {
	b.Amount = b.Amount.Sub(amt).Round(MoneyPlaces)
}

func (b *Balance) HasFunds(amt decimal.Decimal) bool {
	return b.Amount.GreaterThanOrEqual(amt)
}

// Jenis mutasi saldo
const (
	EntryDeposit      = "deposit"
	EntryWithdrawal   = "withdrawal"
	EntryCredit       = "credit"
	EntryDebit        = "debit"
	EntryBidPayment   = "bid_payment"
	EntryBidPayout    = "bid_payout"
	EntryOfferPayment = "offer_payment"
	EntryOfferPayout  = "offer_payout"
	EntryTipPayment   = "tip_payment"
	EntryTipPayout    = "tip_payout"
)

// LedgerEntry is an append-only journal line; the two legs of one transfer share a Reference.
type LedgerEntry struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Reference    string          `gorm:"type:varchar(36);index;not null" json:"reference"`
	AccountID    uint            `gorm:"index;not null" json:"account_id"`
	Kind         string          `gorm:"type:varchar(20);not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"type:decimal(17,6);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(17,6);not null" json:"balance_after"`
	Subject      string          `gorm:"type:varchar(64);index" json:"subject"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}
