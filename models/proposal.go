package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

// Status bid dan offer
const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// Bid is a diner's proposal against a DishPost.
type Bid struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	DinerID     *uint           `gorm:"index" json:"diner_id"`
	Diner       *Account        `gorm:"foreignKey:DinerID;constraint:OnDelete:SET NULL" json:"-"`
	DishPostID  uint            `gorm:"index;not null" json:"dish_post_id"`
	DishPost    *DishPost       `gorm:"foreignKey:DishPostID;constraint:OnDelete:CASCADE" json:"-"`
	NumServings int             `gorm:"not null;default:1" json:"num_servings"`
	Price       decimal.Decimal `gorm:"type:decimal(17,6);not null" json:"price"`
	Status      ProposalStatus  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (b *Bid) Total() decimal.Decimal {
	return b.Price.Mul(decimal.NewFromInt(int64(b.NumServings)))
}

// Offer is a chef's proposal against a DishRequest.
type Offer struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ChefID        *uint           `gorm:"index" json:"chef_id"`
	Chef          *Account        `gorm:"foreignKey:ChefID;constraint:OnDelete:SET NULL" json:"-"`
	DishRequestID uint            `gorm:"index;not null" json:"dish_request_id"`
	DishRequest   *DishRequest    `gorm:"foreignKey:DishRequestID;constraint:OnDelete:CASCADE" json:"-"`
	Price         decimal.Decimal `gorm:"type:decimal(17,6);not null" json:"price"`
	Status        ProposalStatus  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Total needs DishRequest loaded.
func (o *Offer) Total() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(int64(o.DishRequest.NumServings)))
}
