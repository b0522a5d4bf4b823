package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is created only when a Bid is accepted. Deleting the Bid deletes the Order.
type Order struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	DinerID     *uint          `gorm:"index" json:"diner_id"`
	Diner       *Account       `gorm:"foreignKey:DinerID;constraint:OnDelete:SET NULL" json:"-"`
	DishPostID  uint           `gorm:"index;not null" json:"dish_post_id"`
	DishPost    *DishPost      `gorm:"foreignKey:DishPostID;constraint:OnDelete:RESTRICT" json:"-"`
	BidID       uint           `gorm:"uniqueIndex;not null" json:"bid_id"`
	Bid         Bid            `gorm:"foreignKey:BidID;constraint:OnDelete:CASCADE" json:"bid"`
	NumServings int            `gorm:"not null;default:1" json:"num_servings"`
	DinerRated  bool           `gorm:"not null;default:false" json:"diner_rated"`
	ChefRated   bool           `gorm:"not null;default:false" json:"chef_rated"`
	Status      ListingStatus  `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Feedback    *OrderFeedback `gorm:"foreignKey:OrderID" json:"feedback,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Total needs Bid loaded.
func (o *Order) Total() decimal.Decimal {
	return o.Bid.Total()
}

// OrderFeedback belongs either to an Order or, for offer-driven trades, to a DishRequest.
type OrderFeedback struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       *uint           `gorm:"uniqueIndex" json:"order_id,omitempty"`
	DishRequestID *uint           `gorm:"uniqueIndex" json:"dish_request_id,omitempty"`
	Feedback      string          `gorm:"type:text;not null" json:"feedback"`
	Tip           decimal.Decimal `gorm:"type:decimal(17,6);not null;default:0" json:"tip"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}
