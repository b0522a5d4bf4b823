package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

// Status listing (DishPost, DishRequest) dan Order
const (
	StatusOpen            ListingStatus = "open"
	StatusPendingFeedback ListingStatus = "pending_feedback"
	StatusAccepted        ListingStatus = "accepted"
	StatusCancelled       ListingStatus = "cancelled"
	StatusComplete        ListingStatus = "complete"
)

// Terminal reports whether no engine operation may move out of s.
func (s ListingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusComplete
}

// Dish is the template shared by posts and requests. Label is the opaque
// classification tag produced by the external labeler.
type Dish struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:varchar(128);not null" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Label        string          `gorm:"type:varchar(255)" json:"label"`
	DefaultPrice decimal.Decimal `gorm:"type:decimal(17,6)" json:"default_price"`
	ServingSize  decimal.Decimal `gorm:"type:decimal(4,1);not null;default:1" json:"serving_size"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DishPost is a chef's listing; diners bid on it.
type DishPost struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ChefID      *uint           `gorm:"index" json:"chef_id"`
	Chef        *Account        `gorm:"foreignKey:ChefID;constraint:OnDelete:SET NULL" json:"-"`
	DishID      uint            `gorm:"not null" json:"dish_id"`
	Dish        Dish            `gorm:"foreignKey:DishID;constraint:OnDelete:RESTRICT" json:"dish"`
	MinPrice    decimal.Decimal `gorm:"type:decimal(17,6);not null" json:"min_price"`
	MaxServings int             `gorm:"not null;default:1" json:"max_servings"`
	ServingSize decimal.Decimal `gorm:"type:decimal(4,1);not null" json:"serving_size"`
	LastCall    time.Time       `gorm:"not null" json:"last_call"`
	MealTime    time.Time       `gorm:"not null" json:"meal_time"`
	Latitude    decimal.Decimal `gorm:"type:decimal(9,6);not null;default:0" json:"latitude"`
	Longitude   decimal.Decimal `gorm:"type:decimal(9,6);not null;default:0" json:"longitude"`
	Status      ListingStatus   `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Bids        []Bid           `gorm:"foreignKey:DishPostID" json:"bids,omitempty"`
	Orders      []Order         `gorm:"foreignKey:DishPostID" json:"orders,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ServingsOrdered sums the servings of the loaded Orders.
func (p *DishPost) ServingsOrdered() int {
	total := 0
	for _, o := range p.Orders {
		total += o.NumServings
	}
	return total
}

// AvailableServings needs Orders preloaded.
func (p *DishPost) AvailableServings() int {
	if p.Status == StatusComplete {
		return 0
	}
	return p.MaxServings - p.ServingsOrdered()
}

// DishRequest is a diner's listing; chefs make offers on it.
type DishRequest struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	DinerID     *uint           `gorm:"index" json:"diner_id"`
	Diner       *Account        `gorm:"foreignKey:DinerID;constraint:OnDelete:SET NULL" json:"-"`
	DishID      uint            `gorm:"not null" json:"dish_id"`
	Dish        Dish            `gorm:"foreignKey:DishID;constraint:OnDelete:RESTRICT" json:"dish"`
	PortionSize decimal.Decimal `gorm:"type:decimal(4,1);not null" json:"portion_size"`
	NumServings int             `gorm:"not null;default:1" json:"num_servings"`
	MinPrice    decimal.Decimal `gorm:"type:decimal(17,6);not null" json:"min_price"`
	MealTime    time.Time       `gorm:"not null" json:"meal_time"`
	Latitude    decimal.Decimal `gorm:"type:decimal(9,6);not null;default:0" json:"latitude"`
	Longitude   decimal.Decimal `gorm:"type:decimal(9,6);not null;default:0" json:"longitude"`
	Status      ListingStatus   `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Offers      []Offer         `gorm:"foreignKey:DishRequestID" json:"offers,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (r *DishRequest) Total() decimal.Decimal {
	return r.MinPrice.Mul(decimal.NewFromInt(int64(r.NumServings)))
}
