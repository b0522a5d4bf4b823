package models

import "time"

// Rating is a directed rater -> ratee score in 1..5. Struck ratings were already
// consumed by a suspension or flag decision.
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RaterID   *uint     `gorm:"index" json:"rater_id"`
	RateeID   *uint     `gorm:"index" json:"ratee_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Struck    bool      `gorm:"not null;default:false" json:"struck"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

type ReviewStatus string

const (
	ReviewPending ReviewStatus = "pending"
	ReviewClosed  ReviewStatus = "closed"
)

type Complaint struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	ComplainantID uint         `gorm:"index;not null" json:"complainant_id"`
	ComplaineeID  uint         `gorm:"index;not null" json:"complainee_id"`
	OrderID       uint         `gorm:"uniqueIndex;not null" json:"order_id"`
	Order         *Order       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	Description   string       `gorm:"type:text;not null" json:"description"`
	Struck        bool         `gorm:"not null;default:false" json:"struck"`
	Status        ReviewStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
}

type FlagReason string

// Alasan red flag
const (
	FlagCritical FlagReason = "critical"
	FlagGenerous FlagReason = "generous"
)

type RedFlag struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	AccountID uint         `gorm:"index;not null" json:"account_id"`
	Reason    FlagReason   `gorm:"type:varchar(20);not null" json:"reason"`
	Status    ReviewStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealDenied   AppealStatus = "denied"
)

// RemoveSuspensionRequest is a suspended user's appeal to an admin.
type RemoveSuspensionRequest struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	AccountID     uint         `gorm:"index;not null" json:"account_id"`
	Justification string       `gorm:"type:text;not null" json:"justification"`
	Status        AppealStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
