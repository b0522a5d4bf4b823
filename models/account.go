package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoleSet adalah kumpulan kapabilitas yang dimiliki satu akun.
type RoleSet uint8

const (
	RoleDiner RoleSet = 1 << iota
	RoleChef
	RoleAdmin
)

// Has reports whether every role in r is present in s.
func (s RoleSet) Has(r RoleSet) bool {
	return r != 0 && s&r == r
}

func (s RoleSet) Names() []string {
	names := make([]string, 0, 3)
	if s.Has(RoleDiner) {
		names = append(names, "diner")
	}
	if s.Has(RoleChef) {
		names = append(names, "chef")
	}
	if s.Has(RoleAdmin) {
		names = append(names, "admin")
	}
	return names
}

// ParseRole maps a role name to its capability bit; unknown names map to 0.
func ParseRole(name string) RoleSet {
	switch name {
	case "diner":
		return RoleDiner
	case "chef":
		return RoleChef
	case "admin":
		return RoleAdmin
	}
	return 0
}

// Actor is the caller identity every engine operation runs on behalf of.
type Actor struct {
	AccountID uint
	Roles     RoleSet
}

func (a Actor) Can(r RoleSet) bool {
	return a.Roles.Has(r)
}

type Account struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Username   string          `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Email      string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password   string          `gorm:"type:varchar(255);not null" json:"-"`
	Roles      RoleSet         `gorm:"not null;default:1" json:"roles"`
	Active     bool            `gorm:"not null;default:true" json:"active"`
	Latitude   decimal.Decimal `gorm:"type:decimal(9,6);not null;default:0" json:"latitude"`
	Longitude  decimal.Decimal `gorm:"type:decimal(9,6);not null;default:0" json:"longitude"`
	Balance    *Balance        `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"balance,omitempty"`
	Suspension *SuspensionInfo `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"suspension,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (a *Account) Actor() Actor {
	return Actor{AccountID: a.ID, Roles: a.Roles}
}

// SuspensionInfo menyimpan status suspend dan jumlah suspend seumur hidup akun.
type SuspensionInfo struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"uniqueIndex;not null" json:"account_id"`
	Suspended bool      `gorm:"not null;default:false" json:"suspended"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *SuspensionInfo) Suspend() {
	s.Suspended = true
	s.Count++
}
