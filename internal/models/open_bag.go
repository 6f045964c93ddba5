package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OpenBagStatus string

const (
	OpenBagOpen  OpenBagStatus = "OPEN"
	OpenBagEmpty OpenBagStatus = "EMPTY"
)

// OpenBag: açılmış çuval. Kapatma bir durum geçişidir, kayıt silinmez.
// (branch_id, product_id) için aynı anda tek OPEN kayıt olabilir (ux_open_bags_one_open).
type OpenBag struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	BranchID  uint    `gorm:"index;not null" json:"branch_id"`
	Branch    Branch  `json:"-"`
	ProductID uint    `gorm:"index;not null" json:"product_id"`
	Product   Product `json:"-"`

	OriginalWeight    decimal.Decimal     `gorm:"type:decimal(10,3);not null" json:"original_weight"`
	RemainingWeight   decimal.Decimal     `gorm:"type:decimal(10,3);not null" json:"remaining_weight"`
	LowStockThreshold decimal.NullDecimal `gorm:"type:decimal(10,3)" json:"low_stock_threshold"`

	Status  OpenBagStatus `gorm:"size:10;not null;index" json:"status"`
	Version int64         `gorm:"not null;default:1" json:"version"`

	OpenedAt time.Time  `gorm:"not null" json:"opened_at"`
	OpenedBy uint       `gorm:"not null" json:"opened_by"`
	ClosedAt *time.Time `json:"closed_at"`
	ClosedBy *uint      `json:"closed_by"`
	Notes    string     `gorm:"size:500" json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
