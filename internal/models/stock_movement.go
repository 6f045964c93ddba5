package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType açık bir enum: yeni değer eklenir, var olan silinmez.
type MovementType string

const (
	MovementLooseSale  MovementType = "LOOSE_SALE"
	MovementFreeSample MovementType = "FREE_SAMPLE"
	MovementDonation   MovementType = "DONATION"
	MovementBagOpened  MovementType = "BAG_OPENED"
	MovementBagClosed  MovementType = "BAG_CLOSED"   // kapanışta kalan ağırlığın düşümü
	MovementCount      MovementType = "COUNT_ADJUST" // sayım farkı, işaretli
)

// StockLevel: şube bazında eldeki miktar
type StockLevel struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	BranchID  uint            `gorm:"uniqueIndex:ux_stock_levels_branch_product;not null" json:"branch_id"`
	ProductID uint            `gorm:"uniqueIndex:ux_stock_levels_branch_product;not null" json:"product_id"`
	OnHand    decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0" json:"on_hand"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StockMovement: değiştirilemez stok hareketi. Quantity işaretlidir (çıkış negatif).
type StockMovement struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	BranchID      uint            `gorm:"index;not null" json:"branch_id"`
	ProductID     uint            `gorm:"index;not null" json:"product_id"`
	Type          MovementType    `gorm:"size:20;not null;index" json:"type"`
	Quantity      decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	OnHandBefore  decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"on_hand_before"`
	OnHandAfter   decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"on_hand_after"`
	ReferenceType string          `gorm:"size:50" json:"reference_type"` // open_bag, non_sales_deduction, stock_count
	ReferenceID   uint            `gorm:"index" json:"reference_id"`
	SaleReference string          `gorm:"size:100" json:"sale_reference"`
	ActorID       uint            `json:"actor_id"`
	Note          string          `gorm:"size:255" json:"note"`
	CreatedAt     time.Time       `json:"created_at"`
}
