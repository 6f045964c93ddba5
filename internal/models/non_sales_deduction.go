package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Yeni tipler sadece eklenir; bir tipi kaldırmak veri taşımalı bir migration ister.
type DeductionType string

const (
	DeductionFreeSample DeductionType = "FREE_SAMPLE"
	DeductionDonation   DeductionType = "DONATION"
)

func (t DeductionType) Valid() bool {
	switch t {
	case DeductionFreeSample, DeductionDonation:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// NonSalesDeduction: satış dışı stok düşümü (numune, bağış). Sadece onay stoğu etkiler.
type NonSalesDeduction struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	BranchID  uint    `gorm:"index;not null" json:"branch_id"`
	Branch    Branch  `json:"-"`
	ProductID uint    `gorm:"index;not null" json:"product_id"`
	Product   Product `json:"-"`

	Quantity      decimal.Decimal `gorm:"type:decimal(10,3);not null" json:"quantity"`
	DeductionType DeductionType   `gorm:"size:20;not null" json:"deduction_type"`
	Reason        string          `gorm:"size:500" json:"reason"`
	Recipient     string          `gorm:"size:255" json:"recipient"`
	FromOpenBag   bool            `gorm:"not null;default:false" json:"from_open_bag"`
	RequestedBy   uint            `gorm:"not null" json:"requested_by"`

	ApprovalStatus  ApprovalStatus `gorm:"size:10;not null;index" json:"approval_status"`
	ApprovedBy      *uint          `json:"approved_by"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	RejectionReason string         `gorm:"size:500" json:"rejection_reason"`
	StockMovementID *uint          `json:"stock_movement_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
