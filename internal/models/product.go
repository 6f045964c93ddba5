package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product: katalog ürünü. Tartılı (açık satış) ürünler terazi alanlarını kullanır.
type Product struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:100;not null;unique" json:"name"`
	Unit      string `gorm:"size:20;not null" json:"unit"` // kg, adet, paket
	StockCode string `gorm:"size:50;index" json:"stock_code"`
	Active    bool   `gorm:"not null;default:true" json:"active"`

	IsWeighable   bool            `gorm:"not null;default:false" json:"is_weighable"`
	ExportToScale bool            `gorm:"not null;default:false;index" json:"export_to_scale"`
	ScalePLU      *int            `gorm:"uniqueIndex" json:"scale_plu"` // 1-99999, terazide benzersiz
	PricePerUnit  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price_per_unit"`

	// null: dara düşülmez
	TareWeight decimal.NullDecimal `gorm:"type:decimal(10,3)" json:"tare_weight"`
	// Açık çuval eşiği verilmezse bu değer kullanılır
	LowStockThresholdDefault decimal.NullDecimal `gorm:"type:decimal(10,3)" json:"low_stock_threshold_default"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terazinin kabul ettiği PLU aralığı
const (
	MinScalePLU = 1
	MaxScalePLU = 99999
)

// ValidPLU: PLU tanımlı ve aralıkta mı
func (p Product) ValidPLU() bool {
	return p.ScalePLU != nil && *p.ScalePLU >= MinScalePLU && *p.ScalePLU <= MaxScalePLU
}
