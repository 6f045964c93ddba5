// Package stock şube stok defteri: eldeki miktar ve değiştirilemez hareketler.
// Tüm yazmalar çağıranın transaction'ı içinde yapılır.
package stock

import (
	"context"
	"errors"
	"fmt"

	"petshop-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrZeroQuantity = errors.New("stok hareketi miktarı sıfır olamaz")

type Entry struct {
	BranchID      uint
	ProductID     uint
	Type          models.MovementType
	Quantity      decimal.Decimal // işaretli: çıkış negatif
	ReferenceType string
	ReferenceID   uint
	SaleReference string
	ActorID       uint
	Note          string
}

// Post: seviye satırını kilitler, eldeki miktarı günceller ve hareketi yazar.
// Eldeki miktar negatife düşebilir; stok değerleme bu paketin işi değil.
func Post(tx *gorm.DB, e Entry) (*models.StockMovement, error) {
	if e.Quantity.IsZero() {
		return nil, ErrZeroQuantity
	}

	level, err := lockLevel(tx, e.BranchID, e.ProductID)
	if err != nil {
		return nil, err
	}

	before := level.OnHand
	after := before.Add(e.Quantity)

	if err := tx.Model(&models.StockLevel{}).
		Where("id = ?", level.ID).
		Update("on_hand", after).Error; err != nil {
		return nil, fmt.Errorf("stok seviyesi güncellenemedi: %w", err)
	}

	mv := models.StockMovement{
		BranchID:      e.BranchID,
		ProductID:     e.ProductID,
		Type:          e.Type,
		Quantity:      e.Quantity,
		OnHandBefore:  before,
		OnHandAfter:   after,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		SaleReference: e.SaleReference,
		ActorID:       e.ActorID,
		Note:          e.Note,
	}
	if err := tx.Create(&mv).Error; err != nil {
		return nil, fmt.Errorf("stok hareketi yazılamadı: %w", err)
	}
	return &mv, nil
}

func lockLevel(tx *gorm.DB, branchID, productID uint) (*models.StockLevel, error) {
	find := func() (*models.StockLevel, error) {
		var lvl models.StockLevel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("branch_id = ? AND product_id = ?", branchID, productID).
			Limit(1).
			Find(&lvl).Error
		if err != nil {
			return nil, fmt.Errorf("stok seviyesi okunamadı: %w", err)
		}
		return &lvl, nil
	}

	lvl, err := find()
	if err != nil {
		return nil, err
	}
	if lvl.ID != 0 {
		return lvl, nil
	}

	// ilk hareket: satırı sıfırla aç, yarışta kaybeden DO NOTHING ile devam eder
	seed := models.StockLevel{BranchID: branchID, ProductID: productID, OnHand: decimal.Zero}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("stok seviyesi oluşturulamadı: %w", err)
	}
	return find()
}

func OnHand(ctx context.Context, db *gorm.DB, branchID, productID uint) (decimal.Decimal, error) {
	var lvl models.StockLevel
	err := db.WithContext(ctx).
		Where("branch_id = ? AND product_id = ?", branchID, productID).
		Limit(1).
		Find(&lvl).Error
	if err != nil {
		return decimal.Zero, err
	}
	return lvl.OnHand, nil
}

type MovementFilter struct {
	BranchID  uint
	ProductID uint
	Type      models.MovementType
	Limit     int
}

func Movements(ctx context.Context, db *gorm.DB, f MovementFilter) ([]models.StockMovement, error) {
	q := db.WithContext(ctx).Model(&models.StockMovement{}).Where("branch_id = ?", f.BranchID)
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	var out []models.StockMovement
	err := q.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func Levels(ctx context.Context, db *gorm.DB, branchID uint) ([]models.StockLevel, error) {
	var out []models.StockLevel
	err := db.WithContext(ctx).Where("branch_id = ?", branchID).Order("product_id").Find(&out).Error
	return out, err
}
