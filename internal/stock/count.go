package stock

import (
	"context"
	"errors"
	"fmt"

	"petshop-backend/internal/audit"
	"petshop-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNegativeCount  = errors.New("sayım miktarı negatif olamaz")
	ErrUnknownBranch  = errors.New("şube bulunamadı")
	ErrUnknownProduct = errors.New("ürün bulunamadı")
)

// CountInput: elle yapılan stok sayımı. Counted yeni eldeki miktardır.
type CountInput struct {
	BranchID  uint
	ProductID uint
	Counted   decimal.Decimal
	ActorID   uint
	ActorName string
	Note      string
}

type CountResult struct {
	OnHandBefore decimal.Decimal       `json:"on_hand_before"`
	Counted      decimal.Decimal       `json:"counted"`
	Movement     *models.StockMovement `json:"movement"` // fark yoksa nil
}

// Count: sayım ile defter arasındaki farkı COUNT_ADJUST hareketi olarak yazar.
// Fark sıfırsa hareket yazılmaz.
func Count(ctx context.Context, db *gorm.DB, in CountInput) (*CountResult, error) {
	if in.Counted.IsNegative() {
		return nil, ErrNegativeCount
	}

	res := &CountResult{Counted: in.Counted}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mustExist(tx, &models.Branch{}, in.BranchID, ErrUnknownBranch); err != nil {
			return err
		}
		if err := mustExist(tx, &models.Product{}, in.ProductID, ErrUnknownProduct); err != nil {
			return err
		}

		level, err := lockLevel(tx, in.BranchID, in.ProductID)
		if err != nil {
			return err
		}
		res.OnHandBefore = level.OnHand

		delta := in.Counted.Sub(level.OnHand)
		if delta.IsZero() {
			return nil
		}

		mv, err := Post(tx, Entry{
			BranchID:      in.BranchID,
			ProductID:     in.ProductID,
			Type:          models.MovementCount,
			Quantity:      delta,
			ReferenceType: "stock_count",
			ActorID:       in.ActorID,
			Note:          in.Note,
		})
		if err != nil {
			return err
		}
		res.Movement = mv

		branchID := in.BranchID
		return audit.WriteLog(tx, audit.LogOptions{
			BranchID:    &branchID,
			UserID:      in.ActorID,
			UserName:    in.ActorName,
			EntityType:  "stock_count",
			EntityID:    mv.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Stok sayımı: ürün #%d %s -> %s", in.ProductID, level.OnHand.String(), in.Counted.String()),
			Before:      map[string]any{"on_hand": level.OnHand},
			After:       mv,
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func mustExist(tx *gorm.DB, model any, id uint, notFound error) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
