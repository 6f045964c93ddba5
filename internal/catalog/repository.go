// Package catalog ürün kataloğu: terazi aktarımı ve satış için salt okunur sorgular,
// tartılı ürün ayarlarının yönetimi.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"petshop-backend/internal/audit"
	"petshop-backend/internal/database"
	"petshop-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("ürün bulunamadı")
	ErrInvalidProduct  = errors.New("geçersiz ürün bilgisi")
	ErrPLUOutOfRange   = errors.New("scale_plu 1-99999 aralığında olmalı")
	ErrPLURequired     = errors.New("teraziye aktarılacak ürün için scale_plu zorunlu")
	ErrPLUTaken        = errors.New("bu scale_plu başka bir ürüne ait")
	ErrNegativeWeight  = errors.New("ağırlık alanları negatif olamaz")
	ErrDuplicateName   = errors.New("bu isimde ürün zaten var")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// EligibleForScale: tartılı, aktarım işaretli ve aktif ürünler. PLU'su eksik olanlar da döner,
// onları aktarım atlar ve raporlar.
func (r *Repository) EligibleForScale(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := r.db.WithContext(ctx).
		Where("is_weighable = ? AND export_to_scale = ? AND active = ?", true, true, true).
		Order("scale_plu ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("aktarıma uygun ürünler okunamadı: %w", err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id uint) (*models.Product, error) {
	return get(r.db.WithContext(ctx), id)
}

// GetTx: çağıranın transaction'ı içinde ürün okur
func GetTx(tx *gorm.DB, id uint) (*models.Product, error) {
	return get(tx, id)
}

func get(db *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	err := db.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ürün okunamadı: %w", err)
	}
	return &p, nil
}

type ListFilter struct {
	WeighableOnly   bool
	IncludeInactive bool
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if f.WeighableOnly {
		q = q.Where("is_weighable = ?", true)
	}
	if !f.IncludeInactive {
		q = q.Where("active = ?", true)
	}
	var out []models.Product
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("ürünler listelenemedi: %w", err)
	}
	return out, nil
}

type NewProduct struct {
	Name         string
	Unit         string
	StockCode    string
	IsWeighable  bool
	PricePerUnit decimal.Decimal
}

func (r *Repository) Create(ctx context.Context, in NewProduct, actor Actor) (*models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	in.StockCode = strings.TrimSpace(in.StockCode)
	if in.Name == "" || in.Unit == "" {
		return nil, fmt.Errorf("%w: name ve unit zorunlu", ErrInvalidProduct)
	}
	if in.PricePerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: price_per_unit negatif olamaz", ErrInvalidProduct)
	}

	p := models.Product{
		Name:         in.Name,
		Unit:         in.Unit,
		StockCode:    in.StockCode,
		Active:       true,
		IsWeighable:  in.IsWeighable,
		PricePerUnit: in.PricePerUnit,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateName
			}
			return fmt.Errorf("ürün oluşturulamadı: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Ürün oluşturuldu: %s", p.Name),
			After:       p,
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ScaleSettings: nil alan değişmez. ClearPLU/ClearTare/ClearThreshold alanı null yapar.
type ScaleSettings struct {
	IsWeighable              *bool
	ExportToScale            *bool
	ScalePLU                 *int
	ClearPLU                 bool
	PricePerUnit             *decimal.Decimal
	TareWeight               *decimal.Decimal
	ClearTare                bool
	LowStockThresholdDefault *decimal.Decimal
	ClearThreshold           bool
	Active                   *bool
}

type Actor struct {
	UserID uint
	Name   string
}

// UpdateScaleSettings: PLU aralığı ve benzersizliği, aktarım için PLU zorunluluğu, dara >= 0
func (r *Repository) UpdateScaleSettings(ctx context.Context, id uint, s ScaleSettings, actor Actor) (*models.Product, error) {
	var updated models.Product

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := get(tx, id)
		if err != nil {
			return err
		}
		before := *p

		if s.IsWeighable != nil {
			p.IsWeighable = *s.IsWeighable
		}
		if s.ExportToScale != nil {
			p.ExportToScale = *s.ExportToScale
		}
		if s.Active != nil {
			p.Active = *s.Active
		}
		if s.ClearPLU {
			p.ScalePLU = nil
		} else if s.ScalePLU != nil {
			plu := *s.ScalePLU
			p.ScalePLU = &plu
		}
		if s.PricePerUnit != nil {
			if s.PricePerUnit.IsNegative() {
				return fmt.Errorf("%w: price_per_unit negatif olamaz", ErrInvalidProduct)
			}
			p.PricePerUnit = *s.PricePerUnit
		}
		if s.ClearTare {
			p.TareWeight = decimal.NullDecimal{}
		} else if s.TareWeight != nil {
			if s.TareWeight.IsNegative() {
				return ErrNegativeWeight
			}
			p.TareWeight = decimal.NewNullDecimal(*s.TareWeight)
		}
		if s.ClearThreshold {
			p.LowStockThresholdDefault = decimal.NullDecimal{}
		} else if s.LowStockThresholdDefault != nil {
			if s.LowStockThresholdDefault.IsNegative() {
				return ErrNegativeWeight
			}
			p.LowStockThresholdDefault = decimal.NewNullDecimal(*s.LowStockThresholdDefault)
		}

		if p.ScalePLU != nil && !p.ValidPLU() {
			return ErrPLUOutOfRange
		}
		if p.ExportToScale && p.ScalePLU == nil {
			return ErrPLURequired
		}
		if p.ScalePLU != nil {
			var count int64
			if err := tx.Model(&models.Product{}).
				Where("scale_plu = ? AND id <> ?", *p.ScalePLU, p.ID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("PLU kontrolü yapılamadı: %w", err)
			}
			if count > 0 {
				return ErrPLUTaken
			}
		}

		// Select("*"): false/nil değerler de yazılsın
		if err := tx.Model(p).Select("*").Omit("created_at").Updates(p).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrPLUTaken
			}
			return fmt.Errorf("ürün güncellenemedi: %w", err)
		}

		if err := audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  "product",
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Terazi ayarları güncellendi: %s", p.Name),
			Before:      before,
			After:       p,
		}); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
