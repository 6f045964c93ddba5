// Package openbag açık satış için açılmış çuvalların defteri.
//
// Eşzamanlılık: iyimser sürüm kontrolü. Her yazma open_bags.version'ı artırır ve
// "WHERE id = ? AND version = ? AND status = 'OPEN'" koşuluyla yapılır. Koşul tutmazsa
// ErrConcurrentModification döner; çağıran aynı isteği tekrar gönderebilir, defter
// kendisi yeniden denemez.
package openbag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"petshop-backend/internal/alert"
	"petshop-backend/internal/audit"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/database"
	"petshop-backend/internal/metrics"
	"petshop-backend/internal/models"
	"petshop-backend/internal/stock"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Actor struct {
	UserID uint
	Name   string
}

// LowStockSignal: kalan ağırlık eşiğin altına indi (geçiş başına bir kez)
type LowStockSignal struct {
	BagID           uint            `json:"bag_id"`
	BranchID        uint            `json:"branch_id"`
	ProductID       uint            `json:"product_id"`
	RemainingWeight decimal.Decimal `json:"remaining_weight"`
	Threshold       decimal.Decimal `json:"threshold"`
}

type DecrementResult struct {
	Bag      models.OpenBag
	Movement *models.StockMovement
	Signal   *LowStockSignal
}

type Ledger struct {
	db        *gorm.DB
	publisher alert.Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewLedger(db *gorm.DB, pub alert.Publisher, m *metrics.Metrics, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = alert.LogPublisher{Logger: log}
	}
	return &Ledger{
		db:        db,
		publisher: pub,
		metrics:   m,
		log:       log.With(slog.String("component", "open_bag_ledger")),
	}
}

// EffectiveThreshold: çuval eşiği, yoksa ürün varsayılanı
func EffectiveThreshold(bag models.OpenBag, p models.Product) decimal.NullDecimal {
	if bag.LowStockThreshold.Valid {
		return bag.LowStockThreshold
	}
	return p.LowStockThresholdDefault
}

// crossedBelow: before >= eşik > after
func crossedBelow(before, after decimal.Decimal, thr decimal.NullDecimal) bool {
	return thr.Valid && before.GreaterThanOrEqual(thr.Decimal) && after.LessThan(thr.Decimal)
}

type OpenRequest struct {
	BranchID          uint
	ProductID         uint
	OriginalWeight    decimal.Decimal
	LowStockThreshold *decimal.Decimal
	Notes             string
}

// Open: yeni OPEN çuval. Aynı (şube, ürün) için açık çuval varsa ErrDuplicateOpenBag.
func (l *Ledger) Open(ctx context.Context, in OpenRequest, actor Actor) (*models.OpenBag, error) {
	if !in.OriginalWeight.IsPositive() {
		return nil, ErrInvalidWeight
	}
	if in.LowStockThreshold != nil && in.LowStockThreshold.IsNegative() {
		return nil, ErrInvalidThreshold
	}

	bag := models.OpenBag{
		BranchID:        in.BranchID,
		ProductID:       in.ProductID,
		OriginalWeight:  in.OriginalWeight,
		RemainingWeight: in.OriginalWeight,
		Status:          models.OpenBagOpen,
		Version:         1,
		OpenedAt:        time.Now(),
		OpenedBy:        actor.UserID,
		Notes:           in.Notes,
	}
	if in.LowStockThreshold != nil {
		bag.LowStockThreshold = decimal.NewNullDecimal(*in.LowStockThreshold)
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := tx.First(&branch, "id = ?", in.BranchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBranchNotFound
			}
			return err
		}

		product, err := catalog.GetTx(tx, in.ProductID)
		if err != nil {
			return err
		}
		if !product.IsWeighable {
			return ErrNotWeighable
		}

		var open int64
		if err := tx.Model(&models.OpenBag{}).
			Where("branch_id = ? AND product_id = ? AND status = ?", in.BranchID, in.ProductID, models.OpenBagOpen).
			Count(&open).Error; err != nil {
			return fmt.Errorf("açık çuval kontrolü yapılamadı: %w", err)
		}
		if open > 0 {
			return ErrDuplicateOpenBag
		}

		// ön kontrol ile insert arasındaki yarışı partial unique index yakalar
		if err := tx.Create(&bag).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateOpenBag
			}
			return fmt.Errorf("çuval kaydedilemedi: %w", err)
		}

		if _, err := stock.Post(tx, stock.Entry{
			BranchID:      bag.BranchID,
			ProductID:     bag.ProductID,
			Type:          models.MovementBagOpened,
			Quantity:      bag.OriginalWeight,
			ReferenceType: "open_bag",
			ReferenceID:   bag.ID,
			ActorID:       actor.UserID,
		}); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			BranchID:    &bag.BranchID,
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  "open_bag",
			EntityID:    bag.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Çuval açıldı: %s - %s kg", product.Name, bag.OriginalWeight.StringFixed(3)),
			After:       bag,
		})
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateOpenBag) {
			l.log.InfoContext(ctx, "çuval açma reddedildi",
				slog.Uint64("branch_id", uint64(in.BranchID)),
				slog.Uint64("product_id", uint64(in.ProductID)),
				slog.String("reason", err.Error()),
			)
		}
		return nil, err
	}
	return &bag, nil
}

// DecrementInput: düşümün stok hareketine yansıması. Boş alanlar satış varsayılanlarını alır.
type DecrementInput struct {
	Quantity      decimal.Decimal
	Type          models.MovementType
	ReferenceType string
	ReferenceID   uint
	SaleReference string
	Note          string
	Actor         Actor
}

// Decrement: kalan ağırlığı atomik olarak azaltır. Kalan sıfıra inerse çuval OPEN kalır;
// kapatma insan onayı ister. Eşik altı sinyali commit sonrası yayınlanır.
func (l *Ledger) Decrement(ctx context.Context, bagID uint, in DecrementInput) (*DecrementResult, error) {
	if !in.Quantity.IsPositive() {
		l.metrics.BagDecrement("invalid")
		return nil, ErrInvalidQuantity
	}

	var res *DecrementResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bag, err := getBag(tx, bagID)
		if err != nil {
			return err
		}
		res, err = decrementLoaded(tx, bag, in)
		return err
	})
	l.finish(ctx, bagID, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DrawTx: (şube, ürün) için açık çuvaldan çağıranın transaction'ı içinde düşer.
// Sinyal yayını çağıranın commit'inden sonra Notify ile yapılır.
func DrawTx(tx *gorm.DB, branchID, productID uint, in DecrementInput) (*DecrementResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	bag, err := currentBag(tx, branchID, productID)
	if err != nil {
		return nil, err
	}
	return decrementLoaded(tx, bag, in)
}

// Notify: DrawTx sonucunu metrik ve uyarıya dönüştürür
func (l *Ledger) Notify(ctx context.Context, res *DecrementResult, err error) {
	var bagID uint
	if res != nil {
		bagID = res.Bag.ID
	}
	l.finish(ctx, bagID, res, err)
}

func (l *Ledger) finish(ctx context.Context, bagID uint, res *DecrementResult, err error) {
	switch {
	case err == nil:
		l.metrics.BagDecrement("ok")
	case errors.Is(err, ErrInsufficientRemaining):
		l.metrics.BagDecrement("insufficient")
		l.log.InfoContext(ctx, "çuval düşümü reddedildi", slog.Uint64("bag_id", uint64(bagID)), slog.String("reason", err.Error()))
		return
	case errors.Is(err, ErrConcurrentModification):
		l.metrics.BagDecrement("conflict")
		l.log.InfoContext(ctx, "çuval düşümü çakıştı", slog.Uint64("bag_id", uint64(bagID)))
		return
	case errors.Is(err, ErrBagClosed):
		l.metrics.BagDecrement("closed")
		return
	default:
		l.metrics.BagDecrement("error")
		return
	}

	if res == nil || res.Signal == nil {
		return
	}
	l.metrics.LowStockSignal()
	sig := *res.Signal
	if pubErr := l.publisher.Publish(context.WithoutCancel(ctx), alert.Event{
		Kind:     alert.KindLowStock,
		BranchID: sig.BranchID,
		At:       time.Now(),
		Payload:  sig,
	}); pubErr != nil {
		l.log.WarnContext(ctx, "düşük stok sinyali yayınlanamadı", slog.Uint64("bag_id", uint64(sig.BagID)), slog.Any("error", pubErr))
	}
}

func decrementLoaded(tx *gorm.DB, bag *models.OpenBag, in DecrementInput) (*DecrementResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if bag.Status != models.OpenBagOpen {
		return nil, ErrBagClosed
	}
	if in.Quantity.GreaterThan(bag.RemainingWeight) {
		return nil, &InsufficientRemainingError{Remaining: bag.RemainingWeight, Requested: in.Quantity}
	}

	before := bag.RemainingWeight
	after := before.Sub(in.Quantity)

	upd := tx.Model(&models.OpenBag{}).
		Where("id = ? AND version = ? AND status = ?", bag.ID, bag.Version, models.OpenBagOpen).
		Updates(map[string]any{
			"remaining_weight": after,
			"version":          bag.Version + 1,
			"updated_at":       time.Now(),
		})
	if upd.Error != nil {
		return nil, fmt.Errorf("çuval güncellenemedi: %w", upd.Error)
	}
	if upd.RowsAffected == 0 {
		return nil, ErrConcurrentModification
	}
	prev := *bag
	bag.RemainingWeight = after
	bag.Version++

	mvType := in.Type
	if mvType == "" {
		mvType = models.MovementLooseSale
	}
	refType, refID := in.ReferenceType, in.ReferenceID
	if refType == "" {
		refType, refID = "open_bag", bag.ID
	}
	mv, err := stock.Post(tx, stock.Entry{
		BranchID:      bag.BranchID,
		ProductID:     bag.ProductID,
		Type:          mvType,
		Quantity:      in.Quantity.Neg(),
		ReferenceType: refType,
		ReferenceID:   refID,
		SaleReference: in.SaleReference,
		ActorID:       in.Actor.UserID,
		Note:          in.Note,
	})
	if err != nil {
		return nil, err
	}

	if err := audit.WriteLog(tx, audit.LogOptions{
		BranchID:    &bag.BranchID,
		UserID:      in.Actor.UserID,
		UserName:    in.Actor.Name,
		EntityType:  "open_bag",
		EntityID:    bag.ID,
		Action:      models.AuditActionUpdate,
		Description: fmt.Sprintf("Çuvaldan %s kg düşüldü (%s), kalan %s kg", in.Quantity.StringFixed(3), mvType, after.StringFixed(3)),
		Before:      prev,
		After:       bag,
	}); err != nil {
		return nil, err
	}

	res := &DecrementResult{Bag: *bag, Movement: mv}

	product, err := catalog.GetTx(tx, bag.ProductID)
	if err != nil {
		return nil, err
	}
	thr := EffectiveThreshold(*bag, *product)
	if crossedBelow(before, after, thr) {
		res.Signal = &LowStockSignal{
			BagID:           bag.ID,
			BranchID:        bag.BranchID,
			ProductID:       bag.ProductID,
			RemainingWeight: after,
			Threshold:       thr.Decimal,
		}
	}
	return res, nil
}

// Close: OPEN -> EMPTY. Kalan ağırlık varsa stoktan düşülür. İkinci çağrı ErrAlreadyClosed.
func (l *Ledger) Close(ctx context.Context, bagID uint, actor Actor, note string) (*models.OpenBag, error) {
	var closed models.OpenBag

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bag, err := getBag(tx, bagID)
		if err != nil {
			return err
		}
		if bag.Status == models.OpenBagEmpty {
			return ErrAlreadyClosed
		}
		prev := *bag

		now := time.Now()
		notes := bag.Notes
		if note != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += note
		}

		upd := tx.Model(&models.OpenBag{}).
			Where("id = ? AND version = ? AND status = ?", bag.ID, bag.Version, models.OpenBagOpen).
			Updates(map[string]any{
				"status":     models.OpenBagEmpty,
				"closed_at":  now,
				"closed_by":  actor.UserID,
				"notes":      notes,
				"version":    bag.Version + 1,
				"updated_at": now,
			})
		if upd.Error != nil {
			return fmt.Errorf("çuval kapatılamadı: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			current, err := getBag(tx, bagID)
			if err == nil && current.Status == models.OpenBagEmpty {
				return ErrAlreadyClosed
			}
			return ErrConcurrentModification
		}

		bag.Status = models.OpenBagEmpty
		bag.ClosedAt = &now
		bag.ClosedBy = &actor.UserID
		bag.Notes = notes
		bag.Version++

		if bag.RemainingWeight.IsPositive() {
			if _, err := stock.Post(tx, stock.Entry{
				BranchID:      bag.BranchID,
				ProductID:     bag.ProductID,
				Type:          models.MovementBagClosed,
				Quantity:      bag.RemainingWeight.Neg(),
				ReferenceType: "open_bag",
				ReferenceID:   bag.ID,
				ActorID:       actor.UserID,
				Note:          note,
			}); err != nil {
				return err
			}
		}

		if err := audit.WriteLog(tx, audit.LogOptions{
			BranchID:    &bag.BranchID,
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  "open_bag",
			EntityID:    bag.ID,
			Action:      models.AuditActionClose,
			Description: fmt.Sprintf("Çuval kapatıldı, kalan %s kg", bag.RemainingWeight.StringFixed(3)),
			Before:      prev,
			After:       bag,
		}); err != nil {
			return err
		}
		closed = *bag
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyClosed) {
			l.log.InfoContext(ctx, "çuval zaten kapalı", slog.Uint64("bag_id", uint64(bagID)))
		}
		return nil, err
	}
	return &closed, nil
}

func (l *Ledger) Get(ctx context.Context, id uint) (*models.OpenBag, error) {
	return getBag(l.db.WithContext(ctx), id)
}

// Current: (şube, ürün) için açık çuval
func (l *Ledger) Current(ctx context.Context, branchID, productID uint) (*models.OpenBag, error) {
	return currentBag(l.db.WithContext(ctx), branchID, productID)
}

type ListFilter struct {
	BranchID  uint
	ProductID uint
	Status    models.OpenBagStatus
}

func (l *Ledger) List(ctx context.Context, f ListFilter) ([]models.OpenBag, error) {
	q := l.db.WithContext(ctx).Where("branch_id = ?", f.BranchID)
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.OpenBag
	if err := q.Order("opened_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("çuvallar listelenemedi: %w", err)
	}
	return out, nil
}

func getBag(db *gorm.DB, id uint) (*models.OpenBag, error) {
	var bag models.OpenBag
	err := db.First(&bag, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("çuval okunamadı: %w", err)
	}
	return &bag, nil
}

func currentBag(db *gorm.DB, branchID, productID uint) (*models.OpenBag, error) {
	var bag models.OpenBag
	err := db.Where("branch_id = ? AND product_id = ? AND status = ?", branchID, productID, models.OpenBagOpen).
		First(&bag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenBag
	}
	if err != nil {
		return nil, fmt.Errorf("açık çuval okunamadı: %w", err)
	}
	return &bag, nil
}
