// Package deduction satış dışı stok düşümlerinin (numune, bağış) onay akışı.
// PENDING -> APPROVED | REJECTED; iki son durum da değiştirilemez. Stoğu sadece onay etkiler.
package deduction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"petshop-backend/internal/audit"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/metrics"
	"petshop-backend/internal/models"
	"petshop-backend/internal/openbag"
	"petshop-backend/internal/stock"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("düşüm talebi bulunamadı")
	ErrInvalidQuantity = errors.New("miktar 0'dan büyük olmalı")
	ErrInvalidType     = errors.New("deduction_type FREE_SAMPLE veya DONATION olmalı")
	ErrBranchNotFound  = errors.New("şube bulunamadı")
	ErrAlreadyResolved = errors.New("talep zaten sonuçlandırılmış")
	ErrReasonRequired  = errors.New("red sebebi zorunlu")
	ErrNotAuthorized   = errors.New("bu talebi sonuçlandırma yetkiniz yok")
)

type Actor struct {
	UserID uint
	Name   string
	Role   models.UserRole
}

type Workflow struct {
	db      *gorm.DB
	bags    *openbag.Ledger
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewWorkflow(db *gorm.DB, bags *openbag.Ledger, m *metrics.Metrics, log *slog.Logger) *Workflow {
	if log == nil {
		log = slog.Default()
	}
	return &Workflow{
		db:      db,
		bags:    bags,
		metrics: m,
		log:     log.With(slog.String("component", "deduction_workflow")),
	}
}

type RequestInput struct {
	BranchID    uint
	ProductID   uint
	Quantity    decimal.Decimal
	Type        models.DeductionType
	Reason      string
	Recipient   string
	FromOpenBag bool
}

// Request: PENDING talep oluşturur, stoğa dokunmaz
func (w *Workflow) Request(ctx context.Context, in RequestInput, actor Actor) (*models.NonSalesDeduction, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidType
	}

	d := models.NonSalesDeduction{
		BranchID:       in.BranchID,
		ProductID:      in.ProductID,
		Quantity:       in.Quantity,
		DeductionType:  in.Type,
		Reason:         strings.TrimSpace(in.Reason),
		Recipient:      strings.TrimSpace(in.Recipient),
		FromOpenBag:    in.FromOpenBag,
		RequestedBy:    actor.UserID,
		ApprovalStatus: models.ApprovalPending,
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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

		if err := tx.Create(&d).Error; err != nil {
			return fmt.Errorf("düşüm talebi kaydedilemedi: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			BranchID:    &d.BranchID,
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  "non_sales_deduction",
			EntityID:    d.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s talebi: %s - %s %s", d.DeductionType, product.Name, d.Quantity.String(), product.Unit),
			After:       d,
		})
	})
	if err != nil {
		return nil, err
	}
	w.metrics.Deduction(string(models.ApprovalPending))
	return &d, nil
}

func movementType(t models.DeductionType) models.MovementType {
	if t == models.DeductionDonation {
		return models.MovementDonation
	}
	return models.MovementFreeSample
}

// Approve: onay, stok hareketi ve hareketin talebe bağlanması tek transaction'dadır.
// Onaylanmış ama stoğa yansımamış bir talep hiçbir an görünmez.
func (w *Workflow) Approve(ctx context.Context, id uint, approver Actor) (*models.NonSalesDeduction, error) {
	if !approver.Role.CanApprove() {
		return nil, ErrNotAuthorized
	}

	var (
		approved models.NonSalesDeduction
		drawn    *openbag.DecrementResult
	)
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := get(tx, id)
		if err != nil {
			return err
		}
		if d.ApprovalStatus != models.ApprovalPending {
			return ErrAlreadyResolved
		}
		before := *d
		now := time.Now()

		// koşullu güncelleme: eşzamanlı iki onaydan sadece biri kazanır
		upd := tx.Model(&models.NonSalesDeduction{}).
			Where("id = ? AND approval_status = ?", d.ID, models.ApprovalPending).
			Updates(map[string]any{
				"approval_status": models.ApprovalApproved,
				"approved_by":     approver.UserID,
				"approved_at":     now,
				"updated_at":      now,
			})
		if upd.Error != nil {
			return fmt.Errorf("talep onaylanamadı: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return ErrAlreadyResolved
		}

		var mv *models.StockMovement
		note := strings.TrimSpace(d.Recipient + " " + d.Reason)
		if d.FromOpenBag {
			drawn, err = openbag.DrawTx(tx, d.BranchID, d.ProductID, openbag.DecrementInput{
				Quantity:      d.Quantity,
				Type:          movementType(d.DeductionType),
				ReferenceType: "non_sales_deduction",
				ReferenceID:   d.ID,
				Note:          note,
				Actor:         openbag.Actor{UserID: approver.UserID, Name: approver.Name},
			})
			if err != nil {
				return err
			}
			mv = drawn.Movement
		} else {
			mv, err = stock.Post(tx, stock.Entry{
				BranchID:      d.BranchID,
				ProductID:     d.ProductID,
				Type:          movementType(d.DeductionType),
				Quantity:      d.Quantity.Neg(),
				ReferenceType: "non_sales_deduction",
				ReferenceID:   d.ID,
				ActorID:       approver.UserID,
				Note:          note,
			})
			if err != nil {
				return err
			}
		}

		if err := tx.Model(&models.NonSalesDeduction{}).
			Where("id = ?", d.ID).
			Update("stock_movement_id", mv.ID).Error; err != nil {
			return fmt.Errorf("stok hareketi talebe bağlanamadı: %w", err)
		}

		d.ApprovalStatus = models.ApprovalApproved
		d.ApprovedBy = &approver.UserID
		d.ApprovedAt = &now
		d.StockMovementID = &mv.ID

		if err := audit.WriteLog(tx, audit.LogOptions{
			BranchID:    &d.BranchID,
			UserID:      approver.UserID,
			UserName:    approver.Name,
			EntityType:  "non_sales_deduction",
			EntityID:    d.ID,
			Action:      models.AuditActionApprove,
			Description: fmt.Sprintf("%s talebi onaylandı: %s", d.DeductionType, d.Quantity.String()),
			Before:      before,
			After:       d,
		}); err != nil {
			return err
		}
		approved = *d
		return nil
	})

	if w.bags != nil && (drawn != nil || errors.Is(err, openbag.ErrInsufficientRemaining)) {
		w.bags.Notify(ctx, drawn, err)
	}
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) || errors.Is(err, openbag.ErrInsufficientRemaining) {
			w.log.InfoContext(ctx, "onay reddedildi", slog.Uint64("deduction_id", uint64(id)), slog.String("reason", err.Error()))
		}
		return nil, err
	}

	w.metrics.Deduction(string(models.ApprovalApproved))
	return &approved, nil
}

// Reject: sebep zorunlu, stoğa dokunmaz
func (w *Workflow) Reject(ctx context.Context, id uint, approver Actor, reason string) (*models.NonSalesDeduction, error) {
	if !approver.Role.CanApprove() {
		return nil, ErrNotAuthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var rejected models.NonSalesDeduction
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := get(tx, id)
		if err != nil {
			return err
		}
		if d.ApprovalStatus != models.ApprovalPending {
			return ErrAlreadyResolved
		}
		before := *d
		now := time.Now()

		upd := tx.Model(&models.NonSalesDeduction{}).
			Where("id = ? AND approval_status = ?", d.ID, models.ApprovalPending).
			Updates(map[string]any{
				"approval_status":  models.ApprovalRejected,
				"approved_by":      approver.UserID,
				"approved_at":      now,
				"rejection_reason": reason,
				"updated_at":       now,
			})
		if upd.Error != nil {
			return fmt.Errorf("talep reddedilemedi: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return ErrAlreadyResolved
		}

		d.ApprovalStatus = models.ApprovalRejected
		d.ApprovedBy = &approver.UserID
		d.ApprovedAt = &now
		d.RejectionReason = reason

		if err := audit.WriteLog(tx, audit.LogOptions{
			BranchID:    &d.BranchID,
			UserID:      approver.UserID,
			UserName:    approver.Name,
			EntityType:  "non_sales_deduction",
			EntityID:    d.ID,
			Action:      models.AuditActionReject,
			Description: fmt.Sprintf("%s talebi reddedildi: %s", d.DeductionType, reason),
			Before:      before,
			After:       d,
		}); err != nil {
			return err
		}
		rejected = *d
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			w.log.InfoContext(ctx, "red reddedildi", slog.Uint64("deduction_id", uint64(id)), slog.String("reason", err.Error()))
		}
		return nil, err
	}

	w.metrics.Deduction(string(models.ApprovalRejected))
	return &rejected, nil
}

func (w *Workflow) Get(ctx context.Context, id uint) (*models.NonSalesDeduction, error) {
	return get(w.db.WithContext(ctx), id)
}

type ListFilter struct {
	BranchID uint
	Status   models.ApprovalStatus
	Type     models.DeductionType
}

func (w *Workflow) List(ctx context.Context, f ListFilter) ([]models.NonSalesDeduction, error) {
	q := w.db.WithContext(ctx).Where("branch_id = ?", f.BranchID)
	if f.Status != "" {
		q = q.Where("approval_status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("deduction_type = ?", f.Type)
	}
	var out []models.NonSalesDeduction
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("düşüm talepleri listelenemedi: %w", err)
	}
	return out, nil
}

func get(db *gorm.DB, id uint) (*models.NonSalesDeduction, error) {
	var d models.NonSalesDeduction
	err := db.First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("düşüm talebi okunamadı: %w", err)
	}
	return &d, nil
}
