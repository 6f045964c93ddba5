package scale

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"petshop-backend/internal/audit"
	"petshop-backend/internal/auth"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type ExportRequest struct {
	BranchID *uint `json:"branch_id"` // super_admin, şube kapsamında
}

type StatusResponse struct {
	BranchID      uint                 `json:"branch_id"`
	Protocol      string               `json:"protocol"`
	Host          string               `json:"host"`
	Frequency     models.SyncFrequency `json:"frequency"`
	LastSync      *time.Time           `json:"scale_last_sync"`
	LastAttemptAt *time.Time           `json:"last_attempt_at"`
	LastStatus    models.SyncStatus    `json:"last_status"`
	LastError     string               `json:"last_error"`
	LastDelivered int                  `json:"last_delivered"`
	LastSkipped   int                  `json:"last_skipped"`
}

type ResolveWeightRequest struct {
	ProductID uint            `json:"product_id"`
	RawWeight decimal.Decimal `json:"raw_weight"`
}

// resolveScope: genel kapsamda 0, şube kapsamında isteği yapanın şubesi
func resolveScope(c *fiber.Ctx, e *Exporter, requested *uint) (uint, error) {
	if !e.BranchScoped() {
		return 0, nil
	}
	return auth.ResolveBranch(c, requested)
}

// POST /api/scale/export
func ExportHandler(e *Exporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ExportRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
			}
		}

		scope, err := resolveScope(c, e, body.BranchID)
		if err != nil {
			return err
		}

		res, err := e.Export(c.UserContext(), scope)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			return fiber.NewError(fiber.StatusConflict, "Terazi aktarımı zaten sürüyor, daha sonra tekrar deneyin")
		case err != nil && res == nil:
			return fiber.NewError(fiber.StatusInternalServerError, "Terazi aktarımı başlatılamadı")
		case errors.Is(err, ErrTimeout):
			return c.Status(fiber.StatusGatewayTimeout).JSON(res)
		case err != nil:
			return c.Status(fiber.StatusBadGateway).JSON(res)
		}
		return c.JSON(res)
	}
}

// GET /api/scale/status
func StatusHandler(e *Exporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if s := c.Query("branch_id"); s != "" {
			v, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "branch_id geçersiz")
			}
			bid := uint(v)
			requested = &bid
		}
		scope, err := resolveScope(c, e, requested)
		if err != nil {
			return err
		}

		st, err := e.State(c.UserContext(), scope)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Terazi durumu okunamadı")
		}
		return c.JSON(buildStatus(e, scope, st))
	}
}

func buildStatus(e *Exporter, scope uint, st *models.ScaleSyncState) StatusResponse {
	conn := ResolveConnection(e.Defaults(), st)
	resp := StatusResponse{
		BranchID:   scope,
		Protocol:   conn.Protocol,
		Host:       conn.Host,
		Frequency:  ResolveFrequency(e.Defaults(), st),
		LastStatus: models.SyncStatusNever,
	}
	if st != nil {
		resp.LastSync = st.LastSyncAt
		resp.LastAttemptAt = st.LastAttemptAt
		resp.LastStatus = st.LastStatus
		resp.LastError = st.LastError
		resp.LastDelivered = st.LastDelivered
		resp.LastSkipped = st.LastSkipped
	}
	return resp
}

// PUT /api/admin/scale/settings/:branch_id  (0 = genel kapsam)
func UpdateSettingsHandler(e *Exporter, onChange func(ctx context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scopeID, err := strconv.ParseUint(c.Params("branch_id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "branch_id geçersiz")
		}

		var body Settings
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		before, err := e.State(c.UserContext(), uint(scopeID))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Terazi durumu okunamadı")
		}

		st, err := e.SaveSettings(c.UserContext(), uint(scopeID), body)
		if errors.Is(err, ErrInvalidSettings) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Terazi ayarları kaydedilemedi")
		}

		if actor, err := auth.ActorFrom(c); err == nil {
			_ = audit.WriteLog(e.db.WithContext(c.UserContext()), audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  "scale_sync_state",
				EntityID:    st.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Terazi ayarları güncellendi (kapsam %d)", scopeID),
				Before:      before,
				After:       st,
			})
		}

		if onChange != nil {
			if err := onChange(c.UserContext()); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Senkron zamanlaması güncellenemedi")
			}
		}
		return c.JSON(buildStatus(e, uint(scopeID), st))
	}
}

// POST /api/scale/resolve-weight
func ResolveWeightHandler(products *catalog.Repository, r Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ResolveWeightRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.ProductID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "product_id zorunludur")
		}

		p, err := products.Get(c.UserContext(), body.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ürün okunamadı")
		}
		if !p.IsWeighable {
			return fiber.NewError(fiber.StatusBadRequest, "Ürün tartılı satılmıyor")
		}

		res, err := r.Resolve(body.RawWeight, *p)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(res)
	}
}
