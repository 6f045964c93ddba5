package stock

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GET /api/stock/levels?branch_id=
func ListLevelsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := auth.ResolveBranchFromQuery(c)
		if err != nil {
			return err
		}
		levels, err := Levels(c.UserContext(), db, branchID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stok seviyeleri listelenemedi")
		}
		return c.JSON(levels)
	}
}

// GET /api/stock/movements?branch_id=&product_id=&type=&limit=
func ListMovementsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := auth.ResolveBranchFromQuery(c)
		if err != nil {
			return err
		}

		f := MovementFilter{
			BranchID: branchID,
			Type:     models.MovementType(c.Query("type")),
			Limit:    c.QueryInt("limit", 200),
		}
		if s := c.Query("product_id"); s != "" {
			pid, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "product_id geçersiz")
			}
			f.ProductID = uint(pid)
		}

		mvs, err := Movements(c.UserContext(), db, f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stok hareketleri listelenemedi")
		}
		return c.JSON(mvs)
	}
}

type CountRequest struct {
	BranchID  *uint           `json:"branch_id"` // super_admin için
	ProductID uint            `json:"product_id"`
	Counted   decimal.Decimal `json:"counted"`
	Note      string          `json:"note"`
}

// POST /api/stock/counts
func CountHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.ProductID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "product_id zorunlu")
		}

		branchID, err := auth.ResolveBranch(c, body.BranchID)
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		res, err := Count(c.UserContext(), db, CountInput{
			BranchID:  branchID,
			ProductID: body.ProductID,
			Counted:   body.Counted,
			ActorID:   actor.UserID,
			ActorName: actor.Name,
			Note:      strings.TrimSpace(body.Note),
		})
		switch {
		case err == nil:
			return c.JSON(res)
		case errors.Is(err, ErrNegativeCount):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUnknownBranch), errors.Is(err, ErrUnknownProduct):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "Stok sayımı kaydedilemedi")
		}
	}
}

// GET /api/stock/levels/export?branch_id=
func ExportLevelsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := auth.ResolveBranchFromQuery(c)
		if err != nil {
			return err
		}
		rows, err := LevelReport(c.UserContext(), db, branchID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stok raporu hazırlanamadı")
		}

		var buf bytes.Buffer
		if err := WriteLevelsXLSX(&buf, rows); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stok raporu hazırlanamadı")
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="stok-sube-%d.xlsx"`, branchID))
		return c.Send(buf.Bytes())
	}
}
