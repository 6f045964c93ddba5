package catalog

import (
	"errors"
	"strconv"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type ProductResponse struct {
	ID                       uint                `json:"id"`
	Name                     string              `json:"name"`
	Unit                     string              `json:"unit"`
	StockCode                string              `json:"stock_code"`
	Active                   bool                `json:"active"`
	IsWeighable              bool                `json:"is_weighable"`
	ExportToScale            bool                `json:"export_to_scale"`
	ScalePLU                 *int                `json:"scale_plu"`
	PricePerUnit             decimal.Decimal     `json:"price_per_unit"`
	TareWeight               decimal.NullDecimal `json:"tare_weight"`
	LowStockThresholdDefault decimal.NullDecimal `json:"low_stock_threshold_default"`
}

func toResponse(p models.Product) ProductResponse {
	return ProductResponse{
		ID:                       p.ID,
		Name:                     p.Name,
		Unit:                     p.Unit,
		StockCode:                p.StockCode,
		Active:                   p.Active,
		IsWeighable:              p.IsWeighable,
		ExportToScale:            p.ExportToScale,
		ScalePLU:                 p.ScalePLU,
		PricePerUnit:             p.PricePerUnit,
		TareWeight:               p.TareWeight,
		LowStockThresholdDefault: p.LowStockThresholdDefault,
	}
}

type CreateProductRequest struct {
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	StockCode    string          `json:"stock_code"` // Opsiyonel
	IsWeighable  bool            `json:"is_weighable"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// UpdateScaleRequest: verilmeyen alan değişmez, clear_* alanı null yapar
type UpdateScaleRequest struct {
	IsWeighable              *bool            `json:"is_weighable"`
	ExportToScale            *bool            `json:"export_to_scale"`
	ScalePLU                 *int             `json:"scale_plu"`
	ClearPLU                 bool             `json:"clear_scale_plu"`
	PricePerUnit             *decimal.Decimal `json:"price_per_unit"`
	TareWeight               *decimal.Decimal `json:"tare_weight"`
	ClearTare                bool             `json:"clear_tare_weight"`
	LowStockThresholdDefault *decimal.Decimal `json:"low_stock_threshold_default"`
	ClearThreshold           bool             `json:"clear_low_stock_threshold_default"`
	Active                   *bool            `json:"active"`
}

func actorOf(c *fiber.Ctx) (Actor, error) {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: a.UserID, Name: a.Name}, nil
}

// errorStatus: katalog hatası -> HTTP
func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Ürün bulunamadı")
	case errors.Is(err, ErrPLUTaken), errors.Is(err, ErrDuplicateName):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidProduct),
		errors.Is(err, ErrPLUOutOfRange),
		errors.Is(err, ErrPLURequired),
		errors.Is(err, ErrNegativeWeight):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Ürün işlemi başarısız")
	}
}

// GET /api/products?weighable=true&include_inactive=true
func ListProductsHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		products, err := repo.List(c.UserContext(), ListFilter{
			WeighableOnly:   c.QueryBool("weighable"),
			IncludeInactive: c.QueryBool("include_inactive"),
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Ürünler listelenemedi")
		}

		res := make([]ProductResponse, 0, len(products))
		for _, p := range products {
			res = append(res, toResponse(p))
		}
		return c.JSON(res)
	}
}

// POST /api/admin/products (sadece super_admin)
func CreateProductHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		p, err := repo.Create(c.UserContext(), NewProduct{
			Name:         body.Name,
			Unit:         body.Unit,
			StockCode:    body.StockCode,
			IsWeighable:  body.IsWeighable,
			PricePerUnit: body.PricePerUnit,
		}, actor)
		if err != nil {
			return errorStatus(err)
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(*p))
	}
}

// PUT /api/admin/products/:id/scale
func UpdateScaleSettingsHandler(repo *Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz ürün id")
		}

		var body UpdateScaleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri")
		}
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		p, err := repo.UpdateScaleSettings(c.UserContext(), uint(id), ScaleSettings{
			IsWeighable:              body.IsWeighable,
			ExportToScale:            body.ExportToScale,
			ScalePLU:                 body.ScalePLU,
			ClearPLU:                 body.ClearPLU,
			PricePerUnit:             body.PricePerUnit,
			TareWeight:               body.TareWeight,
			ClearTare:                body.ClearTare,
			LowStockThresholdDefault: body.LowStockThresholdDefault,
			ClearThreshold:           body.ClearThreshold,
			Active:                   body.Active,
		}, actor)
		if err != nil {
			return errorStatus(err)
		}
		return c.JSON(toResponse(*p))
	}
}
