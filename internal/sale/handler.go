package sale

import (
	"errors"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/openbag"
	"petshop-backend/internal/scale"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WeighableLineRequest struct {
	BranchID      *uint            `json:"branch_id"` // super_admin için
	ProductID     uint             `json:"product_id"`
	RawWeight     *decimal.Decimal `json:"raw_weight"`
	Quantity      *decimal.Decimal `json:"quantity"`
	SaleReference string           `json:"sale_reference"`
}

// POST /api/sales/weighable-lines
func CompleteLineHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body WeighableLineRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		if body.ProductID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "product_id zorunludur")
		}

		branchID, err := auth.ResolveBranch(c, body.BranchID)
		if err != nil {
			return err
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		res, err := s.CompleteLine(c.UserContext(), Line{
			BranchID:      branchID,
			ProductID:     body.ProductID,
			RawWeight:     body.RawWeight,
			Quantity:      body.Quantity,
			SaleReference: body.SaleReference,
			ActorID:       actor.UserID,
			ActorName:     actor.Name,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidLine),
				errors.Is(err, ErrInvalidQuantity),
				errors.Is(err, scale.ErrInvalidReading):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			default:
				return openbag.HTTPError(err)
			}
		}
		return c.JSON(res)
	}
}
