package openbag

import (
	"context"
	"errors"
	"strconv"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type OpenBagRequest struct {
	BranchID          *uint            `json:"branch_id"` // super_admin için
	ProductID         uint             `json:"product_id"`
	OriginalWeight    decimal.Decimal  `json:"original_weight"`
	LowStockThreshold *decimal.Decimal `json:"low_stock_threshold"`
	Notes             string           `json:"notes"`
}

type DecrementRequest struct {
	Quantity      decimal.Decimal `json:"quantity"`
	SaleReference string          `json:"sale_reference"`
}

type CloseRequest struct {
	Notes string `json:"notes"`
}

type OpenBagResponse struct {
	models.OpenBag
	EffectiveThreshold decimal.NullDecimal `json:"effective_threshold"`
}

type DecrementResponse struct {
	Bag            OpenBagResponse `json:"bag"`
	MovementID     uint            `json:"stock_movement_id"`
	LowStockSignal *LowStockSignal `json:"low_stock_signal,omitempty"`
}

// HTTPError: defter hatalarını kullanıcıya 1:1 mesajla döner
func HTTPError(err error) error {
	var insufficient *InsufficientRemainingError
	switch {
	case errors.As(err, &insufficient):
		return fiber.NewError(fiber.StatusConflict, insufficient.Error())
	case errors.Is(err, ErrInvalidWeight),
		errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrNotWeighable):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBagNotFound),
		errors.Is(err, ErrNoOpenBag),
		errors.Is(err, ErrBranchNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateOpenBag),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrAlreadyClosed),
		errors.Is(err, ErrBagClosed):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "İşlem zaman aşımına uğradı, tekrar deneyin")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Çuval işlemi başarısız")
	}
}

func actorOf(c *fiber.Ctx) (Actor, error) {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: a.UserID, Name: a.Name}, nil
}

func (l *Ledger) response(ctx context.Context, bag models.OpenBag) OpenBagResponse {
	resp := OpenBagResponse{OpenBag: bag, EffectiveThreshold: bag.LowStockThreshold}
	if !bag.LowStockThreshold.Valid {
		if p, err := catalog.GetTx(l.db.WithContext(ctx), bag.ProductID); err == nil {
			resp.EffectiveThreshold = EffectiveThreshold(bag, *p)
		}
	}
	return resp
}

// loadForCaller: çuvalı okur ve isteği yapanın şubesine ait mi kontrol eder
func (l *Ledger) loadForCaller(c *fiber.Ctx) (*models.OpenBag, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Geçersiz çuval id")
	}
	bag, err := l.Get(c.UserContext(), uint(id))
	if err != nil {
		return nil, HTTPError(err)
	}
	if _, err := auth.ResolveBranch(c, &bag.BranchID); err != nil {
		return nil, err
	}
	return bag, nil
}

// POST /api/open-bags
func OpenHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body OpenBagRequest
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
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		bag, err := l.Open(c.UserContext(), OpenRequest{
			BranchID:          branchID,
			ProductID:         body.ProductID,
			OriginalWeight:    body.OriginalWeight,
			LowStockThreshold: body.LowStockThreshold,
			Notes:             body.Notes,
		}, actor)
		if err != nil {
			return HTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(l.response(c.UserContext(), *bag))
	}
}

// GET /api/open-bags?branch_id=&product_id=&status=
func ListHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := auth.ResolveBranchFromQuery(c)
		if err != nil {
			return err
		}

		f := ListFilter{BranchID: branchID}
		if s := c.Query("status"); s != "" {
			st := models.OpenBagStatus(s)
			if st != models.OpenBagOpen && st != models.OpenBagEmpty {
				return fiber.NewError(fiber.StatusBadRequest, "status OPEN veya EMPTY olmalı")
			}
			f.Status = st
		}
		if s := c.Query("product_id"); s != "" {
			pid, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "product_id geçersiz")
			}
			f.ProductID = uint(pid)
		}

		bags, err := l.List(c.UserContext(), f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Çuvallar listelenemedi")
		}
		resp := make([]OpenBagResponse, 0, len(bags))
		for _, b := range bags {
			resp = append(resp, l.response(c.UserContext(), b))
		}
		return c.JSON(resp)
	}
}

// GET /api/open-bags/:id
func GetHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bag, err := l.loadForCaller(c)
		if err != nil {
			return err
		}
		return c.JSON(l.response(c.UserContext(), *bag))
	}
}

// POST /api/open-bags/:id/decrement
func DecrementHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bag, err := l.loadForCaller(c)
		if err != nil {
			return err
		}

		var body DecrementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		res, err := l.Decrement(c.UserContext(), bag.ID, DecrementInput{
			Quantity:      body.Quantity,
			SaleReference: body.SaleReference,
			Actor:         actor,
		})
		if err != nil {
			return HTTPError(err)
		}
		return c.JSON(DecrementResponse{
			Bag:            l.response(c.UserContext(), res.Bag),
			MovementID:     res.Movement.ID,
			LowStockSignal: res.Signal,
		})
	}
}

// POST /api/open-bags/:id/close
func CloseHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bag, err := l.loadForCaller(c)
		if err != nil {
			return err
		}

		var body CloseRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
			}
		}
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		closed, err := l.Close(c.UserContext(), bag.ID, actor, body.Notes)
		if err != nil {
			return HTTPError(err)
		}
		return c.JSON(l.response(c.UserContext(), *closed))
	}
}
