package deduction

import (
	"errors"
	"strconv"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/models"
	"petshop-backend/internal/openbag"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreateDeductionRequest struct {
	BranchID      *uint                `json:"branch_id"` // super_admin için
	ProductID     uint                 `json:"product_id"`
	Quantity      decimal.Decimal      `json:"quantity"`
	DeductionType models.DeductionType `json:"deduction_type"`
	Reason        string               `json:"reason"`
	Recipient     string               `json:"recipient"`
	FromOpenBag   bool                 `json:"from_open_bag"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidType),
		errors.Is(err, ErrReasonRequired):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBranchNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotAuthorized):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyResolved):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		// açık çuvaldan düşüm hataları (yetersiz kalan, açık çuval yok, çakışma)
		return openbag.HTTPError(err)
	}
}

func actorOf(c *fiber.Ctx) (Actor, error) {
	a, err := auth.ActorFrom(c)
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: a.UserID, Name: a.Name, Role: a.Role}, nil
}

// loadForCaller: talebi okur, isteği yapanın şubesine ait mi kontrol eder
func loadForCaller(c *fiber.Ctx, w *Workflow) (*models.NonSalesDeduction, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Geçersiz talep id")
	}
	d, err := w.Get(c.UserContext(), uint(id))
	if err != nil {
		return nil, httpError(err)
	}
	if _, err := auth.ResolveBranch(c, &d.BranchID); err != nil {
		return nil, err
	}
	return d, nil
}

// POST /api/deductions
func CreateHandler(w *Workflow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateDeductionRequest
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

		d, err := w.Request(c.UserContext(), RequestInput{
			BranchID:    branchID,
			ProductID:   body.ProductID,
			Quantity:    body.Quantity,
			Type:        body.DeductionType,
			Reason:      body.Reason,
			Recipient:   body.Recipient,
			FromOpenBag: body.FromOpenBag,
		}, actor)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	}
}

// GET /api/deductions?branch_id=&status=&type=
func ListHandler(w *Workflow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := auth.ResolveBranchFromQuery(c)
		if err != nil {
			return err
		}

		f := ListFilter{
			BranchID: branchID,
			Status:   models.ApprovalStatus(c.Query("status")),
			Type:     models.DeductionType(c.Query("type")),
		}
		switch f.Status {
		case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "status PENDING, APPROVED veya REJECTED olmalı")
		}
		if f.Type != "" && !f.Type.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, ErrInvalidType.Error())
		}

		out, err := w.List(c.UserContext(), f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Düşüm talepleri listelenemedi")
		}
		return c.JSON(out)
	}
}

// GET /api/deductions/:id
func GetHandler(w *Workflow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := loadForCaller(c, w)
		if err != nil {
			return err
		}
		return c.JSON(d)
	}
}

// POST /api/deductions/:id/approve (super_admin, branch_admin)
func ApproveHandler(w *Workflow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := loadForCaller(c, w)
		if err != nil {
			return err
		}
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		approved, err := w.Approve(c.UserContext(), d.ID, actor)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(approved)
	}
}

// POST /api/deductions/:id/reject (super_admin, branch_admin)
func RejectHandler(w *Workflow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := loadForCaller(c, w)
		if err != nil {
			return err
		}

		var body RejectRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		actor, err := actorOf(c)
		if err != nil {
			return err
		}

		rejected, err := w.Reject(c.UserContext(), d.ID, actor, body.Reason)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(rejected)
	}
}
