package deduction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/models"
	"petshop-backend/internal/openbag"
	"petshop-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deductionApp(w *Workflow, who Actor, branch *uint) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, who.UserID)
		c.Locals(auth.CtxUserNameKey, who.Name)
		c.Locals(auth.CtxUserRoleKey, who.Role)
		c.Locals(auth.CtxBranchIDKey, branch)
		return c.Next()
	})
	app.Post("/deductions", CreateHandler(w))
	app.Get("/deductions", ListHandler(w))
	app.Get("/deductions/:id", GetHandler(w))
	app.Post("/deductions/:id/approve", ApproveHandler(w))
	app.Post("/deductions/:id/reject", RejectHandler(w))
	return app
}

func TestHTTPErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrInvalidQuantity, http.StatusBadRequest},
		{ErrInvalidType, http.StatusBadRequest},
		{ErrReasonRequired, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrBranchNotFound, http.StatusNotFound},
		{catalog.ErrProductNotFound, http.StatusNotFound},
		{ErrNotAuthorized, http.StatusForbidden},
		{ErrAlreadyResolved, http.StatusConflict},
		{openbag.ErrNoOpenBag, http.StatusNotFound},
		{&openbag.InsufficientRemainingError{Remaining: testutil.Kg("1"), Requested: testutil.Kg("3")}, http.StatusConflict},
		{openbag.ErrConcurrentModification, http.StatusConflict},
		{fmt.Errorf("onay: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("bağlantı koptu"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			var fe *fiber.Error
			require.ErrorAs(t, httpError(tc.err), &fe)
			assert.Equal(t, tc.code, fe.Code)
		})
	}
}

func TestDeductionRoutes(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateBranch(t, f.db, "Beşiktaş")
	otherAdmin := testutil.CreateUser(t, f.db, "diğer müdür", models.RoleBranchAdmin, &other.ID)
	stranger := Actor{UserID: otherAdmin.ID, Name: otherAdmin.Name, Role: otherAdmin.Role}

	direct := f.request(t, "1", false)
	fromBag := f.request(t, "2", true)
	rejectable := f.request(t, "0.5", false)

	cashier := deductionApp(f.workflow, f.cashier, &f.branch.ID)
	admin := deductionApp(f.workflow, f.admin, &f.branch.ID)
	foreign := deductionApp(f.workflow, stranger, &other.ID)

	url := func(id uint, action string) string {
		return fmt.Sprintf("/deductions/%d%s", id, action)
	}
	create := func(body string) string {
		return fmt.Sprintf(`{"product_id":%d,%s}`, f.product.ID, body)
	}

	steps := []struct {
		name   string
		app    *fiber.App
		method string
		target string
		body   string
		code   int
	}{
		{"ürün eksik", cashier, http.MethodPost, "/deductions", `{"quantity":"1","deduction_type":"DONATION"}`, http.StatusBadRequest},
		{"sıfır miktar", cashier, http.MethodPost, "/deductions", create(`"quantity":"0","deduction_type":"DONATION"`), http.StatusBadRequest},
		{"bilinmeyen tür", cashier, http.MethodPost, "/deductions", create(`"quantity":"1","deduction_type":"GIFT"`), http.StatusBadRequest},
		{"bilinmeyen ürün", cashier, http.MethodPost, "/deductions", `{"product_id":999,"quantity":"1","deduction_type":"DONATION"}`, http.StatusNotFound},
		{"başka şube için talep", cashier, http.MethodPost, "/deductions", fmt.Sprintf(`{"branch_id":%d,"product_id":%d,"quantity":"1","deduction_type":"DONATION"}`, other.ID, f.product.ID), http.StatusForbidden},
		{"talep", cashier, http.MethodPost, "/deductions", create(`"quantity":"1","deduction_type":"DONATION","recipient":"barınak"`), http.StatusCreated},

		{"geçersiz id", cashier, http.MethodGet, "/deductions/abc", "", http.StatusBadRequest},
		{"olmayan talep", cashier, http.MethodGet, "/deductions/999", "", http.StatusNotFound},
		{"başka şubenin talebi", foreign, http.MethodGet, url(direct.ID, ""), "", http.StatusForbidden},
		{"başka şubeden onay", foreign, http.MethodPost, url(direct.ID, "/approve"), "", http.StatusForbidden},
		{"okuma", cashier, http.MethodGet, url(direct.ID, ""), "", http.StatusOK},

		{"kasiyer onayı", cashier, http.MethodPost, url(direct.ID, "/approve"), "", http.StatusForbidden},
		{"açık çuval yok", admin, http.MethodPost, url(fromBag.ID, "/approve"), "", http.StatusNotFound},
		{"onay", admin, http.MethodPost, url(direct.ID, "/approve"), "", http.StatusOK},
		{"ikinci onay", admin, http.MethodPost, url(direct.ID, "/approve"), "", http.StatusConflict},
		{"onaylanmışı reddetme", admin, http.MethodPost, url(direct.ID, "/reject"), `{"reason":"yanlış"}`, http.StatusConflict},

		{"sebepsiz red", admin, http.MethodPost, url(rejectable.ID, "/reject"), `{"reason":"  "}`, http.StatusBadRequest},
		{"red", admin, http.MethodPost, url(rejectable.ID, "/reject"), `{"reason":"stok sayımında bulundu"}`, http.StatusOK},

		{"geçersiz durum filtresi", cashier, http.MethodGet, "/deductions?status=BEKLIYOR", "", http.StatusBadRequest},
		{"geçersiz tür filtresi", cashier, http.MethodGet, "/deductions?type=GIFT", "", http.StatusBadRequest},
		{"liste", cashier, http.MethodGet, "/deductions?status=PENDING", "", http.StatusOK},
	}
	for _, s := range steps {
		code, body := testutil.Call(t, s.app, s.method, s.target, s.body)
		assert.Equal(t, s.code, code, "%s: %s", s.name, body)
	}

	// çuvalda yetersiz kalan: talep PENDING kalır
	_, err := f.bags.Open(context.Background(), openbag.OpenRequest{
		BranchID: f.branch.ID, ProductID: f.product.ID, OriginalWeight: testutil.Kg("1.5"),
	}, openbag.Actor{UserID: f.cashier.UserID, Name: f.cashier.Name})
	require.NoError(t, err)

	code, body := testutil.Call(t, admin, http.MethodPost, url(fromBag.ID, "/approve"), "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "kalan 1.5 kg")

	stored, err := f.workflow.Get(context.Background(), fromBag.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, stored.ApprovalStatus)
	assert.Nil(t, stored.StockMovementID)
}
