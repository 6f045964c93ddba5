package openbag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"petshop-backend/internal/auth"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/models"
	"petshop-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type caller struct {
	id     uint
	role   models.UserRole
	branch *uint
}

func bagApp(l *Ledger, who caller) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, who.id)
		c.Locals(auth.CtxUserNameKey, "personel")
		c.Locals(auth.CtxUserRoleKey, who.role)
		c.Locals(auth.CtxBranchIDKey, who.branch)
		return c.Next()
	})
	app.Post("/open-bags", OpenHandler(l))
	app.Get("/open-bags", ListHandler(l))
	app.Get("/open-bags/:id", GetHandler(l))
	app.Post("/open-bags/:id/decrement", DecrementHandler(l))
	app.Post("/open-bags/:id/close", CloseHandler(l))
	return app
}

func TestHTTPErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrInvalidWeight, http.StatusBadRequest},
		{ErrInvalidThreshold, http.StatusBadRequest},
		{ErrInvalidQuantity, http.StatusBadRequest},
		{ErrNotWeighable, http.StatusBadRequest},
		{ErrBagNotFound, http.StatusNotFound},
		{ErrNoOpenBag, http.StatusNotFound},
		{ErrBranchNotFound, http.StatusNotFound},
		{catalog.ErrProductNotFound, http.StatusNotFound},
		{&InsufficientRemainingError{Remaining: testutil.Kg("1"), Requested: testutil.Kg("2")}, http.StatusConflict},
		{ErrDuplicateOpenBag, http.StatusConflict},
		{ErrConcurrentModification, http.StatusConflict},
		{ErrAlreadyClosed, http.StatusConflict},
		{ErrBagClosed, http.StatusConflict},
		{fmt.Errorf("çuval güncellenemedi: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("disk dolu"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			var fe *fiber.Error
			require.ErrorAs(t, HTTPError(tc.err), &fe)
			assert.Equal(t, tc.code, fe.Code)
		})
	}
}

func TestOpenBagRoutes(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateBranch(t, f.db, "Beşiktaş")
	second := testutil.WeighableProduct(t, f.db, "Açık Kuş Yemi", 102)
	packaged := testutil.WeighableProduct(t, f.db, "Paketli Kum", 103, func(p *models.Product) {
		p.IsWeighable = false
	})
	bag := f.open(t, "10", kgPtr("2"))

	cashier := caller{id: f.actor.UserID, role: models.RoleCashier, branch: &f.branch.ID}
	stranger := caller{id: 99, role: models.RoleCashier, branch: &other.ID}
	super := caller{id: 1, role: models.RoleSuperAdmin}

	bagURL := fmt.Sprintf("/open-bags/%d", bag.ID)

	// sıra önemli: satırlar aynı çuval üzerinde çalışır
	steps := []struct {
		name   string
		who    caller
		method string
		target string
		body   string
		code   int
	}{
		{"ürün eksik", cashier, http.MethodPost, "/open-bags", `{}`, http.StatusBadRequest},
		{"sıfır ağırlık", cashier, http.MethodPost, "/open-bags", fmt.Sprintf(`{"product_id":%d,"original_weight":"0"}`, second.ID), http.StatusBadRequest},
		{"tartılı değil", cashier, http.MethodPost, "/open-bags", fmt.Sprintf(`{"product_id":%d,"original_weight":"5"}`, packaged.ID), http.StatusBadRequest},
		{"bilinmeyen ürün", cashier, http.MethodPost, "/open-bags", `{"product_id":999,"original_weight":"5"}`, http.StatusNotFound},
		{"ikinci açık çuval", cashier, http.MethodPost, "/open-bags", fmt.Sprintf(`{"product_id":%d,"original_weight":"5"}`, f.product.ID), http.StatusConflict},
		{"başka şubeye açma", cashier, http.MethodPost, "/open-bags", fmt.Sprintf(`{"branch_id":%d,"product_id":%d,"original_weight":"5"}`, other.ID, second.ID), http.StatusForbidden},
		{"super admin şubesiz", super, http.MethodPost, "/open-bags", fmt.Sprintf(`{"product_id":%d,"original_weight":"5"}`, second.ID), http.StatusBadRequest},
		{"super admin bilinmeyen şube", super, http.MethodPost, "/open-bags", fmt.Sprintf(`{"branch_id":999,"product_id":%d,"original_weight":"5"}`, second.ID), http.StatusNotFound},
		{"açma", cashier, http.MethodPost, "/open-bags", fmt.Sprintf(`{"product_id":%d,"original_weight":"5"}`, second.ID), http.StatusCreated},

		{"geçersiz id", cashier, http.MethodGet, "/open-bags/abc", "", http.StatusBadRequest},
		{"olmayan çuval", cashier, http.MethodGet, "/open-bags/999", "", http.StatusNotFound},
		{"başka şubenin çuvalı", stranger, http.MethodGet, bagURL, "", http.StatusForbidden},
		{"başka şubeden düşüm", stranger, http.MethodPost, bagURL + "/decrement", `{"quantity":"1"}`, http.StatusForbidden},
		{"okuma", cashier, http.MethodGet, bagURL, "", http.StatusOK},

		{"sıfır düşüm", cashier, http.MethodPost, bagURL + "/decrement", `{"quantity":"0"}`, http.StatusBadRequest},
		{"kalandan fazla", cashier, http.MethodPost, bagURL + "/decrement", `{"quantity":"11"}`, http.StatusConflict},
		{"düşüm", cashier, http.MethodPost, bagURL + "/decrement", `{"quantity":"8.5","sale_reference":"F-1"}`, http.StatusOK},

		{"başka şubeden kapatma", stranger, http.MethodPost, bagURL + "/close", "", http.StatusForbidden},
		{"kapatma", cashier, http.MethodPost, bagURL + "/close", `{"notes":"bitti"}`, http.StatusOK},
		{"ikinci kapatma", cashier, http.MethodPost, bagURL + "/close", "", http.StatusConflict},
		{"kapalı çuvaldan düşüm", cashier, http.MethodPost, bagURL + "/decrement", `{"quantity":"0.5"}`, http.StatusConflict},

		{"geçersiz durum filtresi", cashier, http.MethodGet, "/open-bags?status=BOZUK", "", http.StatusBadRequest},
		{"liste", cashier, http.MethodGet, "/open-bags?status=EMPTY", "", http.StatusOK},
	}
	for _, s := range steps {
		code, body := testutil.Call(t, bagApp(f.ledger, s.who), s.method, s.target, s.body)
		assert.Equal(t, s.code, code, "%s: %s", s.name, body)
	}

	stored, err := f.ledger.Get(context.Background(), bag.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenBagEmpty, stored.Status)
	assert.True(t, stored.RemainingWeight.Equal(testutil.Kg("1.5")), stored.RemainingWeight.String())
}

func TestDecrementRouteReportsSignal(t *testing.T) {
	f := newFixture(t)
	bag := f.open(t, "10", kgPtr("2"))
	app := bagApp(f.ledger, caller{id: f.actor.UserID, role: models.RoleCashier, branch: &f.branch.ID})

	code, body := testutil.Call(t, app, http.MethodPost, fmt.Sprintf("/open-bags/%d/decrement", bag.ID), `{"quantity":"8.5"}`)
	require.Equal(t, http.StatusOK, code, body)

	var resp DecrementResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.NotZero(t, resp.MovementID)
	require.NotNil(t, resp.LowStockSignal)
	assert.True(t, resp.Bag.RemainingWeight.Equal(testutil.Kg("1.5")))
	assert.True(t, resp.Bag.EffectiveThreshold.Decimal.Equal(testutil.Kg("2")))

	code, body = testutil.Call(t, app, http.MethodPost, fmt.Sprintf("/open-bags/%d/decrement", bag.ID), `{"quantity":"2"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "kalan 1.5 kg")
}
