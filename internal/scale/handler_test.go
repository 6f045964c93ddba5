package scale

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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scaleApp(e *Exporter, role models.UserRole, branch *uint, onChange func(context.Context) error) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, uint(1))
		c.Locals(auth.CtxUserNameKey, "müdür")
		c.Locals(auth.CtxUserRoleKey, role)
		c.Locals(auth.CtxBranchIDKey, branch)
		return c.Next()
	})
	app.Post("/scale/export", ExportHandler(e))
	app.Get("/scale/status", StatusHandler(e))
	app.Put("/scale/settings/:branch_id", UpdateSettingsHandler(e, onChange))
	app.Post("/scale/resolve-weight", ResolveWeightHandler(catalog.NewRepository(e.db), Resolver{}))
	return app
}

func uintPtr(v uint) *uint { return &v }

func TestExportHandlerStatusCodes(t *testing.T) {
	cases := []struct {
		name    string
		sendErr error
		code    int
	}{
		{"başarılı", nil, http.StatusOK},
		{"aktarım hatası", wrapErr(ErrTransferFailed, "stor", errors.New("550 izin yok")), http.StatusBadGateway},
		{"bağlantı hatası", wrapErr(ErrConnectionFailed, "dial", errors.New("connection refused")), http.StatusBadGateway},
		{"zaman aşımı", wrapErr(ErrTransferFailed, "stor", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, ft, _ := newExporter(t, catalogOf(2), scaleDefaults())
			ft.sendErr = tc.sendErr

			code, body := testutil.Call(t, scaleApp(e, models.RoleBranchAdmin, uintPtr(1), nil), http.MethodPost, "/scale/export", "")
			require.Equal(t, tc.code, code, body)

			var res SyncResult
			require.NoError(t, json.Unmarshal([]byte(body), &res))
			assert.Equal(t, tc.sendErr == nil, res.Succeeded)
			if tc.sendErr != nil {
				assert.NotEmpty(t, res.FailedReason)
				assert.Zero(t, res.Delivered)
			}
		})
	}
}

func TestExportHandlerBusyScope(t *testing.T) {
	e, ft, _ := newExporter(t, catalogOf(1), scaleDefaults())
	ft.entered = make(chan struct{}, 1)
	ft.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := e.Export(context.Background(), 0)
		done <- err
	}()
	<-ft.entered

	code, body := testutil.Call(t, scaleApp(e, models.RoleBranchAdmin, uintPtr(1), nil), http.MethodPost, "/scale/export", "")
	assert.Equal(t, http.StatusConflict, code, body)

	close(ft.block)
	require.NoError(t, <-done)
}

func TestExportHandlerBranchScope(t *testing.T) {
	cfg := scaleDefaults()
	cfg.Scope = "branch"
	e, ft, _ := newExporter(t, catalogOf(1), cfg)

	cases := []struct {
		name   string
		role   models.UserRole
		branch *uint
		body   string
		code   int
	}{
		{"başka şube", models.RoleBranchAdmin, uintPtr(1), `{"branch_id":2}`, http.StatusForbidden},
		{"şubesiz personel", models.RoleBranchAdmin, nil, "", http.StatusForbidden},
		{"super admin şubesiz", models.RoleSuperAdmin, nil, "", http.StatusBadRequest},
		{"bozuk gövde", models.RoleBranchAdmin, uintPtr(1), `{"branch_id":`, http.StatusBadRequest},
		{"kendi şubesi", models.RoleBranchAdmin, uintPtr(1), "", http.StatusOK},
		{"super admin", models.RoleSuperAdmin, nil, `{"branch_id":2}`, http.StatusOK},
	}
	for _, tc := range cases {
		code, body := testutil.Call(t, scaleApp(e, tc.role, tc.branch, nil), http.MethodPost, "/scale/export", tc.body)
		assert.Equal(t, tc.code, code, "%s: %s", tc.name, body)
	}

	require.Len(t, ft.conns, 2)
	last1, err := e.LastSync(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, last1)
	last2, err := e.LastSync(context.Background(), 2)
	require.NoError(t, err)
	assert.NotNil(t, last2)
}

func TestStatusHandler(t *testing.T) {
	cfg := scaleDefaults()
	cfg.Scope = "branch"
	e, _, _ := newExporter(t, catalogOf(1), cfg)

	code, _ := testutil.Call(t, scaleApp(e, models.RoleSuperAdmin, nil, nil), http.MethodGet, "/scale/status?branch_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = testutil.Call(t, scaleApp(e, models.RoleCashier, uintPtr(1), nil), http.MethodGet, "/scale/status?branch_id=2", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body := testutil.Call(t, scaleApp(e, models.RoleCashier, uintPtr(1), nil), http.MethodGet, "/scale/status", "")
	require.Equal(t, http.StatusOK, code, body)

	var st StatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, uint(1), st.BranchID)
	assert.Equal(t, "ftp", st.Protocol)
	assert.Equal(t, models.SyncStatusNever, st.LastStatus)
	assert.Nil(t, st.LastSync)
}

func TestUpdateSettingsHandler(t *testing.T) {
	cfg := scaleDefaults()
	cfg.Scope = "branch"
	e, _, _ := newExporter(t, catalogOf(1), cfg)

	var reloads int
	hook := func(context.Context) error {
		reloads++
		return nil
	}
	app := scaleApp(e, models.RoleSuperAdmin, nil, hook)

	code, _ := testutil.Call(t, app, http.MethodPut, "/scale/settings/x", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := testutil.Call(t, app, http.MethodPut, "/scale/settings/3", `{"protocol":"smb"}`)
	assert.Equal(t, http.StatusBadRequest, code, body)
	assert.Zero(t, reloads)

	code, body = testutil.Call(t, app, http.MethodPut, "/scale/settings/3", `{"protocol":"tcp","host":"10.0.0.7","frequency":"hourly"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 1, reloads)

	var st StatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, "tcp", st.Protocol)
	assert.Equal(t, "10.0.0.7", st.Host)
	assert.Equal(t, models.SyncHourly, st.Frequency)

	failing := scaleApp(e, models.RoleSuperAdmin, nil, func(context.Context) error {
		return errors.New("cron kapalı")
	})
	code, _ = testutil.Call(t, failing, http.MethodPut, "/scale/settings/3", `{"host":"10.0.0.8"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestResolveWeightHandler(t *testing.T) {
	e, _, _ := newExporter(t, catalogOf(1), scaleDefaults())
	tared := testutil.WeighableProduct(t, e.db, "Açık Kedi Maması", 301, func(p *models.Product) {
		p.TareWeight = testutil.NullKg("0.050")
	})
	packaged := testutil.WeighableProduct(t, e.db, "Paketli Ödül", 302, func(p *models.Product) {
		p.IsWeighable = false
	})
	app := scaleApp(e, models.RoleCashier, uintPtr(1), nil)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"ürün eksik", `{"raw_weight":"1"}`, http.StatusBadRequest},
		{"bilinmeyen ürün", `{"product_id":999,"raw_weight":"1"}`, http.StatusNotFound},
		{"tartılı değil", fmt.Sprintf(`{"product_id":%d,"raw_weight":"1"}`, packaged.ID), http.StatusBadRequest},
		{"negatif okuma", fmt.Sprintf(`{"product_id":%d,"raw_weight":"-0.2"}`, tared.ID), http.StatusBadRequest},
		{"dara düşümü", fmt.Sprintf(`{"product_id":%d,"raw_weight":"1.250"}`, tared.ID), http.StatusOK},
	}
	for _, tc := range cases {
		code, body := testutil.Call(t, app, http.MethodPost, "/scale/resolve-weight", tc.body)
		assert.Equal(t, tc.code, code, "%s: %s", tc.name, body)
	}

	code, body := testutil.Call(t, app, http.MethodPost, "/scale/resolve-weight", fmt.Sprintf(`{"product_id":%d,"raw_weight":"0.020"}`, tared.ID))
	require.Equal(t, http.StatusOK, code, body)
	var res Resolution
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.True(t, res.Billable.Equal(decimal.Zero))
	assert.True(t, res.Suppressed)
}
