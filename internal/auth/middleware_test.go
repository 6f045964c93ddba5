package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"petshop-backend/internal/models"
	"petshop-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	api := app.Group("/api", JWTMiddleware(testSecret))
	api.Get("/me", MeHandler())
	api.Get("/branch", func(c *fiber.Ctx) error {
		id, err := ResolveBranchFromQuery(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"branch_id": id})
	})
	api.Post("/approve", RequireRole(models.RoleSuperAdmin, models.RoleBranchAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func tokenFor(t *testing.T, id uint, role models.UserRole, branchID *uint) string {
	t.Helper()
	tok, err := GenerateToken(testSecret, &models.User{ID: id, Name: "personel", Role: role, BranchID: branchID})
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, app *fiber.App, method, target, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return resp.StatusCode, out
}

func TestJWTMiddlewareRejectsBadTokens(t *testing.T) {
	app := newApp()

	code, _ := do(t, app, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, app, http.MethodGet, "/api/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, code)

	// başka anahtarla imzalanmış
	other, err := GenerateToken("other", &models.User{ID: 1, Role: models.RoleCashier})
	require.NoError(t, err)
	code, _ = do(t, app, http.MethodGet, "/api/me", other)
	assert.Equal(t, http.StatusUnauthorized, code)

	// süresi dolmuş
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTCustomClaims{
		UserID: 1,
		Role:   models.RoleCashier,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	code, _ = do(t, app, http.MethodGet, "/api/me", signed)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMeReturnsClaims(t *testing.T) {
	branch := uint(3)
	code, body := do(t, newApp(), http.MethodGet, "/api/me", tokenFor(t, 9, models.RoleCashier, &branch))
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 9, body["user_id"])
	assert.Equal(t, "cashier", body["role"])
	assert.EqualValues(t, 3, body["branch_id"])
}

func TestRequireRole(t *testing.T) {
	app := newApp()
	branch := uint(1)

	code, _ := do(t, app, http.MethodPost, "/api/approve", tokenFor(t, 1, models.RoleCashier, &branch))
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, app, http.MethodPost, "/api/approve", tokenFor(t, 2, models.RoleBranchAdmin, &branch))
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, app, http.MethodPost, "/api/approve", tokenFor(t, 3, models.RoleSuperAdmin, nil))
	assert.Equal(t, http.StatusNoContent, code)
}

func TestResolveBranch(t *testing.T) {
	app := newApp()
	own := uint(5)
	cashier := tokenFor(t, 1, models.RoleCashier, &own)
	super := tokenFor(t, 2, models.RoleSuperAdmin, nil)

	cases := []struct {
		name   string
		token  string
		query  string
		status int
		branch float64
	}{
		{"personel kendi şubesi", cashier, "", http.StatusOK, 5},
		{"personel açıkça kendi şubesi", cashier, "?branch_id=5", http.StatusOK, 5},
		{"personel başka şube", cashier, "?branch_id=6", http.StatusForbidden, 0},
		{"super admin şube vermeli", super, "", http.StatusBadRequest, 0},
		{"super admin şube seçer", super, "?branch_id=6", http.StatusOK, 6},
		{"geçersiz şube", super, "?branch_id=abc", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, app, http.MethodGet, "/api/branch"+tc.query, tc.token)
			assert.Equal(t, tc.status, code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.branch, body["branch_id"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestLoginIssuesToken(t *testing.T) {
	db := testutil.NewDB(t)
	branch := testutil.CreateBranch(t, db, "Kadıköy")
	_, err := createUser(db, "Ayşe", "ayse@petshop.local", "gizli123", models.RoleCashier, &branch.ID)
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/login", LoginHandler(db, testSecret))

	login := func(password string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/login",
			strings.NewReader(`{"email":" AYSE@petshop.local ","password":"`+password+`"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := login("yanlış")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = login("gizli123")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	code, body := do(t, newApp(), http.MethodGet, "/api/me", out.Token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ayşe", body["name"])
	assert.EqualValues(t, branch.ID, body["branch_id"])
}

func TestParseTokenRejectsForeignClaims(t *testing.T) {
	sign := func(method jwt.SigningMethod, claims *JWTCustomClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	claims, err := ParseToken(testSecret, sign(jwt.SigningMethodHS256, &JWTCustomClaims{UserID: 4, RegisteredClaims: valid}))
	require.NoError(t, err)
	assert.Equal(t, uint(4), claims.UserID)

	foreign := valid
	foreign.Issuer = "baska-servis"
	_, err = ParseToken(testSecret, sign(jwt.SigningMethodHS256, &JWTCustomClaims{UserID: 4, RegisteredClaims: foreign}))
	assert.Error(t, err)

	noExpiry := jwt.RegisteredClaims{Issuer: tokenIssuer}
	_, err = ParseToken(testSecret, sign(jwt.SigningMethodHS256, &JWTCustomClaims{UserID: 4, RegisteredClaims: noExpiry}))
	assert.Error(t, err)

	_, err = ParseToken(testSecret, sign(jwt.SigningMethodHS512, &JWTCustomClaims{UserID: 4, RegisteredClaims: valid}))
	assert.Error(t, err)

	_, err = ParseToken(testSecret, sign(jwt.SigningMethodHS256, &JWTCustomClaims{RegisteredClaims: valid}))
	assert.Error(t, err)
}
