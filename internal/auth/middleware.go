package auth

import (
	"strconv"
	"strings"

	"petshop-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
	CtxBranchIDKey = "branch_id"
)

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header eksik")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization formatı 'Bearer <token>' olmalı")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Geçersiz veya süresi dolmuş token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserNameKey, claims.Name)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxBranchIDKey, claims.BranchID)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "Bu işlem için yetkiniz yok")
	}
}

// Actor: isteği yapan personel
type Actor struct {
	UserID   uint
	Name     string
	Role     models.UserRole
	BranchID *uint
}

func ActorFrom(c *fiber.Ctx) (Actor, error) {
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusForbidden, "Rol bilgisi alınamadı")
	}
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusForbidden, "Kullanıcı bilgisi alınamadı")
	}
	name, _ := c.Locals(CtxUserNameKey).(string)

	a := Actor{UserID: userID, Name: name, Role: role}
	if bPtr, ok := c.Locals(CtxBranchIDKey).(*uint); ok && bPtr != nil {
		a.BranchID = bPtr
	}
	return a, nil
}

// ResolveBranch: şube personeli kendi şubesine bağlıdır; super_admin şubeyi açıkça verir
func ResolveBranch(c *fiber.Ctx, requested *uint) (uint, error) {
	a, err := ActorFrom(c)
	if err != nil {
		return 0, err
	}

	if a.Role != models.RoleSuperAdmin {
		if a.BranchID == nil {
			return 0, fiber.NewError(fiber.StatusForbidden, "Şube bilgisi bulunamadı")
		}
		if requested != nil && *requested != *a.BranchID {
			return 0, fiber.NewError(fiber.StatusForbidden, "Başka şube için işlem yapamazsınız")
		}
		return *a.BranchID, nil
	}

	if requested == nil || *requested == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "branch_id zorunlu")
	}
	return *requested, nil
}

// ResolveBranchFromQuery: ?branch_id= üzerinden ResolveBranch
func ResolveBranchFromQuery(c *fiber.Ctx) (uint, error) {
	var requested *uint
	if s := c.Query("branch_id"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil || v == 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "branch_id geçersiz")
		}
		bid := uint(v)
		requested = &bid
	}
	return ResolveBranch(c, requested)
}
