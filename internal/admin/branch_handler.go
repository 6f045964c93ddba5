package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"petshop-backend/internal/audit"
	"petshop-backend/internal/auth"
	"petshop-backend/internal/database"
	"petshop-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type BranchResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

type CreateBranchRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   *string `json:"phone"` // Opsiyonel
}

type UpdateBranchRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

type StaffResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	BranchID  *uint  `json:"branch_id"`
	CreatedAt string `json:"created_at"`
}

func toBranchResponse(b models.Branch) BranchResponse {
	return BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Address:   b.Address,
		Phone:     b.Phone,
		CreatedAt: b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// BranchIDs: şube kapsamlı terazi senkronu için zamanlanacak şubeler
func BranchIDs(ctx context.Context, db *gorm.DB) ([]uint, error) {
	var ids []uint
	if err := db.WithContext(ctx).Model(&models.Branch{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("şubeler okunamadı: %w", err)
	}
	return ids, nil
}

// ----------------------------------------
// ŞUBE CRUD (super_admin)
// ----------------------------------------

// onCreated: şube kaydı commit edildikten sonra çağrılır (terazi zamanlaması).
// Hata şube oluşturmayı geri almaz, sadece loglanır.
func CreateBranchHandler(db *gorm.DB, onCreated func(ctx context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Şube adı boş olamaz")
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		branch := models.Branch{
			Name:    body.Name,
			Address: strings.TrimSpace(body.Address),
		}
		if body.Phone != nil {
			branch.Phone = strings.TrimSpace(*body.Phone)
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&branch).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				BranchID:    &branch.ID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  "branch",
				EntityID:    branch.ID,
				Action:      models.AuditActionCreate,
				Description: "Şube oluşturuldu: " + branch.Name,
				After:       branch,
			})
		})
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fiber.NewError(fiber.StatusConflict, "Bu isimde bir şube zaten var")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Şube oluşturulamadı")
		}

		if onCreated != nil {
			if err := onCreated(c.UserContext()); err != nil {
				slog.Warn("yeni şube için terazi zamanlaması güncellenemedi",
					slog.Uint64("branch_id", uint64(branch.ID)),
					slog.Any("error", err),
				)
			}
		}

		return c.Status(fiber.StatusCreated).JSON(toBranchResponse(branch))
	}
}

func ListBranchesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var branches []models.Branch
		if err := db.WithContext(c.UserContext()).Order("id").Find(&branches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şubeler listelenemedi")
		}

		res := make([]BranchResponse, 0, len(branches))
		for _, b := range branches {
			res = append(res, toBranchResponse(b))
		}
		return c.JSON(res)
	}
}

func GetBranchHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var branch models.Branch
		if err := db.WithContext(c.UserContext()).First(&branch, "id = ?", c.Params("id")).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Şube bulunamadı")
		}
		return c.JSON(toBranchResponse(branch))
	}
}

func UpdateBranchHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body UpdateBranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz veri gönderildi")
		}
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var branch models.Branch
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&branch, "id = ?", c.Params("id")).Error; err != nil {
				return err
			}
			before := branch

			if body.Name != nil {
				name := strings.TrimSpace(*body.Name)
				if name == "" {
					return fiber.NewError(fiber.StatusBadRequest, "Şube adı boş olamaz")
				}
				branch.Name = name
			}
			if body.Address != nil {
				branch.Address = strings.TrimSpace(*body.Address)
			}
			if body.Phone != nil {
				branch.Phone = strings.TrimSpace(*body.Phone)
			}

			if err := tx.Save(&branch).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				BranchID:    &branch.ID,
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  "branch",
				EntityID:    branch.ID,
				Action:      models.AuditActionUpdate,
				Description: "Şube güncellendi: " + branch.Name,
				Before:      before,
				After:       branch,
			})
		})

		var fe *fiber.Error
		switch {
		case err == nil:
			return c.JSON(toBranchResponse(branch))
		case errors.As(err, &fe):
			return fe
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Şube bulunamadı")
		case database.IsUniqueViolation(err):
			return fiber.NewError(fiber.StatusConflict, "Bu isimde bir şube zaten var")
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "Şube güncellenemedi")
		}
	}
}

// ----------------------------------------
// ŞUBE PERSONELİ
// GET /api/admin/branches/:id/staff
// ----------------------------------------

func ListBranchStaffHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := db.WithContext(c.UserContext()).
			Where("branch_id = ?", c.Params("id")).
			Order("created_at DESC").
			Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Personel listelenemedi")
		}

		res := make([]StaffResponse, 0, len(users))
		for _, u := range users {
			res = append(res, StaffResponse{
				ID:        u.ID,
				Name:      u.Name,
				Email:     u.Email,
				Role:      string(u.Role),
				BranchID:  u.BranchID,
				CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(res)
	}
}
