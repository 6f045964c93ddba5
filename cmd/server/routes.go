package main

import (
	"petshop-backend/internal/admin"
	"petshop-backend/internal/audit"
	"petshop-backend/internal/auth"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/deduction"
	"petshop-backend/internal/models"
	"petshop-backend/internal/openbag"
	"petshop-backend/internal/sale"
	"petshop-backend/internal/scale"
	"petshop-backend/internal/stock"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

func registerRoutes(app *fiber.App, s services) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(s.db))
	api.Post("/auth/login", auth.LoginHandler(s.db, s.cfg.JWTSecret))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(s.cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler())

	managers := auth.RequireRole(models.RoleSuperAdmin, models.RoleBranchAdmin)

	// Super admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))

	// Şube ve personel yönetimi
	adminRoutes.Post("/branches", admin.CreateBranchHandler(s.db, s.scheduler.Reload))
	adminRoutes.Get("/branches", admin.ListBranchesHandler(s.db))
	adminRoutes.Get("/branches/:id", admin.GetBranchHandler(s.db))
	adminRoutes.Put("/branches/:id", admin.UpdateBranchHandler(s.db))
	adminRoutes.Get("/branches/:id/staff", admin.ListBranchStaffHandler(s.db))
	adminRoutes.Post("/staff", auth.CreateStaffHandler(s.db))

	// Ürün ve terazi alanları
	adminRoutes.Post("/products", catalog.CreateProductHandler(s.products))
	adminRoutes.Put("/products/:id/scale", catalog.UpdateScaleSettingsHandler(s.products))

	// Terazi bağlantı geçersiz kılmaları, değişince zamanlama yenilenir
	adminRoutes.Put("/scale/settings/:branch_id", scale.UpdateSettingsHandler(s.exporter, s.scheduler.Reload))

	// Ortak (auth gerektiren) route'lar

	protected.Get("/products", catalog.ListProductsHandler(s.products))

	// Terazi
	protected.Post("/scale/export", managers, scale.ExportHandler(s.exporter))
	protected.Get("/scale/status", scale.StatusHandler(s.exporter))
	protected.Post("/scale/resolve-weight", scale.ResolveWeightHandler(s.products, s.resolver))

	// Açık çuvallar
	protected.Post("/open-bags", openbag.OpenHandler(s.bags))
	protected.Get("/open-bags", openbag.ListHandler(s.bags))
	protected.Get("/open-bags/:id", openbag.GetHandler(s.bags))
	protected.Post("/open-bags/:id/decrement", openbag.DecrementHandler(s.bags))
	protected.Post("/open-bags/:id/close", openbag.CloseHandler(s.bags))

	// Tartılı satış satırı
	protected.Post("/sales/weighable-lines", sale.CompleteLineHandler(s.sales))

	// Satış dışı düşümler (numune, bağış)
	protected.Post("/deductions", deduction.CreateHandler(s.workflow))
	protected.Get("/deductions", deduction.ListHandler(s.workflow))
	protected.Get("/deductions/:id", deduction.GetHandler(s.workflow))
	protected.Post("/deductions/:id/approve", managers, deduction.ApproveHandler(s.workflow))
	protected.Post("/deductions/:id/reject", managers, deduction.RejectHandler(s.workflow))

	// Stok
	protected.Get("/stock/levels", stock.ListLevelsHandler(s.db))
	protected.Get("/stock/levels/export", stock.ExportLevelsHandler(s.db))
	protected.Get("/stock/movements", stock.ListMovementsHandler(s.db))
	protected.Post("/stock/counts", managers, stock.CountHandler(s.db))

	// İşlem geçmişi
	protected.Get("/audit-logs", managers, audit.ListAuditLogsHandler(s.db))
}
