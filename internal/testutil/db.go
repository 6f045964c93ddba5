// Package testutil paket testleri için ortak yardımcılar.
package testutil

import (
	"fmt"
	"testing"

	"petshop-backend/internal/database"
	"petshop-backend/internal/logger"
	"petshop-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB: teste özel bellek içi SQLite. Tek bağlantı, yazmaları sıraya sokar.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(0)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("sqlite açılamadı: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB alınamadı: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, logger.Discard()); err != nil {
		t.Fatalf("migration: %v", err)
	}
	return db
}

// Kg: testlerde okunur ağırlık
func Kg(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func NullKg(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(Kg(v))
}

func CreateBranch(t *testing.T, db *gorm.DB, name string) models.Branch {
	t.Helper()
	b := models.Branch{Name: name}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("şube oluşturulamadı: %v", err)
	}
	return b
}

func CreateUser(t *testing.T, db *gorm.DB, name string, role models.UserRole, branchID *uint) models.User {
	t.Helper()
	u := models.User{
		Name:         name,
		Email:        uuid.NewString() + "@test.local",
		PasswordHash: "x",
		Role:         role,
		BranchID:     branchID,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("kullanıcı oluşturulamadı: %v", err)
	}
	return u
}

// WeighableProduct: terazi aktarımına uygun ürün
func WeighableProduct(t *testing.T, db *gorm.DB, name string, plu int, opts ...func(*models.Product)) models.Product {
	t.Helper()
	p := models.Product{
		Name:          name,
		Unit:          "kg",
		Active:        true,
		IsWeighable:   true,
		ExportToScale: true,
		ScalePLU:      &plu,
		PricePerUnit:  decimal.RequireFromString("120.50"),
	}
	for _, o := range opts {
		o(&p)
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("ürün oluşturulamadı: %v", err)
	}
	return p
}
