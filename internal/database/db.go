package database

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"petshop-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openBagIndexDDL: (şube, ürün) başına tek açık çuval. Partial index hem Postgres hem SQLite'ta çalışır.
const openBagIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_open_bags_one_open ON open_bags (branch_id, product_id) WHERE status = 'OPEN'`

func Open(dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "[GORM] ", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("veritabanına bağlanılamadı: %w", err)
	}
	return db, nil
}

// Migrate: tablolar + AutoMigrate'in üretemediği kısıtlar
func Migrate(db *gorm.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	err := db.AutoMigrate(
		&models.Branch{},
		&models.User{},
		&models.Product{},
		&models.OpenBag{},
		&models.NonSalesDeduction{},
		&models.StockLevel{},
		&models.StockMovement{},
		&models.ScaleSyncState{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("AutoMigrate hatası: %w", err)
	}

	if !db.Migrator().HasIndex(&models.OpenBag{}, "ux_open_bags_one_open") {
		log.Info("open_bags için tek açık çuval index'i ekleniyor")
		if err := db.Exec(openBagIndexDDL).Error; err != nil {
			return fmt.Errorf("ux_open_bags_one_open oluşturulamadı: %w", err)
		}
	}

	log.Info("Veritabanı migration tamamlandı")
	return nil
}

// IsUniqueViolation: Postgres 23505, gorm'un çevrilmiş hatası veya SQLite mesajı
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
