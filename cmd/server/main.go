package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"petshop-backend/internal/admin"
	"petshop-backend/internal/alert"
	"petshop-backend/internal/catalog"
	"petshop-backend/internal/config"
	"petshop-backend/internal/database"
	"petshop-backend/internal/deduction"
	"petshop-backend/internal/logger"
	"petshop-backend/internal/metrics"
	"petshop-backend/internal/openbag"
	"petshop-backend/internal/sale"
	"petshop-backend/internal/scale"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Hata: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Petshop POS backend: açık satış, terazi köprüsü, stok düşümleri",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), migrateCmd(), scaleCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API ve terazi senkron zamanlayıcısını başlatır",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Veritabanı şemasını günceller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer closeDB(db)
			return database.Migrate(db, log)
		},
	}
}

func scaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Terazi işlemleri",
	}

	var branchID uint
	export := &cobra.Command{
		Use:   "export",
		Short: "Fiyat listesini teraziye hemen aktarır",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Scale.Validate(); err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer closeDB(db)

			exporter := scale.NewExporter(db, catalog.NewRepository(db), cfg.Scale, alert.LogPublisher{Logger: log}, nil, log)
			if exporter.BranchScoped() && branchID == 0 {
				return errors.New("şube kapsamlı senkronda --branch zorunlu")
			}

			res, exportErr := exporter.Export(cmd.Context(), exporter.Scope(branchID))
			if res != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return exportErr
		},
	}
	export.Flags().UintVar(&branchID, "branch", 0, "şube id (SCALE_SYNC_SCOPE=branch iken)")

	cmd.AddCommand(export)
	return cmd
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(log)
	return cfg, log, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// services: HTTP katmanının ihtiyaç duyduğu bağımlılıklar
type services struct {
	cfg       *config.Config
	db        *gorm.DB
	metrics   *metrics.Metrics
	products  *catalog.Repository
	exporter  *scale.Exporter
	scheduler *scale.Scheduler
	bags      *openbag.Ledger
	workflow  *deduction.Workflow
	sales     *sale.Service
	resolver  scale.Resolver
}

func serve(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	m := metrics.New()

	publishers := alert.Multi{alert.LogPublisher{Logger: log}}
	if cfg.NATSURL != "" {
		np, err := alert.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, log)
		if err != nil {
			return err
		}
		defer np.Close()
		publishers = append(publishers, np)
	}

	products := catalog.NewRepository(db)
	exporter := scale.NewExporter(db, products, cfg.Scale, publishers, m, log)
	scopes := func(ctx context.Context) ([]uint, error) {
		if !exporter.BranchScoped() {
			return []uint{0}, nil
		}
		return admin.BranchIDs(ctx, db)
	}
	scheduler := scale.NewScheduler(exporter, scopes, log)
	bags := openbag.NewLedger(db, publishers, m, log)

	s := services{
		cfg:       cfg,
		db:        db,
		metrics:   m,
		products:  products,
		exporter:  exporter,
		scheduler: scheduler,
		bags:      bags,
		workflow:  deduction.NewWorkflow(db, bags, m, log),
		sales:     sale.NewService(products, bags, log),
		resolver:  scale.Resolver{Logger: log},
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Error("beklenmeyen hata", slog.String("path", c.Path()), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	registerRoutes(app, s)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP sunucusu başlatılıyor", slog.String("port", cfg.HTTPPort))
		errCh <- app.Listen(":" + cfg.HTTPPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("kapanıyor")
	return app.ShutdownWithTimeout(10 * time.Second)
}
