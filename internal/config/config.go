package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=petshop port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string

	LogLevel  string
	LogFormat string

	// NATS_URL boşsa uyarılar sadece loglanır
	NATSURL           string
	NATSSubjectPrefix string

	Scale Scale
}

// Scale: terazi bağlantısı ve senkron politikası (ortam varsayılanları).
// Şube bazlı geçersiz kılmalar ScaleSyncState tablosunda tutulur.
type Scale struct {
	Protocol  string
	Host      string
	Port      int
	Username  string
	Password  string
	UploadDir string
	HTTPPath  string
	Timeout   time.Duration

	Frequency string // manual | hourly | daily
	DailyAt   string // HH:MM
	Scope     string // global | branch

	ProfileFile string
	Format      Format
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		CORSOrigins:       getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "petshop.alerts"),
		Scale: Scale{
			Protocol:    getEnv("SCALE_PROTOCOL", "ftp"),
			Host:        getEnv("SCALE_HOST", ""),
			Port:        getEnvInt("SCALE_PORT", 0),
			Username:    getEnv("SCALE_USERNAME", ""),
			Password:    getEnv("SCALE_PASSWORD", ""),
			UploadDir:   getEnv("SCALE_UPLOAD_DIR", "/"),
			HTTPPath:    getEnv("SCALE_HTTP_PATH", "/plu"),
			Timeout:     getEnvDuration("SCALE_TIMEOUT", 30*time.Second),
			Frequency:   getEnv("SCALE_SYNC_FREQUENCY", "manual"),
			DailyAt:     getEnv("SCALE_SYNC_DAILY_AT", "03:00"),
			Scope:       getEnv("SCALE_SYNC_SCOPE", "global"),
			ProfileFile: getEnv("SCALE_PROFILE_FILE", ""),
			Format:      DefaultFormat(),
		},
	}

	if cfg.Scale.ProfileFile != "" {
		profile, err := LoadProfile(cfg.Scale.ProfileFile)
		if err != nil {
			return nil, err
		}
		cfg.Scale.Format.Merge(profile)
	}

	if cfg.DatabaseDSN == defaultDSN {
		slog.Warn("DATABASE_DSN varsayılan değer kullanılıyor, production için kendi Postgres bağlantı bilgisini tanımla")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		slog.Warn("CORS_ALLOWED_ORIGINS varsayılan değer kullanılıyor")
	}

	return cfg, nil
}

// Validate: sunucu açılışı için zorunlu alanlar
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET tanımlanmamış")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET en az 32 karakter olmalıdır")
	}
	return c.Scale.Validate()
}

func (s Scale) Validate() error {
	switch s.Protocol {
	case "ftp", "file", "http", "tcp":
	default:
		return fmt.Errorf("SCALE_PROTOCOL geçersiz: %q (ftp|file|http|tcp)", s.Protocol)
	}
	switch s.Frequency {
	case "manual", "hourly", "daily":
	default:
		return fmt.Errorf("SCALE_SYNC_FREQUENCY geçersiz: %q (manual|hourly|daily)", s.Frequency)
	}
	switch s.Scope {
	case "global", "branch":
	default:
		return fmt.Errorf("SCALE_SYNC_SCOPE geçersiz: %q (global|branch)", s.Scope)
	}
	if _, _, err := ParseDailyAt(s.DailyAt); err != nil {
		return err
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("SCALE_TIMEOUT pozitif olmalı")
	}
	return s.Format.Validate()
}

// ParseDailyAt: "03:30" -> (3, 30)
func ParseDailyAt(v string) (hour, minute int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("SCALE_SYNC_DAILY_AT 'HH:MM' formatında olmalı: %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("SCALE_SYNC_DAILY_AT saat geçersiz: %q", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("SCALE_SYNC_DAILY_AT dakika geçersiz: %q", v)
	}
	return hour, minute, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ortam değişkeni sayı değil, varsayılan kullanılıyor", slog.String("key", key), slog.String("value", v))
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ortam değişkeni süre değil, varsayılan kullanılıyor", slog.String("key", key), slog.String("value", v))
		return def
	}
	return d
}
