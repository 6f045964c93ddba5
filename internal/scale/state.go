package scale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"petshop-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// State: kapsamın senkron kaydı; hiç aktarım olmadıysa nil
func (e *Exporter) State(ctx context.Context, scope uint) (*models.ScaleSyncState, error) {
	var st models.ScaleSyncState
	err := e.db.WithContext(ctx).Where("branch_id = ?", scope).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("terazi senkron durumu okunamadı: %w", err)
	}
	return &st, nil
}

// States: kayıtlı tüm kapsamlar
func (e *Exporter) States(ctx context.Context) ([]models.ScaleSyncState, error) {
	var out []models.ScaleSyncState
	if err := e.db.WithContext(ctx).Order("branch_id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("terazi senkron durumları okunamadı: %w", err)
	}
	return out, nil
}

// recordAttempt: last_sync_at sadece başarıda değişir
func (e *Exporter) recordAttempt(ctx context.Context, res *SyncResult) error {
	now := res.FinishedAt
	row := models.ScaleSyncState{
		BranchID:      res.BranchID,
		LastAttemptAt: &now,
		LastStatus:    models.SyncStatusFailed,
		LastError:     truncateErr(res.FailedReason, 500),
		LastDelivered: res.Delivered,
		LastSkipped:   len(res.Skipped),
	}
	cols := []string{"last_attempt_at", "last_status", "last_error", "last_delivered", "last_skipped", "updated_at"}
	if res.Succeeded {
		row.LastStatus = models.SyncStatusSucceeded
		row.LastSyncAt = &now
		cols = append(cols, "last_sync_at")
	}

	return e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "branch_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
}

// Settings: kapsam bazlı bağlantı geçersiz kılmaları. Nil alan varsayılana döner.
type Settings struct {
	Protocol  *string               `json:"protocol"`
	Host      *string               `json:"host"`
	Port      *int                  `json:"port"`
	Username  *string               `json:"username"`
	Password  *string               `json:"password"`
	UploadDir *string               `json:"upload_dir"`
	HTTPPath  *string               `json:"http_path"`
	Frequency *models.SyncFrequency `json:"frequency"`
}

var ErrInvalidSettings = errors.New("geçersiz terazi ayarı")

func (s Settings) Validate() error {
	if s.Protocol != nil {
		switch *s.Protocol {
		case "ftp", "file", "http", "tcp":
		default:
			return fmt.Errorf("%w: protokol %q", ErrInvalidSettings, *s.Protocol)
		}
	}
	if s.Port != nil && (*s.Port < 1 || *s.Port > 65535) {
		return fmt.Errorf("%w: port %d", ErrInvalidSettings, *s.Port)
	}
	if s.Frequency != nil {
		switch *s.Frequency {
		case models.SyncManual, models.SyncHourly, models.SyncDaily:
		default:
			return fmt.Errorf("%w: sıklık %q", ErrInvalidSettings, *s.Frequency)
		}
	}
	return nil
}

// SaveSettings: geçersiz kılmaları yazar, senkron kaydına dokunmaz
func (e *Exporter) SaveSettings(ctx context.Context, scope uint, s Settings) (*models.ScaleSyncState, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	row := models.ScaleSyncState{
		BranchID:   scope,
		Protocol:   s.Protocol,
		Host:       s.Host,
		Port:       s.Port,
		Username:   s.Username,
		Password:   s.Password,
		UploadDir:  s.UploadDir,
		HTTPPath:   s.HTTPPath,
		Frequency:  s.Frequency,
		LastStatus: models.SyncStatusNever,
	}
	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "branch_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"protocol", "host", "port", "username", "password", "upload_dir", "http_path", "frequency", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("terazi ayarları kaydedilemedi: %w", err)
	}
	return e.State(ctx, scope)
}

func truncateErr(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// LastSync: kapsamın son başarılı aktarım zamanı
func (e *Exporter) LastSync(ctx context.Context, scope uint) (*time.Time, error) {
	st, err := e.State(ctx, scope)
	if err != nil || st == nil {
		return nil, err
	}
	return st.LastSyncAt, nil
}
