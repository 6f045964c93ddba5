package models

import "time"

type SyncFrequency string

const (
	SyncManual SyncFrequency = "manual"
	SyncHourly SyncFrequency = "hourly"
	SyncDaily  SyncFrequency = "daily"
)

type SyncStatus string

const (
	SyncStatusNever     SyncStatus = "never"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// ScaleSyncState: kapsam başına (BranchID 0 = genel) terazi senkron durumu.
// Nil alanlar ortam ayarındaki varsayılanı kullanır.
type ScaleSyncState struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	BranchID uint `gorm:"uniqueIndex;not null;default:0" json:"branch_id"`

	Protocol  *string        `gorm:"size:10" json:"protocol"`
	Host      *string        `gorm:"size:255" json:"host"`
	Port      *int           `json:"port"`
	Username  *string        `gorm:"size:100" json:"username"`
	Password  *string        `gorm:"size:255" json:"-"`
	UploadDir *string        `gorm:"size:255" json:"upload_dir"`
	HTTPPath  *string        `gorm:"size:255" json:"http_path"`
	Frequency *SyncFrequency `gorm:"size:10" json:"frequency"`

	LastSyncAt    *time.Time `json:"scale_last_sync"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastStatus    SyncStatus `gorm:"size:20;not null;default:'never'" json:"last_status"`
	LastError     string     `gorm:"size:500" json:"last_error"`
	LastDelivered int        `json:"last_delivered"`
	LastSkipped   int        `json:"last_skipped"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
