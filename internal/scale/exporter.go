package scale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"petshop-backend/internal/alert"
	"petshop-backend/internal/config"
	"petshop-backend/internal/metrics"
	"petshop-backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

var ErrSyncInProgress = errors.New("bu kapsam için terazi aktarımı zaten sürüyor")

type SkipReason string

const (
	SkipInvalidPLU   SkipReason = "InvalidPlu"
	SkipNameTooLong  SkipReason = "NameTooLong"
	SkipInvalidTare  SkipReason = "InvalidTare"
	SkipInvalidPrice SkipReason = "InvalidPrice"
	SkipDuplicatePLU SkipReason = "DuplicatePlu"
)

type SkippedProduct struct {
	ProductID uint       `json:"product_id"`
	Name      string     `json:"name"`
	PLU       *int       `json:"scale_plu"`
	Reason    SkipReason `json:"reason"`
	Detail    string     `json:"detail"`
}

type SyncResult struct {
	SyncID       string           `json:"sync_id"`
	BranchID     uint             `json:"branch_id"`
	Succeeded    bool             `json:"succeeded"`
	Delivered    int              `json:"delivered"`
	Skipped      []SkippedProduct `json:"skipped"`
	FailedReason string           `json:"failed_reason,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Catalog: aktarıma uygun ürünler (is_weighable, export_to_scale, aktif)
type Catalog interface {
	EligibleForScale(ctx context.Context) ([]models.Product, error)
}

type TransportFactory func(Connection) (Transport, error)

type Exporter struct {
	db        *gorm.DB
	catalog   Catalog
	defaults  config.Scale
	codec     Codec
	publisher alert.Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger

	// NewTransport testlerde sahte uç noktayla değiştirilir
	NewTransport TransportFactory

	mu    sync.Mutex
	locks map[uint]*semaphore.Weighted
}

func NewExporter(db *gorm.DB, catalog Catalog, cfg config.Scale, pub alert.Publisher, m *metrics.Metrics, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = alert.LogPublisher{Logger: log}
	}
	return &Exporter{
		db:           db,
		catalog:      catalog,
		defaults:     cfg,
		codec:        NewCodec(cfg.Format),
		publisher:    pub,
		metrics:      m,
		log:          log.With(slog.String("component", "scale_exporter")),
		NewTransport: NewTransport,
		locks:        make(map[uint]*semaphore.Weighted),
	}
}

func (e *Exporter) BranchScoped() bool {
	return e.defaults.Scope == "branch"
}

// Scope: genel kapsamda tüm şubeler 0 anahtarını paylaşır
func (e *Exporter) Scope(branchID uint) uint {
	if e.BranchScoped() {
		return branchID
	}
	return 0
}

func (e *Exporter) Defaults() config.Scale {
	return e.defaults
}

func (e *Exporter) lock(scope uint) *semaphore.Weighted {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.locks[scope]
	if !ok {
		s = semaphore.NewWeighted(1)
		e.locks[scope] = s
	}
	return s
}

// Export: kapsamın fiyat listesini teraziye aktarır. Kapsam başına tek aktarım;
// sürerken gelen istek beklemeden ErrSyncInProgress alır.
// Taşıma hatasında sonuç yine döner, scale_last_sync değişmez.
func (e *Exporter) Export(ctx context.Context, scope uint) (*SyncResult, error) {
	sem := e.lock(scope)
	if !sem.TryAcquire(1) {
		e.metrics.ScaleExport("busy", 0)
		return nil, ErrSyncInProgress
	}
	defer sem.Release(1)

	res := &SyncResult{
		SyncID:    uuid.NewString(),
		BranchID:  scope,
		Skipped:   []SkippedProduct{},
		StartedAt: time.Now(),
	}
	log := e.log.With(slog.String("sync_id", res.SyncID), slog.Uint64("branch_id", uint64(scope)))

	err := e.run(ctx, scope, res, log)

	res.FinishedAt = time.Now()
	res.Succeeded = err == nil
	if err != nil {
		res.FailedReason = err.Error()
	}

	// istek iptal edilmiş olsa da deneme kaydı yazılır
	bg := context.WithoutCancel(ctx)
	if recErr := e.recordAttempt(bg, res); recErr != nil {
		log.Error("terazi senkron durumu kaydedilemedi", slog.Any("error", recErr))
		if err == nil {
			err = recErr
		}
	}

	if pubErr := e.publisher.Publish(bg, alert.Event{
		Kind:     alert.KindScaleSync,
		BranchID: scope,
		At:       res.FinishedAt,
		Payload:  res,
	}); pubErr != nil {
		log.Warn("senkron sonucu yayınlanamadı", slog.Any("error", pubErr))
	}

	if err != nil {
		e.metrics.ScaleExport("failed", len(res.Skipped))
		log.Warn("terazi aktarımı başarısız", slog.Any("error", err), slog.Int("skipped", len(res.Skipped)))
		return res, err
	}

	e.metrics.ScaleExport("succeeded", len(res.Skipped))
	log.Info("terazi aktarımı tamamlandı",
		slog.Int("delivered", res.Delivered),
		slog.Int("skipped", len(res.Skipped)),
		slog.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (e *Exporter) run(ctx context.Context, scope uint, res *SyncResult, log *slog.Logger) error {
	st, err := e.State(ctx, scope)
	if err != nil {
		return err
	}
	conn := ResolveConnection(e.defaults, st)

	products, err := e.catalog.EligibleForScale(ctx)
	if err != nil {
		return fmt.Errorf("aktarılacak ürünler okunamadı: %w", err)
	}

	records, skipped := e.Encode(products)
	res.Skipped = skipped
	for _, s := range skipped {
		log.Info("ürün aktarımdan çıkarıldı",
			slog.Uint64("product_id", uint64(s.ProductID)),
			slog.String("reason", string(s.Reason)),
			slog.String("detail", s.Detail),
		)
	}

	payload, err := e.codec.Render(records)
	if err != nil {
		return fmt.Errorf("fiyat listesi oluşturulamadı: %w", err)
	}

	if err := e.deliver(ctx, conn, payload); err != nil {
		return err
	}
	res.Delivered = len(records)
	return nil
}

// Encode: geçersiz ürünler atlanır, tek hatalı ürün aktarımı durdurmaz
func (e *Exporter) Encode(products []models.Product) ([]PluRecord, []SkippedProduct) {
	records := make([]PluRecord, 0, len(products))
	skipped := []SkippedProduct{}
	seen := make(map[int]uint, len(products))

	for _, p := range products {
		rec, err := e.codec.Encode(p)
		if err != nil {
			skipped = append(skipped, SkippedProduct{
				ProductID: p.ID,
				Name:      p.Name,
				PLU:       p.ScalePLU,
				Reason:    skipReason(err),
				Detail:    err.Error(),
			})
			continue
		}
		if other, dup := seen[rec.PLU]; dup {
			skipped = append(skipped, SkippedProduct{
				ProductID: p.ID,
				Name:      p.Name,
				PLU:       p.ScalePLU,
				Reason:    SkipDuplicatePLU,
				Detail:    fmt.Sprintf("PLU %d ürün %d tarafından kullanılıyor", rec.PLU, other),
			})
			continue
		}
		seen[rec.PLU] = p.ID
		records = append(records, rec)
	}
	return records, skipped
}

func skipReason(err error) SkipReason {
	switch {
	case errors.Is(err, ErrNameTooLong):
		return SkipNameTooLong
	case errors.Is(err, ErrInvalidTare):
		return SkipInvalidTare
	case errors.Is(err, ErrInvalidPrice):
		return SkipInvalidPrice
	default:
		return SkipInvalidPLU
	}
}

func (e *Exporter) deliver(ctx context.Context, conn Connection, p Payload) error {
	ctx, cancel := context.WithTimeout(ctx, conn.Timeout)
	defer cancel()

	t, err := e.NewTransport(conn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer t.Close()

	if err := t.Connect(ctx); err != nil {
		return err
	}
	return t.Send(ctx, p)
}
