package scale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"petshop-backend/internal/config"
	"petshop-backend/internal/models"

	"github.com/robfig/cron/v3"
)

// CronSpec: manual için boş spec, diğerleri cron ifadesi
func CronSpec(freq models.SyncFrequency, dailyAt string) (string, error) {
	switch freq {
	case models.SyncManual:
		return "", nil
	case models.SyncHourly:
		return "@hourly", nil
	case models.SyncDaily:
		h, m, err := config.ParseDailyAt(dailyAt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil
	default:
		return "", fmt.Errorf("bilinmeyen senkron sıklığı: %q", freq)
	}
}

// ScopeSource: zamanlanacak kapsamlar (genel kapsamda sadece 0)
type ScopeSource func(ctx context.Context) ([]uint, error)

// Scheduler: kapsam başına sıklık politikasına göre Export çağırır
type Scheduler struct {
	exporter *Exporter
	scopes   ScopeSource
	log      *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[uint]cron.EntryID
	base    context.Context
}

func NewScheduler(e *Exporter, scopes ScopeSource, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		exporter: e,
		scopes:   scopes,
		log:      log.With(slog.String("component", "scale_scheduler")),
		cron:     cron.New(),
		entries:  make(map[uint]cron.EntryID),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop: çalışan işlerin bitmesini bekler
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type plannedRun struct {
	scope uint
	freq  models.SyncFrequency
	spec  string
}

// Reload: ayar değişince kapsamları yeniden zamanlar. Yeni plan tamamen
// kurulamazsa eski kayıtlar olduğu gibi kalır.
func (s *Scheduler) Reload(ctx context.Context) error {
	scopes, err := s.scopes(ctx)
	if err != nil {
		return fmt.Errorf("zamanlanacak kapsamlar okunamadı: %w", err)
	}

	defaults := s.exporter.Defaults()
	plan := make([]plannedRun, 0, len(scopes))
	for _, scope := range scopes {
		st, err := s.exporter.State(ctx, scope)
		if err != nil {
			return err
		}
		freq := ResolveFrequency(defaults, st)
		spec, err := CronSpec(freq, defaults.DailyAt)
		if err != nil {
			return fmt.Errorf("kapsam %d: %w", scope, err)
		}
		if spec != "" {
			plan = append(plan, plannedRun{scope: scope, freq: freq, spec: spec})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[uint]cron.EntryID, len(plan))
	for _, r := range plan {
		id, err := s.cron.AddFunc(r.spec, s.job(r.scope))
		if err != nil {
			for _, added := range next {
				s.cron.Remove(added)
			}
			return fmt.Errorf("cron kaydı eklenemedi (%s): %w", r.spec, err)
		}
		next[r.scope] = id
	}

	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = next

	for _, r := range plan {
		s.log.Info("terazi senkronu zamanlandı",
			slog.Uint64("branch_id", uint64(r.scope)),
			slog.String("frequency", string(r.freq)),
			slog.String("spec", r.spec),
		)
	}
	return nil
}

// Scheduled: zamanlanmış kapsamlar
func (s *Scheduler) Scheduled() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint, 0, len(s.entries))
	for scope := range s.entries {
		out = append(out, scope)
	}
	return out
}

func (s *Scheduler) job(scope uint) func() {
	return func() {
		s.mu.Lock()
		ctx := s.base
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}

		// diğer hatalar Export içinde loglanıp kaydedilir, sonraki tetiklemede yeniden denenir
		if _, err := s.exporter.Export(ctx, scope); errors.Is(err, ErrSyncInProgress) {
			s.log.Info("zamanlanmış aktarım atlandı, önceki aktarım sürüyor", slog.Uint64("branch_id", uint64(scope)))
		}
	}
}
