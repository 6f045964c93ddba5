// Package alert dış uyarı bileşenine giden olayları taşır. Depolama bu paketin işi değil.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindLowStock  Kind = "low_stock"
	KindScaleSync Kind = "scale_sync"
)

type Event struct {
	Kind     Kind      `json:"kind"`
	BranchID uint      `json:"branch_id"`
	At       time.Time `json:"at"`
	Payload  any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher: her olayı loglar, hiçbir zaman hata dönmez
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev Event) error {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "uyarı yayınlandı",
		slog.String("kind", string(ev.Kind)),
		slog.Uint64("branch_id", uint64(ev.BranchID)),
		slog.Any("payload", ev.Payload),
	)
	return nil
}

// Multi: olayı tüm yayıncılara iletir, hataları birleştirir
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder: yayınlanan olayları bellekte tutar (testler)
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
