package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher: olayları <prefix>.<kind>.<branch> konusuna JSON olarak yollar
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(url, prefix string, log *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("petshop-backend"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS bağlantısı koptu", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS yeniden bağlandı", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("NATS bağlantısı kurulamadı: %w", err)
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

func Subject(prefix string, ev Event) string {
	return fmt.Sprintf("%s.%s.%d", prefix, ev.Kind, ev.BranchID)
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("uyarı serileştirilemedi: %w", err)
	}
	if err := p.conn.Publish(Subject(p.prefix, ev), data); err != nil {
		return fmt.Errorf("uyarı NATS'a yayınlanamadı: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
