package scale

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	ErrConnectionFailed = errors.New("terazi bağlantısı kurulamadı")
	ErrAuthFailed       = errors.New("terazi kimlik doğrulaması başarısız")
	ErrTransferFailed   = errors.New("fiyat listesi teraziye aktarılamadı")
	ErrTimeout          = errors.New("terazi işlemi zaman aşımına uğradı")
	ErrNotConnected     = errors.New("terazi bağlantısı açık değil")
)

// Transport: teraziye teslim stratejisi. Send tek atomik işlemdir,
// cihaz tarafında yarım dosya görünmez. Close birden çok kez çağrılabilir.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, p Payload) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// NewTransport: protokol seçicisine göre taşıma katmanı
func NewTransport(c Connection) (Transport, error) {
	switch c.Protocol {
	case "ftp":
		return NewFTPTransport(c), nil
	case "file":
		return NewFileTransport(c), nil
	case "http":
		return NewHTTPTransport(c), nil
	case "tcp":
		return NewTCPTransport(c), nil
	default:
		return nil, fmt.Errorf("desteklenmeyen terazi protokolü: %q", c.Protocol)
	}
}

// wrapErr: hata türü + işlem + sebep. Süre aşımları her zaman ErrTimeout olur.
func wrapErr(kind error, op string, err error) error {
	if isTimeout(err) {
		kind = ErrTimeout
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func hostPort(c Connection, defPort int) string {
	port := c.Port
	if port == 0 {
		port = defPort
	}
	return net.JoinHostPort(c.Host, fmt.Sprint(port))
}
