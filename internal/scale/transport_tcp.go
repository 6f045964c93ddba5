package scale

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TCPTransport: "<uzunluk>\n<veri>" tek yazım, ardından tek satır onay.
// OK -> başarılı, ERR AUTH -> kimlik hatası, diğerleri -> aktarım hatası.
type TCPTransport struct {
	conn Connection

	mu sync.Mutex
	c  net.Conn
	r  *bufio.Reader
}

func NewTCPTransport(c Connection) *TCPTransport {
	return &TCPTransport{conn: c}
}

func (t *TCPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return nil
	}

	d := net.Dialer{Timeout: t.conn.Timeout}
	c, err := d.DialContext(ctx, "tcp", hostPort(t.conn, 9100))
	if err != nil {
		return wrapErr(ErrConnectionFailed, "tcp dial", err)
	}
	t.c = c
	t.r = bufio.NewReader(c)
	return nil
}

func (t *TCPTransport) setDeadline(ctx context.Context) {
	d := time.Now().Add(t.conn.Timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	_ = t.c.SetDeadline(d)
}

func (t *TCPTransport) Send(ctx context.Context, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return fmt.Errorf("%w: tcp send: %w", ErrConnectionFailed, ErrNotConnected)
	}
	t.setDeadline(ctx)

	// iptal edilirse bekleyen okuma/yazmayı hemen düşür
	stop := context.AfterFunc(ctx, func() { _ = t.c.SetDeadline(time.Now()) })
	defer stop()

	frame := make([]byte, 0, len(p.Data)+16)
	frame = append(frame, strconv.Itoa(len(p.Data))...)
	frame = append(frame, '\n')
	frame = append(frame, p.Data...)
	if _, err := t.c.Write(frame); err != nil {
		return wrapErr(ErrTransferFailed, "tcp write", ctxErr(ctx, err))
	}

	line, err := t.r.ReadString('\n')
	if err != nil {
		return wrapErr(ErrTransferFailed, "tcp ack", ctxErr(ctx, err))
	}
	ack := strings.TrimSpace(line)
	switch {
	case ack == "OK":
		return nil
	case strings.HasPrefix(ack, "ERR AUTH"):
		return fmt.Errorf("%w: tcp ack: %s", ErrAuthFailed, ack)
	default:
		return fmt.Errorf("%w: tcp ack: %q", ErrTransferFailed, ack)
	}
}

// Receive: cihazdan tek satır okur
func (t *TCPTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return nil, fmt.Errorf("%w: tcp receive: %w", ErrConnectionFailed, ErrNotConnected)
	}
	t.setDeadline(ctx)
	stop := context.AfterFunc(ctx, func() { _ = t.c.SetDeadline(time.Now()) })
	defer stop()

	line, err := t.r.ReadBytes('\n')
	if err != nil {
		return nil, wrapErr(ErrTransferFailed, "tcp read", ctxErr(ctx, err))
	}
	return line, nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return nil
	}
	err := t.c.Close()
	t.c = nil
	t.r = nil
	return err
}

// ctxErr: context iptal edildiyse asıl sebep odur
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
