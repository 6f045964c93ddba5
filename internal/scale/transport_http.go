package scale

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPTransport: tüm fiyat listesi tek POST isteğiyle
type HTTPTransport struct {
	conn   Connection
	client *fasthttp.Client

	mu       sync.Mutex
	open     bool
	lastBody []byte
}

func NewHTTPTransport(c Connection) *HTTPTransport {
	return &HTTPTransport{
		conn: c,
		client: &fasthttp.Client{
			Name:            "petshop-scale-bridge",
			MaxConnsPerHost: 1,
		},
	}
}

func (t *HTTPTransport) addr() string {
	return hostPort(t.conn, 80)
}

func (t *HTTPTransport) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(t.conn.Timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// Connect: cihaza TCP erişimi var mı, bağlantıyı hemen kapatır
func (t *HTTPTransport) Connect(ctx context.Context) error {
	timeout := time.Until(t.deadline(ctx))
	if timeout <= 0 {
		return wrapErr(ErrConnectionFailed, "http dial", context.DeadlineExceeded)
	}
	c, err := fasthttp.DialTimeout(t.addr(), timeout)
	if err != nil {
		if errors.Is(err, fasthttp.ErrDialTimeout) {
			return wrapErr(ErrTimeout, "http dial", err)
		}
		return wrapErr(ErrConnectionFailed, "http dial", err)
	}
	_ = c.Close()

	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	return nil
}

func (t *HTTPTransport) Send(ctx context.Context, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return fmt.Errorf("%w: http send: %w", ErrConnectionFailed, ErrNotConnected)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://" + t.addr() + t.conn.HTTPPath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(p.ContentType)
	req.Header.Set("X-File-Name", p.Name)
	if t.conn.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(t.conn.Username + ":" + t.conn.Password))
		req.Header.Set(fasthttp.HeaderAuthorization, "Basic "+cred)
	}
	req.SetBody(p.Data)

	if err := t.client.DoDeadline(req, resp, t.deadline(ctx)); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return wrapErr(ErrTimeout, "http post", err)
		}
		return wrapErr(ErrTransferFailed, "http post", err)
	}

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return fmt.Errorf("%w: http post: durum %d", ErrAuthFailed, status)
	case status < 200 || status > 299:
		return fmt.Errorf("%w: http post: durum %d: %s", ErrTransferFailed, status, truncateBody(resp.Body()))
	}

	t.lastBody = append([]byte(nil), resp.Body()...)
	return nil
}

// Receive: son başarılı isteğin yanıt gövdesi
func (t *HTTPTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastBody == nil {
		return nil, fmt.Errorf("%w: http receive: %w", ErrTransferFailed, ErrNotConnected)
	}
	return t.lastBody, nil
}

func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	t.client.CloseIdleConnections()
	return nil
}

func truncateBody(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
