package scale

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jlaffaye/ftp"
)

// ftpConn: kullanılan FTP komutları. Testlerde sahte sunucu ile değiştirilir.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(dir string) error
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Delete(path string) error
	Retr(path string) (io.ReadCloser, error)
	Quit() error
	// Abort: kontrol ve veri soketlerini kapatır, bekleyen komut hata ile döner
	Abort()
}

type serverConn struct {
	*ftp.ServerConn
	socks *socketSet
}

func (s serverConn) Retr(p string) (io.ReadCloser, error) {
	return s.ServerConn.Retr(p)
}

func (s serverConn) Abort() {
	s.socks.closeAll()
}

// socketSet: bir FTP oturumunun açtığı tüm TCP bağlantıları (kontrol + veri)
type socketSet struct {
	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (s *socketSet) dialer(ctx context.Context, timeout time.Duration) func(network, address string) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return func(network, address string) (net.Conn, error) {
		nc, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = nc.Close()
			return nil, net.ErrClosed
		}
		s.conns = append(s.conns, nc)
		return nc, nil
	}
}

func (s *socketSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, nc := range s.conns {
		_ = nc.Close()
	}
	s.conns = nil
}

type ftpDialFunc func(ctx context.Context, addr string, c Connection) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, c Connection) (ftpConn, error) {
	socks := &socketSet{}
	conn, err := ftp.Dial(addr,
		ftp.DialWithDialFunc(socks.dialer(ctx, c.Timeout)),
		ftp.DialWithTimeout(c.Timeout),
	)
	if err != nil {
		socks.closeAll()
		return nil, err
	}
	return serverConn{ServerConn: conn, socks: socks}, nil
}

// FTPTransport: geçici ada STOR, sonra RNFR/RNTO
type FTPTransport struct {
	conn Connection
	dial ftpDialFunc

	mu       sync.Mutex
	c        ftpConn
	lastName string
}

func NewFTPTransport(c Connection) *FTPTransport {
	return &FTPTransport{conn: c, dial: dialFTP}
}

// run: bloklayan FTP çağrısını context iptaline duyarlı hale getirir.
// İptalde önce abort çağrılır, sonra fn'in dönmesi beklenir; run döndükten
// sonra bağlantı üzerinde çalışan başka goroutine kalmaz.
func run[T any](ctx context.Context, abort func(), fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		abort()
		r := <-ch
		if r.err == nil {
			// komut iptalden önce tamamlanmış
			return r.v, nil
		}
		var zero T
		return zero, ctx.Err()
	}
}

func (t *FTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return nil
	}

	c, err := t.dial(ctx, hostPort(t.conn, 21), t.conn)
	if err != nil {
		return wrapErr(ErrConnectionFailed, "ftp dial", err)
	}

	if _, err := run(ctx, c.Abort, func() (struct{}, error) { return struct{}{}, c.Login(t.conn.Username, t.conn.Password) }); err != nil {
		_ = c.Quit()
		return wrapErr(ErrAuthFailed, "ftp login", err)
	}

	if t.conn.UploadDir != "" && t.conn.UploadDir != "/" {
		if _, err := run(ctx, c.Abort, func() (struct{}, error) { return struct{}{}, c.ChangeDir(t.conn.UploadDir) }); err != nil {
			_ = c.Quit()
			return wrapErr(ErrConnectionFailed, "ftp cwd", err)
		}
	}

	t.c = c
	return nil
}

func (t *FTPTransport) Send(ctx context.Context, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return fmt.Errorf("%w: ftp send: %w", ErrConnectionFailed, ErrNotConnected)
	}

	tmp := fmt.Sprintf(".%s.%s.tmp", p.Name, uuid.NewString())
	c := t.c
	aborted := false
	abort := func() {
		aborted = true
		c.Abort()
	}

	// Süre dolduktan sonra cihazdaki dosyaya dokunan komut (DELE/RNTO) gönderilmez.
	// Abort sonrası temizlik komutları ölü bağlantıda başarısız olabilir; geride
	// kalan noktalı geçici dosyayı terazi okumaz.
	_, err := run(ctx, abort, func() (struct{}, error) {
		if err := c.Stor(tmp, bytes.NewReader(p.Data)); err != nil {
			_ = c.Delete(tmp)
			return struct{}{}, err
		}
		if err := ctx.Err(); err != nil {
			_ = c.Delete(tmp)
			return struct{}{}, err
		}
		if err := c.Rename(tmp, p.Name); err != nil {
			if ctx.Err() != nil {
				_ = c.Delete(tmp)
				return struct{}{}, ctx.Err()
			}
			// bazı cihazlar mevcut dosyanın üzerine RNTO yapmaz
			_ = c.Delete(p.Name)
			if err2 := c.Rename(tmp, p.Name); err2 != nil {
				_ = c.Delete(tmp)
				return struct{}{}, err2
			}
		}
		return struct{}{}, nil
	})
	if aborted {
		t.c = nil
	}
	if err != nil {
		return wrapErr(ErrTransferFailed, "ftp stor "+path.Join(t.conn.UploadDir, p.Name), err)
	}

	t.lastName = p.Name
	return nil
}

// Receive: son teslim edilen dosyayı geri okur
func (t *FTPTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil || t.lastName == "" {
		return nil, fmt.Errorf("%w: ftp retr: %w", ErrTransferFailed, ErrNotConnected)
	}

	c, name := t.c, t.lastName
	aborted := false
	abort := func() {
		aborted = true
		c.Abort()
	}
	data, err := run(ctx, abort, func() ([]byte, error) {
		rc, err := c.Retr(name)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	})
	if aborted {
		t.c = nil
	}
	if err != nil {
		return nil, wrapErr(ErrTransferFailed, "ftp retr", err)
	}
	return data, nil
}

func (t *FTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return nil
	}
	err := t.c.Quit()
	t.c = nil
	return err
}
