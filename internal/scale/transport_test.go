package scale

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPayload = Payload{Name: "plu.txt", ContentType: "text/plain; charset=utf-8", Data: []byte("00001;Kedi Maması;12050;0\r\n")}

func TestNewTransportSelector(t *testing.T) {
	for proto, want := range map[string]any{
		"ftp":  &FTPTransport{},
		"file": &FileTransport{},
		"http": &HTTPTransport{},
		"tcp":  &TCPTransport{},
	} {
		tr, err := NewTransport(Connection{Protocol: proto})
		require.NoError(t, err, proto)
		assert.IsType(t, want, tr)
	}

	_, err := NewTransport(Connection{Protocol: "serial"})
	assert.Error(t, err)
}

// --- file ---

func TestFileTransportAtomicDelivery(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plu.txt"), []byte("eski"), 0o644))

	tr := NewFileTransport(Connection{UploadDir: dir})
	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Send(ctx, testPayload))

	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, testPayload.Data, got)

	// geçici dosya kalmaz
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "plu.txt", entries[0].Name())

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Send(ctx, testPayload), ErrNotConnected)
}

func TestFileTransportMissingDir(t *testing.T) {
	tr := NewFileTransport(Connection{UploadDir: filepath.Join(t.TempDir(), "yok")})
	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

// --- http ---

func hostAndPort(t *testing.T, raw string) (string, int) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestHTTPTransportPostsWholePayload(t *testing.T) {
	var (
		mu       sync.Mutex
		gotBody  []byte
		gotName  string
		gotPath  string
		gotUser  string
		requests int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests++
		gotPath = r.URL.Path
		gotName = r.Header.Get("X-File-Name")
		gotUser, _, _ = r.BasicAuth()
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("ACK 1"))
	}))
	defer srv.Close()

	host, port := hostAndPort(t, srv.URL)
	tr := NewHTTPTransport(Connection{Host: host, Port: port, HTTPPath: "/api/plu", Username: "scale", Password: "pw", Timeout: 5 * time.Second})
	ctx := context.Background()

	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Send(ctx, testPayload))

	mu.Lock()
	assert.Equal(t, 1, requests)
	assert.Equal(t, "/api/plu", gotPath)
	assert.Equal(t, "plu.txt", gotName)
	assert.Equal(t, "scale", gotUser)
	assert.Equal(t, testPayload.Data, gotBody)
	mu.Unlock()

	ack, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ACK 1", string(ack))
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestHTTPTransportStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusInternalServerError, ErrTransferFailed},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			host, port := hostAndPort(t, srv.URL)
			tr := NewHTTPTransport(Connection{Host: host, Port: port, Timeout: 5 * time.Second})
			require.NoError(t, tr.Connect(context.Background()))
			err := tr.Send(context.Background(), testPayload)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHTTPTransportTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	host, port := hostAndPort(t, srv.URL)
	tr := NewHTTPTransport(Connection{Host: host, Port: port, Timeout: 200 * time.Millisecond})
	require.NoError(t, tr.Connect(context.Background()))

	err := tr.Send(context.Background(), testPayload)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPTransportConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	tr := NewHTTPTransport(Connection{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	err = tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

// --- tcp ---

// fakeDevice: çerçeveyi okur, ack satırını yazar
func fakeDevice(t *testing.T, ack string, got chan<- []byte) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)
		header, err := r.ReadString('\n')
		if err != nil {
			return
		}
		n, _ := strconv.Atoi(strings.TrimSpace(header))
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		got <- buf
		if ack != "" {
			_, _ = c.Write([]byte(ack + "\n"))
		}
		// ack yoksa istemci zaman aşımına düşene kadar bekle
		_, _ = r.ReadByte()
	}()

	addr := l.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestTCPTransportFrameAndAck(t *testing.T) {
	got := make(chan []byte, 1)
	host, port := fakeDevice(t, "OK", got)

	tr := NewTCPTransport(Connection{Host: host, Port: port, Timeout: 2 * time.Second})
	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Send(ctx, testPayload))
	assert.Equal(t, testPayload.Data, <-got)

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestTCPTransportAckErrors(t *testing.T) {
	cases := []struct {
		ack  string
		want error
	}{
		{"ERR AUTH bad pin", ErrAuthFailed},
		{"ERR FULL", ErrTransferFailed},
	}
	for _, tc := range cases {
		t.Run(tc.ack, func(t *testing.T) {
			got := make(chan []byte, 1)
			host, port := fakeDevice(t, tc.ack, got)

			tr := NewTCPTransport(Connection{Host: host, Port: port, Timeout: 2 * time.Second})
			defer tr.Close()
			require.NoError(t, tr.Connect(context.Background()))
			assert.ErrorIs(t, tr.Send(context.Background(), testPayload), tc.want)
		})
	}
}

func TestTCPTransportNoAckTimesOut(t *testing.T) {
	got := make(chan []byte, 1)
	host, port := fakeDevice(t, "", got)

	tr := NewTCPTransport(Connection{Host: host, Port: port, Timeout: 200 * time.Millisecond})
	defer tr.Close()
	require.NoError(t, tr.Connect(context.Background()))

	err := tr.Send(context.Background(), testPayload)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTCPTransportNotConnected(t *testing.T) {
	tr := NewTCPTransport(Connection{Host: "127.0.0.1", Port: 1})
	assert.ErrorIs(t, tr.Send(context.Background(), testPayload), ErrNotConnected)
}

// --- ftp ---

type fakeFTP struct {
	mu        sync.Mutex
	files     map[string][]byte
	loginErr  error
	renameErr error
	renames   int
	quit      int
	aborts    int
	storDelay time.Duration
}

func newFakeFTP() *fakeFTP {
	return &fakeFTP{files: map[string][]byte{}}
}

func (f *fakeFTP) Login(user, password string) error { return f.loginErr }
func (f *fakeFTP) ChangeDir(dir string) error        { return nil }

func (f *fakeFTP) Stor(p string, r io.Reader) error {
	// yavaş cihaz: Abort beklenen komutu kesmez
	time.Sleep(f.storDelay)
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = data
	return nil
}

func (f *fakeFTP) Rename(from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames++
	if f.renameErr != nil {
		return f.renameErr
	}
	if _, exists := f.files[to]; exists {
		return errors.New("550 file exists")
	}
	f.files[to] = f.files[from]
	delete(f.files, from)
	return nil
}

func (f *fakeFTP) Delete(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, p)
	return nil
}

func (f *fakeFTP) Retr(p string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	if !ok {
		return nil, errors.New("550 not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFTP) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quit++
	return nil
}

func (f *fakeFTP) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
}

func ftpWith(fake *fakeFTP) *FTPTransport {
	tr := NewFTPTransport(Connection{Host: "scale.local", Username: "u", Password: "p", UploadDir: "/plu", Timeout: time.Second})
	tr.dial = func(ctx context.Context, addr string, c Connection) (ftpConn, error) {
		return fake, nil
	}
	return tr
}

func TestFTPTransportTempThenRename(t *testing.T) {
	fake := newFakeFTP()
	fake.files["plu.txt"] = []byte("eski")
	tr := ftpWith(fake)
	ctx := context.Background()

	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Send(ctx, testPayload))

	// mevcut dosya silinip yeniden adlandırıldı, geçici dosya kalmadı
	assert.Equal(t, 2, fake.renames)
	assert.Len(t, fake.files, 1)
	assert.Equal(t, testPayload.Data, fake.files["plu.txt"])

	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, testPayload.Data, got)

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	assert.Equal(t, 1, fake.quit)
}

func TestFTPTransportLoginFailure(t *testing.T) {
	fake := newFakeFTP()
	fake.loginErr = errors.New("530 login incorrect")
	tr := ftpWith(fake)

	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, 1, fake.quit)
}

func TestFTPTransportRenameFailureRemovesTemp(t *testing.T) {
	fake := newFakeFTP()
	fake.renameErr = errors.New("553 not allowed")
	tr := ftpWith(fake)
	ctx := context.Background()

	require.NoError(t, tr.Connect(ctx))
	err := tr.Send(ctx, testPayload)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Empty(t, fake.files)
}

func TestFTPTransportTimeoutLeavesDeviceFileUntouched(t *testing.T) {
	fake := newFakeFTP()
	fake.files["plu.txt"] = []byte("eski")
	fake.storDelay = 150 * time.Millisecond
	tr := ftpWith(fake)
	require.NoError(t, tr.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tr.Send(ctx, testPayload)
	assert.ErrorIs(t, err, ErrTimeout)

	// Send döndükten sonra arkada çalışan komut kalmamalı
	time.Sleep(200 * time.Millisecond)

	fake.mu.Lock()
	assert.Equal(t, []byte("eski"), fake.files["plu.txt"])
	assert.Len(t, fake.files, 1, "geçici dosya kaldı")
	assert.Zero(t, fake.renames)
	assert.Equal(t, 1, fake.aborts)
	fake.mu.Unlock()

	// iptal edilen oturum düşürüldü, Close tekrar QUIT göndermez
	assert.NoError(t, tr.Close())
	assert.Zero(t, fake.quit)

	_, err = tr.Receive(context.Background())
	assert.ErrorIs(t, err, ErrTransferFailed)
}

func TestFTPTransportCompletedBeforeDeadlineIsSuccess(t *testing.T) {
	fake := newFakeFTP()
	tr := ftpWith(fake)
	require.NoError(t, tr.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Send(ctx, testPayload))
	assert.Zero(t, fake.aborts)
	assert.Equal(t, testPayload.Data, fake.files["plu.txt"])
}

func TestFTPTransportDialFailure(t *testing.T) {
	tr := NewFTPTransport(Connection{Host: "scale.local", Timeout: time.Second})
	tr.dial = func(ctx context.Context, addr string, c Connection) (ftpConn, error) {
		assert.Equal(t, "scale.local:21", addr)
		return nil, errors.New("connection refused")
	}
	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestWrapErrClassifiesTimeouts(t *testing.T) {
	err := wrapErr(ErrTransferFailed, "op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTransferFailed)

	err = wrapErr(ErrTransferFailed, "op", os.ErrDeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)

	err = wrapErr(ErrTransferFailed, "op", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
