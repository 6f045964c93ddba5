package scale

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileTransport: bağlı (mount) terazi klasörüne geçici dosya + rename
type FileTransport struct {
	dir string

	mu       sync.Mutex
	open     bool
	lastPath string
}

func NewFileTransport(c Connection) *FileTransport {
	return &FileTransport{dir: c.UploadDir}
}

func (t *FileTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return wrapErr(ErrConnectionFailed, "file connect", err)
	}
	fi, err := os.Stat(t.dir)
	if err != nil {
		return wrapErr(ErrConnectionFailed, "file stat", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s klasör değil", ErrConnectionFailed, t.dir)
	}

	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	return nil
}

func (t *FileTransport) Send(ctx context.Context, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return fmt.Errorf("%w: file send: %w", ErrConnectionFailed, ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return wrapErr(ErrTransferFailed, "file send", err)
	}

	f, err := os.CreateTemp(t.dir, "."+p.Name+".*.tmp")
	if err != nil {
		return wrapErr(ErrTransferFailed, "file create", err)
	}
	tmp := f.Name()

	fail := func(op string, err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return wrapErr(ErrTransferFailed, op, err)
	}

	if _, err := f.Write(p.Data); err != nil {
		return fail("file write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("file sync", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return wrapErr(ErrTransferFailed, "file close", err)
	}

	final := filepath.Join(t.dir, p.Name)
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return wrapErr(ErrTransferFailed, "file rename", err)
	}
	t.lastPath = final
	return nil
}

func (t *FileTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastPath == "" {
		return nil, fmt.Errorf("%w: file receive: %w", ErrTransferFailed, ErrNotConnected)
	}
	data, err := os.ReadFile(t.lastPath)
	if err != nil {
		return nil, wrapErr(ErrTransferFailed, "file read", err)
	}
	return data, nil
}

func (t *FileTransport) Close() error {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	return nil
}
