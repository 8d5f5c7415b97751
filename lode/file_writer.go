package lode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// ErrInvalidFilename is returned for file names containing path elements.
var ErrInvalidFilename = errors.New("invalid mirror filename")

// FileMirror copies fetched data files into ledger storage.
// Files land at Hive-partitioned paths under files/, bypassing Dataset
// segment/manifest machinery entirely.
type FileMirror interface {
	// PutFile streams r to the files/ prefix of the current batch.
	// The filename must not contain path separators or "..".
	PutFile(ctx context.Context, filename string, r io.Reader) error
}

// Verify LodeClient implements FileMirror.
var _ FileMirror = (*LodeClient)(nil)

// PutFile writes a file to Lode Store at the computed Hive path.
func (c *LodeClient) PutFile(ctx context.Context, filename string, r io.Reader) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	store, err := c.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, c.config.Dataset)
	}

	path := c.FilePath(filename)
	if err := store.Put(ctx, path, r); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

// MirrorFile streams the local file at path to the mirror under its base name.
func MirrorFile(ctx context.Context, m FileMirror, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for mirroring: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return m.PutFile(ctx, filepath.Base(path), f)
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// FilePath computes the Hive-partitioned path for a mirrored file.
// Format: datasets/<dataset>/partitions/flow=<f>/scope=<s>/day=<d>/batch_id=<b>/files/<filename>
func (c *LodeClient) FilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/flow=%s/scope=%s/day=%s/batch_id=%s/files/%s",
		c.config.Dataset,
		c.config.Flow,
		c.config.Scope,
		c.config.Day,
		c.config.BatchID,
		filename,
	)
}

func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// StubFileMirror records PutFile calls for testing.
type StubFileMirror struct {
	mu    sync.Mutex
	Files map[string][]byte
	Err   error
}

// NewStubFileMirror creates a new stub file mirror.
func NewStubFileMirror() *StubFileMirror {
	return &StubFileMirror{Files: make(map[string][]byte)}
}

// PutFile implements FileMirror by recording the contents.
func (m *StubFileMirror) PutFile(_ context.Context, filename string, r io.Reader) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[filename] = data
	return nil
}

// Verify StubFileMirror implements FileMirror.
var _ FileMirror = (*StubFileMirror)(nil)
