// Package blob stores screenshots and diff artifacts on the local filesystem.
package blob

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sevigo/shot-warden/internal/core"
)

// contentTypeSuffix names the sidecar file holding a blob's content type.
const contentTypeSuffix = ".ct"

// FileStore keeps each blob at root/<key[:2]>/<key>.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("blob root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &FileStore{root: root, logger: logger.With("component", "blob")}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", core.Unretryablef("invalid blob key %q", key)
	}
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.root, shard, key), nil
}

// Get opens the blob. A missing blob wraps core.ErrNotFound. When no content
// type was recorded it is sniffed from the first bytes.
func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open blob %s: %w", key, err)
	}

	ct, err := os.ReadFile(p + contentTypeSuffix)
	if err == nil && len(ct) > 0 {
		return f, string(ct), nil
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	return readCloser{Reader: br, Closer: f}, http.DetectContentType(head), nil
}

// Put writes the blob through a temporary file so readers never see a
// partial write. Writing an existing key replaces it.
func (s *FileStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create blob dir: %w", err)
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create blob %s: %w", key, err)
	}
	defer os.Remove(tmp)

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if contentType != "" {
		if err := os.WriteFile(p+contentTypeSuffix, []byte(contentType), 0o644); err != nil {
			return fmt.Errorf("failed to record content type of %s: %w", key, err)
		}
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	s.logger.Debug("blob stored", "key", key, "content_type", contentType)
	return nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
