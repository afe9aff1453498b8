package storage

import (
	"context"
	"fmt"

	"github.com/sevigo/shot-warden/internal/core"
)

var fileColumns = []string{"id", "key", "content_type", "width", "height", "fingerprint", "type"}

func (s *Store) GetFile(ctx context.Context, id int64) (*core.File, error) {
	var f core.File
	query := `SELECT ` + columns("", fileColumns) + ` FROM files WHERE id = $1`
	if err := s.get(ctx, &f, "file", id, query, id); err != nil {
		return nil, err
	}
	return &f, nil
}

// FileByKey returns nil when no file has the key.
func (s *Store) FileByKey(ctx context.Context, key string) (*core.File, error) {
	query := `SELECT ` + columns("", fileColumns) + ` FROM files WHERE key = $1`
	f, err := find[core.File](ctx, s.db, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find file %s: %w", key, err)
	}
	return f, nil
}

// GetOrCreateFile inserts f unless a file with its key exists and returns the stored row.
// Missing dimensions and fingerprint of an existing row are filled in.
func (s *Store) GetOrCreateFile(ctx context.Context, f *core.File) (*core.File, error) {
	query := `INSERT INTO files (key, content_type, width, height, fingerprint, type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			width = COALESCE(files.width, EXCLUDED.width),
			height = COALESCE(files.height, EXCLUDED.height),
			fingerprint = COALESCE(files.fingerprint, EXCLUDED.fingerprint)
		RETURNING ` + columns("", fileColumns)
	var out core.File
	err := s.db.GetContext(ctx, &out, query, f.Key, f.ContentType, f.Width, f.Height, f.Fingerprint, f.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to store file %s: %w", f.Key, err)
	}
	return &out, nil
}

// AttachScreenshotFile points a screenshot at its file row.
func (s *Store) AttachScreenshotFile(ctx context.Context, screenshotID, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE screenshots SET file_id = $2 WHERE id = $1`, screenshotID, fileID)
	if err != nil {
		return fmt.Errorf("failed to attach file to screenshot %d: %w", screenshotID, err)
	}
	return nil
}
