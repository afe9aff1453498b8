package storage

import (
	"context"
	"fmt"

	"github.com/sevigo/shot-warden/internal/core"
)

var notificationColumns = []string{"id", "build_id", "type", "job_status", "created_at"}

// CreateNotification inserts a pending notification.
func (s *Store) CreateNotification(ctx context.Context, buildID int64, t core.NotificationType) (*core.BuildNotification, error) {
	query := `INSERT INTO build_notifications (build_id, type, job_status) VALUES ($1, $2, 'pending')
		RETURNING ` + columns("", notificationColumns)
	var n core.BuildNotification
	if err := s.db.GetContext(ctx, &n, query, buildID, t); err != nil {
		return nil, fmt.Errorf("failed to create %s notification for build %d: %w", t, buildID, err)
	}
	return &n, nil
}

// ListNotifications returns the notifications of a build, oldest first.
func (s *Store) ListNotifications(ctx context.Context, buildID int64) ([]core.BuildNotification, error) {
	var out []core.BuildNotification
	query := `SELECT ` + columns("", notificationColumns) + ` FROM build_notifications WHERE build_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &out, query, buildID); err != nil {
		return nil, fmt.Errorf("failed to list notifications of build %d: %w", buildID, err)
	}
	return out, nil
}
