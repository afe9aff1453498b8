package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/sevigo/shot-warden/internal/core"
)

var diffColumns = []string{
	"id", "build_id", "base_screenshot_id", "compare_screenshot_id", "test_id", "score",
	"diff_file_id", "diff_key", "job_status", "validation_status", "fingerprint", "group_key",
}

// groupChunkSize bounds the ids patched per statement when grouping diffs.
const groupChunkSize = 50

func (s *Store) GetDiff(ctx context.Context, id int64) (*core.ScreenshotDiff, error) {
	var d core.ScreenshotDiff
	query := `SELECT ` + columns("", diffColumns) + ` FROM screenshot_diffs WHERE id = $1`
	if err := s.get(ctx, &d, "screenshot diff", id, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDiffs returns the diffs of a build in insertion order.
func (s *Store) ListDiffs(ctx context.Context, buildID int64) ([]core.ScreenshotDiff, error) {
	var out []core.ScreenshotDiff
	query := `SELECT ` + columns("", diffColumns) + ` FROM screenshot_diffs WHERE build_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &out, query, buildID); err != nil {
		return nil, fmt.Errorf("failed to list diffs of build %d: %w", buildID, err)
	}
	return out, nil
}

// InsertDiffs inserts diffs in one transaction and returns them with ids.
func (s *Store) InsertDiffs(ctx context.Context, diffs []core.ScreenshotDiff) ([]core.ScreenshotDiff, error) {
	if len(diffs) == 0 {
		return nil, nil
	}
	query := `INSERT INTO screenshot_diffs
		(build_id, base_screenshot_id, compare_screenshot_id, test_id, score, job_status, validation_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	out := make([]core.ScreenshotDiff, len(diffs))
	copy(out, diffs)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare diff insert: %w", err)
		}
		defer stmt.Close()
		for i := range out {
			d := &out[i]
			if d.ValidationStatus == "" {
				d.ValidationStatus = core.ValidationUnknown
			}
			err := stmt.QueryRowxContext(ctx, d.BuildID, d.BaseScreenshotID, d.CompareScreenshotID,
				d.TestID, d.Score, d.JobStatus, d.ValidationStatus).Scan(&d.ID)
			if err != nil {
				return fmt.Errorf("failed to insert diff: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteDiff stores the outcome and marks the diff complete in one statement.
func (s *Store) CompleteDiff(ctx context.Context, id int64, o core.DiffOutcome) error {
	query := `UPDATE screenshot_diffs
		SET score = $2, diff_key = $3, diff_file_id = $4, fingerprint = $5,
			job_status = 'complete', updated_at = now()
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, o.Score, o.DiffKey, o.DiffFileID, o.Fingerprint); err != nil {
		return fmt.Errorf("failed to complete diff %d: %w", id, err)
	}
	return nil
}

// CompleteDiffWithoutScore marks an added or removed diff complete.
func (s *Store) CompleteDiffWithoutScore(ctx context.Context, id int64) error {
	query := `UPDATE screenshot_diffs SET job_status = 'complete', updated_at = now() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to complete diff %d: %w", id, err)
	}
	return nil
}

// GroupDiffs sets group_key on the diffs of a build sharing key once more
// than one diff has it. It returns the size of the group.
func (s *Store) GroupDiffs(ctx context.Context, buildID int64, key string) (int, error) {
	var ids []int64
	query := `SELECT id FROM screenshot_diffs WHERE build_id = $1 AND diff_key = $2 ORDER BY id`
	if err := s.db.SelectContext(ctx, &ids, query, buildID, key); err != nil {
		return 0, fmt.Errorf("failed to find similar diffs: %w", err)
	}
	if len(ids) < 2 {
		return len(ids), nil
	}
	// Patching by id only keeps concurrent groupers from deadlocking on the key index.
	for start := 0; start < len(ids); start += groupChunkSize {
		chunk := ids[start:min(start+groupChunkSize, len(ids))]
		_, err := s.db.ExecContext(ctx,
			`UPDATE screenshot_diffs SET group_key = $2 WHERE id = ANY($1) AND group_key IS NULL`,
			pq.Array(chunk), key)
		if err != nil {
			return 0, fmt.Errorf("failed to group diffs: %w", err)
		}
	}
	return len(ids), nil
}

// DiffProgress reports whether every diff of the build is complete and
// whether any of them is a change. Added and removed screenshots are changes;
// a scored diff is one unless its fingerprint is ignored.
func (s *Store) DiffProgress(ctx context.Context, buildID int64) (complete, changed bool, err error) {
	query := `SELECT
			COALESCE(bool_and(d.job_status = 'complete'), true) AS complete,
			count(*) FILTER (WHERE d.base_screenshot_id IS NULL OR d.compare_screenshot_id IS NULL
				OR (d.score > 0 AND ic.fingerprint IS NULL)) > 0 AS changed
		FROM screenshot_diffs d
		JOIN builds b ON b.id = d.build_id
		LEFT JOIN ignored_changes ic
			ON ic.project_id = b.project_id AND ic.test_id = d.test_id AND ic.fingerprint = d.fingerprint
		WHERE d.build_id = $1`
	var row struct {
		Complete bool `db:"complete"`
		Changed  bool `db:"changed"`
	}
	if err := s.db.GetContext(ctx, &row, query, buildID); err != nil {
		return false, false, fmt.Errorf("failed to read diff progress of build %d: %w", buildID, err)
	}
	return row.Complete, row.Changed, nil
}

// EnsureTests returns the test id of every name, creating missing tests.
func (s *Store) EnsureTests(ctx context.Context, projectID int64, buildName string, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	names = lo.Uniq(names)
	if len(names) == 0 {
		return ids, nil
	}
	query := `INSERT INTO tests (project_id, build_name, name)
		SELECT $1, $2, unnest($3::text[])
		ON CONFLICT (project_id, build_name, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`
	rows, err := s.db.QueryxContext(ctx, query, projectID, buildName, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure tests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// SetScreenshotTests links screenshots to their tests.
func (s *Store) SetScreenshotTests(ctx context.Context, tests map[int64]int64) error {
	if len(tests) == 0 {
		return nil
	}
	screenshotIDs := make([]int64, 0, len(tests))
	testIDs := make([]int64, 0, len(tests))
	for sid, tid := range tests {
		screenshotIDs = append(screenshotIDs, sid)
		testIDs = append(testIDs, tid)
	}
	query := `UPDATE screenshots s SET test_id = v.test_id
		FROM unnest($1::bigint[], $2::bigint[]) AS v(id, test_id)
		WHERE s.id = v.id AND s.test_id IS DISTINCT FROM v.test_id`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(screenshotIDs), pq.Array(testIDs)); err != nil {
		return fmt.Errorf("failed to link screenshots to tests: %w", err)
	}
	return nil
}

// IgnoreChange suppresses a fingerprint for a test.
func (s *Store) IgnoreChange(ctx context.Context, c core.IgnoredChange) error {
	query := `INSERT INTO ignored_changes (project_id, test_id, fingerprint) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, c.ProjectID, c.TestID, c.Fingerprint); err != nil {
		return fmt.Errorf("failed to ignore change: %w", err)
	}
	return nil
}
