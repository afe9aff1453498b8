package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/shot-warden/internal/core"
)

type pushRecorder struct {
	pushed map[string][]int64
}

func (p *pushRecorder) Push(_ context.Context, queue string, ids ...int64) error {
	if p.pushed == nil {
		p.pushed = make(map[string][]int64)
	}
	p.pushed[queue] = append(p.pushed[queue], ids...)
	return nil
}

type tableSource struct {
	queue    string
	statuses map[int64]core.JobStatus
	updated  map[int64]time.Time
}

func (s *tableSource) Queue() string { return s.queue }

func (s *tableSource) ListStalled(_ context.Context, before time.Time) ([]int64, error) {
	var ids []int64
	for id, st := range s.statuses {
		if st == core.JobStatusProgress && s.updated[id].Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *tableSource) ResetStatus(_ context.Context, ids []int64, from core.JobStatus) ([]int64, error) {
	var reset []int64
	for _, id := range ids {
		if s.statuses[id] == from {
			s.statuses[id] = core.JobStatusPending
			reset = append(reset, id)
		}
	}
	return reset, nil
}

func TestSweeper_RequeuesStalledProgress(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &tableSource{
		queue: core.QueueBuild,
		statuses: map[int64]core.JobStatus{
			1: core.JobStatusProgress,
			2: core.JobStatusProgress,
			3: core.JobStatusComplete,
		},
		updated: map[int64]time.Time{
			1: now.Add(-time.Hour),
			2: now.Add(-time.Minute),
			3: now.Add(-time.Hour),
		},
	}
	pusher := &pushRecorder{}
	s := NewSweeper(pusher, 10*time.Minute, discardLogger(), src)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, pusher.pushed[core.QueueBuild])
	assert.Equal(t, core.JobStatusPending, src.statuses[1])
	assert.Equal(t, core.JobStatusProgress, src.statuses[2])
}

func TestSweeper_ReplayOnlyResetsErrored(t *testing.T) {
	src := &tableSource{
		queue: core.QueueScreenshotDiff,
		statuses: map[int64]core.JobStatus{
			4: core.JobStatusError,
			5: core.JobStatusComplete,
		},
	}
	pusher := &pushRecorder{}
	s := NewSweeper(pusher, 0, discardLogger(), src)

	n, err := s.Replay(context.Background(), core.QueueScreenshotDiff, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{4}, pusher.pushed[core.QueueScreenshotDiff])

	_, err = s.Replay(context.Background(), "unknown", 1)
	assert.Error(t, err)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&pushRecorder{}, 0, discardLogger())
	assert.Error(t, s.Start("not a schedule"))

	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
}
