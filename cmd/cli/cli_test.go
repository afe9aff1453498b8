package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/shot-warden/internal/core"
)

func TestParseJobArgs(t *testing.T) {
	queue, ids, err := parseJobArgs([]string{core.QueueScreenshotDiff, "4", "9"})
	require.NoError(t, err)
	assert.Equal(t, core.QueueScreenshotDiff, queue)
	assert.Equal(t, []int64{4, 9}, ids)

	_, _, err = parseJobArgs([]string{"thumbnails", "1"})
	assert.ErrorContains(t, err, "unknown queue")

	_, _, err = parseJobArgs([]string{core.QueueBuild, "0"})
	assert.ErrorContains(t, err, "invalid job id")
}

func TestDiffKind(t *testing.T) {
	id := int64(1)
	zero, half := 0.0, 0.5
	tests := []struct {
		name string
		diff core.ScreenshotDiff
		want string
	}{
		{"added", core.ScreenshotDiff{CompareScreenshotID: &id}, "added"},
		{"removed", core.ScreenshotDiff{BaseScreenshotID: &id}, "removed"},
		{"pending", core.ScreenshotDiff{BaseScreenshotID: &id, CompareScreenshotID: &id}, "pending"},
		{"changed", core.ScreenshotDiff{BaseScreenshotID: &id, CompareScreenshotID: &id, Score: &half}, "changed"},
		{"unchanged", core.ScreenshotDiff{BaseScreenshotID: &id, CompareScreenshotID: &id, Score: &zero}, "unchanged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, diffKind(tt.diff))
		})
	}
}

func TestRenderBuildListsDiffs(t *testing.T) {
	id, score := int64(3), 0.25
	out := renderBuild(
		&core.Build{ID: 12, Name: "storybook", Mode: core.BuildModeCI, JobStatus: core.JobStatusComplete, CompareBucketID: 7},
		[]core.ScreenshotDiff{{ID: 5, BaseScreenshotID: &id, CompareScreenshotID: &id, Score: &score, JobStatus: core.JobStatusComplete}},
	)
	assert.Contains(t, out, "#12 storybook")
	assert.Contains(t, out, "0.2500")
	assert.Contains(t, out, "1 changed")
}
