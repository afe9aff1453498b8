package jobs

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sevigo/shot-warden/internal/baseline"
	"github.com/sevigo/shot-warden/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	screenshots   map[int64]*core.Screenshot
	buckets       map[int64][]int64
	resolutions   map[int64]*baseline.Resolution
	conclusions   map[int64]core.Conclusion
	diffs         map[int64]*core.ScreenshotDiff
	tests         map[string]int64
	files         map[string]*core.File
	notifications []core.BuildNotification
	ignored       map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		screenshots: make(map[int64]*core.Screenshot),
		buckets:     make(map[int64][]int64),
		resolutions: make(map[int64]*baseline.Resolution),
		conclusions: make(map[int64]core.Conclusion),
		diffs:       make(map[int64]*core.ScreenshotDiff),
		tests:       make(map[string]int64),
		files:       make(map[string]*core.File),
		ignored:     make(map[string]bool),
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) addScreenshot(bucketID int64, name, blobKey string) *core.Screenshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := &core.Screenshot{ID: s.id(), BucketID: bucketID, Name: name, BlobKey: blobKey}
	s.screenshots[sc.ID] = sc
	s.buckets[bucketID] = append(s.buckets[bucketID], sc.ID)
	return sc
}

func (s *fakeStore) ListScreenshots(_ context.Context, bucketID int64) ([]core.Screenshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Screenshot
	for _, id := range s.buckets[bucketID] {
		out = append(out, *s.screenshots[id])
	}
	return out, nil
}

func (s *fakeStore) GetScreenshot(_ context.Context, id int64) (*core.Screenshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.screenshots[id]
	if !ok {
		return nil, fmt.Errorf("screenshot %d: %w", id, core.ErrNotFound)
	}
	cp := *sc
	return &cp, nil
}

func (s *fakeStore) ApplyResolution(_ context.Context, buildID int64, res *baseline.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[buildID] = res
	return nil
}

func (s *fakeStore) SetConclusion(_ context.Context, buildID int64, c core.Conclusion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conclusions[buildID]; ok {
		return false, nil
	}
	s.conclusions[buildID] = c
	return true, nil
}

func (s *fakeStore) ListDiffs(_ context.Context, buildID int64) ([]core.ScreenshotDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ScreenshotDiff
	for id := int64(1); id <= s.nextID; id++ {
		if d, ok := s.diffs[id]; ok && d.BuildID == buildID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertDiffs(_ context.Context, diffs []core.ScreenshotDiff) ([]core.ScreenshotDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ScreenshotDiff, len(diffs))
	for i, d := range diffs {
		d.ID = s.id()
		cp := d
		s.diffs[d.ID] = &cp
		out[i] = d
	}
	return out, nil
}

func (s *fakeStore) diff(id int64) core.ScreenshotDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.diffs[id]
}

func (s *fakeStore) CompleteDiff(_ context.Context, id int64, o core.DiffOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.diffs[id]
	d.Score = &o.Score
	d.DiffKey, d.DiffFileID, d.Fingerprint = o.DiffKey, o.DiffFileID, o.Fingerprint
	d.JobStatus = core.JobStatusComplete
	return nil
}

func (s *fakeStore) CompleteDiffWithoutScore(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diffs[id].JobStatus = core.JobStatusComplete
	return nil
}

func (s *fakeStore) GroupDiffs(_ context.Context, buildID int64, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var group []*core.ScreenshotDiff
	for _, d := range s.diffs {
		if d.BuildID == buildID && d.DiffKey != nil && *d.DiffKey == key {
			group = append(group, d)
		}
	}
	if len(group) > 1 {
		for _, d := range group {
			d.Group = &key
		}
	}
	return len(group), nil
}

func (s *fakeStore) DiffProgress(_ context.Context, buildID int64) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	complete, changed := true, false
	for _, d := range s.diffs {
		if d.BuildID != buildID {
			continue
		}
		complete = complete && d.JobStatus == core.JobStatusComplete
		switch {
		case d.BaseScreenshotID == nil || d.CompareScreenshotID == nil:
			changed = true
		case d.Changed() && (d.Fingerprint == nil || !s.ignored[*d.Fingerprint]):
			changed = true
		}
	}
	return complete, changed, nil
}

func (s *fakeStore) EnsureTests(_ context.Context, _ int64, _ string, names []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for _, n := range names {
		if _, ok := s.tests[n]; !ok {
			s.tests[n] = s.id()
		}
		out[n] = s.tests[n]
	}
	return out, nil
}

func (s *fakeStore) SetScreenshotTests(_ context.Context, tests map[int64]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, tid := range tests {
		s.screenshots[sid].TestID = &tid
	}
	return nil
}

func (s *fakeStore) FileByKey(_ context.Context, key string) (*core.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[key]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *fakeStore) GetOrCreateFile(_ context.Context, f *core.File) (*core.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.files[f.Key]; ok {
		if existing.Width == nil {
			existing.Width, existing.Height = f.Width, f.Height
		}
		cp := *existing
		return &cp, nil
	}
	cp := *f
	cp.ID = s.id()
	s.files[f.Key] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) AttachScreenshotFile(_ context.Context, screenshotID, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots[screenshotID].FileID = &fileID
	return nil
}

func (s *fakeStore) CreateNotification(_ context.Context, buildID int64, t core.NotificationType) (*core.BuildNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := core.BuildNotification{ID: s.id(), BuildID: buildID, Type: t, JobStatus: core.JobStatusPending}
	s.notifications = append(s.notifications, n)
	return &n, nil
}

func (s *fakeStore) notificationTypes(buildID int64) []core.NotificationType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.NotificationType
	for _, n := range s.notifications {
		if n.BuildID == buildID {
			out = append(out, n.Type)
		}
	}
	return out
}

type fakePusher struct {
	mu     sync.Mutex
	pushed map[string][]int64
}

func newFakePusher() *fakePusher { return &fakePusher{pushed: make(map[string][]int64)} }

func (p *fakePusher) Push(_ context.Context, queue string, ids ...int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[queue] = append(p.pushed[queue], ids...)
	return nil
}

func (p *fakePusher) ids(queue string) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushed[queue]
}

type blobEntry struct {
	data        []byte
	contentType string
}

type fakeBlobs struct {
	mu    sync.Mutex
	blobs map[string]blobEntry
	puts  int
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{blobs: make(map[string]blobEntry)} }

func (b *fakeBlobs) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.blobs[key]
	if !ok {
		return nil, "", fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(e.data)), e.contentType, nil
}

func (b *fakeBlobs) Put(_ context.Context, key, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = blobEntry{data: data, contentType: contentType}
	b.puts++
	return nil
}

type fakeResolver struct {
	res *baseline.Resolution
	err error
}

func (r fakeResolver) Resolve(context.Context, *core.Build) (*baseline.Resolution, error) {
	return r.res, r.err
}

// solidPNG encodes a w x h image of one color with an optional square of
// another color in the top left corner.
func solidPNG(t *testing.T, w, h int, fill color.NRGBA, square int, squareColor color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := fill
			if x < square && y < square {
				c = squareColor
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
