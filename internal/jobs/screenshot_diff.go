package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/diff"
	"github.com/sevigo/shot-warden/internal/lock"
)

// ScreenshotDiffJob scores one screenshot diff.
type ScreenshotDiffJob struct {
	store     Store
	blobs     core.BlobStore
	locker    lock.Locker
	concluder *Concluder
	opts      diff.Options
	logger    *slog.Logger
}

// NewScreenshotDiffJob creates a ScreenshotDiffJob comparing images with opts.
func NewScreenshotDiffJob(store Store, blobs core.BlobStore, locker lock.Locker, concluder *Concluder, opts diff.Options, logger *slog.Logger) *ScreenshotDiffJob {
	return &ScreenshotDiffJob{
		store:     store,
		blobs:     blobs,
		locker:    locker,
		concluder: concluder,
		opts:      opts,
		logger:    logger.With("component", "screenshot_diff_job"),
	}
}

// artifact is a loaded screenshot blob.
type artifact struct {
	screenshot  *core.Screenshot
	data        []byte
	contentType string
}

// Run implements the screenshotDiff stage and concludes the build when this
// was its last incomplete diff.
func (j *ScreenshotDiffJob) Run(ctx context.Context, d *core.ScreenshotDiff) error {
	if err := j.score(ctx, d); err != nil {
		return err
	}
	return j.concluder.Conclude(ctx, d.BuildID)
}

func (j *ScreenshotDiffJob) score(ctx context.Context, d *core.ScreenshotDiff) error {
	if d.CompareScreenshotID == nil {
		return j.store.CompleteDiffWithoutScore(ctx, d.ID)
	}
	compare, err := j.load(ctx, *d.CompareScreenshotID)
	if err != nil {
		return err
	}

	if d.BaseScreenshotID == nil {
		if !diff.IsText(compare.contentType) {
			if _, err := j.ensureDimensions(ctx, compare); err != nil {
				return err
			}
		}
		return j.store.CompleteDiffWithoutScore(ctx, d.ID)
	}
	base, err := j.load(ctx, *d.BaseScreenshotID)
	if err != nil {
		return err
	}

	var outcome core.DiffOutcome
	switch baseText, compareText := diff.IsText(base.contentType), diff.IsText(compare.contentType); {
	case baseText && compareText:
		outcome, err = j.scoreText(ctx, base, compare)
	case baseText != compareText:
		return core.Unretryablef("cannot compare %s with %s", base.contentType, compare.contentType)
	default:
		outcome, err = j.scoreImages(ctx, base, compare)
	}
	if err != nil {
		return err
	}

	if err := j.store.CompleteDiff(ctx, d.ID, outcome); err != nil {
		return err
	}
	j.logger.Debug("diff scored", "diff_id", d.ID, "build_id", d.BuildID, "score", outcome.Score)

	if outcome.DiffKey != nil {
		if _, err := j.store.GroupDiffs(ctx, d.BuildID, *outcome.DiffKey); err != nil {
			return err
		}
	}
	return nil
}

func (j *ScreenshotDiffJob) scoreText(ctx context.Context, base, compare *artifact) (core.DiffOutcome, error) {
	score := diff.DiffText(string(base.data), string(compare.data))
	if score == 0 {
		return core.DiffOutcome{}, nil
	}
	patch := diff.TextPatch(string(base.data), string(compare.data))
	key := diff.Hash(patch)
	fingerprint := textFingerprint(key)
	file, err := j.upload(ctx, &core.File{
		Key:         key,
		ContentType: diff.TextPatchContentType,
		Fingerprint: &fingerprint,
		Type:        core.FileTypeScreenshotDiff,
	}, patch)
	if err != nil {
		return core.DiffOutcome{}, err
	}
	return core.DiffOutcome{Score: score, DiffKey: &key, DiffFileID: &file.ID, Fingerprint: &fingerprint}, nil
}

func (j *ScreenshotDiffJob) scoreImages(ctx context.Context, base, compare *artifact) (core.DiffOutcome, error) {
	baseImg, err := j.ensureDimensions(ctx, base)
	if err != nil {
		return core.DiffOutcome{}, err
	}
	compareImg, err := j.ensureDimensions(ctx, compare)
	if err != nil {
		return core.DiffOutcome{}, err
	}

	res, err := diff.DiffImages(baseImg, compareImg, j.opts)
	if err != nil {
		return core.DiffOutcome{}, err
	}
	if res.Diff == nil {
		return core.DiffOutcome{}, nil
	}

	key := diff.Hash(res.Diff.PNG)
	fingerprint := diff.Fingerprint(res.Diff.Mask)
	file, err := j.upload(ctx, &core.File{
		Key:         key,
		ContentType: res.Diff.ContentType,
		Width:       &res.Diff.Width,
		Height:      &res.Diff.Height,
		Fingerprint: &fingerprint,
		Type:        core.FileTypeScreenshotDiff,
	}, res.Diff.PNG)
	if err != nil {
		return core.DiffOutcome{}, err
	}
	return core.DiffOutcome{Score: res.Score, DiffKey: &key, DiffFileID: &file.ID, Fingerprint: &fingerprint}, nil
}

// upload stores a diff artifact once per key. Diffs with the same artifact
// share one blob and one file row.
func (j *ScreenshotDiffJob) upload(ctx context.Context, f *core.File, data []byte) (*core.File, error) {
	var stored *core.File
	err := j.locker.Acquire(ctx, "diffUpload-"+f.Key, func(ctx context.Context) error {
		existing, err := j.store.FileByKey(ctx, f.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			stored = existing
			return nil
		}
		if err := j.blobs.Put(ctx, f.Key, f.ContentType, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to upload diff %s: %w", f.Key, err)
		}
		stored, err = j.store.GetOrCreateFile(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (j *ScreenshotDiffJob) load(ctx context.Context, id int64) (*artifact, error) {
	s, err := j.store.GetScreenshot(ctx, id)
	if err != nil {
		return nil, missingIsFatal(err)
	}
	rc, contentType, err := j.blobs.Get(ctx, s.BlobKey)
	if err != nil {
		return nil, missingIsFatal(fmt.Errorf("failed to fetch screenshot %d: %w", id, err))
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot %d: %w", id, err)
	}
	return &artifact{screenshot: s, data: data, contentType: contentType}, nil
}

// ensureDimensions decodes the screenshot and records its file row with
// width and height.
func (j *ScreenshotDiffJob) ensureDimensions(ctx context.Context, a *artifact) (image.Image, error) {
	img, err := diff.Decode(bytes.NewReader(a.data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	file, err := j.store.GetOrCreateFile(ctx, &core.File{
		Key:         a.screenshot.BlobKey,
		ContentType: a.contentType,
		Width:       &w,
		Height:      &h,
		Type:        core.FileTypeScreenshot,
	})
	if err != nil {
		return nil, err
	}
	if a.screenshot.FileID == nil || *a.screenshot.FileID != file.ID {
		if err := j.store.AttachScreenshotFile(ctx, a.screenshot.ID, file.ID); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// missingIsFatal makes a missing source artifact unretryable. Other fetch
// failures keep their kind.
func missingIsFatal(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.Unretryable(err)
	}
	return err
}

// textFingerprint identifies a text change by its patch.
func textFingerprint(key string) string {
	return "v1:text:" + key[:16]
}
