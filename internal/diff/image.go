// Package diff scores the difference between two screenshots or text snapshots.
// It is pure computation: callers fetch and decode the artifacts.
package diff

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/sevigo/shot-warden/internal/core"
)

// DefaultSensitivity is the sensitivity at which every threshold has its base value.
const DefaultSensitivity = 0.5

// ErrInvalidImage is returned for missing or empty inputs.
var ErrInvalidImage = errors.New("invalid image")

// Thresholds are the empirically tuned constants of the two comparison passes.
// Every value is multiplied by twice the sensitivity.
type Thresholds struct {
	// BaseThreshold is the per-pixel threshold of the anti-aliasing tolerant pass.
	BaseThreshold float64 `mapstructure:"base_threshold"`
	// BaseMaxScore is the fraction of pixels the base pass ignores.
	BaseMaxScore float64 `mapstructure:"base_max_score"`
	// MaxPixelsToIgnore caps the ignored fraction for small images.
	MaxPixelsToIgnore float64 `mapstructure:"max_pixels_to_ignore"`
	// ColorThreshold is the per-pixel threshold of the color-sensitive pass.
	ColorThreshold float64 `mapstructure:"color_threshold"`
	// ColorMaxScore is the fraction of pixels the color pass ignores.
	ColorMaxScore float64 `mapstructure:"color_max_score"`
}

// DefaultThresholds returns the production tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BaseThreshold:     0.15,
		BaseMaxScore:      0.0002,
		MaxPixelsToIgnore: 20,
		ColorThreshold:    0.0225,
		ColorMaxScore:     0.03,
	}
}

func (t Thresholds) scaled(sensitivity float64) Thresholds {
	r := sensitivity * 2
	return Thresholds{
		BaseThreshold:     t.BaseThreshold * r,
		BaseMaxScore:      t.BaseMaxScore * r,
		MaxPixelsToIgnore: t.MaxPixelsToIgnore * r,
		ColorThreshold:    t.ColorThreshold * r,
		ColorMaxScore:     t.ColorMaxScore * r,
	}
}

// Options tunes an image comparison. A sensitivity of 0 is fully strict.
type Options struct {
	Sensitivity float64
	Thresholds  Thresholds
}

// DefaultOptions returns sensitivity 0.5 with the default thresholds.
func DefaultOptions() Options {
	return Options{Sensitivity: DefaultSensitivity, Thresholds: DefaultThresholds()}
}

// Artifact is the encoded diff mask of the pass that reported the difference.
type Artifact struct {
	PNG         []byte
	ContentType string
	Width       int
	Height      int
	Mask        *image.NRGBA
}

// ImageResult is the outcome of DiffImages. Diff is nil iff Score is 0.
type ImageResult struct {
	Score      float64
	BaseScore  float64
	ColorScore float64
	Diff       *Artifact
}

// DiffImages compares base and compare. Both are padded to the larger extent
// on each axis and fitted into the pixel budget, then compared twice: once
// with a high per-pixel threshold and a small noise floor, once with a low
// threshold and a large floor.
func DiffImages(base, compare image.Image, opts Options) (*ImageResult, error) {
	if err := validate(base, "base"); err != nil {
		return nil, err
	}
	if err := validate(compare, "compare"); err != nil {
		return nil, err
	}
	if opts.Sensitivity < 0 || opts.Sensitivity > 1 {
		return nil, core.Unretryablef("sensitivity %.2f out of range [0,1]", opts.Sensitivity)
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	cfg := opts.Thresholds.scaled(opts.Sensitivity)

	padded, size := comparedDimensions(base.Bounds(), compare.Bounds())
	if size.Pixels() == 0 {
		return nil, core.Unretryable(fmt.Errorf("%w: cannot fit %dx%d into the pixel budget", ErrInvalidImage, padded.Width, padded.Height))
	}
	a := normalize(base, padded, size)
	b := normalize(compare, padded, size)
	total := float64(size.Pixels())

	baseMask := image.NewNRGBA(a.Bounds())
	baseScore := float64(comparePixels(a, b, cfg.BaseThreshold, baseMask)) / total

	colorMask := image.NewNRGBA(a.Bounds())
	colorScore := float64(comparePixels(a, b, cfg.ColorThreshold, colorMask)) / total

	baseFloor := min(cfg.BaseMaxScore, cfg.MaxPixelsToIgnore/total)
	adjBase := baseScore
	if baseScore < baseFloor {
		adjBase = 0
	}
	adjColor := colorScore
	if colorScore < cfg.ColorMaxScore {
		adjColor = 0
	}

	result := &ImageResult{BaseScore: adjBase, ColorScore: adjColor}
	var mask *image.NRGBA
	switch {
	case adjBase > 0 && adjBase >= adjColor:
		result.Score, mask = adjBase, baseMask
	case adjColor > 0 && adjColor > adjBase:
		result.Score, mask = adjColor, colorMask
	default:
		return result, nil
	}

	artifact, err := encodeArtifact(mask, size)
	if err != nil {
		return nil, err
	}
	result.Diff = artifact
	return result, nil
}

func validate(img image.Image, which string) error {
	if img == nil {
		return core.Unretryable(fmt.Errorf("%w: %s image is missing", ErrInvalidImage, which))
	}
	if img.Bounds().Empty() {
		return core.Unretryable(fmt.Errorf("%w: %s image has no pixels", ErrInvalidImage, which))
	}
	return nil
}

func encodeArtifact(mask *image.NRGBA, size Dimensions) (*Artifact, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, mask); err != nil {
		return nil, fmt.Errorf("failed to encode diff artifact: %w", err)
	}
	return &Artifact{
		PNG:         buf.Bytes(),
		ContentType: "image/png",
		Width:       size.Width,
		Height:      size.Height,
		Mask:        mask,
	}, nil
}
