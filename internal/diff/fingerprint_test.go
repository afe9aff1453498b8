package diff

import (
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redMask(w, h int, blocks ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for _, r := range blocks {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetNRGBA(x, y, diffColor)
			}
		}
	}
	return img
}

func TestFingerprint_Empty(t *testing.T) {
	assert.Equal(t, "v1:empty", Fingerprint(redMask(20, 20)))
}

func TestFingerprint_Format(t *testing.T) {
	fp := Fingerprint(redMask(64, 64, image.Rect(8, 8, 24, 40)))
	require.True(t, strings.HasPrefix(fp, "v1:g16:d1:t0.002,0.02,0.08:"), fp)
	assert.Len(t, strings.TrimPrefix(fp, "v1:g16:d1:t0.002,0.02,0.08:"), 16)
}

func TestFingerprint_TranslationInvariant(t *testing.T) {
	a := Fingerprint(redMask(100, 100, image.Rect(10, 10, 30, 20)))
	b := Fingerprint(redMask(100, 100, image.Rect(60, 70, 80, 80)))
	c := Fingerprint(redMask(300, 200, image.Rect(1, 1, 21, 11)))
	assert.Equal(t, a, b, "the mask is cropped to its bounding box")
	assert.Equal(t, a, c)
}

func TestFingerprint_DistinguishesShapes(t *testing.T) {
	bar := Fingerprint(redMask(100, 100, image.Rect(0, 0, 80, 4)))
	column := Fingerprint(redMask(100, 100, image.Rect(0, 0, 4, 80)))
	corners := Fingerprint(redMask(100, 100, image.Rect(0, 0, 10, 10), image.Rect(90, 90, 100, 100)))
	assert.NotEqual(t, bar, column)
	assert.NotEqual(t, bar, corners)
	assert.NotEqual(t, column, corners)
}

func TestFingerprint_IgnoresNonDiffPixels(t *testing.T) {
	img := redMask(40, 40, image.Rect(5, 5, 15, 15))
	withNoise := redMask(40, 40, image.Rect(5, 5, 15, 15))
	for x := 20; x < 40; x++ {
		withNoise.Pix[withNoise.PixOffset(x, 30)+1] = 255 // green channel disqualifies red
		withNoise.Pix[withNoise.PixOffset(x, 30)+3] = 255
	}
	assert.Equal(t, Fingerprint(img), Fingerprint(withNoise))
}

func TestFingerprintOptions_Prefix(t *testing.T) {
	opts := DefaultFingerprintOptions()
	opts.GridSize = 8
	opts.DilateRadius1 = false
	opts.DensityThresholds = []float64{0.5}
	assert.Equal(t, "v1:g8:d0:t0.5", opts.prefix())
}

func TestPack2Bit(t *testing.T) {
	assert.Equal(t, []byte{0b11100100, 0b01}, pack2Bit([]uint8{0, 1, 2, 3, 1}))
}
