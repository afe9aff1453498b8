package diff

import (
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	// MaxPixels is the hard pixel budget of a compared image pair.
	MaxPixels = 80_000_000
	// DefaultMaxWidth is the width kept for over-budget portrait images.
	DefaultMaxWidth = 2048
)

// Dimensions is a width and height in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// Pixels returns the pixel count.
func (d Dimensions) Pixels() int { return d.Width * d.Height }

// comparedDimensions returns the size both images are normalized to: the
// per-axis maximum, fitted into the pixel budget.
func comparedDimensions(a, b image.Rectangle) (padded, target Dimensions) {
	padded = Dimensions{
		Width:  max(a.Dx(), b.Dx()),
		Height: max(a.Dy(), b.Dy()),
	}
	if padded.Pixels() > MaxPixels && padded.Width < padded.Height {
		return padded, fitIntoMaxPixels(Dimensions{Width: DefaultMaxWidth, Height: MaxPixels / DefaultMaxWidth})
	}
	return padded, fitIntoMaxPixels(padded)
}

// fitIntoMaxPixels scales d down proportionally so it holds at most MaxPixels.
func fitIntoMaxPixels(d Dimensions) Dimensions {
	n := d.Pixels()
	if n <= MaxPixels {
		return d
	}
	scale := math.Sqrt(float64(MaxPixels) / float64(n))
	return Dimensions{
		Width:  int(math.Floor(float64(d.Width) * scale)),
		Height: int(math.Floor(float64(d.Height) * scale)),
	}
}

// normalize draws img top-left anchored onto a transparent canvas of the
// padded size, then downscales it to target when the two differ.
func normalize(img image.Image, padded, target Dimensions) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, padded.Width, padded.Height))
	b := img.Bounds()
	draw.Draw(canvas, image.Rect(0, 0, b.Dx(), b.Dy()), img, b.Min, draw.Src)

	if padded == target {
		return canvas
	}

	scaled := image.NewNRGBA(image.Rect(0, 0, target.Width, target.Height))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)
	return scaled
}
