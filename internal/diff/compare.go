package diff

import (
	"image"
	"image/color"
)

// maxYIQDelta is the largest possible YIQ distance between two colors.
const maxYIQDelta = 35215

var diffColor = color.NRGBA{R: 255, A: 255}

// comparePixels counts perceptually different pixels between two images of
// identical bounds. Anti-aliased pixels are tolerated. When mask is non-nil
// every counted pixel is painted red on it; other pixels stay transparent.
func comparePixels(a, b *image.NRGBA, threshold float64, mask *image.NRGBA) int {
	bounds := a.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	maxDelta := maxYIQDelta * threshold * threshold

	diffs := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pa := pixelAt(a, x, y)
			pb := pixelAt(b, x, y)
			if pa == pb {
				continue
			}
			delta := colorDelta(pa, pb, false)
			if abs(delta) <= maxDelta {
				continue
			}
			if antialiased(a, b, x, y, w, h) || antialiased(b, a, x, y, w, h) {
				continue
			}
			diffs++
			if mask != nil {
				mask.SetNRGBA(bounds.Min.X+x, bounds.Min.Y+y, diffColor)
			}
		}
	}
	return diffs
}

func pixelAt(img *image.NRGBA, x, y int) color.NRGBA {
	i := y*img.Stride + x*4
	s := img.Pix[i : i+4 : i+4]
	return color.NRGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
}

// colorDelta returns the signed YIQ distance between two colors blended over
// white. With yOnly only the brightness channel is compared.
func colorDelta(c1, c2 color.NRGBA, yOnly bool) float64 {
	r1, g1, b1 := blendWhite(c1)
	r2, g2, b2 := blendWhite(c2)

	y1, y2 := rgb2y(r1, g1, b1), rgb2y(r2, g2, b2)
	y := y1 - y2
	if yOnly {
		return y
	}
	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q
	if y1 > y2 {
		return -delta
	}
	return delta
}

func blendWhite(c color.NRGBA) (float64, float64, float64) {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	if c.A == 255 {
		return r, g, b
	}
	a := float64(c.A) / 255
	return 255 + (r-255)*a, 255 + (g-255)*a, 255 + (b-255)*a
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

// antialiased reports whether the pixel at (x1, y1) of img looks like an
// anti-aliasing artifact: it sits between a darker and a brighter neighbour,
// and one of those extremes belongs to a flat region in both images.
func antialiased(img, other *image.NRGBA, x1, y1, w, h int) bool {
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, w-1), min(y1+1, h-1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	center := pixelAt(img, x1, y1)
	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			delta := colorDelta(center, pixelAt(img, x, y), true)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta, minX, minY = delta, x, y
			case delta > maxDelta:
				maxDelta, maxX, maxY = delta, x, y
			}
		}
	}

	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY, w, h) && hasManySiblings(other, minX, minY, w, h)) ||
		(hasManySiblings(img, maxX, maxY, w, h) && hasManySiblings(other, maxX, maxY, w, h))
}

// hasManySiblings reports whether more than two neighbours share the exact color of (x1, y1).
func hasManySiblings(img *image.NRGBA, x1, y1, w, h int) bool {
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, w-1), min(y1+1, h-1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	center := pixelAt(img, x1, y1)
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			if pixelAt(img, x, y) == center {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
