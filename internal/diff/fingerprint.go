package diff

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"strconv"
	"strings"
)

// FingerprintOptions tunes the equality fingerprint of a diff mask.
type FingerprintOptions struct {
	RMin, GMax, BMax, AMin uint8
	DilateRadius1          bool
	GridSize               int
	DensityThresholds      []float64
	PadToSquare            bool
}

// DefaultFingerprintOptions matches the red diff color painted by DiffImages.
func DefaultFingerprintOptions() FingerprintOptions {
	return FingerprintOptions{
		RMin: 200, GMax: 90, BMax: 90, AMin: 16,
		DilateRadius1:     true,
		GridSize:          16,
		DensityThresholds: []float64{0.002, 0.02, 0.08},
		PadToSquare:       true,
	}
}

func (o FingerprintOptions) prefix() string {
	d := 0
	if o.DilateRadius1 {
		d = 1
	}
	ts := make([]string, len(o.DensityThresholds))
	for i, t := range o.DensityThresholds {
		ts[i] = strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprintf("v1:g%d:d%d:t%s", o.GridSize, d, strings.Join(ts, ","))
}

// Fingerprint returns a stable identity for a diff mask. Masks that differ
// only slightly usually share a fingerprint because densities are binned.
func Fingerprint(img image.Image) string {
	return FingerprintWith(img, DefaultFingerprintOptions())
}

// FingerprintWith is Fingerprint with explicit options.
func FingerprintWith(img image.Image, opts FingerprintOptions) string {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	mask := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c.R >= opts.RMin && c.G <= opts.GMax && c.B <= opts.BMax && c.A >= opts.AMin {
				mask[y*w+x] = 1
			}
		}
	}
	if opts.DilateRadius1 {
		mask = dilate(mask, w, h)
	}

	minX, minY, maxX, maxY, ok := bbox(mask, w, h)
	if !ok {
		return "v1:empty"
	}
	cw, ch := maxX-minX+1, maxY-minY+1
	cropped := make([]uint8, cw*ch)
	for y := 0; y < ch; y++ {
		copy(cropped[y*cw:(y+1)*cw], mask[(minY+y)*w+minX:(minY+y)*w+minX+cw])
	}
	if opts.PadToSquare {
		cropped, cw, ch = padSquare(cropped, cw, ch)
	}

	cells := quantize(cropped, cw, ch, opts.GridSize, opts.DensityThresholds)

	hasher := fnv.New64a()
	_, _ = hasher.Write(pack2Bit(cells))
	return fmt.Sprintf("%s:%016x", opts.prefix(), hasher.Sum64())
}

func dilate(mask []uint8, w, h int) []uint8 {
	out := make([]uint8, len(mask))
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-1), min(h-1, y+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-1), min(w-1, x+1)
		scan:
			for yy := y0; yy <= y1; yy++ {
				for xx := x0; xx <= x1; xx++ {
					if mask[yy*w+xx] == 1 {
						out[y*w+x] = 1
						break scan
					}
				}
			}
		}
	}
	return out
}

func bbox(mask []uint8, w, h int) (minX, minY, maxX, maxY int, ok bool) {
	minX, minY, maxX, maxY = w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] == 0 {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	return minX, minY, maxX, maxY, maxX >= minX && maxY >= minY
}

func padSquare(src []uint8, w, h int) ([]uint8, int, int) {
	side := max(w, h)
	out := make([]uint8, side*side)
	offX, offY := (side-w)/2, (side-h)/2
	for y := 0; y < h; y++ {
		copy(out[(y+offY)*side+offX:(y+offY)*side+offX+w], src[y*w:(y+1)*w])
	}
	return out, side, side
}

// quantize bins the mask density of every grid cell, using an integral image.
func quantize(src []uint8, w, h, grid int, thresholds []float64) []uint8 {
	integral := make([]uint32, w*h)
	for y := 0; y < h; y++ {
		var row uint32
		for x := 0; x < w; x++ {
			row += uint32(src[y*w+x])
			var above uint32
			if y > 0 {
				above = integral[(y-1)*w+x]
			}
			integral[y*w+x] = above + row
		}
	}
	at := func(x, y int) uint32 {
		if x < 0 || y < 0 {
			return 0
		}
		return integral[y*w+x]
	}

	out := make([]uint8, grid*grid)
	for gy := 0; gy < grid; gy++ {
		y0, y1 := gy*h/grid, (gy+1)*h/grid
		for gx := 0; gx < grid; gx++ {
			x0, x1 := gx*w/grid, (gx+1)*w/grid
			area := max(1, (x1-x0)*(y1-y0))
			sum := int64(at(x1-1, y1-1)) - int64(at(x1-1, y0-1)) - int64(at(x0-1, y1-1)) + int64(at(x0-1, y0-1))
			density := float64(sum) / float64(area)

			level := uint8(len(thresholds))
			for i, t := range thresholds {
				if density < t {
					level = uint8(i)
					break
				}
			}
			out[gy*grid+gx] = level
		}
	}
	return out
}

func pack2Bit(values []uint8) []byte {
	out := make([]byte, (len(values)+3)/4)
	for i, v := range values {
		out[i/4] |= (v & 3) << ((i & 3) * 2)
	}
	return out
}
