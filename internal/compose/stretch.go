package compose

import (
	"image"
	"image/color"
	"math"
	"sort"

	"transientbot/internal/imagery"
)

// logStretchA matches the usual astronomical log stretch, y = log(a*x+1)/log(a+1).
const logStretchA = 1000

// Percentile returns the p-th percentile (0-100) of the finite values using
// linear interpolation between closest ranks. It returns NaN when no finite
// value exists.
func Percentile(values []float64, p float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return percentileSorted(finite, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Stretch maps a cutout to 8-bit grayscale: values are clipped to the
// [pmin, pmax] percentile interval and passed through a log stretch. Blank
// pixels render black.
func Stretch(c *imagery.Cutout, pmin, pmax float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	lo := Percentile(c.Data, pmin)
	hi := Percentile(c.Data, pmax)
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return img
	}
	span := hi - lo
	norm := math.Log10(logStretchA + 1)
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			v := c.At(x, y)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			var t float64
			if span > 0 {
				t = (v - lo) / span
			} else if v > lo {
				t = 1
			}
			t = math.Max(0, math.Min(1, t))
			level := math.Log10(logStretchA*t+1) / norm
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(level * 255))})
		}
	}
	return img
}
