package compose

import (
	"math"

	"transientbot/internal/imagery"
)

// ContourLevels resolves the configured levels against a map. Relative
// levels are offsets below the map peak.
func ContourLevels(c *imagery.Cutout, levels []float64, relative bool) []float64 {
	if !relative {
		return append([]float64(nil), levels...)
	}
	peak := math.Inf(-1)
	for _, v := range c.Data {
		if !math.IsNaN(v) && v > peak {
			peak = v
		}
	}
	if math.IsInf(peak, -1) {
		return nil
	}
	out := make([]float64, 0, len(levels))
	for _, offset := range levels {
		out = append(out, peak-offset)
	}
	return out
}

// ContourMask marks pixels of a w×h grid at level: a pixel is on the contour
// when its value is >= level and at least one 4-neighbour is below it.
// Neighbours outside the grid and NaN pixels do not count.
func ContourMask(values []float64, w, h int, level float64) []bool {
	mask := make([]bool, w*h)
	at := func(x, y int) (float64, bool) {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0, false
		}
		v := values[y*w+x]
		return v, !math.IsNaN(v)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v, ok := at(x, y)
			if !ok || v < level {
				continue
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				if n, ok := at(x+d[0], y+d[1]); ok && n < level {
					mask[y*w+x] = true
					break
				}
			}
		}
	}
	return mask
}

// resampleNearest maps c onto a size×size grid.
func resampleNearest(c *imagery.Cutout, size int) []float64 {
	out := make([]float64, size*size)
	for y := 0; y < size; y++ {
		sy := int(float64(y) * float64(c.Height) / float64(size))
		for x := 0; x < size; x++ {
			sx := int(float64(x) * float64(c.Width) / float64(size))
			out[y*size+x] = c.At(sx, sy)
		}
	}
	return out
}
