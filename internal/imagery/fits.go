package imagery

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/astrogo/fitsio"
)

var gzipMagic = []byte{0x1f, 0x8b}

// DecodeFITS reads the first image HDU that carries pixels. Degenerate axes
// (length 1, such as the frequency and Stokes axes of radio cubes) are
// dropped; remaining planes beyond the first are ignored. BSCALE/BZERO are
// applied and rows are flipped so that north is up. Gzip-compressed input is
// detected and unpacked transparently.
func DecodeFITS(r io.Reader) (*Cutout, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip fits: %w", err)
		}
		defer zr.Close()
		return decodeFITS(zr)
	}
	return decodeFITS(br)
}

func decodeFITS(r io.Reader) (*Cutout, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		width, height, ok := planeShape(img.Header().Axes())
		if !ok {
			continue
		}
		return readPlane(img, width, height)
	}
	return nil, errors.New("fits: no image data")
}

// planeShape returns the first two non-degenerate axes.
func planeShape(axes []int) (width, height int, ok bool) {
	if len(axes) < 2 {
		return 0, 0, false
	}
	total := 1
	for _, n := range axes {
		total *= n
	}
	if total == 0 {
		return 0, 0, false
	}
	return axes[0], axes[1], axes[0] > 0 && axes[1] > 0
}

func readPlane(img fitsio.Image, width, height int) (*Cutout, error) {
	hdr := img.Header()
	total := 1
	for _, n := range hdr.Axes() {
		total *= n
	}

	raw, err := readPixels(img, hdr.Bitpix(), total)
	if err != nil {
		return nil, err
	}

	scale := cardFloat(hdr, "BSCALE", 1)
	zero := cardFloat(hdr, "BZERO", 0)
	blank, hasBlank := cardInt(hdr, "BLANK")
	integer := hdr.Bitpix() > 0

	plane := width * height
	data := make([]float64, plane)
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * width
		dst := y * width
		for x := 0; x < width; x++ {
			v := raw[src+x]
			if integer && hasBlank && v == float64(blank) {
				data[dst+x] = math.NaN()
				continue
			}
			data[dst+x] = v*scale + zero
		}
	}

	return &Cutout{
		Width:            width,
		Height:           height,
		Data:             data,
		PixelScaleArcsec: pixelScale(hdr),
	}, nil
}

func readPixels(img fitsio.Image, bitpix, total int) ([]float64, error) {
	out := make([]float64, total)
	var err error
	switch bitpix {
	case 8:
		buf := make([]uint8, total)
		if err = img.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case 16:
		buf := make([]int16, total)
		if err = img.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case 32:
		buf := make([]int32, total)
		if err = img.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case 64:
		buf := make([]int64, total)
		if err = img.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case -32:
		buf := make([]float32, total)
		if err = img.Read(&buf); err == nil {
			for i, v := range buf {
				out[i] = float64(v)
			}
		}
	case -64:
		buf := make([]float64, total)
		if err = img.Read(&buf); err == nil {
			copy(out, buf)
		}
	default:
		return nil, fmt.Errorf("fits: unsupported BITPIX %d", bitpix)
	}
	if err != nil {
		return nil, fmt.Errorf("read fits pixels: %w", err)
	}
	return out, nil
}

// pixelScale derives arcsec/pixel from CDELT2 or CD2_2.
func pixelScale(hdr *fitsio.Header) float64 {
	for _, key := range []string{"CDELT2", "CD2_2", "CDELT1", "CD1_1"} {
		if v := cardFloat(hdr, key, 0); v != 0 {
			return math.Abs(v) * 3600
		}
	}
	return 0
}

func cardFloat(hdr *fitsio.Header, key string, fallback float64) float64 {
	card := hdr.Get(key)
	if card == nil {
		return fallback
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return fallback
}

func cardInt(hdr *fitsio.Header, key string) (int64, bool) {
	card := hdr.Get(key)
	if card == nil {
		return 0, false
	}
	switch v := card.Value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
