package imagery

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"
)

const fitsBlock = 2880

type fitsCard struct {
	key   string
	value string
}

// buildFITS encodes a single primary image HDU. values are in FITS storage
// order (first row is the southern-most).
func buildFITS(t testing.TB, bitpix int, axes []int, values []float64, extra ...fitsCard) []byte {
	t.Helper()
	var hdr strings.Builder
	card := func(key, value string) {
		line := fmt.Sprintf("%-8s= %20s", key, value)
		hdr.WriteString(fmt.Sprintf("%-80s", line))
	}
	card("SIMPLE", "T")
	card("BITPIX", fmt.Sprint(bitpix))
	card("NAXIS", fmt.Sprint(len(axes)))
	for i, n := range axes {
		card(fmt.Sprintf("NAXIS%d", i+1), fmt.Sprint(n))
	}
	for _, c := range extra {
		card(c.key, c.value)
	}
	hdr.WriteString(fmt.Sprintf("%-80s", "END"))
	header := []byte(hdr.String())
	if pad := len(header) % fitsBlock; pad != 0 {
		header = append(header, bytes.Repeat([]byte(" "), fitsBlock-pad)...)
	}

	var data bytes.Buffer
	for _, v := range values {
		var err error
		switch bitpix {
		case 8:
			err = binary.Write(&data, binary.BigEndian, uint8(v))
		case 16:
			err = binary.Write(&data, binary.BigEndian, int16(v))
		case 32:
			err = binary.Write(&data, binary.BigEndian, int32(v))
		case -32:
			err = binary.Write(&data, binary.BigEndian, float32(v))
		case -64:
			err = binary.Write(&data, binary.BigEndian, v)
		default:
			t.Fatalf("unsupported bitpix %d", bitpix)
		}
		if err != nil {
			t.Fatalf("encode pixel: %v", err)
		}
	}
	body := data.Bytes()
	if pad := len(body) % fitsBlock; pad != 0 {
		body = append(body, make([]byte, fitsBlock-pad)...)
	}
	return append(header, body...)
}

func gzipBytes(t testing.TB, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// tarGz packs name/content pairs into a gzip'd tarball.
func tarGz(t testing.TB, files map[string][]byte, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, name := range order {
		content := files[name]
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func sampleImage(t testing.TB, fill float64) []byte {
	t.Helper()
	values := make([]float64, 16)
	for i := range values {
		values[i] = fill + float64(i)
	}
	return buildFITS(t, -32, []int{4, 4}, values, fitsCard{"CDELT2", "-0.000694444"})
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}
