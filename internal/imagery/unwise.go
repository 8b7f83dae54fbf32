package imagery

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"transientbot/internal/config"
)

// unwisePixelScale is the native unWISE pixel size in arcsec.
const unwisePixelScale = 2.75

// UnWISE fetches infrared cutouts from the unWISE coadds.
type UnWISE struct {
	client  *http.Client
	baseURL string
	version string
	band    int
	size    int
}

// NewUnWISE builds the infrared fetcher from configuration.
func NewUnWISE(cfg config.UnWISE, client *http.Client) *UnWISE {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	return &UnWISE{client: client, baseURL: cfg.BaseURL, version: cfg.Version, band: cfg.Band, size: cfg.SizePixels}
}

func (u *UnWISE) Survey() string { return "unWISE W" + strconv.Itoa(u.band) }

func (u *UnWISE) Fetch(ctx context.Context, target Target) (*Cutout, error) {
	params := url.Values{}
	params.Set("version", u.version)
	params.Set("ra", formatDeg(target.Coordinates.RA))
	params.Set("dec", formatDeg(target.Coordinates.Dec))
	params.Set("size", strconv.Itoa(u.size))
	params.Set("bands", strconv.Itoa(u.band))

	data, err := get(ctx, u.client, "unwise", withQuery(u.baseURL, params), nil)
	if err != nil {
		return nil, err
	}
	cutout, err := u.extract(data)
	if err != nil {
		return nil, err
	}
	cutout.Survey = u.Survey()
	if cutout.PixelScaleArcsec == 0 {
		cutout.PixelScaleArcsec = unwisePixelScale
	}
	return cutout, nil
}

// extract returns the first "-w<band>-img" image in the tarball. Members may
// be plain or gzip'd FITS.
func (u *UnWISE) extract(data []byte) (*Cutout, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unwise archive: %w", err)
	}
	defer zr.Close()

	want := fmt.Sprintf("-w%d-img", u.band)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unwise: %w", ErrNoImagery)
		}
		if err != nil {
			return nil, fmt.Errorf("unwise archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.ToLower(hdr.Name)
		if !strings.Contains(name, want) || !(strings.HasSuffix(name, ".fits") || strings.HasSuffix(name, ".fits.gz")) {
			continue
		}
		cutout, err := DecodeFITS(tr)
		if err != nil {
			return nil, fmt.Errorf("unwise %s: %w", hdr.Name, err)
		}
		return cutout, nil
	}
}
