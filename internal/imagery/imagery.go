package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"transientbot/internal/transients"
)

const userAgent = "transientbot/0.1"

// maxDownloadBytes bounds any single survey response.
const maxDownloadBytes = 256 << 20

// ErrNoImagery reports that a survey has no data for the requested position.
var ErrNoImagery = errors.New("no imagery available")

// Target is the position to cut out.
type Target struct {
	ID           string
	Coordinates  transients.Coordinates
	RadiusArcmin float64
}

// Cutout is a decoded single-plane image. Data is row-major with row 0 at the
// top (north up). NaN marks blank pixels.
type Cutout struct {
	Survey           string
	Width            int
	Height           int
	Data             []float64
	PixelScaleArcsec float64
}

// At returns the pixel at column x and row y, or NaN when out of range.
func (c *Cutout) At(x, y int) float64 {
	if c == nil || x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return math.NaN()
	}
	return c.Data[y*c.Width+x]
}

// Finite returns the number of finite pixels and whether any is non-zero.
func (c *Cutout) Finite() (count int, nonZero bool) {
	if c == nil {
		return 0, false
	}
	for _, v := range c.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		count++
		if v != 0 {
			nonZero = true
		}
	}
	return count, nonZero
}

// Fetcher retrieves one survey's cutout.
type Fetcher interface {
	Survey() string
	Fetch(ctx context.Context, target Target) (*Cutout, error)
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Survey string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Survey, e.Code)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Survey, e.Code, e.Body)
}

type basicAuth struct {
	username string
	password string
}

// get issues a GET and returns the body. 404 maps to ErrNoImagery.
func get(ctx context.Context, client *http.Client, survey, rawURL string, auth *basicAuth) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", survey, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if auth != nil && auth.username != "" {
		req.SetBasicAuth(auth.username, auth.password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", survey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: %w", survey, ErrNoImagery)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Survey: survey, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", survey, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("%s response exceeds %d bytes", survey, maxDownloadBytes)
	}
	return data, nil
}
