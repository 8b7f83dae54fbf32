package imagery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"transientbot/internal/config"
)

// LegacySurvey fetches optical cutouts from the Legacy Surveys sky viewer.
type LegacySurvey struct {
	client   *http.Client
	baseURL  string
	layer    string
	band     string
	pixScale float64
	size     int
}

// NewLegacySurvey builds the optical fetcher from configuration.
func NewLegacySurvey(cfg config.LegacySurvey, client *http.Client) *LegacySurvey {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	return &LegacySurvey{
		client:   client,
		baseURL:  cfg.BaseURL,
		layer:    cfg.Layer,
		band:     cfg.Band,
		pixScale: cfg.PixScale,
		size:     cfg.SizePixels,
	}
}

func (l *LegacySurvey) Survey() string { return "Legacy " + l.band }

// Fetch returns ErrNoImagery when the position is outside the survey
// footprint, which the viewer reports as an all-zero or all-blank image.
func (l *LegacySurvey) Fetch(ctx context.Context, target Target) (*Cutout, error) {
	params := url.Values{}
	params.Set("ra", formatDeg(target.Coordinates.RA))
	params.Set("dec", formatDeg(target.Coordinates.Dec))
	params.Set("layer", l.layer)
	params.Set("pixscale", strconv.FormatFloat(l.pixScale, 'f', -1, 64))
	params.Set("bands", l.band)
	params.Set("size", strconv.Itoa(l.size))

	data, err := get(ctx, l.client, "legacy survey", withQuery(l.baseURL, params), nil)
	if err != nil {
		return nil, err
	}
	cutout, err := DecodeFITS(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("legacy survey cutout: %w", err)
	}
	if count, nonZero := cutout.Finite(); count == 0 || !nonZero {
		return nil, fmt.Errorf("legacy survey: %w", ErrNoImagery)
	}
	cutout.Survey = l.Survey()
	if cutout.PixelScaleArcsec == 0 {
		cutout.PixelScaleArcsec = l.pixScale
	}
	return cutout, nil
}
