package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"transientbot/internal/config"
)

// CASDA fetches RACS radio cutouts from the CSIRO ASKAP Science Data Archive.
type CASDA struct {
	client         *http.Client
	auth           basicAuth
	loginURL       string
	tapURL         string
	cutoutURL      string
	collection     string
	filenamePrefix string
	filenameSuffix string
	radiusArcmin   float64
	now            func() time.Time

	loginMu  sync.Mutex
	loggedIn bool
}

// NewCASDA builds the radio fetcher from configuration.
func NewCASDA(cfg config.CASDA, client *http.Client) *CASDA {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}
	}
	return &CASDA{
		client:         client,
		auth:           basicAuth{username: cfg.Username, password: cfg.Password},
		loginURL:       cfg.LoginURL,
		tapURL:         cfg.TAPURL,
		cutoutURL:      cfg.CutoutURL,
		collection:     cfg.Collection,
		filenamePrefix: cfg.FilenamePrefix,
		filenameSuffix: cfg.FilenameSuffix,
		radiusArcmin:   cfg.RadiusArcmin,
		now:            time.Now,
	}
}

func (c *CASDA) Survey() string { return "RACS" }

// Fetch locates the first matching RACS image covering the target and
// returns a cutout of it.
func (c *CASDA) Fetch(ctx context.Context, target Target) (*Cutout, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	radius := target.RadiusArcmin
	if radius <= 0 {
		radius = c.radiusArcmin
	}

	rows, err := c.query(ctx, target, radius)
	if err != nil {
		return nil, err
	}
	match, ok := c.firstMatch(rows)
	if !ok {
		return nil, fmt.Errorf("casda: %w", ErrNoImagery)
	}

	data, err := get(ctx, c.client, "casda cutout", c.cutoutRequest(match, target, radius), &c.auth)
	if err != nil {
		return nil, err
	}
	cutout, err := DecodeFITS(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("casda cutout %s: %w", match, err)
	}
	cutout.Survey = c.Survey()
	return cutout, nil
}

// login probes the availability endpoint with the configured credentials
// until it succeeds once. Anonymous access skips the probe.
func (c *CASDA) login(ctx context.Context) error {
	if c.auth.username == "" || c.loginURL == "" {
		return nil
	}
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}

	_, err := get(ctx, c.client, "casda login", c.loginURL, &c.auth)
	var status *StatusError
	switch {
	case errors.As(err, &status) && (status.Code == http.StatusUnauthorized || status.Code == http.StatusForbidden):
		return fmt.Errorf("casda authentication failed: HTTP %d", status.Code)
	case errors.Is(err, ErrNoImagery):
		return errors.New("casda authentication failed: login endpoint not found")
	case err != nil:
		return err
	}
	c.loggedIn = true
	return nil
}

func (c *CASDA) query(ctx context.Context, target Target, radiusArcmin float64) ([]map[string]string, error) {
	adql := fmt.Sprintf("SELECT obs_publisher_did, filename, obs_collection, obs_release_date, s_ra, s_dec "+
		"FROM ivoa.obscore WHERE CONTAINS(POINT('ICRS', s_ra, s_dec), CIRCLE('ICRS', %s, %s, %s)) = 1",
		formatDeg(target.Coordinates.RA), formatDeg(target.Coordinates.Dec), formatDeg(radiusArcmin/60))
	if c.collection != "" {
		adql += " AND obs_collection = '" + strings.ReplaceAll(c.collection, "'", "''") + "'"
	}
	params := url.Values{}
	params.Set("REQUEST", "doQuery")
	params.Set("LANG", "ADQL")
	params.Set("FORMAT", "votable")
	params.Set("QUERY", adql)

	data, err := get(ctx, c.client, "casda tap", withQuery(c.tapURL, params), &c.auth)
	if err != nil {
		return nil, err
	}
	rows, err := tapRows(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("casda tap: %w", err)
	}
	return rows, nil
}

// firstMatch applies the collection, file-name and release-date filters.
func (c *CASDA) firstMatch(rows []map[string]string) (string, bool) {
	now := c.now()
	for _, row := range rows {
		if c.collection != "" && row["obs_collection"] != c.collection {
			continue
		}
		name := row["filename"]
		if !strings.HasPrefix(name, c.filenamePrefix) || !strings.HasSuffix(name, c.filenameSuffix) {
			continue
		}
		if released := row["obs_release_date"]; released != "" {
			if when, err := time.Parse(time.RFC3339, released); err == nil && when.After(now) {
				continue
			}
		}
		if did := row["obs_publisher_did"]; did != "" {
			return did, true
		}
	}
	return "", false
}

func (c *CASDA) cutoutRequest(did string, target Target, radiusArcmin float64) string {
	params := url.Values{}
	params.Set("ID", did)
	params.Set("CIRCLE", fmt.Sprintf("%s %s %s",
		formatDeg(target.Coordinates.RA), formatDeg(target.Coordinates.Dec), formatDeg(radiusArcmin/60)))
	return withQuery(c.cutoutURL, params)
}

func withQuery(base string, params url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
