package transients

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed indicates the source list could not be parsed.
var ErrMalformed = errors.New("malformed source list")

const (
	colSource      = "source"
	colObservation = "observation"
	colRA          = "ra[deg]"
	colDec         = "dec[deg]"
	colCentroidRA  = "centroid_ra[deg]"
	colCentroidDec = "centroid_dec[deg]"
	colField       = "field"
	colTime        = "time"
	colTS          = "test_statistic"
	colPeakFlux    = "peak_flux[mJy]"
	colFWHM        = "fwhm[days]"
	colStatus      = "status"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Load reads and parses the source list at path.
func Load(path string) ([]Transient, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source list: %w", err)
	}
	defer file.Close()
	list, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// Parse reads either a tab-separated pipeline table or a plain identifier list.
func Parse(r io.Reader) ([]Transient, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		header  map[string]int
		list    []Transient
		lineNo  int
		started bool
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !started {
			started = true
			if cols, ok := parseHeader(line); ok {
				if err := requireColumns(cols); err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				header = cols
				continue
			}
		}
		var (
			t   Transient
			err error
		)
		if header != nil {
			t, err = parseRow(header, strings.Split(line, "\t"))
		} else {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			t, err = parsePlain(line)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		list = append(list, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}
	return list, nil
}

func parseHeader(line string) (map[string]int, bool) {
	if !strings.Contains(line, "\t") {
		return nil, false
	}
	cols := make(map[string]int)
	for i, name := range strings.Split(line, "\t") {
		cols[strings.TrimSpace(name)] = i
	}
	if _, ok := cols[colSource]; !ok {
		return nil, false
	}
	return cols, true
}

func requireColumns(cols map[string]int) error {
	for _, name := range []string{colSource, colRA, colDec} {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("%w: missing column %q", ErrMalformed, name)
		}
	}
	return nil
}

func parseRow(cols map[string]int, cells []string) (Transient, error) {
	cell := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[idx])
	}

	t := Transient{
		Source:      cell(colSource),
		Observation: cell(colObservation),
		Field:       cell(colField),
		Status:      normalizeStatus(cell(colStatus)),
		FWHMDays:    math.NaN(),
	}
	if t.Source == "" {
		return Transient{}, fmt.Errorf("%w: empty source", ErrMalformed)
	}
	t.ID = t.Source
	if t.Observation != "" {
		t.ID = t.Source + "_" + t.Observation
	}

	ra, err := parseFloat(colRA, cell(colRA), false)
	if err != nil {
		return Transient{}, err
	}
	dec, err := parseFloat(colDec, cell(colDec), false)
	if err != nil {
		return Transient{}, err
	}
	cra, err := parseFloat(colCentroidRA, cell(colCentroidRA), true)
	if err != nil {
		return Transient{}, err
	}
	cdec, err := parseFloat(colCentroidDec, cell(colCentroidDec), true)
	if err != nil {
		return Transient{}, err
	}
	coords := Coordinates{RA: ra, Dec: dec}
	if centroid := (Coordinates{RA: cra, Dec: cdec}); centroid.Valid() {
		coords = centroid
	}
	t.Coordinates = coords.Normalized()
	t.HasCoordinates = true

	if t.TestStatistic, err = parseFloat(colTS, cell(colTS), true); err != nil {
		return Transient{}, err
	}
	if t.PeakFluxMJy, err = parseFloat(colPeakFlux, cell(colPeakFlux), true); err != nil {
		return Transient{}, err
	}
	if t.FWHMDays, err = parseFloat(colFWHM, cell(colFWHM), true); err != nil {
		return Transient{}, err
	}
	if raw := cell(colTime); raw != "" {
		when, err := ParseTime(raw)
		if err != nil {
			return Transient{}, fmt.Errorf("%w: %s %q", ErrMalformed, colTime, raw)
		}
		t.Time = when
	}
	return t, nil
}

func parsePlain(line string) (Transient, error) {
	fields := strings.Fields(line)
	t := Transient{
		ID:       fields[0],
		Source:   fields[0],
		FWHMDays: math.NaN(),
		Coordinates: Coordinates{
			RA:  math.NaN(),
			Dec: math.NaN(),
		},
		TestStatistic: math.NaN(),
		PeakFluxMJy:   math.NaN(),
	}
	switch len(fields) {
	case 1:
		return t, nil
	case 3:
		ra, err := parseFloat("ra", fields[1], false)
		if err != nil {
			return Transient{}, err
		}
		dec, err := parseFloat("dec", fields[2], false)
		if err != nil {
			return Transient{}, err
		}
		t.Coordinates = Coordinates{RA: ra, Dec: dec}.Normalized()
		t.HasCoordinates = true
		return t, nil
	default:
		return Transient{}, fmt.Errorf("%w: expected \"ID [RA DEC]\", got %d fields", ErrMalformed, len(fields))
	}
}

// parseFloat treats empty and "nan" cells as NaN when optional is set.
func parseFloat(name, raw string, optional bool) (float64, error) {
	if raw == "" || strings.EqualFold(raw, "nan") {
		if optional {
			return math.NaN(), nil
		}
		return 0, fmt.Errorf("%w: %s is required", ErrMalformed, name)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrMalformed, name, raw)
	}
	return value, nil
}

func normalizeStatus(raw string) string {
	if strings.EqualFold(raw, "nan") || strings.EqualFold(raw, "none") {
		return ""
	}
	return raw
}

// ParseTime accepts the timestamp layouts emitted by the pipeline. Values
// without a zone are taken as UTC.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if when, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return when.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
