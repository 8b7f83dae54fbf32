package transients

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status values written by the upstream pipeline.
const (
	StatusNew = "new"
)

// Coordinates is an ICRS sky position in degrees.
type Coordinates struct {
	RA  float64
	Dec float64
}

// Valid reports whether the position is finite with |Dec| <= 90.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.RA) || math.IsInf(c.RA, 0) || math.IsNaN(c.Dec) || math.IsInf(c.Dec, 0) {
		return false
	}
	return c.Dec >= -90 && c.Dec <= 90
}

// Normalized wraps RA into [0, 360).
func (c Coordinates) Normalized() Coordinates {
	ra := math.Mod(c.RA, 360)
	if ra < 0 {
		ra += 360
	}
	return Coordinates{RA: ra, Dec: c.Dec}
}

// Sexagesimal formats the position as "HHh MMm SS.SSs" and "+DD° MM' SS.SS\"".
func (c Coordinates) Sexagesimal() (ra, dec string) {
	n := c.Normalized()
	const centisPerDay = 24 * 3600 * 100
	cs := int64(math.Round(n.RA/15*3600*100)) % centisPerDay
	h, m, s := splitCentis(cs)
	ra = fmt.Sprintf("%02dh %02dm %02d.%02ds", h, m, s/100, s%100)

	sign := "+"
	if n.Dec < 0 {
		sign = "-"
	}
	d, dm, ds := splitCentis(int64(math.Round(math.Abs(n.Dec) * 3600 * 100)))
	dec = fmt.Sprintf("%s%02d° %02d' %02d.%02d\"", sign, d, dm, ds/100, ds%100)
	return ra, dec
}

// splitCentis breaks a count of hundredths of a second (of time or arc) into
// whole units, minutes and hundredths of a second.
func splitCentis(cs int64) (units, minutes, centis int64) {
	units = cs / 360000
	minutes = cs % 360000 / 6000
	centis = cs % 6000
	return units, minutes, centis
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.5f %+.5f", c.RA, c.Dec)
}

// Transient is one candidate read from the source list.
type Transient struct {
	ID             string
	Source         string
	Observation    string
	Coordinates    Coordinates
	HasCoordinates bool
	Field          string
	Time           time.Time
	TestStatistic  float64
	PeakFluxMJy    float64
	// FWHMDays is NaN when the pipeline did not report a duration.
	FWHMDays float64
	Status   string
}

// HasFWHM reports whether a light-curve duration is available.
func (t Transient) HasFWHM() bool {
	return !math.IsNaN(t.FWHMDays)
}

// Candidate reports whether the pipeline status marks the row as postable:
// "new" or no status at all.
func (t Transient) Candidate() bool {
	status := strings.TrimSpace(t.Status)
	return status == "" || strings.EqualFold(status, StatusNew)
}

// IDs returns the identifiers of list in order.
func IDs(list []Transient) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.ID
	}
	return out
}

// Index maps identifiers to their first occurrence in list.
func Index(list []Transient) map[string]Transient {
	out := make(map[string]Transient, len(list))
	for _, t := range list {
		if _, ok := out[t.ID]; ok {
			continue
		}
		out[t.ID] = t
	}
	return out
}
