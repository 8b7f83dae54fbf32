package imagery

import (
	"transientbot/internal/config"
)

// Set groups the panel fetchers in display order with the optional contour
// source.
type Set struct {
	Panels   []Fetcher
	Contours Fetcher
}

// FromConfig builds the enabled fetchers: radio first, then infrared, then
// optical.
func FromConfig(cfg *config.Config) Set {
	var set Set
	if cfg.CASDA.Enabled {
		set.Panels = append(set.Panels, NewCASDA(cfg.CASDA, nil))
	}
	if cfg.UnWISE.Enabled {
		set.Panels = append(set.Panels, NewUnWISE(cfg.UnWISE, nil))
	}
	if cfg.LegacySurvey.Enabled {
		set.Panels = append(set.Panels, NewLegacySurvey(cfg.LegacySurvey, nil))
	}
	if cfg.TSMap.Dir != "" {
		set.Contours = TSMapDir{Dir: cfg.TSMap.Dir}
	}
	return set
}

// Surveys lists the panel survey names.
func (s Set) Surveys() []string {
	names := make([]string, 0, len(s.Panels))
	for _, f := range s.Panels {
		names = append(names, f.Survey())
	}
	return names
}
