package preflight

import (
	"context"

	"transientbot/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes the local checks and, when remote is set, the checks for
// every enabled remote service.
func RunAll(ctx context.Context, cfg *config.Config, remote bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Images directory", cfg.Paths.ImagesDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckReadableFile("Source list", cfg.Paths.SourceList),
	}
	if !remote {
		return results
	}

	if cfg.SlackEnabled() {
		results = append(results, CheckSlack(ctx, cfg.Slack))
	}
	// Anonymous CASDA access has nothing to authenticate.
	if cfg.CASDA.Enabled && cfg.CASDA.Username != "" {
		results = append(results, CheckCASDA(ctx, cfg.CASDA))
	}
	return results
}
