package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSlack(); err != nil {
		return err
	}
	if err := c.validateCASDA(); err != nil {
		return err
	}
	if err := c.validateUnWISE(); err != nil {
		return err
	}
	if err := c.validateCompose(); err != nil {
		return err
	}
	if err := c.validateTSMap(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateVoting(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.SourceList == "" {
		return errors.New("paths.source_list must be set")
	}
	if c.Paths.ProcessedStore == "" {
		return errors.New("paths.processed_store must be set")
	}
	if c.Paths.SourceList == c.Paths.ProcessedStore {
		return errors.New("paths.source_list and paths.processed_store must be different files")
	}
	return nil
}

func (c *Config) validateSlack() error {
	if c.Slack.BotToken != "" && c.Slack.ChannelID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("slack.channel_id is required when a bot token is set. Set SLACK_CHANNEL_ID env var or edit %s (create with 'transientbot config init')", defaultPath)
	}
	if c.Slack.AppToken != "" && !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		return errors.New("slack.app_token must be an app-level token (xapp-...)")
	}
	return nil
}

func (c *Config) validateCASDA() error {
	if !c.CASDA.Enabled {
		return nil
	}
	if c.CASDA.Collection == "" {
		return errors.New("casda.collection must be set when casda.enabled is true")
	}
	if c.CASDA.RadiusArcmin > 60 {
		return errors.New("casda.radius_arcmin must not exceed 60")
	}
	if (c.CASDA.Username == "") != (c.CASDA.Password == "") {
		return errors.New("casda.username and casda.password must be set together")
	}
	return nil
}

func (c *Config) validateUnWISE() error {
	if !c.UnWISE.Enabled {
		return nil
	}
	if c.UnWISE.Band != 1 && c.UnWISE.Band != 2 {
		return fmt.Errorf("unwise.band must be 1 or 2, got %d", c.UnWISE.Band)
	}
	return nil
}

func (c *Config) validateCompose() error {
	if c.Compose.PanelSize < 64 {
		return errors.New("compose.panel_size must be at least 64")
	}
	if c.Compose.PMin < 0 || c.Compose.PMax > 100 || c.Compose.PMin >= c.Compose.PMax {
		return errors.New("compose.pmin and compose.pmax must satisfy 0 <= pmin < pmax <= 100")
	}
	return nil
}

func (c *Config) validateTSMap() error {
	for _, level := range c.TSMap.Levels {
		if level <= 0 || math.IsNaN(level) || math.IsInf(level, 0) {
			return fmt.Errorf("ts_map.levels must be positive finite values, got %v", level)
		}
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if _, _, _, err := c.Schedule(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateVoting() error {
	for name, value := range map[string]int{
		"voting.agn_threshold":         c.Voting.AGNThreshold,
		"voting.interesting_threshold": c.Voting.InterestingThreshold,
		"voting.star_threshold":        c.Voting.StarThreshold,
		"voting.junk_threshold":        c.Voting.JunkThreshold,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// Schedule parses monitor.daily_at and monitor.timezone.
func (c *Config) Schedule() (hour, minute int, loc *time.Location, err error) {
	clock, err := time.Parse("15:04", c.Monitor.DailyAt)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("monitor.daily_at must be HH:MM, got %q", c.Monitor.DailyAt)
	}
	switch strings.ToLower(c.Monitor.Timezone) {
	case "", "local":
		loc = time.Local
	case "utc":
		loc = time.UTC
	default:
		loc, err = time.LoadLocation(c.Monitor.Timezone)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("monitor.timezone: %w", err)
		}
	}
	return clock.Hour(), clock.Minute(), loc, nil
}
