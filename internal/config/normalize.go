package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSlack()
	c.normalizeCASDA()
	c.normalizeUnWISE()
	c.normalizeLegacySurvey()
	if err := c.normalizeTSMap(); err != nil {
		return err
	}
	c.normalizeMonitor()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.ImagesDir) == "" {
		c.Paths.ImagesDir = defaultImagesDir
	}
	if c.Paths.SourceList, err = expandPath(strings.TrimSpace(c.Paths.SourceList)); err != nil {
		return fmt.Errorf("paths.source_list: %w", err)
	}
	if c.Paths.ProcessedStore, err = expandPath(strings.TrimSpace(c.Paths.ProcessedStore)); err != nil {
		return fmt.Errorf("paths.processed_store: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.ImagesDir, err = expandPath(strings.TrimSpace(c.Paths.ImagesDir)); err != nil {
		return fmt.Errorf("paths.images_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSlack() {
	c.Slack.BotToken = strings.TrimSpace(c.Slack.BotToken)
	if c.Slack.BotToken == "" {
		if value, ok := os.LookupEnv("SLACK_BOT_TOKEN"); ok {
			c.Slack.BotToken = strings.TrimSpace(value)
		}
	}
	c.Slack.AppToken = strings.TrimSpace(c.Slack.AppToken)
	if c.Slack.AppToken == "" {
		if value, ok := os.LookupEnv("SLACK_APP_TOKEN"); ok {
			c.Slack.AppToken = strings.TrimSpace(value)
		}
	}
	c.Slack.ChannelID = strings.TrimSpace(c.Slack.ChannelID)
	if c.Slack.ChannelID == "" {
		if value, ok := os.LookupEnv("SLACK_CHANNEL_ID"); ok {
			c.Slack.ChannelID = strings.TrimSpace(value)
		}
	}
	c.Slack.APIURL = strings.TrimSpace(c.Slack.APIURL)
	if c.Slack.APIURL == "" {
		c.Slack.APIURL = defaultSlackAPIURL
	}
	if !strings.HasSuffix(c.Slack.APIURL, "/") {
		c.Slack.APIURL += "/"
	}
	if c.Slack.RequestTimeout <= 0 {
		c.Slack.RequestTimeout = defaultSlackRequestTimeout
	}
	if c.Slack.PostDelaySeconds < 0 {
		c.Slack.PostDelaySeconds = 0
	}
}

func (c *Config) normalizeCASDA() {
	c.CASDA.Username = strings.TrimSpace(c.CASDA.Username)
	if c.CASDA.Username == "" {
		if value, ok := os.LookupEnv("CASDA_USERNAME"); ok {
			c.CASDA.Username = strings.TrimSpace(value)
		}
	}
	if c.CASDA.Password == "" {
		if value, ok := os.LookupEnv("CASDA_PASSWORD"); ok {
			c.CASDA.Password = value
		}
	}
	c.CASDA.LoginURL = strings.TrimSpace(c.CASDA.LoginURL)
	c.CASDA.TAPURL = strings.TrimSpace(c.CASDA.TAPURL)
	if c.CASDA.TAPURL == "" {
		c.CASDA.TAPURL = defaultCASDATAPURL
	}
	c.CASDA.CutoutURL = strings.TrimSpace(c.CASDA.CutoutURL)
	if c.CASDA.CutoutURL == "" {
		c.CASDA.CutoutURL = defaultCASDACutoutURL
	}
	c.CASDA.Collection = strings.TrimSpace(c.CASDA.Collection)
	if c.CASDA.RadiusArcmin <= 0 {
		c.CASDA.RadiusArcmin = defaultCASDARadiusArcmin
	}
	if c.CASDA.RequestTimeout <= 0 {
		c.CASDA.RequestTimeout = defaultCASDARequestTimeout
	}
}

func (c *Config) normalizeUnWISE() {
	c.UnWISE.BaseURL = strings.TrimSpace(c.UnWISE.BaseURL)
	if c.UnWISE.BaseURL == "" {
		c.UnWISE.BaseURL = defaultUnWISEBaseURL
	}
	c.UnWISE.Version = strings.TrimSpace(c.UnWISE.Version)
	if c.UnWISE.Version == "" {
		c.UnWISE.Version = defaultUnWISEVersion
	}
	if c.UnWISE.SizePixels <= 0 {
		c.UnWISE.SizePixels = defaultUnWISESizePixels
	}
	if c.UnWISE.RequestTimeout <= 0 {
		c.UnWISE.RequestTimeout = defaultUnWISERequestTimeout
	}
}

func (c *Config) normalizeLegacySurvey() {
	c.LegacySurvey.BaseURL = strings.TrimSpace(c.LegacySurvey.BaseURL)
	if c.LegacySurvey.BaseURL == "" {
		c.LegacySurvey.BaseURL = defaultLegacyBaseURL
	}
	c.LegacySurvey.Layer = strings.TrimSpace(c.LegacySurvey.Layer)
	if c.LegacySurvey.Layer == "" {
		c.LegacySurvey.Layer = defaultLegacyLayer
	}
	c.LegacySurvey.Band = strings.ToLower(strings.TrimSpace(c.LegacySurvey.Band))
	if c.LegacySurvey.Band == "" {
		c.LegacySurvey.Band = defaultLegacyBand
	}
	if c.LegacySurvey.PixScale <= 0 {
		c.LegacySurvey.PixScale = defaultLegacyPixScale
	}
	if c.LegacySurvey.SizePixels <= 0 {
		c.LegacySurvey.SizePixels = defaultLegacySizePixels
	}
	if c.LegacySurvey.RequestTimeout <= 0 {
		c.LegacySurvey.RequestTimeout = defaultLegacyRequestTimeout
	}
}

func (c *Config) normalizeTSMap() error {
	dir := strings.TrimSpace(c.TSMap.Dir)
	if dir != "" {
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("ts_map.dir: %w", err)
		}
		dir = expanded
	}
	c.TSMap.Dir = dir

	if len(c.TSMap.Levels) == 0 {
		c.TSMap.Levels = append([]float64(nil), defaultTSMapLevels...)
		return nil
	}
	levels := make([]float64, 0, len(c.TSMap.Levels))
	seen := make(map[float64]struct{}, len(c.TSMap.Levels))
	for _, level := range c.TSMap.Levels {
		if _, ok := seen[level]; ok {
			continue
		}
		seen[level] = struct{}{}
		levels = append(levels, level)
	}
	sort.Float64s(levels)
	c.TSMap.Levels = levels
	return nil
}

func (c *Config) normalizeMonitor() {
	c.Monitor.DailyAt = strings.TrimSpace(c.Monitor.DailyAt)
	if c.Monitor.DailyAt == "" {
		c.Monitor.DailyAt = defaultDailyAt
	}
	c.Monitor.Timezone = strings.TrimSpace(c.Monitor.Timezone)
	if c.Monitor.Timezone == "" {
		c.Monitor.Timezone = defaultTimezone
	}
	if c.Monitor.MaxPostsPerRun < 0 {
		c.Monitor.MaxPostsPerRun = 0
	}
	if c.Monitor.FirstRunLookbackDays <= 0 {
		c.Monitor.FirstRunLookbackDays = defaultFirstRunLookbackDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
