package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	SourceList     string `toml:"source_list"`
	ProcessedStore string `toml:"processed_store"`
	StateDir       string `toml:"state_dir"`
	ImagesDir      string `toml:"images_dir"`
	LogDir         string `toml:"log_dir"`
}

// Slack contains configuration for the chat workspace integration.
type Slack struct {
	BotToken         string `toml:"bot_token"`
	AppToken         string `toml:"app_token"`
	ChannelID        string `toml:"channel_id"`
	APIURL           string `toml:"api_url"`
	RequestTimeout   int    `toml:"request_timeout"`
	Voting           bool   `toml:"voting"`
	PostDelaySeconds int    `toml:"post_delay_seconds"`
}

// CASDA contains configuration for ASKAP radio cutouts served by CASDA.
type CASDA struct {
	Enabled        bool    `toml:"enabled"`
	Username       string  `toml:"username"`
	Password       string  `toml:"password"`
	LoginURL       string  `toml:"login_url"`
	TAPURL         string  `toml:"tap_url"`
	CutoutURL      string  `toml:"cutout_url"`
	Collection     string  `toml:"collection"`
	FilenamePrefix string  `toml:"filename_prefix"`
	FilenameSuffix string  `toml:"filename_suffix"`
	RadiusArcmin   float64 `toml:"radius_arcmin"`
	RequestTimeout int     `toml:"request_timeout"`
}

// UnWISE contains configuration for infrared cutouts from unwise.me.
type UnWISE struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Version        string `toml:"version"`
	Band           int    `toml:"band"`
	SizePixels     int    `toml:"size_pixels"`
	RequestTimeout int    `toml:"request_timeout"`
}

// LegacySurvey contains configuration for optical cutouts from the Legacy Surveys viewer.
type LegacySurvey struct {
	Enabled        bool    `toml:"enabled"`
	BaseURL        string  `toml:"base_url"`
	Layer          string  `toml:"layer"`
	Band           string  `toml:"band"`
	PixScale       float64 `toml:"pixscale"`
	SizePixels     int     `toml:"size_pixels"`
	RequestTimeout int     `toml:"request_timeout"`
}

// TSMap contains configuration for test-statistic contour overlays.
// When Relative is set, each level is an offset below the map's peak value.
type TSMap struct {
	Dir      string    `toml:"dir"`
	Levels   []float64 `toml:"levels"`
	Relative bool      `toml:"relative"`
}

// Compose contains thumbnail rendering parameters.
type Compose struct {
	PanelSize int     `toml:"panel_size"`
	PMin      float64 `toml:"pmin"`
	PMax      float64 `toml:"pmax"`
}

// Monitor contains configuration for run selection and scheduling.
type Monitor struct {
	MaxPostsPerRun       int    `toml:"max_posts_per_run"`
	FirstRunLookbackDays int    `toml:"first_run_lookback_days"`
	DailyAt              string `toml:"daily_at"`
	Timezone             string `toml:"timezone"`
}

// Voting contains the vote thresholds each category must reach before a
// transient is classified.
type Voting struct {
	AGNThreshold         int `toml:"agn_threshold"`
	InterestingThreshold int `toml:"interesting_threshold"`
	StarThreshold        int `toml:"star_threshold"`
	JunkThreshold        int `toml:"junk_threshold"`
}

// Status contains configuration for the read-only status API.
type Status struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for transientbot.
//
// Configuration sections by subsystem:
//   - Paths: source list, processed-state store, and working directories
//   - Slack: bot/app tokens, channel, and posting behaviour
//   - CASDA: ASKAP radio cutouts (RACS)
//   - UnWISE: infrared cutouts
//   - LegacySurvey: optical cutouts
//   - TSMap: significance contour overlays
//   - Compose: thumbnail rendering
//   - Monitor: selection limits and the daily schedule
//   - Voting: reaction classification thresholds
//   - Status: status API bind address
//   - Logging: log format, level, and retention
type Config struct {
	Paths        Paths        `toml:"paths"`
	Slack        Slack        `toml:"slack"`
	CASDA        CASDA        `toml:"casda"`
	UnWISE       UnWISE       `toml:"unwise"`
	LegacySurvey LegacySurvey `toml:"legacy_survey"`
	TSMap        TSMap        `toml:"ts_map"`
	Compose      Compose      `toml:"compose"`
	Monitor      Monitor      `toml:"monitor"`
	Voting       Voting       `toml:"voting"`
	Status       Status       `toml:"status"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("transientbot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.ImagesDir, c.Paths.LogDir}
	if store := strings.TrimSpace(c.Paths.ProcessedStore); store != "" {
		dirs = append(dirs, filepath.Dir(store))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the file used to serialize runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "transientbot.lock")
}

// VotesDBPath returns the SQLite database holding reaction tallies.
func (c *Config) VotesDBPath() string {
	return filepath.Join(c.Paths.StateDir, "votes.db")
}

// LogPath returns the append-only log file written alongside console output.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "transientbot.log")
}

// SlackEnabled reports whether posting credentials are configured.
func (c *Config) SlackEnabled() bool {
	return strings.TrimSpace(c.Slack.BotToken) != "" && strings.TrimSpace(c.Slack.ChannelID) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
