package testsupport

import (
	"path/filepath"
	"testing"

	"transientbot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Remote surveys and Slack are disabled so nothing reaches the network unless
// an option points them at a test server.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceList = filepath.Join(base, "transients.txt")
	cfgVal.Paths.ProcessedStore = filepath.Join(base, "processed.csv")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.ImagesDir = filepath.Join(base, "images")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Slack.BotToken = ""
	cfgVal.Slack.AppToken = ""
	cfgVal.Slack.ChannelID = ""
	cfgVal.Slack.PostDelaySeconds = 0
	cfgVal.CASDA.Enabled = false
	cfgVal.UnWISE.Enabled = false
	cfgVal.LegacySurvey.Enabled = false
	cfgVal.Compose.PanelSize = 64
	cfgVal.Status.Bind = "127.0.0.1:0"
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSlack points the Slack client at apiURL with the given credentials.
func WithSlack(apiURL, botToken, channel string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Slack.APIURL = apiURL
		b.cfg.Slack.BotToken = botToken
		b.cfg.Slack.ChannelID = channel
	}
}

// WithMaxPosts overrides the per-run posting cap.
func WithMaxPosts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.MaxPostsPerRun = n
	}
}

// WithSourceList writes the given lines as the source list.
func WithSourceList(lines ...string) ConfigOption {
	return func(b *configBuilder) {
		WriteLines(b.t, b.cfg.Paths.SourceList, lines...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
