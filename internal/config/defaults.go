package config

const (
	defaultConfigPath           = "~/.config/transientbot/config.toml"
	defaultSourceList           = "~/transientbot/transients.txt"
	defaultProcessedStore       = "~/transientbot/new_transients.csv"
	defaultStateDir             = "~/.local/share/transientbot"
	defaultImagesDir            = "~/.local/share/transientbot/images"
	defaultLogDir               = "~/.local/share/transientbot/logs"
	defaultSlackAPIURL          = "https://slack.com/api/"
	defaultSlackRequestTimeout  = 30
	defaultSlackPostDelay       = 2
	defaultCASDALoginURL        = "https://data.csiro.au/casda_vo_proxy/vo/tap/availability"
	defaultCASDATAPURL          = "https://casda.csiro.au/casda_vo_tools/tap/sync"
	defaultCASDACutoutURL       = "https://data.csiro.au/casda_vo_proxy/vo/soda/sync"
	defaultCASDACollection      = "The Rapid ASKAP Continuum Survey"
	defaultCASDAFilenamePrefix  = "RACS-DR1_"
	defaultCASDAFilenameSuffix  = "A.fits"
	defaultCASDARadiusArcmin    = 2.5
	defaultCASDARequestTimeout  = 120
	defaultUnWISEBaseURL        = "https://unwise.me/cutout_fits"
	defaultUnWISEVersion        = "neo6"
	defaultUnWISEBand           = 1
	defaultUnWISESizePixels     = 110
	defaultUnWISERequestTimeout = 60
	defaultLegacyBaseURL        = "https://www.legacysurvey.org/viewer/fits-cutout"
	defaultLegacyLayer          = "ls-dr10"
	defaultLegacyBand           = "g"
	defaultLegacyPixScale       = 0.524
	defaultLegacySizePixels     = 573
	defaultLegacyRequestTimeout = 180
	defaultPanelSize            = 400
	defaultPMin                 = 70.0
	defaultPMax                 = 99.9
	defaultMaxPostsPerRun       = 5
	defaultFirstRunLookbackDays = 30
	defaultDailyAt              = "12:00"
	defaultTimezone             = "Local"
	defaultAGNThreshold         = 3
	defaultInterestingThreshold = 2
	defaultStarThreshold        = 2
	defaultJunkThreshold        = 3
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
)

var defaultTSMapLevels = []float64{2.3, 6.18, 11.83}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceList:     defaultSourceList,
			ProcessedStore: defaultProcessedStore,
			StateDir:       defaultStateDir,
			ImagesDir:      defaultImagesDir,
			LogDir:         defaultLogDir,
		},
		Slack: Slack{
			APIURL:           defaultSlackAPIURL,
			RequestTimeout:   defaultSlackRequestTimeout,
			Voting:           true,
			PostDelaySeconds: defaultSlackPostDelay,
		},
		CASDA: CASDA{
			Enabled:        true,
			LoginURL:       defaultCASDALoginURL,
			TAPURL:         defaultCASDATAPURL,
			CutoutURL:      defaultCASDACutoutURL,
			Collection:     defaultCASDACollection,
			FilenamePrefix: defaultCASDAFilenamePrefix,
			FilenameSuffix: defaultCASDAFilenameSuffix,
			RadiusArcmin:   defaultCASDARadiusArcmin,
			RequestTimeout: defaultCASDARequestTimeout,
		},
		UnWISE: UnWISE{
			Enabled:        true,
			BaseURL:        defaultUnWISEBaseURL,
			Version:        defaultUnWISEVersion,
			Band:           defaultUnWISEBand,
			SizePixels:     defaultUnWISESizePixels,
			RequestTimeout: defaultUnWISERequestTimeout,
		},
		LegacySurvey: LegacySurvey{
			BaseURL:        defaultLegacyBaseURL,
			Layer:          defaultLegacyLayer,
			Band:           defaultLegacyBand,
			PixScale:       defaultLegacyPixScale,
			SizePixels:     defaultLegacySizePixels,
			RequestTimeout: defaultLegacyRequestTimeout,
		},
		TSMap: TSMap{
			Levels:   append([]float64(nil), defaultTSMapLevels...),
			Relative: true,
		},
		Compose: Compose{
			PanelSize: defaultPanelSize,
			PMin:      defaultPMin,
			PMax:      defaultPMax,
		},
		Monitor: Monitor{
			MaxPostsPerRun:       defaultMaxPostsPerRun,
			FirstRunLookbackDays: defaultFirstRunLookbackDays,
			DailyAt:              defaultDailyAt,
			Timezone:             defaultTimezone,
		},
		Voting: Voting{
			AGNThreshold:         defaultAGNThreshold,
			InterestingThreshold: defaultInterestingThreshold,
			StarThreshold:        defaultStarThreshold,
			JunkThreshold:        defaultJunkThreshold,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
