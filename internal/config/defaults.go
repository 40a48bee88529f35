package config

const (
	defaultStateDir         = "~/.local/share/mediasort/state"
	defaultLogDir           = "~/.local/share/mediasort/logs"
	defaultLogRetentionDays = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultWorkers          = 4
	defaultFlushEvery       = 1
	defaultDuplicatesDir    = "_duplicates"
	defaultNoDateDir        = "_no_date"
	defaultMinFreeMiB       = 256
	maxWorkers              = 64
)

var defaultExcludeDirs = []string{"_duplicates", "_duplicates_bad"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Ingest: Ingest{
			Workers:       defaultWorkers,
			FlushEvery:    defaultFlushEvery,
			DuplicatesDir: defaultDuplicatesDir,
			NoDateDir:     defaultNoDateDir,
			ExcludeDirs:   append([]string(nil), defaultExcludeDirs...),
			MinFreeMiB:    defaultMinFreeMiB,
			Journal:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
