package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("MEDIASORT_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("MEDIASORT_LOG_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.LogDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.InputDir, err = expandPath(strings.TrimSpace(c.Paths.InputDir)); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIngest() {
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = defaultWorkers
	}
	if c.Ingest.FlushEvery <= 0 {
		c.Ingest.FlushEvery = defaultFlushEvery
	}
	c.Ingest.DuplicatesDir = strings.TrimSpace(c.Ingest.DuplicatesDir)
	if c.Ingest.DuplicatesDir == "" {
		c.Ingest.DuplicatesDir = defaultDuplicatesDir
	}
	c.Ingest.NoDateDir = strings.TrimSpace(c.Ingest.NoDateDir)
	if c.Ingest.NoDateDir == "" {
		c.Ingest.NoDateDir = defaultNoDateDir
	}
	if c.Ingest.MinFreeMiB < 0 {
		c.Ingest.MinFreeMiB = 0
	}

	dirs := make([]string, 0, len(c.Ingest.ExcludeDirs))
	seen := make(map[string]struct{}, len(c.Ingest.ExcludeDirs))
	for _, dir := range c.Ingest.ExcludeDirs {
		normalized := strings.ToLower(strings.TrimSpace(dir))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		dirs = append(dirs, normalized)
	}
	if len(dirs) == 0 {
		dirs = append(dirs, defaultExcludeDirs...)
	}
	c.Ingest.ExcludeDirs = dirs
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// isSingleSegment reports whether name is a plain directory name with no separators.
func isSingleSegment(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
