package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Workers <= 0 || c.Ingest.Workers > maxWorkers {
		return fmt.Errorf("ingest.workers must be between 1 and %d", maxWorkers)
	}
	if c.Ingest.FlushEvery <= 0 {
		return errors.New("ingest.flush_every must be positive")
	}
	if !isSingleSegment(c.Ingest.DuplicatesDir) {
		return fmt.Errorf("ingest.duplicates_dir must be a single directory name, got %q", c.Ingest.DuplicatesDir)
	}
	if !isSingleSegment(c.Ingest.NoDateDir) {
		return fmt.Errorf("ingest.no_date_dir must be a single directory name, got %q", c.Ingest.NoDateDir)
	}
	if strings.EqualFold(c.Ingest.DuplicatesDir, c.Ingest.NoDateDir) {
		return errors.New("ingest.duplicates_dir and ingest.no_date_dir must differ")
	}
	if c.Ingest.MinFreeMiB < 0 {
		return errors.New("ingest.min_free_mib must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
