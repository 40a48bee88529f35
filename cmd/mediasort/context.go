package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/logging"
)

type commandContext struct {
	configFlag *string
	verbose    *bool
	logFile    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool, logFile *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
		logFile:    logFile,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = faults.Configuration("load config", c.configPath(), err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runLogger builds the logger for a run and prunes expired run logs. Dry runs
// log to stderr (and an explicit --log-file) only and leave the log directory alone.
func (c *commandContext) runLogger(cfg *config.Config, dryRun bool) (*slog.Logger, string, error) {
	opts := logging.RunOptions{SkipRunLog: dryRun}
	if c.verbose != nil {
		opts.Verbose = *c.verbose
	}
	if c.logFile != nil {
		opts.LogFile = strings.TrimSpace(*c.logFile)
	}
	logger, logPath, err := logging.NewFromConfig(cfg, opts)
	if err != nil {
		return nil, "", faults.Configuration("init logging", "", err)
	}
	if cfg.Paths.LogDir != "" && !dryRun {
		logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)
	}
	return logger, logPath, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
