package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/ingest"
	"mediasort/internal/journal"
	"mediasort/internal/logging"
	"mediasort/internal/preflight"
	"mediasort/internal/runlock"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var opts ingest.Options

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fingerprint, deduplicate, and file media into the library",
		Long: "Walk the input directory (or an explicit list of files), hash every\n" +
			"supported photo and video, move first copies into YEAR/MM folders under the\n" +
			"output directory, and archive or delete later copies. Safe to re-run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if opts.InputDir == "" && opts.InputList == "" {
				opts.InputDir = cfg.Paths.InputDir
			}
			if opts.OutputDir == "" {
				opts.OutputDir = cfg.Paths.OutputDir
			}
			if !cmd.Flags().Changed("delete") {
				opts.Delete = cfg.Ingest.DeleteDuplicates
			}
			return runIngest(cmd, ctx, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.InputDir, "input-dir", "i", "", "Directory to ingest (default paths.input_dir)")
	flags.StringVarP(&opts.OutputDir, "output-dir", "o", "", "Library root (default paths.output_dir)")
	flags.BoolVarP(&opts.DryRun, "dry-run", "n", false, "Plan every action without changing files or state")
	flags.BoolVar(&opts.Delete, "delete", false, "Delete duplicates instead of archiving them")
	flags.BoolVar(&opts.DedupeOnly, "dedupe-only", false, "Only record fingerprints; never move or delete")
	flags.StringVar(&opts.InputList, "input-list", "", "Read candidate paths from this file instead of walking")
	flags.IntVar(&opts.Limit, "limit", 0, "Stop after hashing this many files (0 = no limit)")
	flags.IntVarP(&opts.Workers, "workers", "w", 0, "Hashing workers (default ingest.workers)")
	return cmd
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var library string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Index an existing library without moving anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if library == "" {
				library = cfg.Paths.OutputDir
			}
			return runIngest(cmd, ctx, cfg, ingest.Options{
				InputDir:   library,
				OutputDir:  library,
				DedupeOnly: true,
				DryRun:     dryRun,
			})
		},
	}
	cmd.Flags().StringVarP(&library, "library", "l", "", "Library root to index (default paths.output_dir)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Hash and report without saving the index")
	return cmd
}

func runIngest(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, opts ingest.Options) error {
	if err := ingest.CheckGuardrail(opts); err != nil {
		return err
	}

	if !opts.DryRun {
		if err := cfg.EnsureDirectories(); err != nil {
			return faults.Configuration("ensure directories", "", err)
		}
	}

	logger, logPath, err := ctx.runLogger(cfg, opts.DryRun)
	if err != nil {
		return err
	}

	inputRoot := opts.InputDir
	if inputRoot == "" {
		inputRoot = filepath.Dir(opts.InputList)
	}
	results := preflight.RunAll(preflight.Request{
		InputDir:   inputRoot,
		OutputDir:  opts.OutputDir,
		StateDir:   cfg.Paths.StateDir,
		MinFreeMiB: cfg.Ingest.MinFreeMiB,
		Mutating:   !opts.DryRun && !opts.DedupeOnly,
	})
	for _, r := range results {
		logger.Debug("preflight check", logging.String("check", r.Name), logging.Bool("passed", r.Passed), logging.String("detail", r.Detail))
	}
	if err := preflight.Err(results); err != nil {
		return err
	}

	// A dry run only reads the state files, so it neither takes the lock nor
	// creates the state directory to hold one.
	if !opts.DryRun {
		lock, err := runlock.Acquire(cfg.LockPath())
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	var envOpts []ingest.EnvOption
	if cfg.Ingest.Journal && !opts.DryRun {
		store, err := journal.Open(cfg.JournalPath())
		if err != nil {
			logging.WarnWithContext(logger, "run journal unavailable", "journal_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check journal.db permissions or set ingest.journal = false"),
				logging.String(logging.FieldImpact, "this run will not appear in history"),
			)
		} else {
			defer store.Close()
			envOpts = append(envOpts, ingest.WithJournal(store))
		}
	}

	env, err := ingest.NewEnv(cfg, afero.NewOsFs(), opts, logger, envOpts...)
	if err != nil {
		return err
	}
	tally, runErr := ingest.Run(cmd.Context(), env)

	out := cmd.OutOrStdout()
	if opts.DryRun {
		fmt.Fprintln(out, "Dry run: no files or state were changed")
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Outcome", "Count"},
		tallyRows(tally),
		[]columnAlignment{alignLeft, alignRight},
		shouldColorize(out),
	))
	fmt.Fprintln(out, tally.Summary())
	if env.Journal != nil {
		fmt.Fprintf(out, "Run %s\n", env.RunID)
	}
	if logPath != "" {
		fmt.Fprintf(out, "Log: %s\n", logPath)
	}
	return runErr
}

func tallyRows(t ingest.Tally) [][]string {
	return [][]string{
		{"Unique", strconv.Itoa(t.Uniques)},
		{"Duplicate", strconv.Itoa(t.Duplicates)},
		{"Hash failure", strconv.Itoa(t.HashFailures)},
		{"Move failure", strconv.Itoa(t.MoveFailures)},
		{"Delete failure", strconv.Itoa(t.DeleteFailures)},
		{"Skipped", strconv.Itoa(t.Skipped)},
		{"Total", strconv.Itoa(t.Total)},
	}
}
