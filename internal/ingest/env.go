package ingest

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"mediasort/internal/checkpoint"
	"mediasort/internal/config"
	"mediasort/internal/dates"
	"mediasort/internal/index"
	"mediasort/internal/journal"
	"mediasort/internal/logging"
	"mediasort/internal/router"
	"mediasort/internal/scan"
)

// Env is the explicit context of one run: configuration, filesystem, open
// stores, and collaborators. Build it with NewEnv.
type Env struct {
	Config     *config.Config
	Options    Options
	FS         afero.Fs
	Index      *index.Index
	Checkpoint *checkpoint.Store
	Router     *router.Router
	Resolver   *dates.Resolver
	Scanner    *scan.Scanner
	// Journal is optional; it is ignored for dry runs.
	Journal *journal.Store
	Logger  *slog.Logger
	RunID   string
	// OnRecord, when set, observes every outcome after it is tallied.
	OnRecord func(Record)

	mu            sync.Mutex
	tally         Tally
	journalWarned bool
}

// EnvOption customizes NewEnv.
type EnvOption func(*envSettings)

type envSettings struct {
	journal  *journal.Store
	resolver []dates.Option
	runID    string
}

// WithJournal attaches a run journal.
func WithJournal(store *journal.Store) EnvOption {
	return func(s *envSettings) { s.journal = store }
}

// WithResolverOptions forwards options to the date resolver.
func WithResolverOptions(opts ...dates.Option) EnvOption {
	return func(s *envSettings) { s.resolver = append(s.resolver, opts...) }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) EnvOption {
	return func(s *envSettings) { s.runID = id }
}

// NewEnv validates opts, opens the index and checkpoint, and wires the run's
// collaborators over fs. Dry runs wrap fs read-only and open both stores
// without persistence, so nothing on disk can change.
func NewEnv(cfg *config.Config, fs afero.Fs, opts Options, logger *slog.Logger, envOpts ...EnvOption) (*Env, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ingest: config is required")
	}
	if err := CheckGuardrail(opts); err != nil {
		return nil, err
	}
	settings := envSettings{}
	for _, opt := range envOpts {
		opt(&settings)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if opts.DryRun {
		fs = afero.NewReadOnlyFs(fs)
	}

	var (
		indexOpts      []index.Option
		checkpointOpts []checkpoint.Option
	)
	if opts.DryRun {
		indexOpts = append(indexOpts, index.ReadOnly())
		checkpointOpts = append(checkpointOpts, checkpoint.ReadOnly())
	}

	idx, err := index.Open(fs, cfg.IndexPath(), logger, indexOpts...)
	if err != nil {
		return nil, err
	}
	cp, err := checkpoint.Open(fs, cfg.CheckpointPath(), logger, checkpointOpts...)
	if err != nil {
		return nil, err
	}

	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	opts.OutputDir = outputDir
	if opts.InputDir != "" {
		if opts.InputDir, err = filepath.Abs(opts.InputDir); err != nil {
			return nil, fmt.Errorf("resolve input dir: %w", err)
		}
	}

	runID := settings.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	rt := router.New(fs, router.Options{
		OutputDir:     outputDir,
		DuplicatesDir: cfg.Ingest.DuplicatesDir,
		NoDateDir:     cfg.Ingest.NoDateDir,
		Delete:        opts.Delete,
		DryRun:        opts.DryRun,
	}, logger)

	env := &Env{
		Config:     cfg,
		Options:    opts,
		FS:         fs,
		Index:      idx,
		Checkpoint: cp,
		Router:     rt,
		Resolver:   dates.NewResolver(fs, logger, settings.resolver...),
		Scanner:    scan.New(fs, logger),
		Logger:     logging.NewComponentLogger(logger, "ingest").With(logging.String(logging.FieldRunID, runID)),
		RunID:      runID,
	}
	if !opts.DryRun {
		env.Journal = settings.journal
	}
	return env, nil
}

// Tally returns a snapshot of the running counts.
func (e *Env) Tally() Tally {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tally
}

func (e *Env) workers() int {
	if e.Options.Workers > 0 {
		return e.Options.Workers
	}
	if e.Config.Ingest.Workers > 0 {
		return e.Config.Ingest.Workers
	}
	return 1
}

func (e *Env) flushEvery() int {
	if e.Config.Ingest.FlushEvery > 0 {
		return e.Config.Ingest.FlushEvery
	}
	return 1
}

func (e *Env) scanOptions() scan.Options {
	opts := scan.Options{
		Root:          e.Options.InputDir,
		ListFile:      e.Options.InputList,
		ExcludedNames: e.Config.ExcludedNames(),
	}
	if !e.Options.DedupeOnly {
		opts.Prune = []string{e.Options.OutputDir}
	}
	return opts
}
