package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mediasort/internal/faults"
	"mediasort/internal/fingerprint"
	"mediasort/internal/index"
	"mediasort/internal/journal"
	"mediasort/internal/logging"
	"mediasort/internal/router"
	"mediasort/internal/scan"
)

const progressEvery = 500

var errLimitReached = errors.New("file limit reached")

// Run processes every candidate once and returns the final tally.
//
// Cancellation of ctx stops new work between files, drains in-flight hashes
// without routing them, flushes both stores, and returns context.Canceled.
// Running it again over the same input is a no-op for handled files.
func Run(ctx context.Context, env *Env) (Tally, error) {
	if env == nil {
		return Tally{}, fmt.Errorf("ingest: env is required")
	}
	if err := CheckGuardrail(env.Options); err != nil {
		return Tally{}, err
	}

	started := time.Now()
	ctx = faults.WithRunID(ctx, env.RunID)
	logger := env.Logger
	logger.Info("ingest run started",
		logging.String("input_dir", env.Options.InputDir),
		logging.String("input_list", env.Options.InputList),
		logging.String("output_dir", env.Options.OutputDir),
		logging.String("mode", env.Options.Mode()),
		logging.Bool("dry_run", env.Options.DryRun),
		logging.Int("workers", env.workers()),
		logging.Int("index_entries", env.Index.Len()),
		logging.Int("checkpoint_entries", env.Checkpoint.Len()),
	)

	env.beginJournal(ctx, started)

	pool, err := fingerprint.NewPool(env.FS, env.workers())
	if err != nil {
		return Tally{}, err
	}
	defer pool.Release()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	jobs := make(chan fingerprint.Job)
	var (
		wg      sync.WaitGroup
		scanErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		scanErr = env.produce(runCtx, jobs)
	}()

	var fatalErr error
	completed := 0
	for res := range pool.Stream(runCtx, jobs) {
		if runCtx.Err() != nil {
			continue
		}
		if fatalErr = env.consume(runCtx, res); fatalErr != nil {
			cancelRun()
			continue
		}
		completed++
		if completed%env.flushEvery() == 0 {
			if err := env.flush(); err != nil {
				fatalErr = err
				cancelRun()
				continue
			}
		}
		if completed%progressEvery == 0 {
			logger.Info("ingest progress", logging.Int("completed", completed), logging.String("tally", env.Tally().Summary()))
		}
	}
	wg.Wait()

	flushErr := env.flush()
	tally := env.Tally()

	runErr := firstErr(fatalErr, flushErr)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr == nil && scanErr != nil && !errors.Is(scanErr, errLimitReached) && !errors.Is(scanErr, context.Canceled) {
		runErr = scanErr
	}

	env.finishJournal(tally, runErr)

	attrs := []logging.Attr{
		logging.String("summary", tally.Summary()),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	}
	switch {
	case errors.Is(runErr, context.Canceled):
		logger.Warn("ingest run interrupted; state flushed", logging.Args(attrs...)...)
	case runErr != nil:
		logging.ErrorWithContext(logger, "ingest run failed", "ingest_failed", append(attrs,
			logging.Error(runErr),
			logging.String("error_kind", faults.Kind(runErr)),
			logging.String(logging.FieldErrorHint, failureHint(runErr)),
			logging.String(logging.FieldImpact, "run stopped; files already routed stay recorded, the rest are retried next run"),
		)...)
	default:
		logger.Info("ingest run finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "ingest_summary"))...)...)
	}
	return tally, runErr
}

// produce walks candidates, records skips, and feeds hash jobs until the
// walk ends, the limit is reached, or ctx is canceled.
func (e *Env) produce(ctx context.Context, jobs chan<- fingerprint.Job) error {
	seq := 0
	return e.Scanner.Each(ctx, e.scanOptions(), func(c scan.Candidate) error {
		if c.Excluded {
			e.record(ctx, Record{Source: c.Path, Kind: KindSkipped, Reason: SkipExcluded})
			return nil
		}
		if !e.Options.DedupeOnly && e.Checkpoint.IsDone(c.Key) {
			e.record(ctx, Record{Source: c.Path, Kind: KindSkipped, Reason: SkipCheckpoint})
			return nil
		}
		if e.Options.Limit > 0 && seq >= e.Options.Limit {
			return errLimitReached
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case jobs <- fingerprint.Job{Seq: seq, Path: c.Path}:
			seq++
			return nil
		}
	})
}

// consume classifies and routes one hashed file. Only errors that must abort
// the run are returned; per-file failures become records.
func (e *Env) consume(ctx context.Context, res fingerprint.Result) error {
	ctx = faults.WithSourcePath(ctx, res.Path)
	if res.Err != nil {
		if errors.Is(res.Err, context.Canceled) {
			return nil
		}
		e.record(ctx, Record{Source: res.Path, Kind: KindHashFailure, Err: res.Err})
		return nil
	}

	claim, err := e.Index.Claim(res.Digest, res.Path)
	if err != nil {
		e.record(ctx, Record{Source: res.Path, Kind: KindMoveFailure, Digest: res.Digest,
			Err: faults.Wrap(faults.ErrMoveFailure, "classify", "check canonical", res.Path, err)})
		return nil
	}

	if e.Options.DedupeOnly {
		rec := Record{Source: res.Path, Kind: KindUnique, Digest: res.Digest, Canonical: claim.Canonical}
		if claim.Verdict == index.Duplicate {
			rec.Kind = KindDuplicate
		}
		e.record(ctx, rec)
		return nil
	}

	duplicate := claim.Verdict == index.Duplicate
	bucket := e.Resolver.Resolve(res.Path)
	result, routeErr := e.Router.Route(faults.WithStage(ctx, "route"), router.Request{
		Source:    res.Path,
		Duplicate: duplicate,
		Bucket:    bucket,
	})

	if routeErr != nil {
		kind := KindMoveFailure
		if errors.Is(routeErr, faults.ErrDeleteFailure) {
			kind = KindDeleteFailure
		}
		if !duplicate {
			e.Index.Release(res.Digest, claim)
		}
		e.record(ctx, Record{Source: res.Path, Kind: kind, Digest: res.Digest, Err: routeErr})
		return nil
	}

	if !duplicate && !result.DryRun {
		if result.Destination != res.Path {
			if err := e.Index.Relocate(res.Digest, res.Path, result.Destination); err != nil {
				return fmt.Errorf("record canonical destination: %w", err)
			}
		}
		// The moved file is now the only copy the index can point at; a crash
		// before the next batch flush must not forget it.
		if err := e.Index.Flush(); err != nil {
			return err
		}
	}
	e.Checkpoint.MarkDone(res.Path)

	rec := Record{
		Source:      res.Path,
		Kind:        KindUnique,
		Digest:      res.Digest,
		Action:      result.Action,
		Destination: result.Destination,
	}
	if duplicate {
		rec.Kind = KindDuplicate
		rec.Canonical = claim.Canonical
	}
	e.record(ctx, rec)
	return nil
}

func (e *Env) flush() error {
	if err := e.Index.Flush(); err != nil {
		return err
	}
	return e.Checkpoint.Flush()
}

func (e *Env) record(ctx context.Context, rec Record) {
	e.mu.Lock()
	e.tally.Add(rec)
	e.mu.Unlock()

	logger := logging.WithContext(faults.WithSourcePath(ctx, rec.Source), e.Logger)
	switch rec.Kind {
	case KindHashFailure, KindMoveFailure, KindDeleteFailure:
		logging.WarnWithContext(logger, "file not processed; will retry next run", string(rec.Kind),
			logging.Error(rec.Err),
			logging.String("error_kind", faults.Kind(rec.Err)),
			logging.String(logging.FieldErrorHint, "check permissions and free space, then re-run"),
			logging.String(logging.FieldImpact, "file left in place and not checkpointed"),
		)
	case KindSkipped:
		logger.Debug("file skipped", logging.String("reason", string(rec.Reason)))
	default:
		attrs := []logging.Attr{
			logging.String("outcome", string(rec.Kind)),
			logging.String("digest", rec.Digest.Short()),
		}
		if rec.Action != "" {
			attrs = append(attrs, logging.String("action", string(rec.Action)))
		}
		if rec.Destination != "" {
			attrs = append(attrs, logging.String("destination", rec.Destination))
		}
		if rec.Canonical != "" && rec.Kind == KindDuplicate {
			attrs = append(attrs, logging.String("canonical", rec.Canonical))
		}
		logger.Info("file classified", logging.Args(attrs...)...)
	}

	e.journalOutcome(ctx, rec)
	if e.OnRecord != nil {
		e.OnRecord(rec)
	}
}

func (e *Env) beginJournal(ctx context.Context, started time.Time) {
	if e.Journal == nil {
		return
	}
	err := e.Journal.BeginRun(context.WithoutCancel(ctx), journal.Run{
		ID:        e.RunID,
		StartedAt: started,
		InputDir:  firstNonEmpty(e.Options.InputDir, e.Options.InputList),
		OutputDir: e.Options.OutputDir,
		Mode:      e.Options.Mode(),
	})
	if err != nil {
		e.journalFailed(err)
	}
}

func (e *Env) journalOutcome(ctx context.Context, rec Record) {
	e.mu.Lock()
	disabled := e.Journal == nil || e.journalWarned
	e.mu.Unlock()
	if disabled {
		return
	}
	err := e.Journal.RecordOutcome(context.WithoutCancel(ctx), journal.Outcome{
		RunID:       e.RunID,
		Source:      rec.Source,
		Outcome:     string(rec.Kind),
		Digest:      string(rec.Digest),
		Destination: rec.Destination,
		Detail:      rec.Detail(),
	})
	if err != nil {
		e.journalFailed(err)
	}
}

func (e *Env) finishJournal(tally Tally, runErr error) {
	e.mu.Lock()
	disabled := e.Journal == nil || e.journalWarned
	e.mu.Unlock()
	if disabled {
		return
	}
	status := journal.StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled):
		status = journal.StatusInterrupted
	case runErr != nil:
		status = journal.StatusFailed
	}
	if err := e.Journal.FinishRun(context.Background(), e.RunID, tally.Counts(), status); err != nil {
		e.journalFailed(err)
	}
}

// journalFailed warns once and stops further journal writes for this run.
func (e *Env) journalFailed(err error) {
	e.mu.Lock()
	already := e.journalWarned
	e.journalWarned = true
	e.mu.Unlock()
	if already {
		return
	}
	logging.WarnWithContext(e.Logger, "run journal write failed; history disabled for this run", "journal_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check journal.db permissions or delete it to start fresh"),
		logging.String(logging.FieldImpact, "run history incomplete; ingest results unaffected"),
	)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, faults.ErrConfiguration):
		return "fix the input/output paths or config and re-run"
	case errors.Is(err, faults.ErrStateCorruption):
		return "inspect or remove the state files, then re-seed with `mediasort seed`"
	default:
		return "check free space and permissions on the state directory, then re-run"
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
