package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"mediasort/internal/checkpoint"
	"mediasort/internal/config"
	"mediasort/internal/dates"
	"mediasort/internal/faults"
	"mediasort/internal/fingerprint"
	"mediasort/internal/index"
	"mediasort/internal/ingest"
	"mediasort/internal/journal"
	"mediasort/internal/logging"
	"mediasort/internal/testsupport"
)

var (
	may2022 = time.Date(2022, time.May, 15, 12, 0, 0, 0, time.UTC)
	jan2021 = time.Date(2021, time.January, 15, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	cfg     *config.Config
	inbox   string
	library string
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := os.MkdirAll(cfg.Paths.InputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return fixture{cfg: cfg, inbox: cfg.Paths.InputDir, library: cfg.Paths.OutputDir}
}

func (f fixture) write(t *testing.T, rel, payload string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(f.inbox, rel)
	testsupport.WriteContent(t, path, payload)
	testsupport.SetModTime(t, path, mtime)
	return path
}

func (f fixture) options() ingest.Options {
	return ingest.Options{InputDir: f.inbox, OutputDir: f.library}
}

func (f fixture) run(t *testing.T, fs afero.Fs, opts ingest.Options, envOpts ...ingest.EnvOption) (*ingest.Env, ingest.Tally, error) {
	t.Helper()
	envOpts = append([]ingest.EnvOption{ingest.WithResolverOptions(dates.WithLocation(time.UTC))}, envOpts...)
	env, err := ingest.NewEnv(f.cfg, fs, opts, logging.NewNop(), envOpts...)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	tally, err := ingest.Run(context.Background(), env)
	return env, tally, err
}

func (f fixture) openIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open(afero.NewOsFs(), f.cfg.IndexPath(), logging.NewNop())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return idx
}

func (f fixture) openCheckpoint(t *testing.T) *checkpoint.Store {
	t.Helper()
	cp, err := checkpoint.Open(afero.NewOsFs(), f.cfg.CheckpointPath(), logging.NewNop())
	if err != nil {
		t.Fatalf("open checkpoint: %v", err)
	}
	return cp
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected %s to be absent, stat err=%v", path, err)
	}
}

func TestRunArchivesDuplicates(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "same bytes", may2022)
	f.write(t, "sub/b.jpg", "same bytes", may2022)
	f.write(t, "c.jpg", "other bytes", jan2021)

	_, tally, err := f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := ingest.Tally{Total: 3, Uniques: 2, Duplicates: 1}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}

	canonical := filepath.Join(f.library, "2022", "05", "a.jpg")
	assertExists(t, canonical)
	assertExists(t, filepath.Join(f.library, "2021", "01", "c.jpg"))
	assertExists(t, filepath.Join(f.library, "_duplicates", "2022", "05", "b.jpg"))
	assertMissing(t, filepath.Join(f.inbox, "a.jpg"))
	assertMissing(t, filepath.Join(f.inbox, "sub", "b.jpg"))

	idx := f.openIndex(t)
	if got, ok := idx.Lookup(fingerprint.Bytes([]byte("same bytes"))); !ok || got != canonical {
		t.Fatalf("index canonical = %q, %v; want %q", got, ok, canonical)
	}
	if idx.Len() != 2 {
		t.Fatalf("index len = %d, want 2", idx.Len())
	}
	cp := f.openCheckpoint(t)
	if cp.Len() != 3 || !cp.IsDone(filepath.Join(f.inbox, "sub", "b.jpg")) {
		t.Fatalf("checkpoint len = %d", cp.Len())
	}
	if got := tally.Summary(); got != "Total: 3 | Uniques: 2 | Duplicates: 1 | HashFails: 0 | MoveFails: 0 | DeleteFails: 0 | Skipped: 0" {
		t.Fatalf("summary = %q", got)
	}
}

func TestRunDeleteModeRemovesDuplicates(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "same bytes", may2022)
	dup := f.write(t, "b.jpg", "same bytes", may2022)

	opts := f.options()
	opts.Delete = true
	_, tally, err := f.run(t, afero.NewOsFs(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Uniques != 1 || tally.Duplicates != 1 {
		t.Fatalf("tally = %+v", tally)
	}
	assertMissing(t, dup)
	assertMissing(t, filepath.Join(f.library, "_duplicates"))
	assertExists(t, filepath.Join(f.library, "2022", "05", "a.jpg"))
}

func TestRunSkipsCheckpointedPaths(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "first", may2022)
	if _, _, err := f.run(t, afero.NewOsFs(), f.options()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A new file landing on an already handled path is left alone.
	again := f.write(t, "a.jpg", "second", may2022)
	_, tally, err := f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	want := ingest.Tally{Total: 1, Skipped: 1}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}
	assertExists(t, again)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "one", may2022)
	f.write(t, "b.jpg", "one", may2022)
	if _, _, err := f.run(t, afero.NewOsFs(), f.options()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := os.ReadFile(f.cfg.IndexPath())
	if err != nil {
		t.Fatal(err)
	}

	_, tally, err := f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if tally.Uniques != 0 || tally.Duplicates != 0 || tally.Failures() != 0 {
		t.Fatalf("second run changed files: %+v", tally)
	}
	after, err := os.ReadFile(f.cfg.IndexPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("index changed on rerun")
	}
}

func TestRunHealsStaleCanonical(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "photo", may2022)
	if _, _, err := f.run(t, afero.NewOsFs(), f.options()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	canonical := filepath.Join(f.library, "2022", "05", "a.jpg")
	if err := os.Remove(canonical); err != nil {
		t.Fatal(err)
	}

	f.write(t, "again.jpg", "photo", may2022)
	_, tally, err := f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if tally.Uniques != 1 || tally.Duplicates != 0 {
		t.Fatalf("tally = %+v, want the copy to become canonical", tally)
	}
	healed := filepath.Join(f.library, "2022", "05", "again.jpg")
	assertExists(t, healed)
	if got, _ := f.openIndex(t).Lookup(fingerprint.Bytes([]byte("photo"))); got != healed {
		t.Fatalf("index canonical = %q, want %q", got, healed)
	}
}

func TestNewEnvRejectsInputEqualOutput(t *testing.T) {
	f := newFixture(t)
	src := f.write(t, "a.jpg", "x", may2022)

	opts := ingest.Options{InputDir: f.inbox, OutputDir: f.inbox + string(filepath.Separator)}
	_, err := ingest.NewEnv(f.cfg, afero.NewOsFs(), opts, logging.NewNop())
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
	if faults.ExitCode(err) != faults.ExitConfiguration {
		t.Fatalf("exit code = %d", faults.ExitCode(err))
	}
	assertExists(t, src)
	assertMissing(t, f.cfg.IndexPath())
	assertMissing(t, f.cfg.CheckpointPath())
}

func TestRunDryRunChangesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.jpg", "same", may2022)
	b := f.write(t, "b.jpg", "same", may2022)
	c := f.write(t, "c.jpg", "same name elsewhere", may2022)
	d := f.write(t, "sub/c.jpg", "different content", may2022)

	var planned []string
	opts := f.options()
	opts.DryRun = true
	env, err := ingest.NewEnv(f.cfg, afero.NewOsFs(), opts, logging.NewNop(),
		ingest.WithResolverOptions(dates.WithLocation(time.UTC)))
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	env.OnRecord = func(rec ingest.Record) { planned = append(planned, rec.Destination) }
	tally, err := ingest.Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Uniques != 3 || tally.Duplicates != 1 {
		t.Fatalf("tally = %+v", tally)
	}
	for _, p := range []string{a, b, c, d} {
		assertExists(t, p)
	}
	assertMissing(t, f.library)
	assertMissing(t, f.cfg.IndexPath())
	assertMissing(t, f.cfg.CheckpointPath())

	seen := map[string]bool{}
	for _, dest := range planned {
		if dest == "" || seen[dest] {
			t.Fatalf("planned destinations not distinct: %v", planned)
		}
		seen[dest] = true
	}
}

func TestRunBucketsByEXIFThenModTime(t *testing.T) {
	f := newFixture(t)
	tif := filepath.Join(f.inbox, "scan.tif")
	testsupport.WriteEXIFTIFF(t, tif, time.Date(2019, time.March, 14, 10, 0, 0, 0, time.Local), "")
	testsupport.SetModTime(t, tif, may2022)
	f.write(t, "clip.mp4", "video", time.Unix(0, 0))

	_, tally, err := f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Uniques != 2 {
		t.Fatalf("tally = %+v", tally)
	}
	assertExists(t, filepath.Join(f.library, "2019", "03", "scan.tif"))
	assertExists(t, filepath.Join(f.library, "_no_date", "clip.mp4"))
}

func TestRunResolvesNameCollisions(t *testing.T) {
	f := newFixture(t)
	f.write(t, "x/a.jpg", "first", may2022)
	f.write(t, "y/a.jpg", "second", may2022)

	if _, _, err := f.run(t, afero.NewOsFs(), f.options()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertExists(t, filepath.Join(f.library, "2022", "05", "a.jpg"))
	assertExists(t, filepath.Join(f.library, "2022", "05", "a_1.jpg"))
}

func TestSeedThenIngestArchivesKnownContent(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteContent(t, filepath.Join(f.library, "2020", "01", "p.jpg"), "library photo")
	testsupport.WriteContent(t, filepath.Join(f.library, "2020", "02", "q.jpg"), "library photo")

	seed := ingest.Options{InputDir: f.library, OutputDir: f.library, DedupeOnly: true}
	_, tally, err := f.run(t, afero.NewOsFs(), seed)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if tally.Uniques != 1 || tally.Duplicates != 1 {
		t.Fatalf("seed tally = %+v", tally)
	}
	assertExists(t, filepath.Join(f.library, "2020", "02", "q.jpg"))
	assertMissing(t, f.cfg.CheckpointPath())

	f.write(t, "copy.jpg", "library photo", may2022)
	_, tally, err = f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if tally.Duplicates != 1 {
		t.Fatalf("ingest tally = %+v", tally)
	}
	assertExists(t, filepath.Join(f.library, "_duplicates", "2022", "05", "copy.jpg"))
}

func TestRunHonorsLimit(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "1", may2022)
	f.write(t, "b.jpg", "2", may2022)
	last := f.write(t, "c.jpg", "3", may2022)

	opts := f.options()
	opts.Limit = 2
	_, tally, err := f.run(t, afero.NewOsFs(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Total != 2 || tally.Uniques != 2 {
		t.Fatalf("tally = %+v", tally)
	}
	assertExists(t, last)
}

func TestRunFromInputList(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "a", may2022)
	c := f.write(t, "deep/c.jpg", "c", may2022)
	f.write(t, "_duplicates/z.jpg", "z", may2022)
	f.write(t, "ignored.jpg", "not listed", may2022)

	list := filepath.Join(f.inbox, "files.txt")
	testsupport.WriteContent(t, list, "# picked by hand\na.jpg\n"+c+"\n\n_duplicates/z.jpg\nmissing.jpg\na.jpg\n")

	opts := ingest.Options{InputList: list, OutputDir: f.library}
	_, tally, err := f.run(t, afero.NewOsFs(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := ingest.Tally{Total: 3, Uniques: 2, Skipped: 1}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}
	assertExists(t, filepath.Join(f.inbox, "ignored.jpg"))
	assertExists(t, filepath.Join(f.inbox, "_duplicates", "z.jpg"))
}

// renameFailFs refuses to rename media files so routing fails while state
// files still save.
type renameFailFs struct{ afero.Fs }

func (r renameFailFs) Rename(oldname, newname string) error {
	if filepath.Ext(oldname) == ".jpg" {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
	}
	return r.Fs.Rename(oldname, newname)
}

func TestRunMoveFailureLeavesFileUnmarked(t *testing.T) {
	f := newFixture(t)
	src := f.write(t, "a.jpg", "stuck", may2022)

	_, tally, err := f.run(t, renameFailFs{afero.NewOsFs()}, f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := ingest.Tally{Total: 1, MoveFailures: 1}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}
	assertExists(t, src)
	if f.openCheckpoint(t).IsDone(src) {
		t.Fatal("failed file must not be checkpointed")
	}
	if _, ok := f.openIndex(t).Lookup(fingerprint.Bytes([]byte("stuck"))); ok {
		t.Fatal("failed unique must not stay in the index")
	}

	// The retry succeeds once the filesystem cooperates.
	_, tally, err = f.run(t, afero.NewOsFs(), f.options())
	if err != nil || tally.Uniques != 1 {
		t.Fatalf("retry tally = %+v, err=%v", tally, err)
	}
}

func TestRunCancellationFlushesState(t *testing.T) {
	f := newFixture(t, testsupport.WithWorkers(1), testsupport.WithFlushEvery(1000))
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"} {
		f.write(t, name, name+string(rune('0'+i)), may2022)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env, err := ingest.NewEnv(f.cfg, afero.NewOsFs(), f.options(), logging.NewNop(),
		ingest.WithResolverOptions(dates.WithLocation(time.UTC)))
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	var first string
	env.OnRecord = func(rec ingest.Record) {
		if first == "" {
			first = rec.Source
			cancel()
		}
	}
	tally, err := ingest.Run(ctx, env)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if faults.ExitCode(err) != faults.ExitInterrupted {
		t.Fatalf("exit code = %d", faults.ExitCode(err))
	}
	if tally.Total < 1 || tally.Total >= 5 {
		t.Fatalf("tally = %+v", tally)
	}

	cp := f.openCheckpoint(t)
	if !cp.IsDone(first) {
		t.Fatalf("checkpoint missing %s after interrupt", first)
	}
	if cp.Len() != tally.Uniques+tally.Duplicates {
		t.Fatalf("checkpoint len = %d, tally = %+v", cp.Len(), tally)
	}
}

func TestRunWritesJournal(t *testing.T) {
	f := newFixture(t, testsupport.WithJournal(true))
	f.write(t, "a.jpg", "j", may2022)
	f.write(t, "b.jpg", "j", may2022)
	store := testsupport.MustOpenJournal(t, f.cfg)

	env, tally, err := f.run(t, afero.NewOsFs(), f.options(), ingest.WithJournal(store))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ctx := context.Background()
	run, err := store.GetRun(ctx, env.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun = %v, %v", run, err)
	}
	if run.Status != journal.StatusCompleted || run.Counts != tally.Counts() || run.Mode != "archive" {
		t.Fatalf("run = %+v, tally = %+v", run, tally)
	}
	outcomes, err := store.Outcomes(ctx, env.RunID)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 2 || outcomes[1].Outcome != string(ingest.KindDuplicate) {
		t.Fatalf("outcomes = %+v", outcomes)
	}
}

func TestRunSavesIndexBeforeNextFileWhenBatching(t *testing.T) {
	f := newFixture(t, testsupport.WithFlushEvery(1000), testsupport.WithWorkers(1))
	f.write(t, "a.jpg", "first", may2022)
	f.write(t, "b.jpg", "second", jan2021)
	f.write(t, "c.jpg", "first", may2022)

	env, err := ingest.NewEnv(f.cfg, afero.NewOsFs(), f.options(), logging.NewNop(),
		ingest.WithResolverOptions(dates.WithLocation(time.UTC)))
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	var checked int
	env.OnRecord = func(rec ingest.Record) {
		if rec.Kind != ingest.KindUnique {
			return
		}
		checked++
		idx, err := index.Open(afero.NewOsFs(), f.cfg.IndexPath(), logging.NewNop())
		if err != nil {
			t.Errorf("open index during run: %v", err)
			return
		}
		got, ok := idx.Lookup(rec.Digest)
		if !ok || got != rec.Destination {
			t.Errorf("index on disk for %s = %q, %v; want %q", rec.Source, got, ok, rec.Destination)
		}
	}
	tally, err := ingest.Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if checked != 2 || tally.Duplicates != 1 {
		t.Fatalf("checked %d uniques, tally = %+v", checked, tally)
	}
}

// openFailFs cannot open files named bad.jpg, so hashing them fails.
type openFailFs struct{ afero.Fs }

func (o openFailFs) Open(name string) (afero.File, error) {
	if filepath.Base(name) == "bad.jpg" {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return o.Fs.Open(name)
}

func TestRunHashFailureIsCountedAndRetried(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "good", may2022)
	bad := f.write(t, "bad.jpg", "unreadable for now", may2022)
	f.write(t, "c.jpg", "also good", jan2021)

	_, tally, err := f.run(t, openFailFs{afero.NewOsFs()}, f.options())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := ingest.Tally{Total: 3, Uniques: 2, HashFailures: 1}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}
	assertExists(t, bad)
	assertExists(t, filepath.Join(f.library, "2022", "05", "a.jpg"))
	assertExists(t, filepath.Join(f.library, "2021", "01", "c.jpg"))
	if f.openCheckpoint(t).IsDone(bad) {
		t.Fatal("hash failure must not be checkpointed")
	}

	_, tally, err = f.run(t, afero.NewOsFs(), f.options())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	want = ingest.Tally{Total: 1, Uniques: 1}
	if tally != want {
		t.Fatalf("retry tally = %+v, want %+v", tally, want)
	}
	assertExists(t, filepath.Join(f.library, "2022", "05", "bad.jpg"))
	if !f.openCheckpoint(t).IsDone(bad) {
		t.Fatal("retried file should be checkpointed")
	}
}

func TestRunSkipsFilesWhenInputRootIsExcluded(t *testing.T) {
	f := newFixture(t)
	archived := f.write(t, "_duplicates/2022/05/b.jpg", "archived copy", may2022)

	opts := f.options()
	opts.InputDir = filepath.Join(f.inbox, "_duplicates")
	_, tally, err := f.run(t, afero.NewOsFs(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := ingest.Tally{Total: 1, Skipped: 1}
	if tally != want {
		t.Fatalf("tally = %+v, want %+v", tally, want)
	}
	assertExists(t, archived)
	assertMissing(t, f.library)
}
