package journal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mediasort/internal/journal"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	started := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := store.BeginRun(ctx, journal.Run{
		ID:        "5b0c9a4e-run",
		StartedAt: started,
		InputDir:  "/in",
		OutputDir: "/lib",
		Mode:      "archive",
	}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	outcomes := []journal.Outcome{
		{RunID: "5b0c9a4e-run", Source: "/in/a.jpg", Outcome: "unique", Digest: "aa", Destination: "/lib/2019/07/a.jpg"},
		{RunID: "5b0c9a4e-run", Source: "/in/b.jpg", Outcome: "duplicate", Digest: "aa", Destination: "/lib/_duplicates/2019/07/b.jpg"},
		{RunID: "5b0c9a4e-run", Source: "/in/c.jpg", Outcome: "hash_failure", Detail: "permission denied"},
	}
	for _, o := range outcomes {
		if err := store.RecordOutcome(ctx, o); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	counts := journal.Counts{Total: 3, Uniques: 1, Duplicates: 1, HashFailures: 1}
	if err := store.FinishRun(ctx, "5b0c9a4e-run", counts, journal.StatusCompleted); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Status != journal.StatusCompleted || run.Counts != counts || run.FinishedAt == nil {
		t.Fatalf("run = %+v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", run.StartedAt, started)
	}

	all, err := store.Outcomes(ctx, "5b0c9a4e-run")
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(all) != 3 || all[0].Seq != 1 || all[2].Seq != 3 {
		t.Fatalf("outcomes = %+v", all)
	}
	if all[0].Destination != "/lib/2019/07/a.jpg" || all[2].Digest != "" {
		t.Fatalf("unexpected outcome fields: %+v", all)
	}

	failures, err := store.Outcomes(ctx, "5b0c9a4e-run", "hash_failure", "move_failure")
	if err != nil {
		t.Fatalf("Outcomes filtered: %v", err)
	}
	if len(failures) != 1 || failures[0].Source != "/in/c.jpg" {
		t.Fatalf("failures = %+v", failures)
	}
}

func TestGetRunAcceptsUniquePrefix(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	for _, id := range []string{"abc-111", "abd-222"} {
		if err := store.BeginRun(ctx, journal.Run{ID: id, InputDir: "/in", OutputDir: "/lib", Mode: "archive"}); err != nil {
			t.Fatal(err)
		}
	}

	run, err := store.GetRun(ctx, "abc")
	if err != nil || run == nil || run.ID != "abc-111" {
		t.Fatalf("GetRun(abc) = %+v, %v", run, err)
	}
	if _, err := store.GetRun(ctx, "ab"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
	missing, err := store.GetRun(ctx, "zzz")
	if err != nil || missing != nil {
		t.Fatalf("GetRun(zzz) = %+v, %v", missing, err)
	}
}

func TestFinishUnknownRunFails(t *testing.T) {
	store := openStore(t)
	if err := store.FinishRun(context.Background(), "nope", journal.Counts{}, journal.StatusFailed); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BeginRun(ctx, journal.Run{ID: "r1", InputDir: "/in", OutputDir: "/lib", Mode: "seed"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.ListRuns(ctx, 0)
	if err != nil || len(runs) != 1 || runs[0].Status != journal.StatusRunning {
		t.Fatalf("runs = %+v, err=%v", runs, err)
	}
}
