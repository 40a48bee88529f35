package checkpoint_test

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"mediasort/internal/checkpoint"
	"mediasort/internal/faults"
	"mediasort/internal/logging"
)

const checkpointPath = "/state/checkpoint.json"

func TestMarkDoneSurvivesReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	stamp := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	store, err := checkpoint.Open(fs, checkpointPath, logging.NewNop(), checkpoint.WithClock(func() time.Time { return stamp }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.IsDone("/in/a.jpg") {
		t.Fatal("fresh store should be empty")
	}
	store.MarkDone("/in/a.jpg")
	store.MarkDone("/in/a.jpg")
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded, err := checkpoint.Open(fs, checkpointPath, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reloaded.IsDone("/in/a.jpg") || reloaded.Len() != 1 {
		t.Fatalf("reloaded IsDone=%v Len=%d", reloaded.IsDone("/in/a.jpg"), reloaded.Len())
	}
}

func TestKeysAreUnicodeNormalized(t *testing.T) {
	store, err := checkpoint.Open(afero.NewMemMapFs(), checkpointPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	decomposed := "/in/cafe\u0301.jpg"
	composed := "/in/caf\u00e9.jpg"
	store.MarkDone(decomposed)
	if !store.IsDone(composed) {
		t.Fatal("expected NFD and NFC spellings to share one checkpoint entry")
	}
}

func TestReadOnlyStoreDoesNotPersist(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := checkpoint.Open(fs, checkpointPath, nil, checkpoint.ReadOnly())
	if err != nil {
		t.Fatal(err)
	}
	store.MarkDone("/in/a.jpg")
	if err := store.Flush(); err != nil {
		t.Fatal(err)
	}
	if exists, _ := afero.Exists(fs, checkpointPath); exists {
		t.Fatal("read-only store wrote its file")
	}
}

func TestOpenMalformedIsStateCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, checkpointPath, []byte(`{"version":1,"paths":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := checkpoint.Open(fs, checkpointPath, nil); !errors.Is(err, faults.ErrStateCorruption) {
		t.Fatalf("expected ErrStateCorruption, got %v", err)
	}
}
