package statefile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"mediasort/internal/faults"
	"mediasort/internal/statefile"
)

type doc struct {
	Version int               `json:"version"`
	Items   map[string]string `json:"items"`
}

func TestSaveThenLoadRoundTripsOnDisk(t *testing.T) {
	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := doc{Version: 1, Items: map[string]string{"a": "b"}}
	if err := statefile.Save(fs, path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out doc
	found, err := statefile.Load(fs, path, &out)
	if err != nil || !found {
		t.Fatalf("Load found=%v err=%v", found, err)
	}
	if out.Items["a"] != "b" || out.Version != 1 {
		t.Fatalf("unexpected document %+v", out)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the state file, got %d entries (temp file left behind?)", len(entries))
	}
}

func TestLoadMissingOrEmptyIsNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	var out doc
	found, err := statefile.Load(fs, "/state/missing.json", &out)
	if err != nil || found {
		t.Fatalf("missing: found=%v err=%v", found, err)
	}
	if err := afero.WriteFile(fs, "/state/empty.json", nil, 0o644); err != nil {
		t.Fatal(err)
	}
	found, err = statefile.Load(fs, "/state/empty.json", &out)
	if err != nil || found {
		t.Fatalf("empty: found=%v err=%v", found, err)
	}
}

func TestLoadMalformedIsStateCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/state/bad.json", []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out doc
	_, err := statefile.Load(fs, "/state/bad.json", &out)
	if !errors.Is(err, faults.ErrStateCorruption) {
		t.Fatalf("expected ErrStateCorruption, got %v", err)
	}
}

func TestSaveOnReadOnlyFsFails(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	if err := statefile.Save(fs, "/state/x.json", doc{}); err == nil {
		t.Fatal("expected error writing through read-only fs")
	}
}
