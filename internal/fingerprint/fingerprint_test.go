package fingerprint_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"mediasort/internal/faults"
	"mediasort/internal/fingerprint"
)

func TestComputeMatchesKnownDigest(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/in/abc.jpg", []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := fingerprint.Compute(context.Background(), fs, "/in/abc.jpg")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got.String() != want {
		t.Fatalf("digest = %s, want %s", got, want)
	}
	if got != fingerprint.Bytes([]byte("abc")) {
		t.Fatal("Compute and Bytes disagree")
	}
	if err := fingerprint.Validate(got.String()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Short() != want[:12] {
		t.Fatalf("Short = %s", got.Short())
	}
}

func TestComputeSpansMultipleChunks(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := []byte(strings.Repeat("x", fingerprint.ChunkSize*2+17))
	if err := afero.WriteFile(fs, "/in/big.mov", payload, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := fingerprint.Compute(context.Background(), fs, "/in/big.mov")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != fingerprint.Bytes(payload) {
		t.Fatal("chunked digest differs from whole-buffer digest")
	}
}

func TestComputeMissingFileIsHashFailure(t *testing.T) {
	_, err := fingerprint.Compute(context.Background(), afero.NewMemMapFs(), "/in/missing.jpg")
	if !errors.Is(err, faults.ErrHashFailure) {
		t.Fatalf("expected ErrHashFailure, got %v", err)
	}
}

func TestComputeHonorsCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/in/a.jpg", []byte("a"), 0o644)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fingerprint.Compute(ctx, fs, "/in/a.jpg"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "abc", strings.Repeat("g", 64), strings.Repeat("A", 64)} {
		if err := fingerprint.Validate(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestPoolStreamPreservesOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	const count = 25
	for i := range count {
		path := fmt.Sprintf("/in/%02d.jpg", i)
		if err := afero.WriteFile(fs, path, []byte(path), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	pool, err := fingerprint.NewPool(fs, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Release()

	jobs := make(chan fingerprint.Job)
	go func() {
		defer close(jobs)
		for i := range count {
			jobs <- fingerprint.Job{Seq: i, Path: fmt.Sprintf("/in/%02d.jpg", i)}
		}
		jobs <- fingerprint.Job{Seq: count, Path: "/in/missing.jpg"}
	}()

	seq := 0
	for res := range pool.Stream(context.Background(), jobs) {
		if res.Seq != seq {
			t.Fatalf("result seq = %d, want %d", res.Seq, seq)
		}
		if seq == count {
			if !errors.Is(res.Err, faults.ErrHashFailure) {
				t.Fatalf("expected hash failure for missing file, got %v", res.Err)
			}
		} else {
			if res.Err != nil {
				t.Fatalf("unexpected error for %s: %v", res.Path, res.Err)
			}
			if res.Digest != fingerprint.Bytes([]byte(res.Path)) {
				t.Fatalf("digest mismatch for %s", res.Path)
			}
		}
		seq++
	}
	if seq != count+1 {
		t.Fatalf("received %d results, want %d", seq, count+1)
	}
}

func TestPoolStreamStopsAcceptingAfterCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/in/a.jpg", []byte("a"), 0o644)

	pool, err := fingerprint.NewPool(fs, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan fingerprint.Job)
	results := pool.Stream(ctx, jobs)

	jobs <- fingerprint.Job{Seq: 0, Path: "/in/a.jpg"}
	first := <-results
	if first.Err != nil {
		t.Fatalf("first result error: %v", first.Err)
	}
	cancel()

	// Channel must close without further jobs being consumed.
	for range results {
	}
}
