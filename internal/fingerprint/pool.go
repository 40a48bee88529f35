package fingerprint

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"

	"mediasort/internal/faults"
)

// Job is one file queued for hashing.
type Job struct {
	Seq  int
	Path string
}

// Result pairs a Job with its digest or hashing error.
type Result struct {
	Job
	Digest Digest
	Err    error
}

// Pool hashes files concurrently on a fixed-size ants pool while delivering
// results in submission order, so the first-seen file for a digest is stable
// across runs regardless of worker scheduling.
type Pool struct {
	fs      afero.Fs
	workers int
	pool    *ants.Pool
}

// NewPool creates a hashing pool with the given worker count.
func NewPool(fs afero.Fs, workers int) (*Pool, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create hash pool: %w", err)
	}
	return &Pool{fs: fs, workers: workers, pool: pool}, nil
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Release stops the underlying goroutine pool.
func (p *Pool) Release() {
	if p != nil && p.pool != nil {
		p.pool.Release()
	}
}

// Stream hashes every job received on jobs and emits one Result per job on the
// returned channel, in the order jobs were received. At most Workers() hashes
// are in flight. Once ctx is canceled no further jobs are accepted; jobs
// already in flight still produce a Result (typically carrying ctx.Err()).
// The returned channel is closed after the last Result.
func (p *Pool) Stream(ctx context.Context, jobs <-chan Job) <-chan Result {
	out := make(chan Result)
	pending := make(chan chan Result, p.workers)

	go func() {
		defer close(pending)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-jobs:
				if !ok {
					return
				}
				slot := make(chan Result, 1)
				pending <- slot
				if err := p.pool.Submit(func() {
					digest, err := Compute(ctx, p.fs, job.Path)
					slot <- Result{Job: job, Digest: digest, Err: err}
				}); err != nil {
					slot <- Result{Job: job, Err: faults.Wrap(faults.ErrHashFailure, "hash", "submit", job.Path, err)}
				}
			}
		}
	}()

	go func() {
		defer close(out)
		for slot := range pending {
			out <- <-slot
		}
	}()

	return out
}
