package ingest

import (
	"fmt"

	"mediasort/internal/fingerprint"
	"mediasort/internal/journal"
	"mediasort/internal/router"
)

// Kind tags the single outcome recorded for a file.
type Kind string

const (
	KindUnique        Kind = "unique"
	KindDuplicate     Kind = "duplicate"
	KindHashFailure   Kind = "hash_failure"
	KindMoveFailure   Kind = "move_failure"
	KindDeleteFailure Kind = "delete_failure"
	KindSkipped       Kind = "skipped"
)

// FailureKinds lists the outcome kinds that count as failures.
var FailureKinds = []Kind{KindHashFailure, KindMoveFailure, KindDeleteFailure}

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	SkipExcluded   SkipReason = "excluded"
	SkipCheckpoint SkipReason = "checkpoint"
)

// Record is the outcome of one candidate file.
type Record struct {
	Source      string
	Kind        Kind
	Reason      SkipReason
	Digest      fingerprint.Digest
	Action      router.Action
	Destination string
	// Canonical is the existing owner of the content for duplicates.
	Canonical string
	Err       error
}

// Detail is a one-line description for logs and the journal.
func (r Record) Detail() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.Kind == KindSkipped:
		return string(r.Reason)
	case r.Kind == KindDuplicate && r.Canonical != "":
		return "duplicate of " + r.Canonical
	default:
		return string(r.Action)
	}
}

// Tally counts outcomes over a run.
type Tally struct {
	Total          int
	Uniques        int
	Duplicates     int
	HashFailures   int
	MoveFailures   int
	DeleteFailures int
	Skipped        int
}

// Add counts one record.
func (t *Tally) Add(rec Record) {
	t.Total++
	switch rec.Kind {
	case KindUnique:
		t.Uniques++
	case KindDuplicate:
		t.Duplicates++
	case KindHashFailure:
		t.HashFailures++
	case KindMoveFailure:
		t.MoveFailures++
	case KindDeleteFailure:
		t.DeleteFailures++
	case KindSkipped:
		t.Skipped++
	}
}

// Failures returns the number of per-file failures.
func (t Tally) Failures() int {
	return t.HashFailures + t.MoveFailures + t.DeleteFailures
}

// Summary renders the end-of-run line.
func (t Tally) Summary() string {
	return fmt.Sprintf("Total: %d | Uniques: %d | Duplicates: %d | HashFails: %d | MoveFails: %d | DeleteFails: %d | Skipped: %d",
		t.Total, t.Uniques, t.Duplicates, t.HashFailures, t.MoveFailures, t.DeleteFailures, t.Skipped)
}

// Counts converts the tally for the run journal.
func (t Tally) Counts() journal.Counts {
	return journal.Counts{
		Total:          t.Total,
		Uniques:        t.Uniques,
		Duplicates:     t.Duplicates,
		HashFailures:   t.HashFailures,
		MoveFailures:   t.MoveFailures,
		DeleteFailures: t.DeleteFailures,
		Skipped:        t.Skipped,
	}
}
