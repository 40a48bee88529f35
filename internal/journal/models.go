package journal

import "time"

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Counts mirrors the run summary tally.
type Counts struct {
	Total          int
	Uniques        int
	Duplicates     int
	HashFailures   int
	MoveFailures   int
	DeleteFailures int
	Skipped        int
}

// Run is one ingest invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	InputDir   string
	OutputDir  string
	Mode       string
	Counts     Counts
	Status     string
}

// Outcome is the recorded result for one source file.
type Outcome struct {
	RunID       string
	Seq         int
	Source      string
	Outcome     string
	Digest      string
	Destination string
	Detail      string
	RecordedAt  time.Time
}
