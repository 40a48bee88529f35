package preflight

import (
	"fmt"
	"strings"

	"mediasort/internal/faults"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Request lists the paths and thresholds to check.
type Request struct {
	InputDir   string
	OutputDir  string
	StateDir   string
	MinFreeMiB int
	// Mutating is false for dry runs, which only need read access.
	Mutating bool
}

// RunAll executes all applicable preflight checks.
func RunAll(req Request) []Result {
	results := []Result{CheckReadableDirectory("Input directory", req.InputDir)}
	if !req.Mutating {
		return results
	}

	results = append(results, CheckWritableTarget("Output directory", req.OutputDir))
	results = append(results, CheckWritableTarget("State directory", req.StateDir))
	if req.MinFreeMiB > 0 {
		results = append(results, CheckFreeSpace("Output free space", req.OutputDir, req.MinFreeMiB))
	}
	return results
}

// Err folds failed results into a single configuration error, or nil when all passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return faults.Configuration("preflight", strings.Join(failed, "; "), nil)
}
