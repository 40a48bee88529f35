package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrHashFailure     = errors.New("hash failure")
	ErrMoveFailure     = errors.New("move failure")
	ErrDeleteFailure   = errors.New("delete failure")
	ErrStateCorruption = errors.New("state corruption")
)

// Exit codes reported by the CLI.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitConfiguration  = 2
	ExitStateCorrupted = 3
	ExitInterrupted    = 130
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrMoveFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Configuration is shorthand for a fatal configuration error raised before a run starts.
func Configuration(operation, message string, err error) error {
	return Wrap(ErrConfiguration, "config", operation, message, err)
}

// IsFatal reports whether err must abort the run rather than being counted per file.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrStateCorruption)
}

// Kind returns a short classification label for err, suitable for log fields
// and journal rows.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrStateCorruption):
		return "state_corruption"
	case errors.Is(err, ErrHashFailure):
		return "hash_failure"
	case errors.Is(err, ErrDeleteFailure):
		return "delete_failure"
	case errors.Is(err, ErrMoveFailure):
		return "move_failure"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrStateCorruption):
		return ExitStateCorrupted
	default:
		return ExitFailure
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "ingest failure"
	}
	return strings.Join(parts, ": ")
}
