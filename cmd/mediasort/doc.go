// Package main hosts the mediasort CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, sets up the run logger, and
// hands off to internal/ingest for the actual work. Inspection commands
// (state, history) read the persisted stores without mutating them.
package main
