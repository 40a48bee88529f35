// Package faults defines the error taxonomy and context helpers shared by the
// ingestion pipeline.
//
// Key responsibilities:
//   - Sentinel markers (configuration, hash, move, delete, state corruption)
//     plus the Wrap helper that keeps stage and operation context attached to
//     the underlying cause.
//   - Classification helpers that map an error to the per-file outcome it
//     represents and to the process exit code the CLI reports.
//   - Context helpers that stamp run identifiers, source paths, and stage
//     names so log lines can be correlated across a run.
//
// Per-file markers (hash, move, delete) never abort a run; configuration and
// state corruption markers are fatal and surface before any file is touched.
package faults
