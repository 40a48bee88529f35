// Package journal persists an append-only history of ingest runs and their
// per-file outcomes in SQLite.
//
// The journal is informational: the fingerprint index and checkpoint remain
// the sources of truth for dedup and resume. Callers treat journal write
// failures as warnings.
package journal
