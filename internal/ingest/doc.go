// Package ingest is the ingestion orchestrator.
//
// Run enumerates candidate files, skips those already checkpointed or inside
// excluded folders, hashes the rest on a bounded pool, and hands each result
// to a single consumer that classifies it against the fingerprint index,
// resolves its date bucket, routes it, and durably records the outcome.
//
// Run is idempotent: repeating it over the same input changes nothing once
// every file has been handled, and an interrupted run resumes where it
// stopped. Per-file failures are counted and leave the file unmarked so the
// next run retries it; configuration and state-corruption errors abort
// before any file is touched.
package ingest
