// Package index is the persistent fingerprint index: the dedup decision engine.
//
// Each content digest maps to the canonical absolute path of the single file
// that holds that content in the library, plus the time it was recorded. The
// first claimant of a digest wins; later files with the same digest are
// duplicates. A canonical path that no longer exists on disk is treated as
// vacant, so the index heals itself when library files are removed by hand.
//
// The whole index is loaded at start and rewritten atomically by Flush.
package index
