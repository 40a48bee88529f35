// Package fingerprint computes content identifiers for media files.
//
// A fingerprint is the lowercase hex SHA-256 of the file's bytes. Two files
// share a fingerprint exactly when their contents are byte-identical, which
// is the only notion of duplicate mediasort understands.
//
// Primary entry points:
//   - Compute: streams one file through SHA-256 in 1 MiB chunks
//   - Pool: hashes many files on a bounded ants goroutine pool
package fingerprint
