package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"mediasort/internal/faults"
)

// ChunkSize is the read granularity used while hashing.
const ChunkSize = 1 << 20

// Digest is a lowercase hex SHA-256 content identifier.
type Digest string

func (d Digest) String() string { return string(d) }

// Short returns an abbreviated digest for log lines.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// Compute hashes the file at path. Read failures are tagged ErrHashFailure;
// cancellation between chunks returns the context error unwrapped.
func Compute(ctx context.Context, fs afero.Fs, path string) (Digest, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := fs.Open(path)
	if err != nil {
		return "", faults.Wrap(faults.ErrHashFailure, "hash", "open", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", faults.Wrap(faults.ErrHashFailure, "hash", "read", path, readErr)
		}
	}
	return Digest(hex.EncodeToString(hasher.Sum(nil))), nil
}

// Bytes returns the digest of an in-memory payload.
func Bytes(payload []byte) Digest {
	sum := sha256.Sum256(payload)
	return Digest(hex.EncodeToString(sum[:]))
}

// Validate reports whether s looks like a digest produced by this package.
func Validate(s string) error {
	if len(s) != sha256.Size*2 {
		return fmt.Errorf("digest %q: expected %d hex characters", s, sha256.Size*2)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("digest %q: %w", s, err)
	}
	for _, r := range s {
		if r >= 'A' && r <= 'F' {
			return fmt.Errorf("digest %q: must be lowercase", s)
		}
	}
	return nil
}
