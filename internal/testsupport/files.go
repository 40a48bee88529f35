package testsupport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := min(int64(chunkSize), remaining)
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteContent writes payload to path, creating parent directories.
func WriteContent(t testing.TB, path string, payload string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SetModTime sets both atime and mtime of path.
func SetModTime(t testing.TB, path string, when time.Time) {
	t.Helper()

	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// EXIFTIFF returns a minimal little-endian TIFF whose IFD0 holds a single
// DateTime tag. taken is rendered in EXIF layout ("2006:01:02 15:04:05").
// extra is appended after the tag payload so callers can vary the content
// digest without changing the date.
func EXIFTIFF(taken time.Time, extra string) []byte {
	const (
		ifdOffset   = 8
		entryCount  = 1
		tagDateTime = 0x0132
		typeASCII   = 2
	)
	stamp := append([]byte(taken.Format("2006:01:02 15:04:05")), 0)
	valueOffset := uint32(ifdOffset + 2 + 12*entryCount + 4)

	buf := make([]byte, 0, int(valueOffset)+len(stamp)+len(extra))
	buf = append(buf, 'I', 'I')
	buf = binary.LittleEndian.AppendUint16(buf, 42)
	buf = binary.LittleEndian.AppendUint32(buf, ifdOffset)
	buf = binary.LittleEndian.AppendUint16(buf, entryCount)
	buf = binary.LittleEndian.AppendUint16(buf, tagDateTime)
	buf = binary.LittleEndian.AppendUint16(buf, typeASCII)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(stamp)))
	buf = binary.LittleEndian.AppendUint32(buf, valueOffset)
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = append(buf, stamp...)
	buf = append(buf, extra...)
	return buf
}

// WriteEXIFTIFF writes an EXIFTIFF payload to path.
func WriteEXIFTIFF(t testing.TB, path string, taken time.Time, extra string) {
	t.Helper()
	WriteContent(t, path, string(EXIFTIFF(taken, extra)))
}
