package media

import (
	"errors"
	"fmt"
	"io"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
)

// sniffHeaderSize covers every matcher filetype ships with.
const sniffHeaderSize = 262

// Sniff is the result of matching a file header against known signatures.
type Sniff struct {
	Kind      Kind
	Extension string
	MIME      string
}

// Known reports whether the header matched any signature.
func (s Sniff) Known() bool {
	return s.Extension != ""
}

// exifContainers lists sniffed formats that can hold an EXIF block goexif understands.
var exifContainers = map[string]struct{}{
	"jpg": {},
	"tif": {},
	"cr2": {},
	"nef": {},
	"arw": {},
	"dng": {},
}

// AllowsEXIF reports whether an EXIF decode is worth attempting for the sniffed
// content. Unknown content defers to the extension table.
func (s Sniff) AllowsEXIF() bool {
	if !s.Known() {
		return true
	}
	if s.Kind == KindVideo {
		return false
	}
	_, ok := exifContainers[s.Extension]
	return ok
}

// SniffFile reads the header of path and matches it against filetype's signatures.
func SniffFile(fs afero.Fs, path string) (Sniff, error) {
	file, err := fs.Open(path)
	if err != nil {
		return Sniff{}, fmt.Errorf("open for sniff: %w", err)
	}
	defer file.Close()

	head := make([]byte, sniffHeaderSize)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Sniff{}, fmt.Errorf("read header: %w", err)
	}
	return SniffBytes(head[:n]), nil
}

// SniffBytes classifies an in-memory header.
func SniffBytes(head []byte) Sniff {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return Sniff{}
	}
	out := Sniff{Extension: kind.Extension, MIME: kind.MIME.Value}
	switch kind.MIME.Type {
	case "image":
		out.Kind = KindImage
	case "video":
		out.Kind = KindVideo
	}
	return out
}
