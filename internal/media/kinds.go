package media

import (
	"path/filepath"
	"slices"
	"strings"
)

// Kind identifies the broad media family of a file.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

type capability struct {
	kind Kind
	exif bool
}

var extensions = map[string]capability{
	".jpg":  {kind: KindImage, exif: true},
	".jpeg": {kind: KindImage, exif: true},
	".png":  {kind: KindImage},
	".tif":  {kind: KindImage, exif: true},
	".tiff": {kind: KindImage, exif: true},
	".bmp":  {kind: KindImage},
	".gif":  {kind: KindImage},
	".heic": {kind: KindImage},
	".cr2":  {kind: KindImage, exif: true},
	".nef":  {kind: KindImage, exif: true},
	".arw":  {kind: KindImage, exif: true},
	".dng":  {kind: KindImage, exif: true},
	".mp4":  {kind: KindVideo},
	".mov":  {kind: KindVideo},
	".avi":  {kind: KindVideo},
	".mkv":  {kind: KindVideo},
	".mts":  {kind: KindVideo},
	".3gp":  {kind: KindVideo},
	".wmv":  {kind: KindVideo},
}

// KindOf returns the media kind for path based on its extension.
func KindOf(path string) Kind {
	return extensions[strings.ToLower(filepath.Ext(path))].kind
}

// IsSupported reports whether path has an ingestible media extension.
func IsSupported(path string) bool {
	return KindOf(path) != KindUnknown
}

// CarriesEXIF reports whether the extension is one that may embed EXIF timestamps.
func CarriesEXIF(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))].exif
}

// Extensions returns the supported extensions in sorted order.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// IsExcluded reports whether any directory component of path matches one of
// the excluded names, compared case-insensitively. names must be lower-case.
func IsExcluded(path string, names []string) bool {
	if len(names) == 0 {
		return false
	}
	dir := filepath.Dir(filepath.Clean(path))
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == "" {
			continue
		}
		if slices.Contains(names, strings.ToLower(part)) {
			return true
		}
	}
	return false
}
