// Package dates assigns a library bucket (year and month) to media files.
//
// Resolution order: embedded EXIF capture time for formats that carry it,
// then the filesystem modification time. Files with neither, or with an
// mtime at or before the Unix epoch, land in the unknown bucket. Resolve
// never fails.
package dates
