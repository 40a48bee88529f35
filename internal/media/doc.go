// Package media classifies candidate files by extension and by content sniff.
//
// The extension table is the single source of truth for which files the
// pipeline ingests and which of them can carry embedded EXIF timestamps.
package media
