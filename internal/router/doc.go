// Package router performs the filesystem action for a classified file.
//
// Unique files move into <output>/<YYYY>/<MM>/ (or the no-date folder).
// Duplicates move into the duplicate archive under the same bucket layout, or
// are deleted when delete mode is on. Destination names never overwrite: a
// taken name is disambiguated as <stem>_<n><ext>. Renames that cross
// filesystems fall back to a verified copy followed by removal of the source.
// In dry-run mode the router only plans and logs.
package router
