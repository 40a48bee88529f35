// Package preflight provides readiness checks for the filesystem paths a run
// depends on.
//
// The ingest command calls RunAll before touching any file; a failed check
// aborts the run with a configuration error. The "mediasort state" command
// uses the individual checks to display path health.
package preflight
