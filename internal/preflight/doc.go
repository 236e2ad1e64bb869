// Package preflight checks the filesystem paths and outbound services the
// daemon relies on.
//
// RunAll is evaluated by `vidsurvey doctor` and once at daemon start, where a
// failed check is logged as a warning rather than preventing startup.
package preflight
