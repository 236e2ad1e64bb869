// Package client talks to a running vidsurvey daemon over HTTP.
//
// Upload streams a recording package as one multipart request through an
// io.Pipe, so clips are never buffered twice, and reports byte progress.
// The remaining helpers read submissions, analyses and daemon status for
// the CLI.
package client
