// Package daemon coordinates the long-running vidsurvey process.
//
// It wires configuration, the SQLite store, the clip store, the submission
// pipeline and the HTTP API into a single lifecycle with flock-based locking
// to prevent two daemons sharing one data directory. On start, runs left
// unfinished by a previous process are marked FAILED so their submissions
// can be reanalysed.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown, and dependency reporting.
package daemon
