// Package store persists questionnaires, submissions, analyses and pipeline
// runs in SQLite.
//
// A submission and its answers are written in a single transaction, as is each
// analysis. Analyses are insert-only: re-running the media pipeline appends a
// new row and readers take the most recent one. Runs record the orchestrator
// state of every submit or reanalyze attempt so an operator can see where a
// submission stopped.
//
// Schema changes bump schemaVersion in schema.go; existing databases with a
// different version are rejected with ErrSchemaMismatch.
package store
