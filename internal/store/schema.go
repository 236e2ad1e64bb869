package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is kept in SQLite's user_version header. A fresh file reads 0.
const schemaVersion = 1

// ErrSchemaMismatch is returned by Open when the file was written by a
// different schema revision. There are no migrations; move the file aside.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var have int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&have); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch have {
	case schemaVersion:
		return nil
	case 0:
		return s.createSchema(ctx)
	default:
		return fmt.Errorf("%w: %s is at %d, this build expects %d", ErrSchemaMismatch, s.path, have, schemaVersion)
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// PRAGMA does not take bind parameters.
	stmt := schemaSQL + fmt.Sprintf("\nPRAGMA user_version = %d;", schemaVersion)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return tx.Commit()
}
