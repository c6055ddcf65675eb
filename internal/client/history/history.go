// Package history keeps a local, SQLite-backed log of executed statements.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/mzexplorer/internal/client/history/migrations"
)

// Entry is one recorded statement execution.
type Entry struct {
	ID        int64
	Statement string
	StartedAt time.Time
	Duration  time.Duration
	Rows      int64
	Error     string
}

// Store persists history entries in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at dsn and applies
// pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run history migrations: %w", err)
	}
	return nil
}

// Append records one executed statement.
func (s *Store) Append(ctx context.Context, e Entry) error {
	query := `INSERT INTO history (statement, started_at, duration_ms, rows, error)
			values (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.Statement, e.StartedAt.UTC(), e.Duration.Milliseconds(), e.Rows, e.Error)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `select id, statement, started_at, duration_ms, rows, error
			from history order by id desc limit ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var item Entry
		var durationMs int64
		if err := rows.Scan(&item.ID, &item.Statement, &item.StartedAt, &durationMs, &item.Rows, &item.Error); err != nil {
			return nil, err
		}
		item.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
