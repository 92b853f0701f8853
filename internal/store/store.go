// Package store backs the Store port (§4.9) with a relational schema: the
// deployments/phases/security_decisions/build_artifacts tables, upserted by
// their natural key, and the append-only health_samples/events tables, that
// the Audit Store Gateway and every other component read and write through. Grounded on the teacher's
// cmd/server/main.go parseDatabase (sqlite:// vs postgres:// DSN dispatch)
// and internal/db/tx.go's transaction-wrapper idiom, rehomed onto
// database/sql directly now that the ent client it wrapped is gone.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

)

// SQLStore implements internal/ports.Store over database/sql, so the same
// code path serves both the sqlite3 and postgres drivers the teacher wires.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// ParseDatabase dispatches a "sqlite://" or "postgres(ql)://" URL to a
// driver name and DSN, exactly as the teacher's cmd/server/main.go does.
func ParseDatabase(dbURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		driver = "sqlite3"
		dsn = strings.TrimPrefix(dbURL, "sqlite://")
		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1"
		}
		return driver, dsn, nil
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		return "postgres", dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL format: %s (use sqlite:// or postgresql://)", dbURL)
	}
}

// Open connects to the database named by dbURL and runs the schema migration.
func Open(ctx context.Context, dbURL string) (*SQLStore, error) {
	driver, dsn, err := ParseDatabase(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// WithTx wraps fn in a transaction, rolling back on error or panic and
// committing otherwise — the teacher's internal/db.WithTx idiom, generalized
// from an ent.Tx to a plain *sql.Tx now that every write in this module goes
// through hand-written SQL.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
