// Package mysql implements the storage interface on MySQL.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	godrv "github.com/go-sql-driver/mysql"

	"github.com/flowyard/flowyard/internal/storage"
)

// Verify interface satisfaction at compile time.
var (
	_ storage.Storage     = (*Store)(nil)
	_ storage.Transaction = (*mysqlTx)(nil)
)

// Store implements storage.Storage on a MySQL database.
type Store struct {
	queries
	db *sql.DB
}

// New opens a MySQL-backed store and bootstraps the schema. The DSN is
// normalized to parse DATETIME columns as UTC time.Time values regardless of
// what the caller's DSN says; every timestamp in the schema is stored in UTC.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := godrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = false

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(runtime.NumCPU() * 2)
	db.SetMaxIdleConns(runtime.NumCPU())
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{queries: queries{db: db}, db: db}, nil
}

// RunInTransaction executes fn inside a database transaction. On error or
// panic the transaction rolls back; on nil it commits. Deadlocks and lock
// wait timeouts retry the whole callback with exponential backoff, so fn must
// be safe to re-run from scratch. The reconciler's pass is: it derives all
// writes from its inputs plus reads made inside the same transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		err := s.runOnce(ctx, fn)
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func (s *Store) runOnce(ctx context.Context, fn func(tx storage.Transaction) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&mysqlTx{queries{db: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// mysqlTx implements storage.Transaction over an open *sql.Tx.
type mysqlTx struct {
	queries
}
