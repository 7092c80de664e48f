package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

// SQL is a KV backed by a single table. Queries are written with '?'
// placeholders and rebound for the driver in use.
type SQL struct {
	db        *sqlx.DB
	txManager *TransactionManager
}

// Open connects to driver/dsn and creates the kv table if needed. For
// sqlite the dsn is a file path whose directory is created first.
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	s := NewSQL(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db, txManager: NewTransactionManager(db)}
}

func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	query := s.db.Rebind(`SELECT value FROM kv WHERE key = ?`)

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &value, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.Rebind(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, key, string(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetMany writes all entries in one transaction.
func (s *SQL) SetMany(ctx context.Context, entries map[string][]byte) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for k, v := range entries {
			if err := s.Set(txCtx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	query := s.db.Rebind(`DELETE FROM kv WHERE key = ?`)
	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
