package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds connection settings
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// DB wraps the sqlx handle. Every query goes through Querier(ctx) so that work
// started inside a transaction stays on that transaction's connection.
type DB struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// Open connects to the configured database and applies the schema
func Open(cfg Config, logger *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if driver == DriverSQLite {
		// Single writer
		maxOpen = 1
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if !strings.Contains(dsn, ":memory:") {
		db.SetConnMaxLifetime(time.Hour)
	}

	s := &DB{db: db, driver: driver, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database ready", zap.String("driver", driver), zap.Int("max_open_conns", maxOpen))
	return s, nil
}

// OpenMemory opens a private in-memory SQLite database, used by tests and local runs
func OpenMemory(logger *zap.Logger) (*DB, error) {
	return Open(Config{Driver: DriverSQLite, DSN: ":memory:"}, logger)
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "directstock.db"
	}
	if strings.Contains(path, "?") {
		return path
	}
	params := "_foreign_keys=1&_busy_timeout=5000&_txlock=immediate"
	if path != ":memory:" {
		params = "_journal_mode=WAL&" + params
	}
	return path + "?" + params
}

// Close closes the database connection
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the driver name
func (s *DB) Driver() string {
	return s.driver
}

// ForUpdate returns the row-locking suffix for SELECT statements. SQLite locks
// the whole database at BEGIN IMMEDIATE, so it needs none.
func (s *DB) ForUpdate() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// Querier returns the transaction carried by ctx, or the pool when there is none
func (s *DB) Querier(ctx context.Context) sqlx.ExtContext {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.tx
	}
	return s.db
}

// Get runs a single-row query, rebinding placeholders for the driver
func (s *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	q := s.Querier(ctx)
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

// Select runs a multi-row query, rebinding placeholders for the driver
func (s *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	q := s.Querier(ctx)
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

// Exec runs a statement, rebinding placeholders for the driver
func (s *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q := s.Querier(ctx)
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// NamedExec runs a statement with :name parameters bound from a struct
func (s *DB) NamedExec(ctx context.Context, query string, arg any) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, s.Querier(ctx), query, arg)
}

var (
	ErrNoTransaction = errors.New("operation requires a transaction")
)

// IsNotFound reports whether err is a no-rows result
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a uniqueness or primary key violation
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
