// Package database is the relational engine behind flushes and partitions.
//
// Engine wraps a database/sql pool for one of the registered drivers (pgx,
// postgres, mysql, sqlite3) and the Dialect that renders identifiers,
// placeholders, column types and catalog queries for it.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config configures the engine and its connection pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns pool defaults for driver and dsn.
func DefaultConfig(driver, dsn string) Config {
	return Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Driver == "" {
		return errors.New("driver is required")
	}
	if c.DSN == "" {
		return errors.New("dsn is required")
	}
	if c.MaxOpenConns <= 0 {
		return errors.New("max open conns must be positive")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle conns must be between 0 and %d", c.MaxOpenConns)
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return errors.New("connection lifetimes cannot be negative")
	}
	return nil
}

// Engine executes batches and DDL against a relational database.
type Engine struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open creates the connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	logger.Info("database connected",
		"driver", cfg.Driver,
		"dialect", dialect.Name(),
		"max_open_conns", cfg.MaxOpenConns)

	return &Engine{db: db, dialect: dialect, logger: logger}, nil
}

// NewEngine wraps an open *sql.DB.
func NewEngine(db *sql.DB, dialect Dialect, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, dialect: dialect, logger: logger}
}

// Dialect returns the engine's SQL dialect.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// DB returns the underlying pool.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Ping verifies the connection.
func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// ExecBatch runs stmts in one transaction. Any failure rolls the whole batch
// back; nothing is committed unless every statement succeeded.
func (e *Engine) ExecBatch(ctx context.Context, stmts []Statement) error {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for i, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.Query, st.Args...); err != nil {
			e.rollback(tx, len(stmts))
			return fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
	}

	if err := tx.Commit(); err != nil {
		e.rollback(tx, len(stmts))
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (e *Engine) rollback(tx *sql.Tx, count int) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		e.logger.Error("transaction rollback failed",
			"statements", count,
			"error", err)
	}
}

// CreateTable creates table from schema unless it already exists.
func (e *Engine) CreateTable(ctx context.Context, table string, schema Schema) error {
	ddl, err := CreateTableSQL(e.dialect, table, schema)
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// ListTables returns the names of tables starting with prefix, sorted.
func (e *Engine) ListTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, e.dialect.ListTablesQuery(), prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		// LIKE treats _ and % in prefix as wildcards.
		if strings.HasPrefix(name, prefix) {
			tables = append(tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// CountRows returns the number of rows in table.
func (e *Engine) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + e.dialect.Quote(table)
	if err := e.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	return n, nil
}

// Close closes the pool.
func (e *Engine) Close() error {
	return e.db.Close()
}
