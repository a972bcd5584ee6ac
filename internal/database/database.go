// Package database persists simulation run history in SQLite or PostgreSQL.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Database wraps the connection together with its dialect.
type Database struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Database, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig opens the configured backend and runs migrations.
func OpenWithConfig(cfg Config) (*Database, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch dialect.(type) {
	case *PostgresDialect:
		dsn = cfg.Postgres.ConnString()
	default:
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect.(type) {
	case *PostgresDialect:
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	default:
		// PRAGMAs are per connection
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	d := &Database{db: db, dialect: dialect, qb: NewQueryBuilder(dialect)}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Dialect returns the active dialect.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// DB returns the underlying sql.DB for advanced operations.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Migrations returns the schema statements for a dialect.
func Migrations(dialect Dialect) []string {
	pk := dialect.AutoIncrementPrimaryKey()
	return []string{
		`CREATE TABLE IF NOT EXISTS simulation_runs (
			id ` + pk + `,
			run_key TEXT UNIQUE NOT NULL,
			scope TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			settings TEXT NOT NULL DEFAULT '',
			jobs INTEGER NOT NULL DEFAULT 0,
			cancelled INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS simulation_results (
			id ` + pk + `,
			run_id BIGINT NOT NULL REFERENCES simulation_runs(id) ON DELETE CASCADE,
			entity_kind TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			sim_success INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			metrics TEXT NOT NULL DEFAULT '{}',
			UNIQUE(run_id, entity_kind, entity_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_simulation_runs_started ON simulation_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_simulation_results_run ON simulation_results(run_id)`,
	}
}

// migrate creates the schema if it doesn't exist.
func (d *Database) migrate() error {
	for _, m := range Migrations(d.dialect) {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
