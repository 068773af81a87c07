// Package store owns persistence for the race data layer: two interchangeable
// relational engines (file-backed SQLite and client/server PostgreSQL) behind
// one interface, the entity schema and its forward-only migrations, and the
// cache-aside facade in facade.go.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/paddockdata/gridbase/internal/monitoring"
	"github.com/paddockdata/gridbase/internal/tabular"
)

// Engine is the persistence contract shared by both backends. Selection
// happens once at startup via configuration; nothing downstream inspects
// which engine it holds.
type Engine interface {
	// Name reports the engine kind ("sqlite" or "postgres").
	Name() string
	// InitializeSchema creates all tables if absent. Idempotent.
	InitializeSchema(ctx context.Context) error
	// ApplyMigrations runs pending forward-only schema changes; a no-op on
	// an already-upgraded database. Migrations only ever add objects.
	ApplyMigrations(ctx context.Context) error
	// Upsert inserts or updates one row of the named table by natural key
	// and returns the surrogate id. Values follow Table.Columns order.
	Upsert(ctx context.Context, table string, values []interface{}) (int64, error)
	// UpsertBatch upserts many rows of one table inside a single
	// transaction; the first failing row aborts and rolls back the batch.
	UpsertBatch(ctx context.Context, table string, rows [][]interface{}) error
	// Query executes a parameterized statement (`?` placeholders on either
	// engine) and drains the rows into a ResultSet.
	Query(ctx context.Context, query string, args ...interface{}) (*tabular.ResultSet, error)
	// Transaction runs fn inside a transaction; any error rolls the whole
	// transaction back and is returned.
	Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error
	// RowCount counts the rows of a registered table.
	RowCount(ctx context.Context, table string) (int64, error)
	Close() error
}

// DB implements Engine over database/sql; the dialect supplies everything
// engine-specific so both backends share this code path.
type DB struct {
	*sql.DB
	dialect dialect
}

var _ Engine = (*DB)(nil)

// Name implements Engine.
func (db *DB) Name() string { return db.dialect.Name() }

// InitializeSchema implements Engine.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, db.dialect.SchemaDDL()); err != nil {
		return fmt.Errorf("initialize %s schema: %w", db.Name(), err)
	}
	return nil
}

// ApplyMigrations implements Engine.
func (db *DB) ApplyMigrations(ctx context.Context) error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// Note: m is not closed; closing it would close the underlying DB
	// connection we go on using.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply %s migrations: %w", db.Name(), err)
	}
	return nil
}

// MigrationVersion reports the current migration version and dirty state.
// Returns 0, false, nil when no migrations have been applied yet.
func (db *DB) MigrationVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	var migrationFS embed.FS
	switch db.dialect.Name() {
	case "sqlite":
		migrationFS = sqliteMigrations
	case "postgres":
		migrationFS = postgresMigrations
	default:
		return nil, fmt.Errorf("no migrations for dialect %s", db.dialect.Name())
	}

	src, err := iofs.New(migrationFS, "migrations/"+db.dialect.Name())
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := db.dialect.MigrateDriver(db.DB)
	if err != nil {
		return nil, fmt.Errorf("create %s migrate driver: %w", db.Name(), err)
	}
	m, err := migrate.NewWithInstance("iofs", src, db.dialect.Name(), driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger on the package logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Upsert implements Engine.
func (db *DB) Upsert(ctx context.Context, table string, values []interface{}) (int64, error) {
	t, ok := TableByName(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if len(values) != len(t.Columns) {
		return 0, fmt.Errorf("upsert %s: got %d values, want %d", table, len(values), len(t.Columns))
	}

	var id int64
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = upsertTx(ctx, tx, db.dialect, t, values)
		return err
	})
	return id, err
}

// UpsertBatch implements Engine.
func (db *DB) UpsertBatch(ctx context.Context, table string, rows [][]interface{}) error {
	t, ok := TableByName(table)
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, values := range rows {
			if len(values) != len(t.Columns) {
				return fmt.Errorf("upsert %s: got %d values, want %d", table, len(values), len(t.Columns))
			}
			if _, err := upsertTx(ctx, tx, db.dialect, t, values); err != nil {
				return err
			}
		}
		return nil
	})
}

// upsertTx runs one natural-key upsert inside an existing transaction. When
// the table conflicts to DO NOTHING a duplicate insert keeps the stored row,
// and the existing surrogate id is fetched instead.
func upsertTx(ctx context.Context, tx *sql.Tx, d dialect, t Table, values []interface{}) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, d.Rebind(t.upsertSQL()), values...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, sql.ErrNoRows) && t.conflictDoesNothing() {
		keyVals := t.keyValues(values)
		if err := tx.QueryRowContext(ctx, d.Rebind(t.selectByKeySQL()), keyVals...).Scan(&id); err != nil {
			return 0, &TxError{Entity: t.Name, Key: t.KeyString(values), Err: d.MapError(err)}
		}
		return id, nil
	}
	return 0, &TxError{Entity: t.Name, Key: t.KeyString(values), Err: d.MapError(err)}
}

// keyValues extracts the natural-key values from a full column value slice.
func (t Table) keyValues(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(t.NaturalKey))
	for _, k := range t.NaturalKey {
		for i, col := range t.Columns {
			if col == k {
				out = append(out, values[i])
				break
			}
		}
	}
	return out
}

// Query implements Engine.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) (*tabular.ResultSet, error) {
	rows, err := db.QueryContext(ctx, db.dialect.Rebind(query), args...)
	if err != nil {
		return nil, db.dialect.MapError(err)
	}
	defer rows.Close()
	return tabular.FromRows(rows)
}

// Transaction implements Engine. All writes inside fn commit atomically or
// roll back entirely on the first error.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			monitoring.Logf("store: rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", db.dialect.MapError(err))
	}
	return nil
}

// RowCount returns the number of rows in a registered table.
func (db *DB) RowCount(ctx context.Context, table string) (int64, error) {
	if _, ok := TableByName(table); !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
