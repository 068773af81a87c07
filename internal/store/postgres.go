package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rebind(query string) string { return rebindDollar(query) }

func (postgresDialect) SchemaDDL() string { return postgresSchema }

func (postgresDialect) MigrateDriver(db *sql.DB) (database.Driver, error) {
	return migratepgx.WithInstance(db, &migratepgx.Config{})
}

func (postgresDialect) MapError(err error) error {
	var pgerr *pgconn.PgError
	if !errors.As(err, &pgerr) {
		return err
	}
	switch pgerr.Code {
	case "23505":
		return &ConstraintError{Kind: ConstraintUnique, Err: err}
	case "23503":
		return &ConstraintError{Kind: ConstraintForeignKey, Err: err}
	}
	return err
}

// OpenPostgres connects to the client/server engine. An unreachable server
// is fatal here: the caller cannot proceed without its source of truth.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{DB: db, dialect: postgresDialect{}}, nil
}
