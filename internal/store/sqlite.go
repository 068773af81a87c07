package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	sqlite "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) SchemaDDL() string { return sqliteSchema }

func (sqliteDialect) MigrateDriver(db *sql.DB) (database.Driver, error) {
	return migratesqlite.WithInstance(db, &migratesqlite.Config{})
}

func (sqliteDialect) MapError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	// SQLITE_CONSTRAINT is primary code 19; the extended code and message
	// distinguish unique from foreign-key failures.
	if se.Code()&0xff != 19 {
		return err
	}
	kind := ConstraintUnique
	if strings.Contains(se.Error(), "FOREIGN KEY") {
		kind = ConstraintForeignKey
	}
	return &ConstraintError{Kind: kind, Err: err}
}

// OpenSQLite opens (creating if needed) the file-backed engine. Foreign keys
// are enforced per connection and writers wait out short lock contention
// instead of failing.
func OpenSQLite(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &DB{DB: db, dialect: sqliteDialect{}}, nil
}
