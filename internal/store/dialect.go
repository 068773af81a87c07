package store

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
)

// dialect is everything that differs between the two engines: driver wiring,
// placeholder style, DDL, migration files, and error-code mapping. The rest
// of the store is shared, so both backends run the exact same statements.
type dialect interface {
	Name() string
	// Rebind rewrites `?` placeholders into the engine's native style.
	Rebind(query string) string
	// SchemaDDL returns the embedded idempotent base schema.
	SchemaDDL() string
	// MigrateDriver wraps the connection for golang-migrate.
	MigrateDriver(db *sql.DB) (database.Driver, error)
	// MapError classifies driver errors; constraint violations come back as
	// *ConstraintError, everything else passes through.
	MapError(err error) error
}

// rebindDollar converts `?` placeholders to `$1..$n`, skipping anything
// inside single-quoted literals.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for _, r := range query {
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case r == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
