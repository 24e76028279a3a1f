package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type dialect string

const (
	sqliteDialect   dialect = DriverSQLite
	postgresDialect dialect = DriverPostgres
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	default:
		return "", fmt.Errorf("unsupported driver %q (want %q or %q)", driver, DriverSQLite, DriverPostgres)
	}
}

// rebind rewrites ? placeholders to $n for Postgres. Queries in this package
// never contain a literal '?'.
func (d dialect) rebind(query string) string {
	if d != postgresDialect {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// txOptions returns the isolation used for a unit of work. SQLite gets its
// write lock from _txlock=immediate instead.
func (d dialect) txOptions() *sql.TxOptions {
	if d == postgresDialect {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}
