package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Schema version tracking (SQLite only, via PRAGMA user_version):
// 0 - Initial schema (pre-migration)
// 1 - Added geohash index on stores
const currentSchemaVersion = 1

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Table names. The queue and the master dataset must live in the same
// database so both can take part in one unit of work.
const (
	TableDeltas      = "store_deltas"
	TableStores      = "stores"
	TableRuns        = "sync_runs"
	TableCollections = "feature_collections"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is the database holding the change queue, the master dataset and
// the run ledger.
type Store struct {
	conn
	db *sql.DB
}

// Open opens the database and applies the schema.
//
// driver is DriverSQLite or DriverPostgres. For SQLite the store:
//   - forces BEGIN IMMEDIATE so a unit of work takes the write lock up front
//   - uses WAL mode so readers never observe a half-applied batch
//   - limits the pool to one connection
//
// This function is idempotent - safe to call multiple times.
func Open(driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	if d == sqliteDialect && !strings.Contains(dsn, "_txlock=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_txlock=immediate"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d == sqliteDialect {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	s := &Store{conn: conn{q: db, dialect: d}, db: db}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return string(s.dialect)
}

// SchemaVersion reports the applied schema version. Postgres schemas are not
// versioned and always report currentSchemaVersion.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s.dialect != sqliteDialect {
		return currentSchemaVersion, nil
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func (s *Store) applySchema() error {
	schema := schemaSQLite
	if s.dialect == postgresDialect {
		schema = schemaPostgres
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if s.dialect == sqliteDialect {
		if err := runMigrations(s.db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return nil
}

// runMigrations applies incremental SQLite migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the geohash index for databases created before it was
// part of the schema.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_stores_geohash ON stores(geohash)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// quoteIdent validates and quotes a table or column name taken from
// configuration or database metadata.
func quoteIdent(name string) (string, error) {
	lower := strings.ToLower(name)
	if !identPattern.MatchString(lower) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + lower + `"`, nil
}
