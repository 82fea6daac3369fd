package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"provenance-go/internal/database/migrations"
	"provenance-go/internal/research"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements research.Database and the collaborator sources
// on a single SQLite file.
type SQLiteDatabase struct {
	db      *sql.DB
	path    string
	culture string
}

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path, culture: "en"}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, culture: "en"}
}

// OpenConnection opens a SQLite connection with foreign keys enforced.
// The pool holds a single connection: SQLite serialises writers anyway, and an
// in-memory database exists only inside the connection that created it.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// SetCulture selects the language of object titles joined into queue listings.
func (s *SQLiteDatabase) SetCulture(culture string) {
	if culture != "" {
		s.culture = culture
	}
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryList runs query and scans every row with scan. Rows are fully read
// and closed before it returns.
func queryList[T any](ctx context.Context, q querier, scan func(rowScanner) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func textOf(m json.RawMessage) *string {
	if len(m) == 0 {
		return nil
	}
	s := string(m)
	return &s
}

func jsonOf(s *string) json.RawMessage {
	if s == nil {
		return nil
	}
	return json.RawMessage(*s)
}

// Compile-time checks that SQLiteDatabase implements the research interfaces.
var (
	_ research.Database         = (*SQLiteDatabase)(nil)
	_ research.ExtractionSource = (*SQLiteDatabase)(nil)
	_ research.CollectionSource = (*SQLiteDatabase)(nil)
	_ research.RightsSource     = (*SQLiteDatabase)(nil)
	_ research.RelationSource   = (*SQLiteDatabase)(nil)
	_ research.ActivityLog      = (*SQLiteDatabase)(nil)
)
