package database

import (
	"fmt"
	"os"
	"path/filepath"

	"provenance-go/internal/config"
)

// DatabaseFile is the name of the SQLite file inside data_dir.
const DatabaseFile = "research.db"

// NewDatabaseFromConfig opens the database described by cfg.
// In-memory databases are migrated on open since nothing else can reach them.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, culture string) (*SQLiteDatabase, error) {
	var (
		db  *SQLiteDatabase
		err error
	)
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		db, err = NewSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFile))
	case "memory":
		db, err = NewSQLiteDatabase(":memory:")
		if err == nil {
			if err = db.Migrate(); err != nil {
				db.Close()
				db = nil
			}
		}
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	db.SetCulture(culture)
	return db, nil
}
