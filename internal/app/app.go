package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"provenance-go/internal/config"
	"provenance-go/internal/database"
	"provenance-go/internal/encryption"
	"provenance-go/internal/research"
	"provenance-go/internal/vault"
)

// ResearchApp is the application layer between the outer surfaces (CLI and
// HTTP API) and the research services. It constructs every dependency from
// config and owns the database and log file until Close.
type ResearchApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     research.PackVault
	encryptor research.Encryptor
	logger    research.Logger
	op        *Operation
	logFile   *os.File

	assertions *research.AssertionService
	queue      *research.ValidationQueue
	snapshots  *research.SnapshotEngine
	graphs     *research.GraphService
	packs      *research.PackBuilder
}

// Options tune how NewResearchApp builds the app.
type Options struct {
	// Operation names the command being run; it tags every log line.
	Operation string
	// ActorID is the researcher acting in this session.
	ActorID int64
	// Verbose enables debug logging.
	Verbose bool
}

// NewResearchApp creates a fully wired ResearchApp from the given config.
// The caller must call Close when done.
func NewResearchApp(ctx context.Context, cfg *config.Config, opts Options) (*ResearchApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.Culture)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run `prov db migrate`): %w", err)
	}

	op := NewOperation(opts.Operation, opts.ActorID, research.UUIDGenerator{}, research.RealClock{})

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	l, logFile, err := newLogger(cfg.LogDir, op.SessionID, level)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := newResearchApp(cfg, db, v, enc, &slogAdapter{l: l}, research.RealClock{}, research.UUIDGenerator{}, op)
	a.logFile = logFile
	a.logger.Debug("session started", "operation", op.Name, "actor", op.ActorID)
	return a, nil
}

// newResearchApp wires the services over already constructed dependencies.
// The database doubles as the collaborator sources and the activity log.
func newResearchApp(cfg *config.Config, db *database.SQLiteDatabase, v research.PackVault, enc research.Encryptor,
	logger research.Logger, clock research.Clock, ids research.IDGenerator, op *Operation) *ResearchApp {
	assertions := research.NewAssertionService(db, db, logger, clock)
	return &ResearchApp{
		cfg:        cfg,
		db:         db,
		vault:      v,
		encryptor:  enc,
		logger:     logger,
		op:         op,
		assertions: assertions,
		queue:      research.NewValidationQueue(db, db, assertions, db, logger, clock),
		snapshots:  research.NewSnapshotEngine(db, db, db, db, logger, clock, cfg.Culture),
		graphs:     research.NewGraphService(db, db, clock),
		packs:      research.NewPackBuilder(db, db, v, enc, ids, db, logger, clock),
	}
}

// Context returns ctx carrying this session's request context.
func (a *ResearchApp) Context(ctx context.Context) context.Context {
	return a.op.Context(ctx)
}

// ActorID returns the researcher acting in this session.
func (a *ResearchApp) ActorID() int64 { return a.op.ActorID }

func (a *ResearchApp) Config() *config.Config                 { return a.cfg }
func (a *ResearchApp) Logger() research.Logger                { return a.logger }
func (a *ResearchApp) Encryptor() research.Encryptor          { return a.encryptor }
func (a *ResearchApp) Assertions() *research.AssertionService { return a.assertions }
func (a *ResearchApp) Queue() *research.ValidationQueue       { return a.queue }
func (a *ResearchApp) Snapshots() *research.SnapshotEngine    { return a.snapshots }
func (a *ResearchApp) Graphs() *research.GraphService         { return a.graphs }
func (a *ResearchApp) Packs() *research.PackBuilder           { return a.packs }

// BackupDatabase writes a consistent copy of the database to destPath.
func (a *ResearchApp) BackupDatabase(destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("backup target already exists: %s", destPath)
	}
	if err := a.db.BackupTo(destPath); err != nil {
		return err
	}
	a.logger.Info("database backed up", "path", destPath)
	return nil
}

// Close closes the database and the log file.
func (a *ResearchApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

// MigrateDatabase applies pending migrations to the configured database.
// It opens the database without the schema check NewResearchApp performs.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.Culture)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
