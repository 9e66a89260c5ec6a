package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fhirsync/internal/config"
	"fhirsync/internal/database"
	"fhirsync/internal/database/migrations"
	"fhirsync/internal/encryption"
	"fhirsync/internal/fhir"
	"fhirsync/internal/loader"
	"fhirsync/internal/remote"
	"fhirsync/internal/resource"
	"fhirsync/internal/upload"
	"fhirsync/internal/vault"
)

// FHIRApp is the application layer between the CLI and fhir.Engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw paths and strings, and releases resources on Close.
type FHIRApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	server  *remote.Server
	engine  *fhir.Engine
	loader  *loader.Loader
	clock   fhir.Clock
	op      *Operation
	logger  fhir.Logger
	logFile *os.File
}

type options struct {
	passphrase     func() (string, error)
	stderr         io.Writer
	clock          fhir.Clock
	idgen          fhir.IDGenerator
	checkMigration bool
}

// Option configures NewFHIRApp.
type Option func(*options)

// WithPassphraseFunc sets how the passphrase for the encrypted storage mode
// is obtained. The default reads FHIRSYNC_PASSPHRASE or prompts on the terminal.
func WithPassphraseFunc(fn func() (string, error)) Option {
	return func(o *options) { o.passphrase = fn }
}

// WithStderr sets the second destination of log output.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithClock sets the clock of the remote server and the operation record.
func WithClock(c fhir.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator sets the id generator of the remote server.
func WithIDGenerator(g fhir.IDGenerator) Option {
	return func(o *options) { o.idgen = g }
}

// WithoutMigrationCheck lets the app open a database whose schema is behind.
// Used by the commands that inspect or apply migrations.
func WithoutMigrationCheck() Option {
	return func(o *options) { o.checkMigration = false }
}

func defaultOptions() *options {
	return &options{
		passphrase:     func() (string, error) { return passphraseFromEnvOrPrompt("Passphrase: ") },
		stderr:         os.Stderr,
		clock:          fhir.RealClock{},
		idgen:          fhir.UUIDGenerator{},
		checkMigration: true,
	}
}

// NewFHIRApp creates a fully wired FHIRApp from the given config.
// operation identifies the CLI command being run (e.g. "ImportDir", "SyncPush").
// The caller must call Close when done.
func NewFHIRApp(ctx context.Context, cfg *config.Config, operation string, opts ...Option) (*FHIRApp, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	op := NewOperation(operation, "", o.clock.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, cfg.LogFormat, o.stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &FHIRApp{
		cfg:     cfg,
		loader:  loader.New(cfg.Import.Ignore),
		clock:   o.clock,
		op:      op,
		logger:  logger,
		logFile: logFile,
	}
	if err := a.wire(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *FHIRApp) wire(ctx context.Context, o *options) error {
	var sealer fhir.PayloadSealer
	if a.cfg.Database.Encrypted {
		enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		passphrase, err := o.passphrase()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if sealer, err = encryption.UnlockSealer(enc, passphrase); err != nil {
			return err
		}
	}

	db, err := database.NewDatabaseFromConfig(a.cfg.Database, sealer, a.logger)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db

	// A fresh in-memory database has no schema at all.
	if a.cfg.Database.Type == "memory" {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrating in-memory database: %w", err)
		}
	}
	if o.checkMigration {
		if err := db.CheckMigrations(); err != nil {
			return fmt.Errorf("database schema out of date (run 'fhirsync db migrate'): %w", err)
		}
	}

	store, err := vault.NewStoreFromConfig(ctx, a.cfg.Remote)
	if err != nil {
		return fmt.Errorf("creating remote store: %w", err)
	}
	server, err := remote.NewServer(store, a.cfg.Remote.BaseURL, o.clock, o.idgen, a.logger)
	if err != nil {
		return fmt.Errorf("creating remote server: %w", err)
	}
	a.server = server

	mode, err := upload.ModeFromConfig(a.cfg.Upload)
	if err != nil {
		return fmt.Errorf("reading upload config: %w", err)
	}
	uploader := upload.NewUploader(server, mode, a.logger)
	consolidator := upload.NewConsolidator(db, mode, a.logger)
	a.engine = fhir.NewEngine(db, uploader, consolidator, server, a.logger)

	a.logger.Debug("app initialized",
		"operation", a.op.Name,
		"database", db.Path(),
		"remote", a.cfg.Remote.Type,
		"strategy", consolidator.Strategy().String(),
	)
	return nil
}

// run executes fn, marking the operation failed when it returns an error.
func (a *FHIRApp) run(fn func() error) error {
	if err := fn(); err != nil {
		a.op.Fail()
		a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
		return err
	}
	return nil
}

// Create reads the resource file at path and stores its resources as new
// local resources. Returns their logical ids.
func (a *FHIRApp) Create(ctx context.Context, path string) ([]string, error) {
	var ids []string
	err := a.run(func() error {
		resources, err := loader.LoadFile(path)
		if err != nil {
			return err
		}
		ids, err = a.engine.Create(ctx, resources...)
		return err
	})
	return ids, err
}

// Get returns the current local version of a resource.
func (a *FHIRApp) Get(ctx context.Context, resourceType, id string) (*resource.Resource, error) {
	return a.engine.Get(ctx, resourceType, id)
}

// Update reads the resource file at path and replaces the stored versions of
// its resources. Returns the number of resources updated.
func (a *FHIRApp) Update(ctx context.Context, path string) (int, error) {
	var n int
	err := a.run(func() error {
		resources, err := loader.LoadFile(path)
		if err != nil {
			return err
		}
		if err := a.engine.Update(ctx, resources...); err != nil {
			return err
		}
		n = len(resources)
		return nil
	})
	return n, err
}

// Delete removes a resource locally and records the deletion for upload.
func (a *FHIRApp) Delete(ctx context.Context, resourceType, id string) error {
	return a.run(func() error { return a.engine.Delete(ctx, resourceType, id) })
}

// Purge removes a resource without recording a change. force also discards
// its pending changes.
func (a *FHIRApp) Purge(ctx context.Context, resourceType, id string, force bool) error {
	return a.run(func() error { return a.engine.Purge(ctx, resourceType, id, force) })
}

// ImportDir loads every resource file under dir, honouring the configured
// ignore patterns, and stores them as new local resources in one transaction.
// Returns the number of resources imported.
func (a *FHIRApp) ImportDir(ctx context.Context, dir string) (int, error) {
	var n int
	err := a.run(func() error {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		files, err := a.loader.LoadDir(abs)
		if err != nil {
			return err
		}
		var resources []*resource.Resource
		for _, f := range files {
			resources = append(resources, f.Resources...)
		}
		if len(resources) == 0 {
			return nil
		}
		ids, err := a.engine.Create(ctx, resources...)
		if err != nil {
			return err
		}
		n = len(ids)
		a.logger.Info("imported directory", "path", abs, "files", len(files), "resources", n)
		return nil
	})
	return n, err
}

// Search runs a search built from the command-line parameters.
func (a *FHIRApp) Search(ctx context.Context, p SearchParams) (*fhir.SearchResult, error) {
	b, err := p.Builder()
	if err != nil {
		return nil, err
	}
	return a.engine.Search(ctx, b)
}

// Count returns the number of resources matching the parameters. Paging
// parameters are ignored.
func (a *FHIRApp) Count(ctx context.Context, p SearchParams) (int64, error) {
	b, err := p.Builder()
	if err != nil {
		return 0, err
	}
	return a.engine.Count(ctx, b)
}

// RemoteHistory returns every version of a resource the remote server holds,
// oldest first.
func (a *FHIRApp) RemoteHistory(ctx context.Context, resourceType, id string) ([]*resource.Resource, error) {
	return a.server.History(ctx, resourceType, id)
}

// PendingChanges returns every local change not yet uploaded.
func (a *FHIRApp) PendingChanges(ctx context.Context) ([]fhir.LocalChange, error) {
	return a.engine.PendingChanges(ctx)
}

// PendingCount returns the number of local changes not yet uploaded.
func (a *FHIRApp) PendingCount(ctx context.Context) (int64, error) {
	return a.db.GetLocalChangesCount(ctx)
}

// Push uploads pending changes to the remote server. Returns the number of
// changes uploaded.
func (a *FHIRApp) Push(ctx context.Context) (int, error) {
	var n int
	err := a.run(func() error {
		if err := a.server.ValidateSetup(ctx); err != nil {
			return fmt.Errorf("remote not reachable: %w", err)
		}
		var err error
		n, err = a.engine.SyncUpload(ctx)
		return err
	})
	return n, err
}

// Pull downloads remote resources into the local store. Returns the number
// of resources stored.
func (a *FHIRApp) Pull(ctx context.Context) (int, error) {
	var n int
	err := a.run(func() error {
		var err error
		n, err = a.engine.SyncDownload(ctx)
		return err
	})
	return n, err
}

// Migrate applies pending schema migrations.
func (a *FHIRApp) Migrate() error {
	return a.run(a.db.Migrate)
}

// MigrationStatus reports where the database schema stands.
func (a *FHIRApp) MigrationStatus() (migrations.Status, error) {
	return a.db.MigrationStatus()
}

// Backup writes a consistent copy of the database to dest.
func (a *FHIRApp) Backup(ctx context.Context, dest string) error {
	return a.run(func() error {
		abs, err := filepath.Abs(dest)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		if _, err := os.Stat(abs); err == nil {
			return fmt.Errorf("backup target %s already exists", abs)
		}
		return a.db.BackupTo(ctx, abs)
	})
}

// Close logs the outcome of the operation and releases the database and log file.
func (a *FHIRApp) Close() error {
	var errs []error
	if a.logger != nil && a.op != nil {
		a.logger.Debug("operation finished",
			"operation", a.op.Name,
			"status", a.op.Status,
			"elapsed", a.op.Elapsed(a.clock.Now()).String(),
		)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SetupKeys generates the key pair of the encrypted storage mode, protecting
// the private key with a passphrase entered twice.
func SetupKeys(cfg *config.Config, opts ...Option) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}

	o := defaultOptions()
	o.passphrase = newPassphrase
	for _, opt := range opts {
		opt(o)
	}
	passphrase, err := o.passphrase()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}
