package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fhirsync/internal/database/migrations"
	"fhirsync/internal/database/sqlc"
	"fhirsync/internal/fhir"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements fhir.Database using SQLite.
//
// All mutations go through WithTransaction, which admits one writer at a time.
// Reads outside a transaction use the connection pool directly.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
	sealer  fhir.PayloadSealer
	clock   fhir.Clock
	idgen   fhir.IDGenerator
	logger  fhir.Logger
	writer  chan struct{}
}

// Option configures optional collaborators of a SQLiteDatabase.
type Option func(*SQLiteDatabase)

// WithSealer seals every payload before it is stored. Used by the encrypted
// storage mode.
func WithSealer(sealer fhir.PayloadSealer) Option {
	return func(s *SQLiteDatabase) { s.sealer = sealer }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger fhir.Logger) Option {
	return func(s *SQLiteDatabase) { s.logger = logger }
}

// NewSQLiteDatabase opens a SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock or idgen falls back to the real implementations.
func NewSQLiteDatabase(path string, clock fhir.Clock, idgen fhir.IDGenerator, opts ...Option) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return newSQLiteDatabase(db, path, clock, idgen, opts...), nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, clock fhir.Clock, idgen fhir.IDGenerator, opts ...Option) *SQLiteDatabase {
	return newSQLiteDatabase(db, "", clock, idgen, opts...)
}

func newSQLiteDatabase(db *sql.DB, path string, clock fhir.Clock, idgen fhir.IDGenerator, opts ...Option) *SQLiteDatabase {
	if clock == nil {
		clock = fhir.RealClock{}
	}
	if idgen == nil {
		idgen = fhir.UUIDGenerator{}
	}
	s := &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
		sealer:  plainSealer{},
		clock:   clock,
		idgen:   idgen,
		logger:  fhir.NewNopLogger(),
		writer:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenConnection opens and configures a SQLite database connection.
// Connection settings are passed as DSN parameters so that every pooled
// connection gets them, not just the first one.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

type txKey struct {
	db *SQLiteDatabase
}

// WithTransaction runs fn in a transaction. It is the only place
// transactions are started: calls made with the context passed to fn join the
// running transaction.
//
// ctx may cancel the wait for the writer lock. Once BEGIN has been issued the
// transaction ignores cancellation and runs to commit or rollback.
func (s *SQLiteDatabase) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for transaction: %w", ctx.Err())
	}
	defer func() { <-s.writer }()

	txCtx := context.WithoutCancel(ctx)
	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(txCtx, txKey{s}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{s}).(*sql.Tx)
	return tx
}

// q returns queries bound to the running transaction, if any.
func (s *SQLiteDatabase) q(ctx context.Context) *sqlc.Queries {
	if tx := s.txFrom(ctx); tx != nil {
		return s.queries.WithTx(tx)
	}
	return s.queries
}

// conn returns the handle compiled search statements should run on.
func (s *SQLiteDatabase) conn(ctx context.Context) sqlc.DBTX {
	if tx := s.txFrom(ctx); tx != nil {
		return tx
	}
	return s.db
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

// MigrationStatus reports the current and latest schema versions.
func (s *SQLiteDatabase) MigrationStatus() (migrations.Status, error) {
	return migrations.GetStatus(s.db)
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
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

func (s *SQLiteDatabase) seal(payload []byte) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return nil, fmt.Errorf("sealing payload: %w", err)
	}
	return sealed, nil
}

func (s *SQLiteDatabase) open(stored []byte) ([]byte, error) {
	if stored == nil {
		return nil, nil
	}
	payload, err := s.sealer.Open(stored)
	if err != nil {
		return nil, fmt.Errorf("opening payload: %w", err)
	}
	return payload, nil
}

// plainSealer stores payloads as they are.
type plainSealer struct{}

func (plainSealer) Seal(p []byte) ([]byte, error) { return p, nil }
func (plainSealer) Open(p []byte) ([]byte, error) { return p, nil }

// Timestamps are stored as unix milliseconds; the zero time is stored as NULL.
func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

// Compile-time check that SQLiteDatabase implements fhir.Database interface
var _ fhir.Database = (*SQLiteDatabase)(nil)
