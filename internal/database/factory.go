package database

import (
	"fmt"
	"os"
	"path/filepath"

	"fhirsync/internal/config"
	"fhirsync/internal/fhir"
)

const (
	plainFileName     = "resources.db"
	encryptedFileName = "resources_encrypted.db"
)

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type.
// sealer must be set when cfg.Encrypted is true.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, sealer fhir.PayloadSealer, logger fhir.Logger) (*SQLiteDatabase, error) {
	var opts []Option
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if cfg.Encrypted {
		if sealer == nil {
			return nil, fmt.Errorf("encrypted database requires a payload sealer")
		}
		opts = append(opts, WithSealer(sealer))
	}

	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dbPath, err := FilePath(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLiteDatabase(dbPath, nil, nil, opts...)
	case "memory":
		return NewSQLiteDatabase(":memory:", nil, nil, opts...)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// FilePath returns the database file for the configured storage mode. It
// fails with fhir.ErrStorageModeConflict when a database of the other mode
// already exists in the data directory.
func FilePath(cfg config.DatabaseConfig) (string, error) {
	name, other := plainFileName, encryptedFileName
	if cfg.Encrypted {
		name, other = encryptedFileName, plainFileName
	}

	otherPath := filepath.Join(cfg.DataDir, other)
	if _, err := os.Stat(otherPath); err == nil {
		return "", fmt.Errorf("%w: %s exists, cannot open %s", fhir.ErrStorageModeConflict, other, name)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking %s: %w", otherPath, err)
	}
	return filepath.Join(cfg.DataDir, name), nil
}
