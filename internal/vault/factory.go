package vault

import (
	"context"
	"fmt"

	"fhirsync/internal/config"
)

// NewStoreFromConfig creates a Store implementation based on the remote config type.
func NewStoreFromConfig(ctx context.Context, cfg config.RemoteConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
