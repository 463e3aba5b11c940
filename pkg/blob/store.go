package blob

import (
	"context"
	"fmt"

	"github.com/AkaakuHub/twix-saver/pkg/config"
)

// Store persists downloaded media binaries. Put returns the backend-specific
// location recorded alongside the media metadata.
type Store interface {
	// Put writes one binary under the given key and returns its location
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get reads one binary back by key
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether a binary is already stored under the key
	Exists(ctx context.Context, key string) (bool, error)
}

// New builds the blob store selected by config
func New(ctx context.Context, cfg *config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFSStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Backend)
	}
}
