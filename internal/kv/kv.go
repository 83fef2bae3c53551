// Package kv provides the key-value persistence primitive the favorites
// store is built on. A Store maps string keys to opaque byte values; every
// Set replaces the previous value as a whole.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/adrg/xdg"

	"github.com/seenimoa/finmarket/internal/config"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// Store is a durable key-value map.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key. A failed Set leaves the
	// previous value intact.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the underlying connection.
	Close() error
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			var err error
			path, err = DefaultPath()
			if err != nil {
				return nil, err
			}
		}
		return OpenSQLite(ctx, path)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", cfg.Driver)
	}
}

// DefaultPath returns the sqlite database location under the XDG data
// directory, creating parent directories as needed.
func DefaultPath() (string, error) {
	path, err := xdg.DataFile("finmarket/finmarket.db")
	if err != nil {
		return "", fmt.Errorf("resolving data path: %w", err)
	}
	return path, nil
}
