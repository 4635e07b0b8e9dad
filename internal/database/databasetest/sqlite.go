// Package databasetest provides throwaway SQLite-backed pools for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vanshika/mint/internal/config"
	"github.com/vanshika/mint/internal/database"
	"github.com/vanshika/mint/internal/logging"
)

// Options tweaks the pool created by NewSQLite.
type Options struct {
	MaxConnections int
	AcquireTimeout time.Duration
	SkipSchema     bool
}

// NewSQLite opens a pool over a fresh database file in t.TempDir and closes
// it when the test finishes.
func NewSQLite(t testing.TB, opts Options) *database.Pool {
	t.Helper()

	if opts.MaxConnections == 0 {
		opts.MaxConnections = 4
	}
	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = 2 * time.Second
	}

	cfg := config.DatabaseConfig{
		Driver:         "sqlite",
		URL:            "file:" + filepath.Join(t.TempDir(), "mint.db"),
		MaxConnections: opts.MaxConnections,
		AcquireTimeout: opts.AcquireTimeout,
		QueryTimeout:   5 * time.Second,
	}

	pool, err := database.Open(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("open sqlite pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	if !opts.SkipSchema {
		pool.EnsureSchema(context.Background())
	}
	return pool
}
