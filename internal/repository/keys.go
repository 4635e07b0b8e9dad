package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/vanshika/mint/internal/database"
)

// KeyStore manages the api_keys table that gates every HTTP route.
type KeyStore struct {
	pool   *database.Pool
	cache  *cache.Cache
	logger *slog.Logger

	verifySQL string
	insertSQL string
	deleteSQL string
	listSQL   string
}

// SyncResult reports how many keys a Sync call added and removed.
type SyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// NewKeyStore builds a key store. A positive cacheTTL memoises successful
// verifications for that long; rejections are never cached.
func NewKeyStore(pool *database.Pool, cacheTTL time.Duration, logger *slog.Logger) *KeyStore {
	d := pool.Dialect()
	s := &KeyStore{
		pool:      pool,
		logger:    logger.With("component", "keystore"),
		verifySQL: d.Rebind(`SELECT 1 FROM api_keys WHERE api_key = ?`),
		insertSQL: d.InsertKeyIgnoreQuery(),
		deleteSQL: d.Rebind(`DELETE FROM api_keys WHERE api_key = ?`),
		listSQL:   `SELECT api_key FROM api_keys ORDER BY api_key`,
	}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// Verify reports whether key is registered. Any storage failure counts as
// not registered.
func (s *KeyStore) Verify(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	if s.cache != nil {
		if _, ok := s.cache.Get(key); ok {
			return true
		}
	}

	var one int
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, s.verifySQL, key).Scan(&one)
	})
	switch {
	case err == nil:
		if s.cache != nil {
			s.cache.SetDefault(key, struct{}{})
		}
		return true
	case errors.Is(err, sql.ErrNoRows):
		return false
	default:
		s.logger.Error("api key verification failed", "error", err)
		return false
	}
}

// Add registers key. It reports false when the key already existed.
func (s *KeyStore) Add(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("api key must not be empty")
	}

	var affected int64
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.insertSQL, key)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("add api key: %w", err)
	}
	return affected > 0, nil
}

// Remove deletes key and evicts it from the verification cache. It reports
// false when the key was not registered.
func (s *KeyStore) Remove(ctx context.Context, key string) (bool, error) {
	var affected int64
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.deleteSQL, key)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if s.cache != nil {
		s.cache.Delete(key)
	}
	if err != nil {
		return false, fmt.Errorf("remove api key: %w", err)
	}
	return affected > 0, nil
}

// List returns every registered key in lexical order.
func (s *KeyStore) List(ctx context.Context) ([]string, error) {
	keys := []string{}
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		keys, err = listKeys(ctx, conn, s.listSQL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// Sync makes the table hold exactly keys, adding missing ones and removing
// the rest in a single transaction.
func (s *KeyStore) Sync(ctx context.Context, keys []string) (SyncResult, error) {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			want[k] = struct{}{}
		}
	}

	var result SyncResult
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := listKeys(ctx, tx, s.listSQL)
		if err != nil {
			return err
		}
		have := make(map[string]struct{}, len(existing))
		for _, k := range existing {
			have[k] = struct{}{}
			if _, keep := want[k]; keep {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.deleteSQL, k); err != nil {
				return fmt.Errorf("delete %q: %w", k, err)
			}
			result.Removed++
		}

		missing := make([]string, 0, len(want))
		for k := range want {
			if _, ok := have[k]; !ok {
				missing = append(missing, k)
			}
		}
		sort.Strings(missing)
		for _, k := range missing {
			if _, err := tx.ExecContext(ctx, s.insertSQL, k); err != nil {
				return fmt.Errorf("insert key: %w", err)
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync api keys: %w", err)
	}
	if s.cache != nil {
		s.cache.Flush()
	}
	s.logger.Info("api keys synchronised", "added", result.Added, "removed", result.Removed)
	return result, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listKeys(ctx context.Context, q queryer, query string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
