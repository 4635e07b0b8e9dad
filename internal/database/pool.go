package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vanshika/mint/internal/config"
)

const (
	minPoolSize = 1
	maxPoolSize = 20
)

// ErrAcquireTimeout is returned when no pooled connection frees up in time.
var ErrAcquireTimeout = errors.New("timed out waiting for a database connection")

// Pool lends one connection per unit of work out of a bounded database/sql pool.
type Pool struct {
	db             *sql.DB
	dialect        Dialect
	logger         *slog.Logger
	acquireTimeout time.Duration
	queryTimeout   time.Duration
}

// Open connects to the configured database and verifies connectivity.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Pool, error) {
	if cfg.URL == "" {
		return nil, config.ErrMissingDatabaseURL
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := dialect.normalizeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.name, err)
	}

	size := clampPoolSize(cfg.MaxConnections)
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxIdleTime(5 * time.Minute)

	p := &Pool{
		db:             db,
		dialect:        dialect,
		logger:         logger.With("component", "pool", "driver", dialect.name),
		acquireTimeout: cfg.AcquireTimeout,
		queryTimeout:   cfg.QueryTimeout,
	}

	if err := p.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify database connectivity: %w", err)
	}

	p.logger.Info("database pool ready", "maxConnections", size)
	return p, nil
}

func clampPoolSize(n int) int {
	if n < minPoolSize {
		return minPoolSize
	}
	if n > maxPoolSize {
		return maxPoolSize
	}
	return n
}

// Dialect exposes the engine-specific SQL helpers.
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// WithConn checks out one connection, runs fn with exclusive use of it and
// returns the connection to the pool on every exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)

	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}
	return fn(ctx, conn)
}

// WithTx runs fn inside a database transaction on a single checked-out
// connection. The transaction is committed when fn returns nil and rolled
// back otherwise, including when fn panics.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return p.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		committed := false
		defer func() {
			if committed {
				return
			}
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				p.logger.Warn("rollback failed", "error", rbErr)
			}
		}()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		committed = true
		return nil
	})
}

func (p *Pool) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			p.logger.Warn("connection pool exhausted", "waited", p.acquireTimeout.String())
			return nil, fmt.Errorf("%w after %s", ErrAcquireTimeout, p.acquireTimeout)
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

func (p *Pool) release(conn *sql.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		p.logger.Warn("returning connection to pool failed", "error", err)
	}
}

// Ping verifies a connection can be established.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Stats reports pool utilisation.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Close releases every pooled connection.
func (p *Pool) Close() error {
	return p.db.Close()
}
