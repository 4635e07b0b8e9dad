package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the per-engine differences the stores care about:
// driver registration name, placeholder style, DDL and error codes.
type Dialect struct {
	name            string
	driverName      string
	numbered        bool
	schema          []string
	insertKeyIgnore string
	normalizeDSN    func(string) (string, error)
	uniqueViolation func(error) bool
}

// Name reports the dialect identifier (postgres, mysql or sqlite).
func (d Dialect) Name() string { return d.name }

// Rebind rewrites `?` placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err was raised by a UNIQUE or PRIMARY KEY constraint.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil || d.uniqueViolation == nil {
		return false
	}
	return d.uniqueViolation(err)
}

// InsertKeyIgnoreQuery returns an insert into api_keys that is a no-op for existing keys.
func (d Dialect) InsertKeyIgnoreQuery() string {
	return d.Rebind(d.insertKeyIgnore)
}

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

var postgresDialect = Dialect{
	name:       "postgres",
	driverName: "postgres",
	numbered:   true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
	api_key VARCHAR(255) PRIMARY KEY
)`,
		`CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	transaction_id BIGINT NOT NULL UNIQUE,
	type VARCHAR(32) NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	origin_user_id VARCHAR(255),
	destination_user_id VARCHAR(255),
	origin_amount NUMERIC(18,2) NOT NULL,
	origin_currency VARCHAR(3) NOT NULL,
	origin_country VARCHAR(2) NOT NULL,
	destination_amount NUMERIC(18,2) NOT NULL,
	destination_currency VARCHAR(3) NOT NULL,
	destination_country VARCHAR(2) NOT NULL,
	promotion_code_used BOOLEAN NOT NULL DEFAULT FALSE,
	reference TEXT,
	origin_device_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	destination_device_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb
)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_recorded_at ON transactions (recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions (type)`,
	},
	insertKeyIgnore: `INSERT INTO api_keys (api_key) VALUES (?) ON CONFLICT (api_key) DO NOTHING`,
	normalizeDSN:    func(dsn string) (string, error) { return dsn, nil },
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

var mysqlDialect = Dialect{
	name:       "mysql",
	driverName: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
	api_key VARCHAR(255) NOT NULL PRIMARY KEY
)`,
		`CREATE TABLE IF NOT EXISTS transactions (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	transaction_id BIGINT NOT NULL,
	type VARCHAR(32) NOT NULL,
	recorded_at DATETIME(6) NOT NULL,
	origin_user_id VARCHAR(255) NULL,
	destination_user_id VARCHAR(255) NULL,
	origin_amount DECIMAL(18,2) NOT NULL,
	origin_currency VARCHAR(3) NOT NULL,
	origin_country VARCHAR(2) NOT NULL,
	destination_amount DECIMAL(18,2) NOT NULL,
	destination_currency VARCHAR(3) NOT NULL,
	destination_country VARCHAR(2) NOT NULL,
	promotion_code_used BOOLEAN NOT NULL DEFAULT FALSE,
	reference TEXT NULL,
	origin_device_data JSON NOT NULL,
	destination_device_data JSON NOT NULL,
	tags JSON NOT NULL,
	UNIQUE KEY uq_transactions_transaction_id (transaction_id),
	KEY idx_transactions_recorded_at (recorded_at),
	KEY idx_transactions_type (type)
)`,
	},
	insertKeyIgnore: `INSERT IGNORE INTO api_keys (api_key) VALUES (?)`,
	normalizeDSN: func(dsn string) (string, error) {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN(), nil
	},
	uniqueViolation: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
}

var sqliteDialect = Dialect{
	name:       "sqlite",
	driverName: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
	api_key VARCHAR(255) NOT NULL PRIMARY KEY
)`,
		`CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id INTEGER NOT NULL UNIQUE,
	type VARCHAR(32) NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	origin_user_id VARCHAR(255),
	destination_user_id VARCHAR(255),
	origin_amount NUMERIC NOT NULL,
	origin_currency VARCHAR(3) NOT NULL,
	origin_country VARCHAR(2) NOT NULL,
	destination_amount NUMERIC NOT NULL,
	destination_currency VARCHAR(3) NOT NULL,
	destination_country VARCHAR(2) NOT NULL,
	promotion_code_used BOOLEAN NOT NULL DEFAULT 0,
	reference TEXT,
	origin_device_data TEXT NOT NULL DEFAULT '{}',
	destination_device_data TEXT NOT NULL DEFAULT '{}',
	tags TEXT NOT NULL DEFAULT '[]'
)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_recorded_at ON transactions (recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions (type)`,
	},
	insertKeyIgnore: `INSERT OR IGNORE INTO api_keys (api_key) VALUES (?)`,
	normalizeDSN: func(dsn string) (string, error) {
		if strings.Contains(dsn, "busy_timeout") {
			return dsn, nil
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_pragma=busy_timeout(5000)", nil
	},
	uniqueViolation: func(err error) bool {
		var sqErr *sqlite.Error
		if !errors.As(err, &sqErr) {
			return false
		}
		switch sqErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqErr.Error(), "UNIQUE")
	},
}
