package database

import (
	"context"
	"database/sql"
	"strings"
)

// EnsureSchema creates the api_keys and transactions tables when missing.
// It is safe to call repeatedly. Failures are logged and swallowed: a broken
// schema shows up later as query errors rather than stopping startup.
func (p *Pool) EnsureSchema(ctx context.Context) {
	failed := 0
	err := p.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		for _, stmt := range p.dialect.schema {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				failed++
				p.logger.Error("schema statement failed", "error", err, "statement", firstLine(stmt))
			}
		}
		return nil
	})
	if err != nil {
		p.logger.Error("schema initialisation skipped", "error", err)
		return
	}
	if failed > 0 {
		p.logger.Warn("schema initialised with errors", "failedStatements", failed)
		return
	}
	p.logger.Info("database tables ensured", "tables", []string{"api_keys", "transactions"})
}

func firstLine(stmt string) string {
	if idx := strings.IndexByte(stmt, '\n'); idx >= 0 {
		return strings.TrimSpace(stmt[:idx])
	}
	return strings.TrimSpace(stmt)
}
