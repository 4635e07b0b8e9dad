package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/database"
	"github.com/vanshika/mint/internal/domain"
)

// TransactionStore persists and queries rows of the transactions table.
type TransactionStore struct {
	pool    *database.Pool
	nowFn   func() time.Time
	queries transactionQueries
}

type transactionQueries struct {
	insert       string
	byExternalID string
	byAmount     string
	byDateRange  string
	byType       string
	summary      string
	totalAmount  string
}

// NewTransactionStore builds a store bound to the pool's SQL dialect.
func NewTransactionStore(pool *database.Pool) *TransactionStore {
	d := pool.Dialect()
	return &TransactionStore{
		pool:  pool,
		nowFn: time.Now,
		queries: transactionQueries{
			insert:       d.Rebind(insertTransactionSQL),
			byExternalID: d.Rebind(selectTransactionsSQL + ` WHERE transaction_id = ? ORDER BY id DESC LIMIT 1`),
			byAmount:     d.Rebind(selectTransactionsSQL + ` WHERE origin_amount = ? ORDER BY recorded_at, id`),
			byDateRange:  d.Rebind(selectTransactionsSQL + ` WHERE recorded_at >= ? AND recorded_at <= ? ORDER BY recorded_at, id`),
			byType:       d.Rebind(selectTransactionsSQL + ` WHERE type = ? ORDER BY recorded_at, id`),
			summary:      d.Rebind(summarySQL),
			totalAmount:  d.Rebind(totalAmountSQL),
		},
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *TransactionStore) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Insert writes one transaction inside its own database transaction and
// returns its external id. Nothing is visible to readers unless the whole
// row was written.
func (s *TransactionStore) Insert(ctx context.Context, tx domain.Transaction) (int64, error) {
	if tx.TransactionID == 0 {
		return 0, errors.New("transaction id is required")
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.nowFn()
	}

	args, err := insertArgs(tx)
	if err != nil {
		return 0, err
	}

	err = s.pool.WithTx(ctx, func(ctx context.Context, sqlTx *sql.Tx) error {
		_, err := sqlTx.ExecContext(ctx, s.queries.insert, args...)
		return err
	})
	if err != nil {
		if s.pool.Dialect().IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %d", ErrDuplicateTransaction, tx.TransactionID)
		}
		return 0, fmt.Errorf("insert transaction %d: %w", tx.TransactionID, err)
	}
	return tx.TransactionID, nil
}

// GetByExternalID returns the transaction stored under the given external id.
func (s *TransactionStore) GetByExternalID(ctx context.Context, transactionID int64) (domain.Transaction, error) {
	txs, err := s.query(ctx, s.queries.byExternalID, transactionID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %d: %w", transactionID, err)
	}
	if len(txs) == 0 {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", transactionID, ErrNotFound)
	}
	return txs[0], nil
}

// SearchByAmount returns transactions whose origin amount equals amount exactly.
func (s *TransactionStore) SearchByAmount(ctx context.Context, amount decimal.Decimal) ([]domain.Transaction, error) {
	txs, err := s.query(ctx, s.queries.byAmount, amount)
	if err != nil {
		return nil, fmt.Errorf("search transactions by amount %s: %w", amount, err)
	}
	return txs, nil
}

// SearchByDateRange returns transactions recorded within [start, end].
func (s *TransactionStore) SearchByDateRange(ctx context.Context, start, end time.Time) ([]domain.Transaction, error) {
	txs, err := s.query(ctx, s.queries.byDateRange, normalizeTime(start), normalizeTime(end))
	if err != nil {
		return nil, fmt.Errorf("search transactions by date range: %w", err)
	}
	return txs, nil
}

// SearchByType returns transactions of the given type.
func (s *TransactionStore) SearchByType(ctx context.Context, txType domain.TransactionType) ([]domain.Transaction, error) {
	txs, err := s.query(ctx, s.queries.byType, string(txType))
	if err != nil {
		return nil, fmt.Errorf("search transactions by type %s: %w", txType, err)
	}
	return txs, nil
}

// Summary groups transactions recorded within [start, end] by type.
func (s *TransactionStore) Summary(ctx context.Context, start, end time.Time) ([]domain.TypeSummary, error) {
	summaries := []domain.TypeSummary{}
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, s.queries.summary, normalizeTime(start), normalizeTime(end))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				txType string
				item   domain.TypeSummary
			)
			if err := rows.Scan(&txType, &item.Count, &item.TotalAmount); err != nil {
				return err
			}
			item.Type = domain.TransactionType(txType)
			item.TotalAmount = item.TotalAmount.Round(amountScale)
			summaries = append(summaries, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("summarise transactions: %w", err)
	}
	return summaries, nil
}

// TotalAmount sums origin amounts recorded within [start, end]; zero when nothing matches.
func (s *TransactionStore) TotalAmount(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, s.queries.totalAmount, normalizeTime(start), normalizeTime(end)).Scan(&total)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("total transaction amount: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(amountScale), nil
}

func (s *TransactionStore) query(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		txs, err = scanTransactions(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// amountScale is the number of decimals every stored amount carries. Engines
// without a fixed-point type (SQLite keeps fractional NUMERIC values as REAL)
// return float sums, so aggregates are rounded back to this scale.
const amountScale = 2

// normalizeTime stores and compares instants in UTC at microsecond precision,
// the finest resolution every supported engine keeps.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func insertArgs(tx domain.Transaction) ([]any, error) {
	originDevice, err := json.Marshal(tx.OriginDeviceData)
	if err != nil {
		return nil, fmt.Errorf("encode origin device data: %w", err)
	}
	destinationDevice, err := json.Marshal(tx.DestinationDeviceData)
	if err != nil {
		return nil, fmt.Errorf("encode destination device data: %w", err)
	}
	tags := tx.Tags
	if tags == nil {
		tags = []domain.Tag{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	return []any{
		tx.TransactionID,
		string(tx.Type),
		normalizeTime(tx.Timestamp),
		nullString(tx.OriginUserID),
		nullString(tx.DestinationUserID),
		tx.OriginAmountDetails.TransactionAmount,
		string(tx.OriginAmountDetails.TransactionCurrency),
		string(tx.OriginAmountDetails.Country),
		tx.DestinationAmountDetails.TransactionAmount,
		string(tx.DestinationAmountDetails.TransactionCurrency),
		string(tx.DestinationAmountDetails.Country),
		tx.PromotionCodeUsed,
		nullString(tx.Reference),
		string(originDevice),
		string(destinationDevice),
		string(encodedTags),
	}, nil
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}

const insertTransactionSQL = `
INSERT INTO transactions (
	transaction_id, type, recorded_at, origin_user_id, destination_user_id,
	origin_amount, origin_currency, origin_country,
	destination_amount, destination_currency, destination_country,
	promotion_code_used, reference,
	origin_device_data, destination_device_data, tags
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectTransactionsSQL = `
SELECT id, transaction_id, type, recorded_at, origin_user_id, destination_user_id,
       origin_amount, origin_currency, origin_country,
       destination_amount, destination_currency, destination_country,
       promotion_code_used, reference,
       origin_device_data, destination_device_data, tags
FROM transactions`

const summarySQL = `
SELECT type, COUNT(*) AS tx_count, COALESCE(SUM(origin_amount), 0) AS total_amount
FROM transactions
WHERE recorded_at >= ? AND recorded_at <= ?
GROUP BY type
ORDER BY type`

const totalAmountSQL = `
SELECT SUM(origin_amount) AS total_amount
FROM transactions
WHERE recorded_at >= ? AND recorded_at <= ?`
