package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/domain"
)

// transactionRow mirrors one transactions row. Columns are matched by name so
// callers never depend on positional SELECT ordering.
type transactionRow struct {
	ID                  int64
	TransactionID       int64
	Type                string
	RecordedAt          time.Time
	OriginUserID        sql.NullString
	DestinationUserID   sql.NullString
	OriginAmount        decimal.Decimal
	OriginCurrency      string
	OriginCountry       string
	DestinationAmount   decimal.Decimal
	DestinationCurrency string
	DestinationCountry  string
	PromotionCodeUsed   bool
	Reference           sql.NullString
	OriginDevice        []byte
	DestinationDevice   []byte
	Tags                []byte
}

func (r *transactionRow) target(column string) any {
	switch strings.ToLower(column) {
	case "id":
		return &r.ID
	case "transaction_id":
		return &r.TransactionID
	case "type":
		return &r.Type
	case "recorded_at":
		return &r.RecordedAt
	case "origin_user_id":
		return &r.OriginUserID
	case "destination_user_id":
		return &r.DestinationUserID
	case "origin_amount":
		return &r.OriginAmount
	case "origin_currency":
		return &r.OriginCurrency
	case "origin_country":
		return &r.OriginCountry
	case "destination_amount":
		return &r.DestinationAmount
	case "destination_currency":
		return &r.DestinationCurrency
	case "destination_country":
		return &r.DestinationCountry
	case "promotion_code_used":
		return &r.PromotionCodeUsed
	case "reference":
		return &r.Reference
	case "origin_device_data":
		return &r.OriginDevice
	case "destination_device_data":
		return &r.DestinationDevice
	case "tags":
		return &r.Tags
	default:
		return new(any)
	}
}

func (r *transactionRow) toDomain() (domain.Transaction, error) {
	tx := domain.Transaction{
		ID:                r.ID,
		TransactionID:     r.TransactionID,
		Type:              domain.TransactionType(r.Type),
		Timestamp:         r.RecordedAt.UTC(),
		OriginUserID:      r.OriginUserID.String,
		DestinationUserID: r.DestinationUserID.String,
		OriginAmountDetails: domain.AmountDetails{
			TransactionAmount:   r.OriginAmount.Round(amountScale),
			TransactionCurrency: domain.Currency(r.OriginCurrency),
			Country:             domain.Country(r.OriginCountry),
		},
		DestinationAmountDetails: domain.AmountDetails{
			TransactionAmount:   r.DestinationAmount.Round(amountScale),
			TransactionCurrency: domain.Currency(r.DestinationCurrency),
			Country:             domain.Country(r.DestinationCountry),
		},
		PromotionCodeUsed: r.PromotionCodeUsed,
		Reference:         r.Reference.String,
		Tags:              []domain.Tag{},
	}

	if err := decodeJSONColumn(r.OriginDevice, &tx.OriginDeviceData); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode origin_device_data of transaction %d: %w", r.TransactionID, err)
	}
	if err := decodeJSONColumn(r.DestinationDevice, &tx.DestinationDeviceData); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode destination_device_data of transaction %d: %w", r.TransactionID, err)
	}
	if err := decodeJSONColumn(r.Tags, &tx.Tags); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode tags of transaction %d: %w", r.TransactionID, err)
	}
	if tx.Tags == nil {
		tx.Tags = []domain.Tag{}
	}
	return tx, nil
}

func decodeJSONColumn(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// scanTransactions drains rows into domain transactions. An empty result is a
// non-nil empty slice.
func scanTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	txs := []domain.Transaction{}
	for rows.Next() {
		var row transactionRow
		dest := make([]any, len(columns))
		for i, column := range columns {
			dest[i] = row.target(column)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		tx, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
