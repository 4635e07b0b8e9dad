package domain

import "github.com/shopspring/decimal"

// TypeSummary aggregates transactions of one type over a date range.
type TypeSummary struct {
	Type        TransactionType `json:"type"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}
