package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/domain"
)

// TransactionInput is the inbound payload accepted when recording a transaction.
// A single amount, currency and country describe both sides of the movement.
type TransactionInput struct {
	TransactionID     int64              `json:"transactionId,omitempty"`
	Amount            decimal.Decimal    `json:"amount"`
	SenderID          string             `json:"sender_id"`
	DestinationID     string             `json:"destination_id"`
	Type              string             `json:"type"`
	Currency          string             `json:"currency"`
	Country           string             `json:"country"`
	Reference         string             `json:"reference,omitempty"`
	PromotionCodeUsed bool               `json:"promotion_code_used,omitempty"`
	Timestamp         *time.Time         `json:"timestamp,omitempty"`
	OriginDevice      *domain.DeviceData `json:"origin_device_data,omitempty"`
	DestinationDevice *domain.DeviceData `json:"destination_device_data,omitempty"`
	Tags              []domain.Tag       `json:"tags,omitempty"`
}

// DateRange bounds a query over recorded_at, both ends inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// TotalAmount is the response of a total amount query.
type TotalAmount struct {
	Start       time.Time       `json:"startDate"`
	End         time.Time       `json:"endDate"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}
