package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the supported kinds of money movement.
type TransactionType string

const (
	TransactionTypeWithdrawal      TransactionType = "WITHDRAWAL"
	TransactionTypeDeposit         TransactionType = "DEPOSIT"
	TransactionTypeTransfer        TransactionType = "TRANSFER"
	TransactionTypeExternalPayment TransactionType = "EXTERNAL_PAYMENT"
	TransactionTypeRefund          TransactionType = "REFUND"
	TransactionTypeOther           TransactionType = "OTHER"
)

// TransactionTypes lists every valid TransactionType in declaration order.
var TransactionTypes = []TransactionType{
	TransactionTypeWithdrawal,
	TransactionTypeDeposit,
	TransactionTypeTransfer,
	TransactionTypeExternalPayment,
	TransactionTypeRefund,
	TransactionTypeOther,
}

// Currency is an ISO 4217 code accepted by the service.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyINR Currency = "INR"
)

// Currencies lists every valid Currency.
var Currencies = []Currency{CurrencyEUR, CurrencyUSD, CurrencyINR}

// Country is an ISO 3166 alpha-2 code accepted by the service.
type Country string

const (
	CountryDE Country = "DE"
	CountryIN Country = "IN"
	CountryUS Country = "US"
)

// Countries lists every valid Country.
var Countries = []Country{CountryDE, CountryIN, CountryUS}

// ParseTransactionType validates and normalises a transaction type.
func ParseTransactionType(v string) (TransactionType, error) {
	candidate := TransactionType(strings.ToUpper(strings.TrimSpace(v)))
	for _, t := range TransactionTypes {
		if candidate == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", v)
}

// ParseCurrency validates and normalises a currency code.
func ParseCurrency(v string) (Currency, error) {
	candidate := Currency(strings.ToUpper(strings.TrimSpace(v)))
	for _, c := range Currencies {
		if candidate == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", v)
}

// ParseCountry validates and normalises a country code.
func ParseCountry(v string) (Country, error) {
	candidate := Country(strings.ToUpper(strings.TrimSpace(v)))
	for _, c := range Countries {
		if candidate == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid country %q", v)
}

// AmountDetails is one side of a transaction's monetary value.
type AmountDetails struct {
	TransactionAmount   decimal.Decimal `json:"transactionAmount"`
	TransactionCurrency Currency        `json:"transactionCurrency"`
	Country             Country         `json:"country"`
}

// DeviceData carries client telemetry. The store treats it as an opaque document.
type DeviceData struct {
	BatteryLevel     *float64 `json:"batteryLevel,omitempty"`
	DeviceLatitude   *float64 `json:"deviceLatitude,omitempty"`
	DeviceLongitude  *float64 `json:"deviceLongitude,omitempty"`
	IPAddress        string   `json:"ipAddress,omitempty"`
	DeviceIdentifier string   `json:"deviceIdentifier,omitempty"`
	VPNUsed          *bool    `json:"vpnUsed,omitempty"`
	OperatingSystem  string   `json:"operatingSystem,omitempty"`
	DeviceMaker      string   `json:"deviceMaker,omitempty"`
	DeviceModel      string   `json:"deviceModel,omitempty"`
	DeviceYear       string   `json:"deviceYear,omitempty"`
	AppVersion       string   `json:"appVersion,omitempty"`
}

// Tag is a free-form key/value label attached to a transaction.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Transaction models a single persisted financial movement.
type Transaction struct {
	ID                       int64           `json:"id"`
	TransactionID            int64           `json:"transactionId"`
	Type                     TransactionType `json:"type"`
	Timestamp                time.Time       `json:"timestamp"`
	OriginUserID             string          `json:"originUserId,omitempty"`
	DestinationUserID        string          `json:"destinationUserId,omitempty"`
	OriginAmountDetails      AmountDetails   `json:"originAmountDetails"`
	DestinationAmountDetails AmountDetails   `json:"destinationAmountDetails"`
	PromotionCodeUsed        bool            `json:"promotionCodeUsed"`
	Reference                string          `json:"reference,omitempty"`
	OriginDeviceData         DeviceData      `json:"originDeviceData"`
	DestinationDeviceData    DeviceData      `json:"destinationDeviceData"`
	Tags                     []Tag           `json:"tags"`
}
