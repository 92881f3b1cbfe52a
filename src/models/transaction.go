package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeBuy  TransactionType = "BUY"
	TransactionTypeSell TransactionType = "SELL"
)

// Transaction is one executed trade. Direction is carried by Type; Shares is
// always positive. TotalAmount is derived, never mutated independently.
type Transaction struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"-"`
	Type            TransactionType `json:"type"`
	Symbol          string          `json:"symbol"`
	CompanyName     string          `json:"companyName"`
	TransactionDate Date            `json:"transactionDate"`
	Shares          decimal.Decimal `json:"shares"`
	PricePerShare   decimal.Decimal `json:"pricePerShare"`
	BrokerFee       decimal.Decimal `json:"brokerFee"`
	Notes           string          `json:"notes,omitempty"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CalculateTotalAmount recomputes the derived total: shares x price + fee.
func (t *Transaction) CalculateTotalAmount() {
	t.TotalAmount = t.Shares.Mul(t.PricePerShare).Add(t.BrokerFee)
}

// TransactionRequest is the payload for manual create/update.
type TransactionRequest struct {
	Type            TransactionType `json:"type"`
	Symbol          string          `json:"symbol"`
	TransactionDate Date            `json:"transactionDate"`
	Shares          decimal.Decimal `json:"shares"`
	PricePerShare   decimal.Decimal `json:"pricePerShare"`
	BrokerFee       decimal.Decimal `json:"brokerFee"`
	Notes           string          `json:"notes"`
}

type TickerValidationResponse struct {
	Valid        bool   `json:"valid"`
	Symbol       string `json:"symbol"`
	CompanyName  string `json:"companyName,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
