package models_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/username/stocktracker/backend/src/models"
)

// The fee is part of the total for both directions: a sell's proceeds are not
// reduced below zero, the fee simply adds to the amount moved.
func TestCalculateTotalAmountAddsFeeForBothTypes(t *testing.T) {
	for _, txnType := range []models.TransactionType{models.TransactionTypeBuy, models.TransactionTypeSell} {
		txn := models.Transaction{
			Type:          txnType,
			Shares:        decimal.RequireFromString("10"),
			PricePerShare: decimal.RequireFromString("150.25"),
			BrokerFee:     decimal.RequireFromString("4.95"),
		}
		txn.CalculateTotalAmount()
		assert.True(t, txn.TotalAmount.Equal(decimal.RequireFromString("1507.45")),
			"%s total: %s", txnType, txn.TotalAmount)
	}
}
