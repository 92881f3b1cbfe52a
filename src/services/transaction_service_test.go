package services_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/parsers"
	"github.com/username/stocktracker/backend/src/services"
)

func newTransactionFixture(txnStore *fakeTransactionStore) (services.TransactionService, *fakePriceService) {
	prices := &fakePriceService{quotes: map[string]services.Quote{
		"AAPL": {Symbol: "AAPL", CompanyName: "Apple Inc.", Price: dec("195.50")},
		"MSFT": {Symbol: "MSFT", CompanyName: "Microsoft Corporation", Price: dec("410.20")},
	}}
	return services.NewTransactionService(txnStore, prices, nil), prices
}

func buyRequest(symbol, date, shares, price string) models.TransactionRequest {
	return models.TransactionRequest{
		Type:            models.TransactionTypeBuy,
		Symbol:          symbol,
		TransactionDate: mustDate(date),
		Shares:          dec(shares),
		PricePerShare:   dec(price),
	}
}

func TestCreateTransactionResolvesCompanyName(t *testing.T) {
	txnStore := newFakeStore()
	svc, _ := newTransactionFixture(txnStore)

	txn, err := svc.CreateTransaction(context.Background(), 1, buyRequest("aapl", "2024-01-10", "10", "150"))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", txn.Symbol)
	assert.Equal(t, "Apple Inc.", txn.CompanyName)
	assert.True(t, txn.TotalAmount.Equal(dec("1500")))
	assert.NotZero(t, txn.ID)
}

func TestCreateTransactionUnknownTicker(t *testing.T) {
	svc, _ := newTransactionFixture(newFakeStore())

	_, err := svc.CreateTransaction(context.Background(), 1, buyRequest("ZZZZZ999", "2024-01-10", "10", "150"))
	assert.ErrorIs(t, err, services.ErrTickerNotFound)
}

func TestCreateTransactionFieldValidation(t *testing.T) {
	svc, _ := newTransactionFixture(newFakeStore())
	ctx := context.Background()

	cases := map[string]models.TransactionRequest{
		"bad type": {Type: "TRANSFER", Symbol: "AAPL", TransactionDate: mustDate("2024-01-10"), Shares: dec("1"), PricePerShare: dec("1")},
		"bad symbol": buyRequest("NOT A SYMBOL", "2024-01-10", "1", "1"),
		"zero shares": buyRequest("AAPL", "2024-01-10", "0", "1"),
		"negative shares": buyRequest("AAPL", "2024-01-10", "-1", "1"),
		"zero price": buyRequest("AAPL", "2024-01-10", "1", "0"),
		"future date": buyRequest("AAPL", models.Today().AddDays(1).String(), "1", "1"),
		"missing date": {Type: models.TransactionTypeBuy, Symbol: "AAPL", Shares: dec("1"), PricePerShare: dec("1")},
		"negative fee": {Type: models.TransactionTypeBuy, Symbol: "AAPL", TransactionDate: mustDate("2024-01-10"), Shares: dec("1"), PricePerShare: dec("1"), BrokerFee: dec("-1")},
		"long notes": {Type: models.TransactionTypeBuy, Symbol: "AAPL", TransactionDate: mustDate("2024-01-10"), Shares: dec("1"), PricePerShare: dec("1"), Notes: strings.Repeat("x", 501)},
	}
	for name, req := range cases {
		_, err := svc.CreateTransaction(ctx, 1, req)
		assert.ErrorIs(t, err, services.ErrInvalidInput, name)
	}

	// Notes are limited by character count, not byte count.
	multibyte := buyRequest("AAPL", "2024-01-10", "1", "1")
	multibyte.Notes = strings.Repeat("ü", 500)
	_, err := svc.CreateTransaction(ctx, 1, multibyte)
	assert.NoError(t, err)
}

func TestCreateTransactionRejectsOversell(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "150", "0")
	svc, _ := newTransactionFixture(txnStore)
	ctx := context.Background()

	sell := models.TransactionRequest{
		Type: models.TransactionTypeSell, Symbol: "AAPL",
		TransactionDate: mustDate("2024-02-01"), Shares: dec("15"), PricePerShare: dec("160"),
	}
	_, err := svc.CreateTransaction(ctx, 1, sell)
	assert.ErrorIs(t, err, services.ErrOversell)

	// Selling before the shares were bought is also an oversell.
	sell.Shares = dec("5")
	sell.TransactionDate = mustDate("2024-01-05")
	_, err = svc.CreateTransaction(ctx, 1, sell)
	assert.ErrorIs(t, err, services.ErrOversell)

	// Selling exactly what is held passes.
	sell.Shares = dec("10")
	sell.TransactionDate = mustDate("2024-02-01")
	_, err = svc.CreateTransaction(ctx, 1, sell)
	assert.NoError(t, err)
}

func TestUpdateTransactionExcludesItselfFromOversellCheck(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "150", "0")
	existing := seedTxn(txnStore, 1, models.TransactionTypeSell, "AAPL", "2024-02-01", "5", "160", "0")
	svc, _ := newTransactionFixture(txnStore)
	ctx := context.Background()

	// Growing the sell to the full holding is fine: the old sell no longer counts.
	req := models.TransactionRequest{
		Type: models.TransactionTypeSell, Symbol: "AAPL",
		TransactionDate: mustDate("2024-02-01"), Shares: dec("10"), PricePerShare: dec("160"),
	}
	updated, err := svc.UpdateTransaction(ctx, 1, existing.ID, req)
	require.NoError(t, err)
	assert.True(t, updated.Shares.Equal(dec("10")))

	req.Shares = dec("11")
	_, err = svc.UpdateTransaction(ctx, 1, existing.ID, req)
	assert.ErrorIs(t, err, services.ErrOversell)
}

func TestTransactionOwnershipScoping(t *testing.T) {
	txnStore := newFakeStore()
	mine := seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "150", "0")
	svc, _ := newTransactionFixture(txnStore)

	_, err := svc.GetTransaction(2, mine.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	err = svc.DeleteTransaction(2, mine.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	txn, err := svc.GetTransaction(1, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", txn.Symbol)

	require.NoError(t, svc.DeleteTransaction(1, mine.ID))
	_, err = svc.GetTransaction(1, mine.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestValidateTicker(t *testing.T) {
	svc, _ := newTransactionFixture(newFakeStore())
	ctx := context.Background()

	resp := svc.ValidateTicker(ctx, " aapl ")
	assert.True(t, resp.Valid)
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Equal(t, "Apple Inc.", resp.CompanyName)

	resp = svc.ValidateTicker(ctx, "ZZZZZ999")
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.ErrorMessage)

	resp = svc.ValidateTicker(ctx, "WAY TOO LONG SYMBOL")
	assert.False(t, resp.Valid)
}

func TestExportCSVSanitizesNotes(t *testing.T) {
	txnStore := newFakeStore()
	txn := models.Transaction{
		UserID: 1, Type: models.TransactionTypeBuy, Symbol: "AAPL",
		TransactionDate: mustDate("2024-01-10"),
		Shares:          dec("10"), PricePerShare: dec("150"), BrokerFee: dec("0"),
		Notes: "=SUM(A1:A9)",
	}
	require.NoError(t, txnStore.Create(&txn))
	svc, _ := newTransactionFixture(txnStore)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(1, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Symbol,Type,Quantity,Price,Fee,Total,Notes", lines[0])
	assert.Contains(t, lines[1], "'=SUM(A1:A9)")
}

// Exporting and re-importing a history reproduces every transaction.
func TestExportImportRoundTrip(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "150.25", "4.95")
	seedTxn(txnStore, 1, models.TransactionTypeSell, "AAPL", "2024-03-01", "4", "180", "0")
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "MSFT", "2024-02-15", "3", "402.1", "0")
	svc, _ := newTransactionFixture(txnStore)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(1, &buf))

	parser := parsers.NewCsvParser(1000, 0)
	parsed, err := parser.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 3)

	suggestion := parsers.SuggestMappings(parsed.Headers)
	mapping := models.FieldMapping(suggestion.SuggestedMappings)
	require.Empty(t, parsers.MissingRequiredFields(mapping))

	importSvc := newImportFixture(newFakeStore(), nil)
	preview, err := importSvc.PreviewImport(context.Background(), parsed.Rows, mapping)
	require.NoError(t, err)
	require.Equal(t, 3, preview.ValidCount, "errors: %+v", preview.ErrorRows)

	original, err := txnStore.ListByUser(1)
	require.NoError(t, err)
	for i, p := range preview.ValidRows {
		want := original[i]
		assert.Equal(t, want.Symbol, p.Symbol)
		assert.Equal(t, want.Type, p.Type)
		assert.Equal(t, want.TransactionDate.String(), p.TransactionDate.String())
		assert.True(t, p.Shares.Equal(want.Shares), "row %d shares", i)
		assert.True(t, p.PricePerShare.Equal(want.PricePerShare), "row %d price", i)
		assert.True(t, p.BrokerFee.Equal(want.BrokerFee), "row %d fee", i)
	}
}
