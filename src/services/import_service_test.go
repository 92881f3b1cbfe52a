package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/parsers"
	"github.com/username/stocktracker/backend/src/services"
)

var importMapping = models.FieldMapping{
	"Symbol": models.FieldSymbol,
	"Date":   models.FieldTransactionDate,
	"Qty":    models.FieldShares,
	"Price":  models.FieldPricePerShare,
}

func importRow(n int, symbol, date, qty, price string) models.CsvRowData {
	return models.CsvRowData{
		RowNumber: n,
		Values:    map[string]string{"Symbol": symbol, "Date": date, "Qty": qty, "Price": price},
	}
}

func newImportFixture(txnStore *fakeTransactionStore, invalidate func(int64)) services.ImportService {
	prices := &fakePriceService{quotes: map[string]services.Quote{
		"AAPL": {Symbol: "AAPL", CompanyName: "Apple Inc.", Price: dec("195.50")},
		"MSFT": {Symbol: "MSFT", CompanyName: "Microsoft Corporation", Price: dec("410.20")},
	}}
	parser := parsers.NewCsvParser(1000, 0)
	return services.NewImportService(txnStore, prices, parser, invalidate)
}

func TestPreviewImportPartitionsEveryRowExactlyOnce(t *testing.T) {
	svc := newImportFixture(newFakeStore(), nil)
	rows := []models.CsvRowData{
		importRow(1, "AAPL", "2024-01-10", "10", "150"),
		importRow(2, "ZZZZZ999", "2024-01-11", "5", "100"), // unresolvable
		importRow(3, "MSFT", "2024-01-12", "3", "400"),
		importRow(4, "AAPL", "bad-date", "2", "150"), // invalid date
		importRow(5, "MSFT", "2024-01-14", "0", "400"), // zero shares
	}

	preview, err := svc.PreviewImport(context.Background(), rows, importMapping)
	require.NoError(t, err)

	assert.Equal(t, len(rows), preview.TotalRows)
	assert.Equal(t, preview.TotalRows, preview.ValidCount+preview.ErrorCount)
	assert.Equal(t, 2, preview.ValidCount)
	assert.Equal(t, 3, preview.ErrorCount)

	seen := make(map[int]int)
	for _, p := range preview.ValidRows {
		seen[p.RowNumber]++
	}
	for _, p := range preview.ErrorRows {
		seen[p.RowNumber]++
	}
	for n := 1; n <= len(rows); n++ {
		assert.Equal(t, 1, seen[n], "row %d must appear exactly once", n)
	}

	// Source order is preserved within each partition.
	assert.Equal(t, 1, preview.ValidRows[0].RowNumber)
	assert.Equal(t, 3, preview.ValidRows[1].RowNumber)
	assert.Equal(t, 2, preview.ErrorRows[0].RowNumber)
}

func TestCommitImportMatchesPreview(t *testing.T) {
	txnStore := newFakeStore()
	invalidated := []int64{}
	svc := newImportFixture(txnStore, func(userID int64) {
		invalidated = append(invalidated, userID)
	})
	rows := []models.CsvRowData{
		importRow(1, "AAPL", "2024-01-10", "10", "150"),
		importRow(2, "ZZZZZ999", "2024-01-11", "5", "100"),
		importRow(3, "MSFT", "2024-01-12", "3", "400"),
	}
	ctx := context.Background()

	preview, err := svc.PreviewImport(ctx, rows, importMapping)
	require.NoError(t, err)

	result, err := svc.CommitImport(ctx, 42, rows, importMapping)
	require.NoError(t, err)

	assert.Equal(t, preview.ValidCount, result.ImportedCount)
	assert.Equal(t, preview.ErrorCount, result.SkippedCount)
	require.Len(t, result.ImportedTransactions, 2)
	assert.Equal(t, "AAPL", result.ImportedTransactions[0].Symbol)
	assert.Equal(t, "Apple Inc.", result.ImportedTransactions[0].CompanyName)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].RowNumber)

	persisted, err := txnStore.ListByUser(42)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
	assert.Equal(t, []int64{42}, invalidated)
}

func TestCommitImportStoreDownBeforeAnythingLanded(t *testing.T) {
	txnStore := newFakeStore()
	txnStore.createErr = errors.New("connection refused")
	invalidated := false
	svc := newImportFixture(txnStore, func(int64) { invalidated = true })
	rows := []models.CsvRowData{
		importRow(1, "AAPL", "2024-01-10", "10", "150"),
		importRow(2, "MSFT", "2024-01-12", "3", "400"),
	}

	result, err := svc.CommitImport(context.Background(), 42, rows, importMapping)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ImportedCount)
	assert.Equal(t, len(rows), result.SkippedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 0, result.Errors[0].RowNumber)
	assert.NotEmpty(t, result.Errors[0].Message)
	assert.False(t, invalidated)
}

func TestCommitImportLaterRowFailureIsRowLevel(t *testing.T) {
	txnStore := newFakeStore()
	txnStore.failSymbols = map[string]error{"MSFT": errors.New("disk I/O error")}
	svc := newImportFixture(txnStore, nil)
	rows := []models.CsvRowData{
		importRow(1, "AAPL", "2024-01-10", "10", "150"),
		importRow(2, "MSFT", "2024-01-12", "3", "400"),
	}

	result, err := svc.CommitImport(context.Background(), 42, rows, importMapping)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ImportedCount)
	assert.Equal(t, 1, result.SkippedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].RowNumber)
}

func TestImportRejectsIncompleteMapping(t *testing.T) {
	svc := newImportFixture(newFakeStore(), nil)
	rows := []models.CsvRowData{importRow(1, "AAPL", "2024-01-10", "10", "150")}
	partial := models.FieldMapping{"Symbol": models.FieldSymbol}
	ctx := context.Background()

	_, err := svc.PreviewImport(ctx, rows, partial)
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = svc.CommitImport(ctx, 42, rows, partial)
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestImportRejectsEmptyRowSet(t *testing.T) {
	svc := newImportFixture(newFakeStore(), nil)

	_, err := svc.PreviewImport(context.Background(), nil, importMapping)
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}
