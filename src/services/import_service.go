package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/parsers"
	"github.com/username/stocktracker/backend/src/store"
)

// importServiceImpl wires the parser, mapping inferencer, row validator, and
// store into the three-step import pipeline.
type importServiceImpl struct {
	txnStore     store.TransactionStore
	priceService PriceService
	parser       *parsers.CsvParser
	invalidate   func(userID int64)
}

// NewImportService creates the import pipeline. invalidate is called after a
// commit that created at least one transaction, so cached portfolio views for
// that user are dropped.
func NewImportService(txnStore store.TransactionStore, priceService PriceService, parser *parsers.CsvParser, invalidate func(userID int64)) ImportService {
	if invalidate == nil {
		invalidate = func(int64) {}
	}
	return &importServiceImpl{
		txnStore:     txnStore,
		priceService: priceService,
		parser:       parser,
		invalidate:   invalidate,
	}
}

func (s *importServiceImpl) ParseUpload(r io.Reader) (*models.ParsedCsv, error) {
	return s.parser.Parse(r)
}

func (s *importServiceImpl) SuggestMappings(headers []string) models.MappingSuggestion {
	return parsers.SuggestMappings(headers)
}

// PreviewImport validates every row under the mapping and partitions the
// results, preserving source order on both sides. It never writes.
func (s *importServiceImpl) PreviewImport(ctx context.Context, rows []models.CsvRowData, mapping models.FieldMapping) (*models.CsvImportPreview, error) {
	previews, err := s.validateRows(ctx, rows, mapping)
	if err != nil {
		return nil, err
	}

	preview := &models.CsvImportPreview{
		ValidRows: []models.TransactionPreviewRow{},
		ErrorRows: []models.TransactionPreviewRow{},
		TotalRows: len(rows),
	}
	for _, p := range previews {
		if p.Valid {
			preview.ValidRows = append(preview.ValidRows, p)
		} else {
			preview.ErrorRows = append(preview.ErrorRows, p)
		}
	}
	preview.ValidCount = len(preview.ValidRows)
	preview.ErrorCount = len(preview.ErrorRows)
	return preview, nil
}

// CommitImport re-runs the exact preview validation, then persists valid rows
// one at a time. Rows that fail validation or insertion are skipped with a
// row-level error; an outright store failure before anything landed collapses
// to a single rowNumber-0 error with nothing imported.
func (s *importServiceImpl) CommitImport(ctx context.Context, userID int64, rows []models.CsvRowData, mapping models.FieldMapping) (*models.CsvImportResult, error) {
	previews, err := s.validateRows(ctx, rows, mapping)
	if err != nil {
		return nil, err
	}

	result := &models.CsvImportResult{
		Errors:               []models.CsvImportError{},
		ImportedTransactions: []models.Transaction{},
	}
	batchID := uuid.NewString()

	for _, p := range previews {
		if !p.Valid {
			result.SkippedCount++
			result.Errors = append(result.Errors, p.Errors...)
			continue
		}

		txn := &models.Transaction{
			UserID:          userID,
			Type:            p.Type,
			Symbol:          p.Symbol,
			CompanyName:     p.CompanyName,
			TransactionDate: p.TransactionDate,
			Shares:          p.Shares,
			PricePerShare:   p.PricePerShare,
			BrokerFee:       p.BrokerFee,
			Notes:           p.Notes,
		}
		if err := s.txnStore.CreateImported(txn, batchID); err != nil {
			if result.ImportedCount == 0 && !isConstraintError(err) {
				logger.L.Error("Import aborted: transaction store unavailable",
					"userID", userID, "batchID", batchID, "error", err)
				return &models.CsvImportResult{
					ImportedCount: 0,
					SkippedCount:  len(rows),
					Errors: []models.CsvImportError{{
						RowNumber: 0,
						Message:   "transaction store unavailable, nothing was imported",
					}},
					ImportedTransactions: []models.Transaction{},
				}, nil
			}
			logger.L.Warn("Import row failed to persist",
				"userID", userID, "rowNumber", p.RowNumber, "error", err)
			result.SkippedCount++
			result.Errors = append(result.Errors, models.CsvImportError{
				RowNumber: p.RowNumber,
				Message:   fmt.Sprintf("failed to save row: %v", err),
			})
			continue
		}
		result.ImportedCount++
		result.ImportedTransactions = append(result.ImportedTransactions, *txn)
	}

	if result.ImportedCount > 0 {
		s.invalidate(userID)
		logger.L.Info("CSV import committed",
			"userID", userID, "batchID", batchID,
			"imported", result.ImportedCount, "skipped", result.SkippedCount)
	}
	return result, nil
}

// validateRows runs the shared preview/commit validation: required-field
// check, one deduplicated ticker lookup pass, then per-row validation.
func (s *importServiceImpl) validateRows(ctx context.Context, rows []models.CsvRowData, mapping models.FieldMapping) ([]models.TransactionPreviewRow, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to process", ErrInvalidInput)
	}
	if missing := parsers.MissingRequiredFields(mapping); len(missing) > 0 {
		return nil, fmt.Errorf("%w: field mapping is missing required fields: %s",
			ErrInvalidInput, strings.Join(missing, ", "))
	}

	resolved := s.resolveSymbols(ctx, rows, mapping)

	validator := NewRowValidator()
	previews := make([]models.TransactionPreviewRow, 0, len(rows))
	for _, row := range rows {
		previews = append(previews, validator.ValidateRow(row, mapping, resolved))
	}
	return previews, nil
}

// resolveSymbols collects the distinct normalized symbols across all rows and
// looks each up exactly once.
func (s *importServiceImpl) resolveSymbols(ctx context.Context, rows []models.CsvRowData, mapping models.FieldMapping) map[string]Quote {
	symbolColumn, exchangeColumn := "", ""
	for column, field := range mapping {
		switch field {
		case models.FieldSymbol:
			symbolColumn = column
		case models.FieldExchange:
			exchangeColumn = column
		}
	}

	distinct := make(map[string]bool)
	for _, row := range rows {
		symbol := NormalizeSymbol(row.Values[symbolColumn], row.Values[exchangeColumn])
		if symbol != "" && symbolPattern.MatchString(symbol) {
			distinct[symbol] = true
		}
	}
	if len(distinct) == 0 {
		return map[string]Quote{}
	}

	symbols := make([]string, 0, len(distinct))
	for symbol := range distinct {
		symbols = append(symbols, symbol)
	}
	return s.priceService.GetQuotes(ctx, symbols)
}

// isConstraintError distinguishes a per-row constraint violation from a store
// that is down.
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}
