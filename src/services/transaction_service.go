package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/security/validation"
	"github.com/username/stocktracker/backend/src/store"
	"github.com/username/stocktracker/backend/src/utils"
)

// exportHeaders is the column order of the CSV export. The field-mapping
// inferencer recognizes every one of these names, so an exported file can be
// imported straight back.
var exportHeaders = []string{"Date", "Symbol", "Type", "Quantity", "Price", "Fee", "Total", "Notes"}

type transactionServiceImpl struct {
	txnStore     store.TransactionStore
	priceService PriceService
	invalidate   func(userID int64)
}

func NewTransactionService(txnStore store.TransactionStore, priceService PriceService, invalidate func(userID int64)) TransactionService {
	if invalidate == nil {
		invalidate = func(int64) {}
	}
	return &transactionServiceImpl{
		txnStore:     txnStore,
		priceService: priceService,
		invalidate:   invalidate,
	}
}

func (s *transactionServiceImpl) CreateTransaction(ctx context.Context, userID int64, req models.TransactionRequest) (*models.Transaction, error) {
	txn, err := s.buildTransaction(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	if txn.Type == models.TransactionTypeSell {
		if err := s.checkOversell(userID, txn.Symbol, txn.TransactionDate, txn.Shares, 0); err != nil {
			return nil, err
		}
	}

	if err := s.txnStore.Create(txn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.invalidate(userID)
	logger.L.Info("Transaction created", "userID", userID, "transactionID", txn.ID, "symbol", txn.Symbol, "type", txn.Type)
	return txn, nil
}

func (s *transactionServiceImpl) UpdateTransaction(ctx context.Context, userID, txnID int64, req models.TransactionRequest) (*models.Transaction, error) {
	existing, err := s.txnStore.GetByID(userID, txnID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	txn, err := s.buildTransaction(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	txn.ID = existing.ID
	txn.CreatedAt = existing.CreatedAt

	if txn.Type == models.TransactionTypeSell {
		if err := s.checkOversell(userID, txn.Symbol, txn.TransactionDate, txn.Shares, txnID); err != nil {
			return nil, err
		}
	}

	if err := s.txnStore.Update(txn); err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.invalidate(userID)
	logger.L.Info("Transaction updated", "userID", userID, "transactionID", txnID)
	return txn, nil
}

func (s *transactionServiceImpl) DeleteTransaction(userID, txnID int64) error {
	if err := s.txnStore.Delete(userID, txnID); err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.invalidate(userID)
	logger.L.Info("Transaction deleted", "userID", userID, "transactionID", txnID)
	return nil
}

func (s *transactionServiceImpl) GetTransaction(userID, txnID int64) (*models.Transaction, error) {
	txn, err := s.txnStore.GetByID(userID, txnID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return txn, nil
}

func (s *transactionServiceImpl) ListTransactions(userID int64) ([]models.Transaction, error) {
	txns, err := s.txnStore.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	return txns, nil
}

// ValidateTicker answers the interactive symbol check used by the manual
// transaction form. Lookup failures are a normal answer, not an error.
func (s *transactionServiceImpl) ValidateTicker(ctx context.Context, symbol string) models.TickerValidationResponse {
	normalized := NormalizeSymbol(symbol, "")
	if normalized == "" || !symbolPattern.MatchString(normalized) {
		return models.TickerValidationResponse{
			Valid:        false,
			Symbol:       normalized,
			ErrorMessage: "symbol must be 1-10 characters (letters, digits, dots)",
		}
	}

	quote, err := s.priceService.GetQuote(ctx, normalized)
	if err != nil {
		return models.TickerValidationResponse{
			Valid:        false,
			Symbol:       normalized,
			ErrorMessage: fmt.Sprintf("symbol %q could not be resolved to a known ticker", normalized),
		}
	}
	return models.TickerValidationResponse{
		Valid:       true,
		Symbol:      normalized,
		CompanyName: quote.CompanyName,
	}
}

// ExportCSV writes the user's full transaction history in the import-
// compatible column layout. Notes are sanitized against spreadsheet formula
// injection before they are written.
func (s *transactionServiceImpl) ExportCSV(userID int64, w io.Writer) error {
	txns, err := s.txnStore.ListByUser(userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeaders); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}
	for _, txn := range txns {
		notes := validation.SanitizeForFormulaInjection(validation.StripUnprintable(txn.Notes))
		record := []string{
			txn.TransactionDate.Format(utils.ExportDateFormat),
			txn.Symbol,
			string(txn.Type),
			txn.Shares.String(),
			txn.PricePerShare.String(),
			txn.BrokerFee.String(),
			txn.TotalAmount.String(),
			notes,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing export row for transaction %d: %w", txn.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// buildTransaction validates the request fields and resolves the ticker.
func (s *transactionServiceImpl) buildTransaction(ctx context.Context, userID int64, req models.TransactionRequest) (*models.Transaction, error) {
	if req.Type != models.TransactionTypeBuy && req.Type != models.TransactionTypeSell {
		return nil, fmt.Errorf("%w: type must be BUY or SELL", ErrInvalidInput)
	}

	symbol := NormalizeSymbol(req.Symbol, "")
	if symbol == "" || !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: symbol must be 1-10 characters (letters, digits, dots)", ErrInvalidInput)
	}
	if req.TransactionDate.IsZero() {
		return nil, fmt.Errorf("%w: transaction date is required", ErrInvalidInput)
	}
	if req.TransactionDate.After(models.Today().Time) {
		return nil, fmt.Errorf("%w: transaction date must not be in the future", ErrInvalidInput)
	}
	if !req.Shares.IsPositive() {
		return nil, fmt.Errorf("%w: shares must be greater than zero", ErrInvalidInput)
	}
	if !req.PricePerShare.IsPositive() {
		return nil, fmt.Errorf("%w: price per share must be greater than zero", ErrInvalidInput)
	}
	if req.BrokerFee.IsNegative() {
		return nil, fmt.Errorf("%w: broker fee must not be negative", ErrInvalidInput)
	}
	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		return nil, fmt.Errorf("%w: notes must be at most %d characters", ErrInvalidInput, maxNotesLength)
	}

	companyName := ""
	quote, err := s.priceService.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrTickerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
		}
		// Lookup infrastructure trouble should not block a manual entry.
		logger.L.Warn("Ticker lookup failed during transaction create, proceeding without company name",
			"symbol", symbol, "error", err)
	} else {
		companyName = quote.CompanyName
	}

	return &models.Transaction{
		UserID:          userID,
		Type:            req.Type,
		Symbol:          symbol,
		CompanyName:     companyName,
		TransactionDate: req.TransactionDate,
		Shares:          req.Shares,
		PricePerShare:   req.PricePerShare,
		BrokerFee:       req.BrokerFee,
		Notes:           strings.TrimSpace(req.Notes),
	}, nil
}

// checkOversell rejects a SELL for more shares than are held as of the sell
// date. excludeTxnID skips the transaction being replaced during an update.
func (s *transactionServiceImpl) checkOversell(userID int64, symbol string, date models.Date, sellShares decimal.Decimal, excludeTxnID int64) error {
	txns, err := s.txnStore.ListByUserAndSymbol(userID, symbol)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	held := decimal.Zero
	for _, txn := range txns {
		if txn.ID == excludeTxnID || txn.TransactionDate.After(date.Time) {
			continue
		}
		switch txn.Type {
		case models.TransactionTypeBuy:
			held = held.Add(txn.Shares)
		case models.TransactionTypeSell:
			held = held.Sub(txn.Shares)
		}
	}

	if sellShares.GreaterThan(held) {
		return fmt.Errorf("%w: selling %s shares of %s but only %s held on %s",
			ErrOversell, sellShares.String(), symbol, held.String(), date.String())
	}
	return nil
}
