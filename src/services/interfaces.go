package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/models"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("resource not found")
	ErrTickerNotFound   = errors.New("ticker symbol not found")
	ErrStoreUnavailable = errors.New("transaction store unavailable")
	ErrOversell         = errors.New("sell exceeds shares held on that date")
)

// ImportService is the three-step CSV import pipeline. Every step is
// stateless: the client re-submits rows and mapping at each stage, and
// CommitImport re-validates rather than trusting an earlier preview.
type ImportService interface {
	ParseUpload(r io.Reader) (*models.ParsedCsv, error)
	SuggestMappings(headers []string) models.MappingSuggestion
	PreviewImport(ctx context.Context, rows []models.CsvRowData, mapping models.FieldMapping) (*models.CsvImportPreview, error)
	CommitImport(ctx context.Context, userID int64, rows []models.CsvRowData, mapping models.FieldMapping) (*models.CsvImportResult, error)
}

// TransactionService covers interactive transaction management.
type TransactionService interface {
	CreateTransaction(ctx context.Context, userID int64, req models.TransactionRequest) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, txnID int64, req models.TransactionRequest) (*models.Transaction, error)
	DeleteTransaction(userID, txnID int64) error
	GetTransaction(userID, txnID int64) (*models.Transaction, error)
	ListTransactions(userID int64) ([]models.Transaction, error)
	ValidateTicker(ctx context.Context, symbol string) models.TickerValidationResponse
	ExportCSV(userID int64, w io.Writer) error
}

// PortfolioService derives the portfolio view from transaction history.
type PortfolioService interface {
	GetPortfolio(ctx context.Context, userID int64) (*models.PortfolioResponse, error)
	RefreshPortfolio(ctx context.Context, userID int64) (*models.PortfolioResponse, error)
	GetPerformanceHistory(ctx context.Context, userID int64, rangeKey string) ([]models.PortfolioPerformancePoint, error)
	InvalidateUser(userID int64)
}

// Quote is a live price snapshot for one symbol.
type Quote struct {
	Symbol        string
	CompanyName   string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Stale         bool
	FetchedAt     time.Time
}

// PricePoint is one trading day's close.
type PricePoint struct {
	Date  models.Date
	Close decimal.Decimal
}

// PriceService answers price questions from an external market-data source.
// Implementations are expected to cache; a Stale quote means the live lookup
// failed and a previously cached value was substituted.
type PriceService interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetQuotes(ctx context.Context, symbols []string) map[string]Quote
	GetHistory(ctx context.Context, symbol string, rangeKey string) ([]PricePoint, error)
	GetHistoryBatch(ctx context.Context, symbols []string, rangeKey string) map[string][]PricePoint
}

// EmailService sends account lifecycle email.
type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
}
