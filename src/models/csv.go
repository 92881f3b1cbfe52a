package models

import "github.com/shopspring/decimal"

// Canonical transaction fields a CSV column can be mapped to. FieldSkip marks
// a column the user explicitly wants ignored.
const (
	FieldType            = "type"
	FieldSymbol          = "symbol"
	FieldExchange        = "exchange"
	FieldTransactionDate = "transactionDate"
	FieldShares          = "shares"
	FieldPricePerShare   = "pricePerShare"
	FieldBrokerFee       = "brokerFee"
	FieldNotes           = "notes"
	FieldSkip            = "skip"
)

// RequiredFields must all be present in a field mapping before any row is
// processed. Type is not required: it can be inferred from the shares sign.
var RequiredFields = []string{FieldSymbol, FieldTransactionDate, FieldShares, FieldPricePerShare}

// CsvRowData is one uploaded row: raw header -> raw value, plus the 1-based
// row number used in error reporting.
type CsvRowData struct {
	Values    map[string]string `json:"values"`
	RowNumber int               `json:"rowNumber"`
}

// ParsedCsv is the output of the server-side CSV parser: ordered headers and
// rows in source order.
type ParsedCsv struct {
	Headers []string     `json:"headers"`
	Rows    []CsvRowData `json:"rows"`
}

// FieldMapping maps a raw CSV column name to a canonical field name.
type FieldMapping map[string]string

// MappingSuggestion is the inferencer's answer for one set of headers.
type MappingSuggestion struct {
	SuggestedMappings map[string]string  `json:"suggestedMappings"`
	ConfidenceScores  map[string]float64 `json:"confidenceScores"`
	UnmappedColumns   []string           `json:"unmappedColumns"`
}

// CsvImportError is one field-level problem on one row. RowNumber 0 marks a
// systemic failure that aborted the whole commit.
type CsvImportError struct {
	RowNumber     int    `json:"rowNumber"`
	Field         string `json:"field,omitempty"`
	Message       string `json:"message"`
	RejectedValue string `json:"rejectedValue,omitempty"`
}

// TransactionPreviewRow is the validation result for one CsvRowData under a
// FieldMapping. Invalid rows are returned, not dropped, so the caller can
// render them; draft fields are left at their zero value when unparseable.
type TransactionPreviewRow struct {
	RowNumber       int              `json:"rowNumber"`
	Type            TransactionType  `json:"type,omitempty"`
	Symbol          string           `json:"symbol,omitempty"`
	CompanyName     string           `json:"companyName,omitempty"`
	TransactionDate Date             `json:"transactionDate"`
	Shares          decimal.Decimal  `json:"shares"`
	PricePerShare   decimal.Decimal  `json:"pricePerShare"`
	BrokerFee       decimal.Decimal  `json:"brokerFee"`
	Notes           string           `json:"notes,omitempty"`
	Valid           bool             `json:"valid"`
	Errors          []CsvImportError `json:"errors"`
}

type CsvImportPreview struct {
	ValidRows  []TransactionPreviewRow `json:"validRows"`
	ErrorRows  []TransactionPreviewRow `json:"errorRows"`
	TotalRows  int                     `json:"totalRows"`
	ValidCount int                     `json:"validCount"`
	ErrorCount int                     `json:"errorCount"`
}

type CsvImportResult struct {
	ImportedCount        int              `json:"importedCount"`
	SkippedCount         int              `json:"skippedCount"`
	Errors               []CsvImportError `json:"errors"`
	ImportedTransactions []Transaction    `json:"importedTransactions"`
}
