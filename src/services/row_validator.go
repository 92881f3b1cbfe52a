package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/utils"
)

const maxNotesLength = 500

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.]{1,10}$`)

// exchangeSuffixes maps broker exchange codes to the suffix the market-data
// provider expects. US exchanges need no suffix.
var exchangeSuffixes = map[string]string{
	"LSE":    ".L",
	"LON":    ".L",
	"SEHK":   ".HK",
	"HKG":    ".HK",
	"TSE":    ".TO",
	"TSX":    ".TO",
	"ASX":    ".AX",
	"XETRA":  ".DE",
	"FRA":    ".DE",
	"EPA":    ".PA",
	"PAR":    ".PA",
	"NYSE":   "",
	"NASDAQ": "",
	"AMEX":   "",
	"ARCA":   "",
	"BATS":   "",
}

var buySynonyms = map[string]bool{
	"buy": true, "b": true, "purchase": true, "bought": true, "bot": true,
}

var sellSynonyms = map[string]bool{
	"sell": true, "s": true, "sale": true, "sold": true, "sld": true,
}

// NormalizeSymbol trims, uppercases, and applies an exchange-derived suffix.
// It is deliberately pure so symbols can be collected for a deduplicated
// ticker lookup before any row is validated.
func NormalizeSymbol(rawSymbol, rawExchange string) string {
	symbol := strings.ToUpper(strings.TrimSpace(rawSymbol))
	if symbol == "" {
		return ""
	}
	exchange := strings.ToUpper(strings.TrimSpace(rawExchange))
	if suffix, ok := exchangeSuffixes[exchange]; ok && suffix != "" && !strings.HasSuffix(symbol, suffix) {
		symbol += suffix
	}
	return symbol
}

// RowValidator turns one raw CSV row into a typed preview row under a field
// mapping. Ticker resolution results are supplied by the caller so lookups
// happen once per distinct symbol, not once per row.
type RowValidator struct {
	Today models.Date
}

func NewRowValidator() *RowValidator {
	return &RowValidator{Today: models.Today()}
}

// ValidateRow applies every per-field rule and accumulates errors instead of
// stopping at the first. Invalid rows are still fully populated with whatever
// parsed cleanly so the caller can render them.
func (v *RowValidator) ValidateRow(row models.CsvRowData, mapping models.FieldMapping, resolved map[string]Quote) models.TransactionPreviewRow {
	preview := models.TransactionPreviewRow{
		RowNumber: row.RowNumber,
		Errors:    []models.CsvImportError{},
	}

	byField := make(map[string]string, len(mapping))
	for column, field := range mapping {
		if field == models.FieldSkip {
			continue
		}
		byField[field] = row.Values[column]
	}

	addError := func(field, message, rejected string) {
		preview.Errors = append(preview.Errors, models.CsvImportError{
			RowNumber:     row.RowNumber,
			Field:         field,
			Message:       message,
			RejectedValue: rejected,
		})
	}

	_, typeMapped := byField[models.FieldType]

	// shares first: its sign may drive type inference.
	sharesNegative := false
	rawShares := byField[models.FieldShares]
	shares, err := parseDecimalField(rawShares)
	switch {
	case err != nil:
		addError(models.FieldShares, "shares must be a decimal number", rawShares)
	case shares.IsZero():
		addError(models.FieldShares, "shares must not be zero", rawShares)
	default:
		if shares.IsNegative() {
			sharesNegative = true
			shares = shares.Abs()
		}
		preview.Shares = shares
	}

	rawType := strings.ToLower(strings.TrimSpace(byField[models.FieldType]))
	switch {
	case typeMapped && buySynonyms[rawType]:
		preview.Type = models.TransactionTypeBuy
	case typeMapped && sellSynonyms[rawType]:
		preview.Type = models.TransactionTypeSell
	case typeMapped:
		addError(models.FieldType, "type must be BUY or SELL", byField[models.FieldType])
	case sharesNegative:
		preview.Type = models.TransactionTypeSell
	default:
		preview.Type = models.TransactionTypeBuy
	}

	rawSymbol := byField[models.FieldSymbol]
	symbol := NormalizeSymbol(rawSymbol, byField[models.FieldExchange])
	switch {
	case symbol == "":
		addError(models.FieldSymbol, "symbol is required", rawSymbol)
	case !symbolPattern.MatchString(symbol):
		addError(models.FieldSymbol, "symbol must be 1-10 characters (letters, digits, dots)", rawSymbol)
	default:
		quote, ok := resolved[symbol]
		if !ok {
			addError(models.FieldSymbol, fmt.Sprintf("symbol %q could not be resolved to a known ticker", symbol), rawSymbol)
		} else {
			preview.Symbol = symbol
			preview.CompanyName = quote.CompanyName
		}
	}

	rawDate := byField[models.FieldTransactionDate]
	if t, err := utils.ParseFlexibleDate(rawDate); err != nil {
		addError(models.FieldTransactionDate, "transaction date is invalid or in an unsupported format", rawDate)
	} else {
		date := models.DateOf(t)
		if date.After(v.Today.Time) {
			addError(models.FieldTransactionDate, "transaction date must not be in the future", rawDate)
		} else {
			preview.TransactionDate = date
		}
	}

	rawPrice := byField[models.FieldPricePerShare]
	price, err := parseDecimalField(rawPrice)
	switch {
	case err != nil:
		addError(models.FieldPricePerShare, "price per share must be a decimal number", rawPrice)
	case !price.IsPositive():
		addError(models.FieldPricePerShare, "price per share must be greater than zero", rawPrice)
	default:
		preview.PricePerShare = price
	}

	if rawFee, ok := byField[models.FieldBrokerFee]; ok && strings.TrimSpace(rawFee) != "" {
		fee, err := parseDecimalField(rawFee)
		switch {
		case err != nil:
			addError(models.FieldBrokerFee, "broker fee must be a decimal number", rawFee)
		case fee.IsNegative():
			addError(models.FieldBrokerFee, "broker fee must not be negative", rawFee)
		default:
			preview.BrokerFee = fee
		}
	}

	notes := byField[models.FieldNotes]
	if utf8.RuneCountInString(notes) > maxNotesLength {
		addError(models.FieldNotes, fmt.Sprintf("notes must be at most %d characters", maxNotesLength), string([]rune(notes)[:50])+"...")
	} else {
		preview.Notes = notes
	}

	preview.Valid = len(preview.Errors) == 0
	return preview
}

// parseDecimalField parses a numeric cell after stripping the separators and
// currency markers brokers put in exports.
func parseDecimalField(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	// Accounting notation: (12.34) means -12.34.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	return decimal.NewFromString(s)
}
