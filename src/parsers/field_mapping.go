package parsers

import (
	"sort"
	"strings"

	"github.com/username/stocktracker/backend/src/models"
)

// fieldAliases maps each canonical transaction field to the column names
// brokers are known to use. Matching is case-insensitive on normalized
// header text.
var fieldAliases = map[string][]string{
	models.FieldType:            {"type", "transaction type", "action", "side", "buy/sell", "order type", "activity"},
	models.FieldSymbol:          {"symbol", "ticker", "stock", "security", "stock symbol", "ticker symbol", "instrument"},
	models.FieldExchange:        {"exchange", "market", "listing exchange", "exchange name"},
	models.FieldTransactionDate: {"date", "transaction date", "trade date", "settlement date", "executed", "purchase date", "date acquired"},
	models.FieldShares:          {"shares", "quantity", "qty", "units", "amount", "number of shares", "share count"},
	models.FieldPricePerShare:   {"price", "price per share", "share price", "unit price", "cost per share", "execution price", "avg price"},
	models.FieldBrokerFee:       {"fee", "fees", "broker fee", "commission", "commissions", "transaction fee"},
	models.FieldNotes:           {"notes", "note", "description", "memo", "comment", "comments", "details"},
}

// inferenceOrder fixes the order fields claim columns in, so inference is
// deterministic when two fields score equally against the same header.
var inferenceOrder = []string{
	models.FieldType,
	models.FieldSymbol,
	models.FieldExchange,
	models.FieldTransactionDate,
	models.FieldShares,
	models.FieldPricePerShare,
	models.FieldBrokerFee,
	models.FieldNotes,
}

const fuzzyMatchThreshold = 0.7

// SuggestMappings scores every header against every canonical field and
// returns the best column per field. Exact alias matches score 1.0,
// substring matches 0.9, and close Levenshtein matches their similarity
// ratio. A column is claimed by at most one field; earlier columns win ties.
func SuggestMappings(headers []string) models.MappingSuggestion {
	suggestion := models.MappingSuggestion{
		SuggestedMappings: make(map[string]string),
		ConfidenceScores:  make(map[string]float64),
	}

	claimed := make(map[string]bool, len(headers))
	for _, field := range inferenceOrder {
		bestHeader := ""
		bestScore := 0.0
		for _, header := range headers {
			if claimed[header] {
				continue
			}
			score := scoreHeader(normalizeHeader(header), fieldAliases[field])
			if score > bestScore {
				bestScore = score
				bestHeader = header
			}
		}
		if bestHeader != "" {
			suggestion.SuggestedMappings[bestHeader] = field
			suggestion.ConfidenceScores[bestHeader] = bestScore
			claimed[bestHeader] = true
		}
	}

	for _, header := range headers {
		if !claimed[header] {
			suggestion.UnmappedColumns = append(suggestion.UnmappedColumns, header)
		}
	}
	sort.Strings(suggestion.UnmappedColumns)
	return suggestion
}

// MissingRequiredFields returns the required canonical fields that no column
// in the mapping covers.
func MissingRequiredFields(mapping models.FieldMapping) []string {
	covered := make(map[string]bool, len(mapping))
	for _, field := range mapping {
		covered[field] = true
	}
	var missing []string
	for _, field := range models.RequiredFields {
		if !covered[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

func normalizeHeader(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

func scoreHeader(normalized string, aliases []string) float64 {
	best := 0.0
	for _, alias := range aliases {
		var score float64
		switch {
		case normalized == alias:
			score = 1.0
		case strings.Contains(normalized, alias) || strings.Contains(alias, normalized):
			score = 0.9
		default:
			if sim := similarity(normalized, alias); sim > fuzzyMatchThreshold {
				score = sim
			}
		}
		if score > best {
			best = score
		}
	}
	return best
}

// similarity is 1 - normalized Levenshtein distance.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1.0
	}
	return float64(longer-levenshtein(a, b)) / float64(longer)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
