package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/models"
)

// GetPerformanceHistory builds the daily valuation series for the requested
// range. Each point values the holdings snapshot as of that date with that
// date's close; missing closes carry the last known price forward.
func (s *portfolioServiceImpl) GetPerformanceHistory(ctx context.Context, userID int64, rangeKey string) ([]models.PortfolioPerformancePoint, error) {
	if !models.ValidRanges[rangeKey] {
		return nil, fmt.Errorf("%w: unknown range %q", ErrInvalidInput, rangeKey)
	}

	txns, err := s.txnStore.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(txns) == 0 {
		return []models.PortfolioPerformancePoint{}, nil
	}

	today := models.Today()
	start := rangeStart(rangeKey, today)
	// History ends yesterday: today's close does not exist yet.
	end := today.AddDays(-1)
	if end.Before(start.Time) {
		return []models.PortfolioPerformancePoint{}, nil
	}

	symbols := distinctSymbols(txns)
	histories := s.priceService.GetHistoryBatch(ctx, symbols, rangeKey)

	points := make([]models.PortfolioPerformancePoint, 0)
	positions := make(map[string]*position)
	lastClose := make(map[string]decimal.Decimal)
	txnIdx := 0
	historyIdx := make(map[string]int, len(symbols))

	var prevValue decimal.Decimal
	first := true
	for date := start; !date.After(end.Time); date = date.AddDays(1) {
		// Fold in every transaction dated on or before this day.
		for txnIdx < len(txns) && !txns[txnIdx].TransactionDate.After(date.Time) {
			applyTransaction(positions, txns[txnIdx], s.includeFees)
			txnIdx++
		}

		// Advance each symbol's close pointer and forward-fill.
		for symbol, history := range histories {
			i := historyIdx[symbol]
			for i < len(history) && !history[i].Date.After(date.Time) {
				lastClose[symbol] = history[i].Close
				i++
			}
			historyIdx[symbol] = i
		}

		totalValue := decimal.Zero
		for symbol, pos := range positions {
			if !pos.shares.IsPositive() {
				continue
			}
			if closePrice, ok := lastClose[symbol]; ok {
				totalValue = totalValue.Add(pos.shares.Mul(closePrice))
			}
		}

		point := models.PortfolioPerformancePoint{
			Date:       date,
			TotalValue: totalValue,
		}
		if first {
			first = false
		} else {
			point.DailyChange = totalValue.Sub(prevValue)
			point.DailyChangePercent = percentOf(point.DailyChange, prevValue)
		}
		prevValue = totalValue
		points = append(points, point)
	}
	return points, nil
}

// applyTransaction is the single-transaction step of aggregatePositions,
// shared with the incremental daily fold.
func applyTransaction(positions map[string]*position, txn models.Transaction, includeFees bool) {
	pos, ok := positions[txn.Symbol]
	if !ok {
		pos = &position{shares: decimal.Zero, cost: decimal.Zero}
		positions[txn.Symbol] = pos
	}
	if txn.CompanyName != "" {
		pos.companyName = txn.CompanyName
	}

	switch txn.Type {
	case models.TransactionTypeBuy:
		pos.shares = pos.shares.Add(txn.Shares)
		cost := txn.Shares.Mul(txn.PricePerShare)
		if includeFees {
			cost = cost.Add(txn.BrokerFee)
		}
		pos.cost = pos.cost.Add(cost)
	case models.TransactionTypeSell:
		before := pos.shares
		remaining := before.Sub(txn.Shares)
		if remaining.Sign() <= 0 || before.Sign() <= 0 {
			pos.shares = decimal.Zero
			pos.cost = decimal.Zero
			return
		}
		pos.shares = remaining
		pos.cost = pos.cost.Mul(remaining).Div(before)
	}
}

func rangeStart(rangeKey string, today models.Date) models.Date {
	switch rangeKey {
	case "7d":
		return today.AddDays(-7)
	case "1mo":
		return models.DateOf(today.AddDate(0, -1, 0))
	case "3mo":
		return models.DateOf(today.AddDate(0, -3, 0))
	case "ytd":
		return models.NewDate(today.Year(), time.January, 1)
	case "1y":
		return models.DateOf(today.AddDate(-1, 0, 0))
	default:
		return models.DateOf(today.AddDate(0, -1, 0))
	}
}

func distinctSymbols(txns []models.Transaction) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, txn := range txns {
		if !seen[txn.Symbol] {
			seen[txn.Symbol] = true
			symbols = append(symbols, txn.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}
