package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/store"
)

const sparklineMaxPoints = 52

var (
	hundred      = decimal.NewFromInt(100)
	daysPerYear  = decimal.NewFromFloat(365.25)
	percentScale = int32(4)
)

// position is the running weighted-average state for one symbol while
// folding over transaction history.
type position struct {
	shares      decimal.Decimal
	cost        decimal.Decimal
	companyName string
}

// aggregatePositions folds chronologically ordered transactions into
// per-symbol positions using the weighted-average-cost method. A SELL reduces
// cost proportionally so average cost per share is preserved; selling more
// than held clamps the position at zero rather than going short.
func aggregatePositions(txns []models.Transaction, includeFees bool) map[string]*position {
	positions := make(map[string]*position)
	for _, txn := range txns {
		applyTransaction(positions, txn, includeFees)
	}
	return positions
}

type portfolioServiceImpl struct {
	txnStore     store.TransactionStore
	priceService PriceService
	viewCache    *cache.Cache
	includeFees  bool
}

// NewPortfolioService creates the on-demand portfolio view. Views are cached
// per user for cacheExpiry; any write path must call InvalidateUser.
func NewPortfolioService(txnStore store.TransactionStore, priceService PriceService, cacheExpiry time.Duration, includeFees bool) PortfolioService {
	return &portfolioServiceImpl{
		txnStore:     txnStore,
		priceService: priceService,
		viewCache:    cache.New(cacheExpiry, 2*cacheExpiry),
		includeFees:  includeFees,
	}
}

func portfolioCacheKey(userID int64) string {
	return fmt.Sprintf("portfolio:%d", userID)
}

// InvalidateUser drops the cached portfolio view after a write.
func (s *portfolioServiceImpl) InvalidateUser(userID int64) {
	s.viewCache.Delete(portfolioCacheKey(userID))
}

func (s *portfolioServiceImpl) GetPortfolio(ctx context.Context, userID int64) (*models.PortfolioResponse, error) {
	if cached, found := s.viewCache.Get(portfolioCacheKey(userID)); found {
		return cached.(*models.PortfolioResponse), nil
	}
	return s.buildAndCache(ctx, userID)
}

// RefreshPortfolio bypasses the cached view and forces fresh price lookups.
func (s *portfolioServiceImpl) RefreshPortfolio(ctx context.Context, userID int64) (*models.PortfolioResponse, error) {
	s.InvalidateUser(userID)
	return s.buildAndCache(ctx, userID)
}

func (s *portfolioServiceImpl) buildAndCache(ctx context.Context, userID int64) (*models.PortfolioResponse, error) {
	response, err := s.buildPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.viewCache.SetDefault(portfolioCacheKey(userID), response)
	return response, nil
}

func (s *portfolioServiceImpl) buildPortfolio(ctx context.Context, userID int64) (*models.PortfolioResponse, error) {
	txns, err := s.txnStore.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	response := &models.PortfolioResponse{
		Holdings:        []models.Holding{},
		PricesUpdatedAt: time.Now(),
	}
	if len(txns) == 0 {
		return response, nil
	}

	positions := aggregatePositions(txns, s.includeFees)

	symbols := make([]string, 0, len(positions))
	for symbol, pos := range positions {
		if pos.shares.IsPositive() {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		return response, nil
	}

	quotes := s.priceService.GetQuotes(ctx, symbols)
	histories := s.priceService.GetHistoryBatch(ctx, symbols, "1y")

	for _, symbol := range symbols {
		pos := positions[symbol]
		quote, ok := quotes[symbol]
		if !ok {
			logger.L.Warn("No live or cached price for symbol, excluding from totals",
				"userID", userID, "symbol", symbol)
			response.ExcludedSymbols = append(response.ExcludedSymbols, symbol)
			continue
		}

		holding := models.Holding{
			Symbol:        symbol,
			CompanyName:   pos.companyName,
			Shares:        pos.shares,
			AverageCost:   pos.cost.Div(pos.shares),
			LastPrice:     quote.Price,
			PreviousClose: quote.PreviousClose,
			PriceStale:    quote.Stale,
			CostBasis:     pos.cost,
			CurrentValue:  pos.shares.Mul(quote.Price),
		}
		if holding.CompanyName == "" {
			holding.CompanyName = quote.CompanyName
		}
		holding.TotalReturnDollars = holding.CurrentValue.Sub(holding.CostBasis)
		holding.TotalReturnPercent = percentOf(holding.TotalReturnDollars, holding.CostBasis)

		if history := histories[symbol]; len(history) > 0 {
			holding.SparklineData = downsampleCloses(history, sparklineMaxPoints)
			if weekAgo, ok := closeOnOrBefore(history, models.Today().AddDays(-7)); ok && weekAgo.IsPositive() {
				weekAgoValue := pos.shares.Mul(weekAgo)
				holding.SevenDayReturnDollars = holding.CurrentValue.Sub(weekAgoValue)
				holding.SevenDayReturnPercent = percentOf(holding.SevenDayReturnDollars, weekAgoValue)
			}
		}

		response.Holdings = append(response.Holdings, holding)
		response.TotalValue = response.TotalValue.Add(holding.CurrentValue)
		response.TotalCost = response.TotalCost.Add(holding.CostBasis)
	}

	for i := range response.Holdings {
		response.Holdings[i].Weight = percentOf(response.Holdings[i].CurrentValue, response.TotalValue)
	}

	response.TotalReturnDollars = response.TotalValue.Sub(response.TotalCost)
	response.TotalReturnPercent = percentOf(response.TotalReturnDollars, response.TotalCost)
	response.InvestmentYears, response.AnnualizedYield = annualizedYield(
		txns[0].TransactionDate, response.TotalValue, response.TotalCost)
	return response, nil
}

// percentOf is part/whole as a percentage, 0 when the denominator is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(percentScale)
}

// annualizedYield computes the compound annual growth rate since the first
// transaction. Under a year of history reports the simple return instead, so
// short histories are not extrapolated into absurd annual figures.
func annualizedYield(firstDate models.Date, totalValue, totalCost decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if totalCost.IsZero() || firstDate.IsZero() {
		return decimal.Zero, decimal.Zero
	}

	days := int(time.Since(firstDate.Time).Hours() / 24)
	if days < 1 {
		days = 1
	}
	years := decimal.NewFromInt(int64(days)).Div(daysPerYear).Round(2)

	if days < 365 {
		return years, percentOf(totalValue.Sub(totalCost), totalCost)
	}

	ratio, _ := totalValue.Div(totalCost).Float64()
	yearsF, _ := years.Float64()
	if ratio <= 0 || yearsF <= 0 {
		return years, decimal.Zero
	}
	cagr := (math.Pow(ratio, 1/yearsF) - 1) * 100
	return years, decimal.NewFromFloat(cagr).Round(percentScale)
}

// closeOnOrBefore returns the latest close at or before the given date.
func closeOnOrBefore(history []PricePoint, date models.Date) (decimal.Decimal, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].Date.After(date.Time) {
			return history[i].Close, true
		}
	}
	return decimal.Zero, false
}

// downsampleCloses thins a close series to at most maxPoints, always keeping
// the final point so the sparkline ends at the latest price.
func downsampleCloses(history []PricePoint, maxPoints int) []decimal.Decimal {
	if len(history) <= maxPoints {
		closes := make([]decimal.Decimal, len(history))
		for i, p := range history {
			closes[i] = p.Close
		}
		return closes
	}

	step := float64(len(history)-1) / float64(maxPoints-1)
	closes := make([]decimal.Decimal, 0, maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(math.Round(float64(i) * step))
		if idx > len(history)-1 {
			idx = len(history) - 1
		}
		closes = append(closes, history[idx].Close)
	}
	return closes
}
