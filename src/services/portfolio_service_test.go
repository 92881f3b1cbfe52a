package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/services"
)

func newPortfolioFixture(txnStore *fakeTransactionStore, prices *fakePriceService, includeFees bool) services.PortfolioService {
	return services.NewPortfolioService(txnStore, prices, time.Minute, includeFees)
}

func quoteMap(prices map[string]string) map[string]services.Quote {
	out := make(map[string]services.Quote, len(prices))
	for symbol, price := range prices {
		out[symbol] = services.Quote{Symbol: symbol, Price: dec(price)}
	}
	return out
}

func TestPortfolioWeightedAverageCost(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "100", "0")
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-02-10", "10", "120", "0")
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150"})}
	svc := newPortfolioFixture(txnStore, prices, true)

	resp, err := svc.GetPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, resp.Holdings, 1)

	h := resp.Holdings[0]
	assert.True(t, h.Shares.Equal(dec("20")), "shares: %s", h.Shares)
	assert.True(t, h.AverageCost.Equal(dec("110")), "average cost: %s", h.AverageCost)
	assert.True(t, h.CostBasis.Equal(dec("2200")), "cost basis: %s", h.CostBasis)
	assert.True(t, h.CurrentValue.Equal(dec("3000")), "current value: %s", h.CurrentValue)
	assert.True(t, h.TotalReturnDollars.Equal(dec("800")))
}

func TestPortfolioSellPreservesAverageCost(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "100", "0")
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-02-10", "10", "120", "0")
	seedTxn(txnStore, 1, models.TransactionTypeSell, "AAPL", "2024-03-10", "5", "150", "0")
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150"})}
	svc := newPortfolioFixture(txnStore, prices, true)

	resp, err := svc.GetPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, resp.Holdings, 1)

	h := resp.Holdings[0]
	assert.True(t, h.Shares.Equal(dec("15")), "shares: %s", h.Shares)
	assert.True(t, h.AverageCost.Equal(dec("110")), "a sell must not move the average cost, got %s", h.AverageCost)
	assert.True(t, h.CostBasis.Equal(dec("1650")), "cost basis: %s", h.CostBasis)
}

func TestPortfolioFeePolicy(t *testing.T) {
	seed := func() *fakeTransactionStore {
		txnStore := newFakeStore()
		seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "100", "10")
		return txnStore
	}
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150"})}
	ctx := context.Background()

	withFees, err := newPortfolioFixture(seed(), prices, true).GetPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.True(t, withFees.Holdings[0].CostBasis.Equal(dec("1010")))

	withoutFees, err := newPortfolioFixture(seed(), prices, false).GetPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.True(t, withoutFees.Holdings[0].CostBasis.Equal(dec("1000")))
}

func TestPortfolioOversoldHistoryClampsToZero(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "100", "0")
	seedTxn(txnStore, 1, models.TransactionTypeSell, "AAPL", "2024-02-10", "15", "150", "0")
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150"})}
	svc := newPortfolioFixture(txnStore, prices, true)

	resp, err := svc.GetPortfolio(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, resp.Holdings, "an oversold position clamps to zero, never goes short")
	assert.True(t, resp.TotalValue.IsZero())
}

func TestPortfolioExcludesUnpricedSymbols(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "100", "0")
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "DLSTD", "2024-01-10", "10", "50", "0")
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150"})}
	svc := newPortfolioFixture(txnStore, prices, true)

	resp, err := svc.GetPortfolio(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, resp.Holdings, 1)
	assert.Equal(t, "AAPL", resp.Holdings[0].Symbol)
	assert.Equal(t, []string{"DLSTD"}, resp.ExcludedSymbols)
	// Totals cover only priced holdings.
	assert.True(t, resp.TotalValue.Equal(dec("1500")))
	assert.True(t, resp.TotalCost.Equal(dec("1000")))
}

func TestPortfolioWeights(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "20", "100", "0")
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "MSFT", "2024-01-10", "10", "100", "0")
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150", "MSFT": "100"})}
	svc := newPortfolioFixture(txnStore, prices, true)

	resp, err := svc.GetPortfolio(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, resp.Holdings, 2)

	assert.True(t, resp.TotalValue.Equal(dec("4000")))
	assert.True(t, resp.Holdings[0].Weight.Equal(dec("75")), "AAPL weight: %s", resp.Holdings[0].Weight)
	assert.True(t, resp.Holdings[1].Weight.Equal(dec("25")), "MSFT weight: %s", resp.Holdings[1].Weight)
}

func TestPortfolioEmptyHistory(t *testing.T) {
	svc := newPortfolioFixture(newFakeStore(), &fakePriceService{}, true)

	resp, err := svc.GetPortfolio(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, resp.Holdings)
	assert.True(t, resp.TotalValue.IsZero())
}

func TestPortfolioCacheInvalidation(t *testing.T) {
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-01-10", "10", "100", "0")
	prices := &fakePriceService{quotes: quoteMap(map[string]string{"AAPL": "150"})}
	svc := newPortfolioFixture(txnStore, prices, true)
	ctx := context.Background()

	first, err := svc.GetPortfolio(ctx, 1)
	require.NoError(t, err)

	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", "2024-02-10", "10", "100", "0")

	cached, err := svc.GetPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cached.TotalValue.Equal(first.TotalValue), "second read should come from cache")

	svc.InvalidateUser(1)
	fresh, err := svc.GetPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fresh.Holdings[0].Shares.Equal(dec("20")))
}

func TestPerformanceHistorySeries(t *testing.T) {
	today := models.Today()
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", today.AddDays(-30).String(), "2", "100", "0")

	prices := &fakePriceService{
		quotes: quoteMap(map[string]string{"AAPL": "110"}),
		histories: map[string][]services.PricePoint{
			"AAPL": {
				{Date: today.AddDays(-7), Close: dec("100")},
				{Date: today.AddDays(-3), Close: dec("110")},
			},
		},
	}
	svc := newPortfolioFixture(txnStore, prices, true)

	points, err := svc.GetPerformanceHistory(context.Background(), 1, "7d")
	require.NoError(t, err)
	require.Len(t, points, 7)

	// Strictly chronological, one point per day.
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i].Date.After(points[i-1].Date.Time),
			"points must be in strictly increasing date order")
	}

	assert.True(t, points[0].DailyChange.IsZero(), "first point has no previous day to compare against")
	assert.True(t, points[0].TotalValue.Equal(dec("200")))

	// Days without a close carry the last known price forward.
	assert.True(t, points[3].TotalValue.Equal(dec("200")), "day -4 forward-fills the -7 close")
	assert.True(t, points[4].TotalValue.Equal(dec("220")), "day -3 picks up the new close")
	assert.True(t, points[4].DailyChange.Equal(dec("20")))
	assert.True(t, points[4].DailyChangePercent.Equal(dec("10")), "got %s", points[4].DailyChangePercent)
	assert.True(t, points[6].TotalValue.Equal(dec("220")))
}

func TestPerformanceHistoryMidRangePurchase(t *testing.T) {
	today := models.Today()
	txnStore := newFakeStore()
	seedTxn(txnStore, 1, models.TransactionTypeBuy, "AAPL", today.AddDays(-4).String(), "2", "100", "0")

	prices := &fakePriceService{
		quotes: quoteMap(map[string]string{"AAPL": "100"}),
		histories: map[string][]services.PricePoint{
			"AAPL": {{Date: today.AddDays(-7), Close: dec("100")}},
		},
	}
	svc := newPortfolioFixture(txnStore, prices, true)

	points, err := svc.GetPerformanceHistory(context.Background(), 1, "7d")
	require.NoError(t, err)
	require.Len(t, points, 7)

	// Before the purchase the portfolio is worth nothing.
	assert.True(t, points[0].TotalValue.IsZero())
	assert.True(t, points[2].TotalValue.IsZero())
	assert.True(t, points[3].TotalValue.Equal(dec("200")), "purchase day onward is valued")
	assert.True(t, points[6].TotalValue.Equal(dec("200")))
}

func TestPerformanceHistoryValidation(t *testing.T) {
	svc := newPortfolioFixture(newFakeStore(), &fakePriceService{}, true)
	ctx := context.Background()

	_, err := svc.GetPerformanceHistory(ctx, 1, "2weeks")
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	points, err := svc.GetPerformanceHistory(ctx, 1, "1mo")
	require.NoError(t, err)
	assert.Empty(t, points, "no transactions means an empty series, not an error")
}
