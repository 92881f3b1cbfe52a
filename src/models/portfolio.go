package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a user's aggregate position in one symbol, derived on demand
// from the full transaction history. It is never persisted.
type Holding struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	Shares      decimal.Decimal `json:"shares"`
	AverageCost decimal.Decimal `json:"averageCost"`

	// Live price data; zero when the lookup failed and no cached quote existed.
	LastPrice     decimal.Decimal `json:"lastPrice"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	PriceStale    bool            `json:"priceStale,omitempty"`

	CurrentValue       decimal.Decimal `json:"currentValue"`
	CostBasis          decimal.Decimal `json:"costBasis"`
	TotalReturnDollars decimal.Decimal `json:"totalReturnDollars"`
	TotalReturnPercent decimal.Decimal `json:"totalReturnPercent"`

	SevenDayReturnDollars decimal.Decimal   `json:"sevenDayReturnDollars"`
	SevenDayReturnPercent decimal.Decimal   `json:"sevenDayReturnPercent"`
	Weight                decimal.Decimal   `json:"weight"`
	SparklineData         []decimal.Decimal `json:"sparklineData"`
}

type PortfolioResponse struct {
	Holdings           []Holding       `json:"holdings"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	TotalCost          decimal.Decimal `json:"totalCost"`
	TotalReturnDollars decimal.Decimal `json:"totalReturnDollars"`
	TotalReturnPercent decimal.Decimal `json:"totalReturnPercent"`
	AnnualizedYield    decimal.Decimal `json:"annualizedYield"`
	InvestmentYears    decimal.Decimal `json:"investmentYears"`
	PricesUpdatedAt    time.Time       `json:"pricesUpdatedAt"`

	// ExcludedSymbols lists symbols dropped from the totals because no live or
	// cached price was available; the view degrades instead of failing.
	ExcludedSymbols []string `json:"excludedSymbols,omitempty"`
}

// PortfolioPerformancePoint is one day of the valuation time series.
type PortfolioPerformancePoint struct {
	Date               Date            `json:"date"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	DailyChange        decimal.Decimal `json:"dailyChange"`
	DailyChangePercent decimal.Decimal `json:"dailyChangePercent"`
}

// ValidRanges are the accepted performance history ranges, as understood by
// the Yahoo chart endpoint.
var ValidRanges = map[string]bool{
	"7d":  true,
	"1mo": true,
	"3mo": true,
	"ytd": true,
	"1y":  true,
}
