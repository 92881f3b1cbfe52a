package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"golang.org/x/net/publicsuffix"
)

const yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// yahooChartResponse is the subset of the v8 chart payload we read.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				ShortName          string  `json:"shortName"`
				LongName           string  `json:"longName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooPriceService answers quote and history lookups against the Yahoo v8
// chart endpoint. Fresh quotes are cached briefly; every successful quote is
// also kept in a long-retention stale cache so a later outage degrades to
// last-known prices instead of failing.
type yahooPriceService struct {
	httpClient   *http.Client
	chartURL     string
	timeout      time.Duration
	sem          chan struct{}
	quoteCache   *cache.Cache
	staleCache   *cache.Cache
	historyCache *cache.Cache
}

// NewPriceService creates the Yahoo-backed price service. concurrency bounds
// the fan-out of batch lookups; timeout applies per symbol lookup.
func NewPriceService(chartURL string, timeout time.Duration, concurrency int, staleRetention time.Duration) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	return &yahooPriceService{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		chartURL:     chartURL,
		timeout:      timeout,
		sem:          make(chan struct{}, concurrency),
		quoteCache:   cache.New(5*time.Minute, 10*time.Minute),
		staleCache:   cache.New(staleRetention, staleRetention),
		historyCache: cache.New(15*time.Minute, 30*time.Minute),
	}
}

func (s *yahooPriceService) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if cached, found := s.quoteCache.Get(symbol); found {
		return cached.(Quote), nil
	}

	quote, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		if stale, found := s.staleCache.Get(symbol); found {
			q := stale.(Quote)
			q.Stale = true
			logger.L.Warn("Live quote lookup failed, serving stale quote",
				"symbol", symbol, "fetchedAt", q.FetchedAt, "error", err)
			return q, nil
		}
		return Quote{}, err
	}

	s.quoteCache.SetDefault(symbol, quote)
	s.staleCache.SetDefault(symbol, quote)
	return quote, nil
}

// GetQuotes looks up every symbol with a bounded fan-out. Symbols that fail
// are simply absent from the result; one slow symbol never blocks another
// beyond the per-lookup timeout.
func (s *yahooPriceService) GetQuotes(ctx context.Context, symbols []string) map[string]Quote {
	results := make(map[string]Quote, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			quote, err := s.GetQuote(lookupCtx, symbol)
			if err != nil {
				logger.L.Warn("Quote lookup failed", "symbol", symbol, "error", err)
				return
			}
			mu.Lock()
			results[symbol] = quote
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

func (s *yahooPriceService) GetHistory(ctx context.Context, symbol string, rangeKey string) ([]PricePoint, error) {
	cacheKey := symbol + "|" + rangeKey
	if cached, found := s.historyCache.Get(cacheKey); found {
		return cached.([]PricePoint), nil
	}

	data, err := s.fetchChart(ctx, symbol, yahooRange(rangeKey), "1d")
	if err != nil {
		return nil, err
	}

	result := data.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no price history returned for %s", symbol)
	}
	closes := result.Indicators.Quote[0].Close

	points := make([]PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, PricePoint{
			Date:  models.DateOf(time.Unix(ts, 0).UTC()),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no usable price history for %s", symbol)
	}

	s.historyCache.SetDefault(cacheKey, points)
	return points, nil
}

// GetHistoryBatch fetches history for every symbol with the same bounded
// fan-out as GetQuotes. Failed symbols are absent from the result.
func (s *yahooPriceService) GetHistoryBatch(ctx context.Context, symbols []string, rangeKey string) map[string][]PricePoint {
	results := make(map[string][]PricePoint, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			points, err := s.GetHistory(lookupCtx, symbol, rangeKey)
			if err != nil {
				logger.L.Warn("History lookup failed", "symbol", symbol, "range", rangeKey, "error", err)
				return
			}
			mu.Lock()
			results[symbol] = points
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

func (s *yahooPriceService) fetchQuote(ctx context.Context, symbol string) (Quote, error) {
	data, err := s.fetchChart(ctx, symbol, "5d", "1d")
	if err != nil {
		return Quote{}, err
	}

	meta := data.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
	}

	companyName := meta.LongName
	if companyName == "" {
		companyName = meta.ShortName
	}
	previousClose := meta.PreviousClose
	if previousClose == 0 {
		previousClose = meta.ChartPreviousClose
	}

	return Quote{
		Symbol:        symbol,
		CompanyName:   companyName,
		Price:         decimal.NewFromFloat(meta.RegularMarketPrice),
		PreviousClose: decimal.NewFromFloat(previousClose),
		FetchedAt:     time.Now(),
	}, nil
}

func (s *yahooPriceService) fetchChart(ctx context.Context, symbol, yrange, interval string) (*yahooChartResponse, error) {
	chartURL := fmt.Sprintf("%s/%s?range=%s&interval=%s",
		s.chartURL, url.PathEscape(symbol), yrange, interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chartURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart request for %s returned status %d", symbol, resp.StatusCode)
	}

	var data yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding chart response for %s: %w", symbol, err)
	}
	if data.Chart.Error != nil {
		if data.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
		}
		return nil, fmt.Errorf("chart API error for %s: %s", symbol, data.Chart.Error.Description)
	}
	if len(data.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
	}
	return &data, nil
}

// yahooRange maps our range keys onto ranges the chart endpoint accepts. The
// endpoint has no 7d range, so a week is served from a month of data and
// trimmed by the caller.
func yahooRange(rangeKey string) string {
	switch rangeKey {
	case "7d":
		return "1mo"
	case "1mo", "3mo", "ytd", "1y":
		return rangeKey
	default:
		return "1mo"
	}
}
