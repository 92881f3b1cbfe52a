package services_test

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/services"
	"github.com/username/stocktracker/backend/src/store"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustDate(s string) models.Date {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakePriceService answers from canned maps. Symbols absent from quotes
// resolve as unknown tickers, mirroring the real service's batch behavior.
type fakePriceService struct {
	quotes    map[string]services.Quote
	histories map[string][]services.PricePoint
	quoteErr  error
}

func (f *fakePriceService) GetQuote(ctx context.Context, symbol string) (services.Quote, error) {
	if f.quoteErr != nil {
		return services.Quote{}, f.quoteErr
	}
	quote, ok := f.quotes[symbol]
	if !ok {
		return services.Quote{}, services.ErrTickerNotFound
	}
	return quote, nil
}

func (f *fakePriceService) GetQuotes(ctx context.Context, symbols []string) map[string]services.Quote {
	out := make(map[string]services.Quote, len(symbols))
	for _, symbol := range symbols {
		if quote, ok := f.quotes[symbol]; ok {
			out[symbol] = quote
		}
	}
	return out
}

func (f *fakePriceService) GetHistory(ctx context.Context, symbol, rangeKey string) ([]services.PricePoint, error) {
	history, ok := f.histories[symbol]
	if !ok {
		return nil, services.ErrTickerNotFound
	}
	return history, nil
}

func (f *fakePriceService) GetHistoryBatch(ctx context.Context, symbols []string, rangeKey string) map[string][]services.PricePoint {
	out := make(map[string][]services.PricePoint, len(symbols))
	for _, symbol := range symbols {
		if history, ok := f.histories[symbol]; ok {
			out[symbol] = history
		}
	}
	return out
}

// fakeTransactionStore is an in-memory TransactionStore with the same
// chronological list ordering as the SQLite implementation.
type fakeTransactionStore struct {
	nextID      int64
	txns        []models.Transaction
	createErr   error
	failSymbols map[string]error
}

func newFakeStore() *fakeTransactionStore {
	return &fakeTransactionStore{}
}

func (f *fakeTransactionStore) insert(txn *models.Transaction) {
	f.nextID++
	txn.ID = f.nextID
	txn.CalculateTotalAmount()
	f.txns = append(f.txns, *txn)
}

func (f *fakeTransactionStore) Create(txn *models.Transaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.insert(txn)
	return nil
}

func (f *fakeTransactionStore) CreateImported(txn *models.Transaction, importBatchID string) error {
	if f.createErr != nil {
		return f.createErr
	}
	if err, ok := f.failSymbols[txn.Symbol]; ok {
		return err
	}
	f.insert(txn)
	return nil
}

func (f *fakeTransactionStore) Update(txn *models.Transaction) error {
	for i := range f.txns {
		if f.txns[i].ID == txn.ID && f.txns[i].UserID == txn.UserID {
			txn.CalculateTotalAmount()
			f.txns[i] = *txn
			return nil
		}
	}
	return store.ErrTransactionNotFound
}

func (f *fakeTransactionStore) Delete(userID, txnID int64) error {
	for i := range f.txns {
		if f.txns[i].ID == txnID && f.txns[i].UserID == userID {
			f.txns = append(f.txns[:i], f.txns[i+1:]...)
			return nil
		}
	}
	return store.ErrTransactionNotFound
}

func (f *fakeTransactionStore) GetByID(userID, txnID int64) (*models.Transaction, error) {
	for i := range f.txns {
		if f.txns[i].ID == txnID && f.txns[i].UserID == userID {
			txn := f.txns[i]
			return &txn, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (f *fakeTransactionStore) ListByUser(userID int64) ([]models.Transaction, error) {
	return f.list(func(txn models.Transaction) bool {
		return txn.UserID == userID
	})
}

func (f *fakeTransactionStore) ListByUserAndSymbol(userID int64, symbol string) ([]models.Transaction, error) {
	return f.list(func(txn models.Transaction) bool {
		return txn.UserID == userID && txn.Symbol == symbol
	})
}

func (f *fakeTransactionStore) list(keep func(models.Transaction) bool) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, txn := range f.txns {
		if keep(txn) {
			out = append(out, txn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate.Time) {
			return out[i].TransactionDate.Before(out[j].TransactionDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func seedTxn(f *fakeTransactionStore, userID int64, txnType models.TransactionType, symbol, date, shares, price, fee string) models.Transaction {
	txn := models.Transaction{
		UserID:          userID,
		Type:            txnType,
		Symbol:          symbol,
		TransactionDate: mustDate(date),
		Shares:          dec(shares),
		PricePerShare:   dec(price),
		BrokerFee:       dec(fee),
	}
	f.insert(&txn)
	return txn
}
