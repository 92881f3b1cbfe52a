package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/services"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// stubTransactionService satisfies services.TransactionService with canned
// answers; only the methods a test exercises matter.
type stubTransactionService struct{}

func (stubTransactionService) CreateTransaction(ctx context.Context, userID int64, req models.TransactionRequest) (*models.Transaction, error) {
	return nil, services.ErrInvalidInput
}

func (stubTransactionService) UpdateTransaction(ctx context.Context, userID, txnID int64, req models.TransactionRequest) (*models.Transaction, error) {
	return nil, services.ErrNotFound
}

func (stubTransactionService) DeleteTransaction(userID, txnID int64) error { return nil }

func (stubTransactionService) GetTransaction(userID, txnID int64) (*models.Transaction, error) {
	return nil, services.ErrNotFound
}

func (stubTransactionService) ListTransactions(userID int64) ([]models.Transaction, error) {
	return []models.Transaction{}, nil
}

func (stubTransactionService) ValidateTicker(ctx context.Context, symbol string) models.TickerValidationResponse {
	return models.TickerValidationResponse{Valid: false}
}

func (stubTransactionService) ExportCSV(userID int64, w io.Writer) error {
	_, err := io.WriteString(w, "Date,Symbol,Type,Quantity,Price,Fee,Total,Notes\n")
	return err
}

func authenticatedRequest(method, target string, userID int64) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(r.Context(), userIDContextKey, userID)
	return r.WithContext(ctx)
}

func TestHandleExportAttachmentHeaders(t *testing.T) {
	h := NewTransactionHandler(stubTransactionService{})
	w := httptest.NewRecorder()

	h.HandleExport(w, authenticatedRequest(http.MethodGet, "/api/transactions/export", 1))

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	wantDisposition := fmt.Sprintf(`attachment; filename="transactions_%s.csv"`, time.Now().Format("2006-01-02"))
	assert.Equal(t, wantDisposition, resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Date,Symbol,Type")
}

func TestHandleExportRequiresAuthentication(t *testing.T) {
	h := NewTransactionHandler(stubTransactionService{})
	w := httptest.NewRecorder()

	h.HandleExport(w, httptest.NewRequest(http.MethodGet, "/api/transactions/export", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
}
