package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/services"
	"github.com/username/stocktracker/backend/src/utils"
)

type TransactionHandler struct {
	transactionService services.TransactionService
}

func NewTransactionHandler(transactionService services.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

func (h *TransactionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	txns, err := h.transactionService.ListTransactions(userID)
	if err != nil {
		logger.L.Error("Failed to list transactions", "userID", userID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to retrieve transactions")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, txns, "")
}

func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	txnID, err := parseIDParam(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	txn, err := h.transactionService.GetTransaction(userID, txnID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, txn, "")
}

func (h *TransactionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txn, err := h.transactionService.CreateTransaction(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, txn, "Transaction created")
}

func (h *TransactionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	txnID, err := parseIDParam(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	txn, err := h.transactionService.UpdateTransaction(r.Context(), userID, txnID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, txn, "Transaction updated")
}

func (h *TransactionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	txnID, err := parseIDParam(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, txnID); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, nil, "Transaction deleted")
}

func (h *TransactionHandler) HandleValidateTicker(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		utils.WriteError(w, http.StatusBadRequest, "symbol query parameter is required")
		return
	}

	result := h.transactionService.ValidateTicker(r.Context(), symbol)
	utils.WriteSuccess(w, http.StatusOK, result, "")
}

// HandleExport streams the user's transactions as a CSV attachment. This is
// the one endpoint that does not use the JSON envelope.
func (h *TransactionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("transactions_%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := h.transactionService.ExportCSV(userID, w); err != nil {
		// Headers are already out; all we can do is log.
		logger.L.Error("Failed to export transactions", "userID", userID, "error", err)
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// writeServiceError maps service sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrOversell):
		utils.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrTickerNotFound):
		utils.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Transaction not found")
	default:
		logger.L.Error("Unhandled service error", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
