package handlers

import (
	"net/http"

	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/services"
	"github.com/username/stocktracker/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	portfolio, err := h.portfolioService.GetPortfolio(r.Context(), userID)
	if err != nil {
		logger.L.Error("Failed to build portfolio", "userID", userID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to build portfolio")
		return
	}
	writePortfolioWithETag(w, r, portfolio)
}

// HandleRefreshPortfolio bypasses the cached view and forces fresh quotes.
func (h *PortfolioHandler) HandleRefreshPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	portfolio, err := h.portfolioService.RefreshPortfolio(r.Context(), userID)
	if err != nil {
		logger.L.Error("Failed to refresh portfolio", "userID", userID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to refresh portfolio")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, portfolio, "")
}

func (h *PortfolioHandler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	rangeKey := r.URL.Query().Get("range")
	if rangeKey == "" {
		rangeKey = "1mo"
	}

	points, err := h.portfolioService.GetPerformanceHistory(r.Context(), userID, rangeKey)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, points, "")
}

// writePortfolioWithETag lets a polling client skip identical payloads.
func writePortfolioWithETag(w http.ResponseWriter, r *http.Request, portfolio interface{}) {
	etag, err := utils.GenerateETag(portfolio)
	if err == nil {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	utils.WriteSuccess(w, http.StatusOK, portfolio, "")
}
