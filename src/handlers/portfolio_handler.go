package handlers

import (
	"net/http"

	"github.com/username/wertfolio/backend/src/logger"
	"github.com/username/wertfolio/backend/src/services"
	"github.com/username/wertfolio/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

// GetPortfolio returns the valued portfolio for the authenticated user:
// priced open positions, average-cost performance rows, per-instrument
// errors, and EUR totals.
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	resp, err := h.portfolioService.GetPortfolio(userID)
	if err != nil {
		ctxLogger.Error("Portfolio valuation failed", "error", err)
		utils.SendJSONError(w, "Failed to value portfolio", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, resp, http.StatusOK)
}
