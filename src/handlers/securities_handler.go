package handlers

import (
	"errors"
	"net/http"

	"github.com/username/wertfolio/backend/src/logger"
	"github.com/username/wertfolio/backend/src/services"
	"github.com/username/wertfolio/backend/src/utils"
)

type SecuritiesHandler struct {
	resolverService  services.ResolverService
	portfolioService services.PortfolioService
}

func NewSecuritiesHandler(resolverService services.ResolverService, portfolioService services.PortfolioService) *SecuritiesHandler {
	return &SecuritiesHandler{resolverService: resolverService, portfolioService: portfolioService}
}

// ResolveSecurity runs the resolver chain for one identifier. The optional
// txn_date parameter additionally requests the closing price on that day.
//
//	GET /api/securities/resolve?isin=IE00B4L5Y983&txn_date=2024-03-08
func (h *SecuritiesHandler) ResolveSecurity(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	isin := r.URL.Query().Get("isin")
	if isin == "" {
		isin = r.URL.Query().Get("identifier")
	}
	date := r.URL.Query().Get("txn_date")
	if date == "" {
		date = r.URL.Query().Get("date")
	}

	meta, err := h.resolverService.Resolve(isin, date)
	if err != nil {
		if errors.Is(err, services.ErrInvalidIdentifier) {
			utils.SendJSONError(w, "A valid ISIN is required", http.StatusBadRequest)
			return
		}
		if errors.Is(err, services.ErrNameNotFound) {
			utils.SendJSONError(w, "Security could not be resolved", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Resolver chain failed", "isin", isin, "error", err)
		utils.SendJSONError(w, "Failed to resolve security", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, meta, http.StatusOK)
}

// BackfillResolutions resolves missing security names and transaction-date
// closes across the authenticated user's transaction log.
//
//	POST /api/securities/backfill
func (h *SecuritiesHandler) BackfillResolutions(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		utils.SendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	updated, err := h.portfolioService.BackfillResolutions(userID)
	if err != nil {
		ctxLogger.Error("Backfill failed", "error", err)
		utils.SendJSONError(w, "Failed to backfill resolutions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]any{"status": "ok", "updated": updated}, http.StatusOK)
}
