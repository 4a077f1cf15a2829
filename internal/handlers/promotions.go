package handlers

import (
	"net/http"
	"time"

	"sunsets-ordering/internal/logger"
)

// PromotionHandler serves the active promotion list for menu display.
type PromotionHandler struct {
	promotionService PromotionService
	log              *logger.Logger
}

// NewPromotionHandler creates a new promotion handler.
func NewPromotionHandler(promotionService PromotionService, log *logger.Logger) *PromotionHandler {
	return &PromotionHandler{
		promotionService: promotionService,
		log:              log,
	}
}

// GetActivePromotions lists promotions whose date and time windows cover now.
func (h *PromotionHandler) GetActivePromotions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	promotions, err := h.promotionService.ActivePromotions(r.Context(), time.Now())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list promotions")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"promotions": promotions,
		"count":      len(promotions),
	})
}
