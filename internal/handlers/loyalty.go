package handlers

import (
	"encoding/json"
	"net/http"

	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"
	"sunsets-ordering/internal/redis"
)

// LoyaltyHandler serves points balances and redemptions.
type LoyaltyHandler struct {
	loyaltyService LoyaltyService
	producer       EventProducer
	redisClient    RedisClient
	log            *logger.Logger
}

// NewLoyaltyHandler creates a new loyalty handler.
func NewLoyaltyHandler(loyaltyService LoyaltyService, producer EventProducer, redisClient RedisClient, log *logger.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{
		loyaltyService: loyaltyService,
		producer:       producer,
		redisClient:    redisClient,
		log:            log,
	}
}

// GetPoints returns the customer's points balance. Available points count
// every redemption ever made regardless of state; accumulated points are the
// monotonic tier counter.
func (h *LoyaltyHandler) GetPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	customerID, err := extractUUIDFromPath(r.URL.Path, "/api/loyalty/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	cacheKey := redis.GenerateKey(redis.KeyPrefixPoints, customerID.String())
	var cached models.PointsBalance
	if err := h.redisClient.Get(r.Context(), cacheKey, &cached); err == nil {
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	balance, err := h.loyaltyService.AvailablePoints(r.Context(), customerID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get points balance")
		return
	}

	if err := h.redisClient.Set(r.Context(), cacheKey, balance, defaultCacheTTL); err != nil {
		h.log.WithError(err).Error("Failed to cache points balance")
	}

	writeJSONResponse(w, http.StatusOK, balance)
}

// Redeem exchanges points for a reward. The redemption row is the single
// source of truth for spent points; a duplicate non-terminal redemption of
// the same reward is rejected.
func (h *LoyaltyHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	customerID, err := customerIDFromRequest(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if customerID == nil {
		writeErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.CustomerID = *customerID

	redemption, err := h.loyaltyService.Redeem(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to redeem points")
		return
	}

	if err := h.producer.PublishPointsRedeemed(redemption); err != nil {
		h.log.WithError(err).Error("Failed to publish points redeemed event")
	}

	cacheKey := redis.GenerateKey(redis.KeyPrefixPoints, customerID.String())
	if err := h.redisClient.Delete(r.Context(), cacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate points cache")
	}

	h.log.WithFields(map[string]interface{}{
		"customer_id":   customerID,
		"redemption_id": redemption.ID,
	}).Info("Points redeemed")

	writeJSONResponse(w, http.StatusCreated, redemption)
}
