package handlers

import (
	"encoding/json"
	"net/http"

	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"
	"sunsets-ordering/internal/redis"
)

// OrderHandler serves cart preview, checkout and order reads.
type OrderHandler struct {
	orderService OrderService
	producer     EventProducer
	redisClient  RedisClient
	log          *logger.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orderService OrderService, producer EventProducer, redisClient RedisClient, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		producer:     producer,
		redisClient:  redisClient,
		log:          log,
	}
}

// PreviewCart prices a cart without persisting anything. The returned
// breakdown is ephemeral and is never a substitute for checkout pricing.
func (h *OrderHandler) PreviewCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	customerID, err := customerIDFromRequest(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	req.CustomerID = customerID

	breakdown, err := h.orderService.PreviewCart(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to preview cart")
		return
	}

	writeJSONResponse(w, http.StatusOK, &models.PreviewResponse{Breakdown: breakdown})
}

// CreateOrder runs checkout: prices the cart, persists the order and applies
// the redemption in one transaction.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	customerID, err := customerIDFromRequest(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	req.CustomerID = customerID

	resp, err := h.orderService.Checkout(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create order")
		return
	}
	order := resp.Order

	// The order is committed at this point; publish and cache failures are
	// logged and never returned to the client.
	if err := h.producer.PublishOrderCreated(order); err != nil {
		h.log.WithError(err).Error("Failed to publish order created event")
	}

	cacheKey := redis.GenerateKey(redis.KeyPrefixOrder, order.ID.String())
	if err := h.redisClient.Set(r.Context(), cacheKey, order, defaultCacheTTL); err != nil {
		h.log.WithError(err).Error("Failed to cache order")
	}
	if order.RedemptionID != nil && order.CustomerID != nil {
		pointsKey := redis.GenerateKey(redis.KeyPrefixPoints, order.CustomerID.String())
		if err := h.redisClient.Delete(r.Context(), pointsKey); err != nil {
			h.log.WithError(err).Error("Failed to invalidate points cache")
		}
	}

	h.log.WithField("order_id", order.ID).Info("Order created successfully")

	writeJSONResponse(w, http.StatusCreated, resp)
}

// GetOrder returns one order with its items.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	orderID, err := extractUUIDFromPath(r.URL.Path, "/api/orders/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	cacheKey := redis.GenerateKey(redis.KeyPrefixOrder, orderID.String())
	var cached models.Order
	if err := h.redisClient.Get(r.Context(), cacheKey, &cached); err == nil {
		h.log.WithField("order_id", orderID).Debug("Order retrieved from cache")
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get order")
		return
	}

	if err := h.redisClient.Set(r.Context(), cacheKey, order, defaultCacheTTL); err != nil {
		h.log.WithError(err).Error("Failed to cache order")
	}

	writeJSONResponse(w, http.StatusOK, order)
}

// GetOrders lists orders, optionally filtered to the authenticated customer.
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	customerID, err := customerIDFromRequest(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := parsePagination(r.URL.Query())

	orders, err := h.orderService.ListOrders(r.Context(), customerID, limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list orders")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
		"limit":  limit,
		"offset": offset,
	})
}
