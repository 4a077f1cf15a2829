package handlers

import (
	"net/http"

	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"
	"sunsets-ordering/internal/redis"

	"github.com/google/uuid"
)

// InvoiceHandler serves invoice generation and retrieval for an order.
type InvoiceHandler struct {
	invoiceService InvoiceService
	producer       EventProducer
	redisClient    RedisClient
	log            *logger.Logger
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(invoiceService InvoiceService, producer EventProducer, redisClient RedisClient, log *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		producer:       producer,
		redisClient:    redisClient,
		log:            log,
	}
}

// HandleInvoice dispatches /api/orders/{id}/invoice. POST generates, GET
// fetches. Generation is idempotent: repeated POSTs return the stored
// invoice.
func (h *InvoiceHandler) HandleInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, err := extractUUIDFromPath(r.URL.Path, "/api/orders/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.generate(w, r, orderID)
	case http.MethodGet:
		h.get(w, r, orderID)
	default:
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *InvoiceHandler) generate(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) {
	view, err := h.invoiceService.GenerateInvoice(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to generate invoice")
		return
	}

	if err := h.producer.PublishInvoiceGenerated(view.Invoice); err != nil {
		h.log.WithError(err).Error("Failed to publish invoice generated event")
	}

	cacheKey := redis.GenerateKey(redis.KeyPrefixInvoice, orderID.String())
	if err := h.redisClient.Set(r.Context(), cacheKey, view, defaultCacheTTL); err != nil {
		h.log.WithError(err).Error("Failed to cache invoice")
	}

	h.log.WithField("order_id", orderID).Info("Invoice generated")

	writeJSONResponse(w, http.StatusCreated, view)
}

func (h *InvoiceHandler) get(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) {
	cacheKey := redis.GenerateKey(redis.KeyPrefixInvoice, orderID.String())
	var cached models.InvoiceView
	if err := h.redisClient.Get(r.Context(), cacheKey, &cached); err == nil {
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	view, err := h.invoiceService.GetInvoice(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get invoice")
		return
	}

	if err := h.redisClient.Set(r.Context(), cacheKey, view, defaultCacheTTL); err != nil {
		h.log.WithError(err).Error("Failed to cache invoice")
	}

	writeJSONResponse(w, http.StatusOK, view)
}
