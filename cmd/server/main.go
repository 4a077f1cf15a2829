package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/database"
	"sunsets-ordering/internal/handlers"
	"sunsets-ordering/internal/kafka"
	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"
	"sunsets-ordering/internal/redis"
	"sunsets-ordering/internal/services"
)

// Factory functions for external services, swappable in tests.
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application aggregates the assembled dependencies.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	mux      *http.ServeMux
	server   *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting ordering service...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = app.consumer.Stop()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	_ = app.producer.Close()
	_ = app.redis.Close()
	_ = app.db.Close()
	app.log.Info("Server exited")
}

// buildApplication wires every dependency explicitly.
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	producer, err := newKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	consumer, err := newKafkaConsumer(&cfg.Kafka, log)
	if err != nil {
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	pricingService := services.NewPricingService(&cfg.Pricing)
	promotionService := services.NewPromotionService(db, redisClient, log, &cfg.Promotions)
	loyaltyService := services.NewLoyaltyService(db, log)
	orderService := services.NewOrderService(db, log, pricingService, promotionService, loyaltyService)
	invoiceService := services.NewInvoiceService(db, log, orderService, loyaltyService, &cfg.Pricing)
	rateLimiter := services.NewRateLimiter(redisClient, log, &cfg.RateLimit)

	orderHandler := handlers.NewOrderHandler(orderService, producer, redisClient, log)
	loyaltyHandler := handlers.NewLoyaltyHandler(loyaltyService, producer, redisClient, log)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService, producer, redisClient, log)
	promotionHandler := handlers.NewPromotionHandler(promotionService, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit)

	registerEventHandlers(consumer, log)
	if err := consumer.Start(); err != nil {
		_ = consumer.Stop()
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer start: %w", err)
	}

	mux := setupRoutes(orderHandler, loyaltyHandler, invoiceHandler, promotionHandler, healthHandler, rateLimitHandler, rateLimiter, log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    redisClient,
		producer: producer,
		consumer: consumer,
		mux:      mux,
		server:   server,
	}, nil
}

// setupRoutes configures the HTTP routes.
func setupRoutes(orderHandler *handlers.OrderHandler, loyaltyHandler *handlers.LoyaltyHandler, invoiceHandler *handlers.InvoiceHandler, promotionHandler *handlers.PromotionHandler, healthHandler *handlers.HealthHandler, rateLimitHandler *handlers.RateLimitHandler, rateLimiter *services.RateLimiter, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	applyAPI := func(h http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(handlers.RateLimitMiddleware(rateLimiter, log, h))
	}

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Order endpoints
	mux.HandleFunc("/api/orders", applyAPI(handleOrdersRoute(orderHandler)))
	mux.HandleFunc("/api/orders/preview", applyAPI(orderHandler.PreviewCart))
	mux.HandleFunc("/api/orders/", applyAPI(handleOrderRoute(orderHandler, invoiceHandler)))

	// Loyalty endpoints
	mux.HandleFunc("/api/loyalty/redemptions", applyAPI(loyaltyHandler.Redeem))
	mux.HandleFunc("/api/loyalty/", applyAPI(handleLoyaltyRoute(loyaltyHandler)))

	// Promotion endpoints
	mux.HandleFunc("/api/promotions/active", applyAPI(promotionHandler.GetActivePromotions))

	// Rate limit status
	mux.HandleFunc("/api/rate-limit/status", applyAPI(rateLimitHandler.Status))

	return mux
}

// handleOrdersRoute serves the order collection.
func handleOrdersRoute(handler *handlers.OrderHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetOrders(w, r)
		case http.MethodPost:
			handler.CreateOrder(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleOrderRoute serves a single order and its invoice sub-resource.
func handleOrderRoute(handler *handlers.OrderHandler, invoiceHandler *handlers.InvoiceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/invoice") {
			invoiceHandler.HandleInvoice(w, r)
			return
		}
		if r.Method == http.MethodGet {
			handler.GetOrder(w, r)
			return
		}
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleLoyaltyRoute serves /api/loyalty/{customerID}/points.
func handleLoyaltyRoute(handler *handlers.LoyaltyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/points") {
			handler.GetPoints(w, r)
			return
		}
		writeErrorResponse(w, http.StatusNotFound, "Not found")
	}
}

// registerEventHandlers registers the Kafka event handlers.
func registerEventHandlers(consumer *kafka.Consumer, log *logger.Logger) {
	consumer.RegisterHandler(models.EventTypeOrderCreated, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing order created event")
		return nil
	})

	consumer.RegisterHandler(models.EventTypeInvoiceGenerated, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Info("Processing invoice generated event")
		return nil
	})
}

func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Customer-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	type errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
