package handlers

import (
	"context"
	"time"

	"sunsets-ordering/internal/models"

	"github.com/google/uuid"
)

// ----- Orders -----

type OrderService interface {
	PreviewCart(ctx context.Context, req *models.CheckoutRequest) (*models.PricingBreakdown, error)
	Checkout(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]*models.Order, error)
}

// ----- Loyalty -----

type LoyaltyService interface {
	AvailablePoints(ctx context.Context, customerID uuid.UUID) (*models.PointsBalance, error)
	Redeem(ctx context.Context, req *models.RedeemRequest) (*models.Redemption, error)
	GetRedemption(ctx context.Context, redemptionID uuid.UUID) (*models.Redemption, error)
}

// ----- Invoices -----

type InvoiceService interface {
	GenerateInvoice(ctx context.Context, orderID uuid.UUID) (*models.InvoiceView, error)
	GetInvoice(ctx context.Context, orderID uuid.UUID) (*models.InvoiceView, error)
}

// ----- Promotions -----

type PromotionService interface {
	ActivePromotions(ctx context.Context, now time.Time) ([]models.Promotion, error)
}

// ----- Events -----

type EventProducer interface {
	PublishOrderCreated(order *models.Order) error
	PublishPointsRedeemed(redemption *models.Redemption) error
	PublishInvoiceGenerated(invoice *models.Invoice) error
}

// ----- Cache -----

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
