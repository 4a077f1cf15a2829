package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus describes the order lifecycle. Transitions beyond creation are
// owned by the back-office layer; the pricing core only ever writes "created".
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// GuestInfo identifies an unauthenticated customer on an order. It is a
// proper optional sub-entity, not a notes blob.
type GuestInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Order is the persisted checkout result. Subtotal, Taxes, Discounts and
// Total are the four legacy aggregate columns: Subtotal is post
// product-discount and pre-promotion, Taxes is computed on the post-reward
// subtotal, Discounts holds only the reward discount. ProductDiscount,
// PromotionDiscount and RewardDiscount persist the full breakdown for orders
// created by this service; they are NULL on legacy rows, which is what forces
// the invoice reconstructor to run.
type Order struct {
	ID                uuid.UUID           `json:"id" db:"id"`
	CustomerID        *uuid.UUID          `json:"customer_id,omitempty" db:"cliente_id"`
	Guest             *GuestInfo          `json:"guest,omitempty"`
	Items             []OrderItem         `json:"items"`
	Subtotal          decimal.Decimal     `json:"subtotal" db:"subtotal"`
	Taxes             decimal.Decimal     `json:"taxes" db:"impuestos"`
	Discounts         decimal.Decimal     `json:"discounts" db:"descuentos"`
	Total             decimal.Decimal     `json:"total" db:"total"`
	DeliveryFee       decimal.Decimal     `json:"delivery_fee" db:"costo_envio"`
	ProductDiscount   decimal.NullDecimal `json:"product_discount,omitempty" db:"descuento_producto"`
	PromotionDiscount decimal.NullDecimal `json:"promotion_discount,omitempty" db:"descuento_promocion"`
	RewardDiscount    decimal.NullDecimal `json:"reward_discount,omitempty" db:"descuento_recompensa"`
	RedemptionID      *uuid.UUID          `json:"redemption_id,omitempty" db:"canje_id"`
	Status            OrderStatus         `json:"status" db:"estado"`
	CreatedAt         time.Time           `json:"created_at" db:"fecha_creacion"`
}

// OrderItem is one persisted order line.
type OrderItem struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderID       uuid.UUID       `json:"order_id" db:"pedido_id"`
	ProductID     uuid.UUID       `json:"product_id" db:"producto_id"`
	Name          string          `json:"name" db:"nombre"`
	Quantity      int             `json:"quantity" db:"cantidad"`
	OriginalPrice decimal.Decimal `json:"original_price" db:"precio_original"`
	FinalPrice    decimal.Decimal `json:"final_price" db:"precio_final"`
}

// CheckoutRequest is the checkout payload. CustomerID comes from the auth
// middleware, never from the body; Guest identifies unauthenticated buyers.
type CheckoutRequest struct {
	CustomerID   *uuid.UUID `json:"-"`
	Guest        *GuestInfo `json:"guest,omitempty"`
	Items        []CartItem `json:"items"`
	RedemptionID *uuid.UUID `json:"redemption_id,omitempty"`
}

// PreviewResponse pairs the ephemeral breakdown with the promotions that
// produced it, for checkout-page display only.
type PreviewResponse struct {
	Breakdown *PricingBreakdown `json:"breakdown"`
}

// CheckoutResponse returns the persisted order together with the breakdown
// shown to the customer at confirmation time.
type CheckoutResponse struct {
	Order     *Order            `json:"order"`
	Breakdown *PricingBreakdown `json:"breakdown"`
}
