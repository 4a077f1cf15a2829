package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sunsets-ordering/internal/apperror"
	"sunsets-ordering/internal/database"
	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderService prices carts and persists checkouts. PreviewCart and Checkout
// run the identical pricing pipeline; only the commit path takes locks.
type OrderService struct {
	db         *database.DB
	log        *logger.Logger
	pricing    *PricingService
	promotions *PromotionService
	loyalty    *LoyaltyService
}

// NewOrderService creates the order service.
func NewOrderService(db *database.DB, log *logger.Logger, pricing *PricingService, promotions *PromotionService, loyalty *LoyaltyService) *OrderService {
	return &OrderService{
		db:         db,
		log:        log,
		pricing:    pricing,
		promotions: promotions,
		loyalty:    loyalty,
	}
}

// PreviewCart prices a cart without locks or writes. The result is
// ephemeral: it may be computed repeatedly and discarded.
func (s *OrderService) PreviewCart(ctx context.Context, req *models.CheckoutRequest) (*models.PricingBreakdown, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}

	promotions, err := s.promotions.ActivePromotions(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	var redemption *models.Redemption
	if req.RedemptionID != nil {
		redemption, err = s.loyalty.GetRedemption(ctx, *req.RedemptionID)
		if err != nil {
			return nil, err
		}
		if req.CustomerID == nil || redemption.CustomerID != *req.CustomerID {
			return nil, apperror.Validation("redemption belongs to a different customer", nil)
		}
		if redemption.State != models.RedemptionStatePending {
			return nil, apperror.Conflict("redemption already used", nil)
		}
	}

	return s.pricing.PriceCart(req.Items, promotions, redemption), nil
}

// Checkout prices the cart and persists the order in one transaction. When a
// redemption is attached, its row is locked and revalidated before pricing
// and transitioned to applied after the order insert, so a failed order
// never leaves an orphaned applied redemption.
func (s *OrderService) Checkout(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}
	if req.RedemptionID != nil && req.CustomerID == nil {
		return nil, apperror.Validation("redemptions require an authenticated customer", nil)
	}

	promotions, err := s.promotions.ActivePromotions(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var redemption *models.Redemption
	if req.RedemptionID != nil {
		redemption, err = s.loyalty.LockRedemptionTx(ctx, tx, *req.RedemptionID, *req.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	breakdown := s.pricing.PriceCart(req.Items, promotions, redemption)

	orderID := uuid.New()
	now := time.Now()
	order := &models.Order{
		ID:                orderID,
		CustomerID:        req.CustomerID,
		Guest:             req.Guest,
		Subtotal:          breakdown.Subtotal,
		Taxes:             breakdown.Taxes,
		Discounts:         breakdown.RewardDiscount,
		Total:             breakdown.Total,
		DeliveryFee:       breakdown.DeliveryFee,
		ProductDiscount:   decimal.NullDecimal{Decimal: breakdown.ProductDiscount, Valid: true},
		PromotionDiscount: decimal.NullDecimal{Decimal: breakdown.PromotionDiscount, Valid: true},
		RewardDiscount:    decimal.NullDecimal{Decimal: breakdown.RewardDiscount, Valid: true},
		RedemptionID:      req.RedemptionID,
		Status:            models.OrderStatusCreated,
		CreatedAt:         now,
	}

	var guestName, guestEmail, guestPhone *string
	if req.Guest != nil {
		guestName, guestEmail, guestPhone = &req.Guest.Name, &req.Guest.Email, &req.Guest.Phone
	}

	orderQuery := `
		INSERT INTO pedido (id, cliente_id, invitado_nombre, invitado_email, invitado_telefono,
		                    subtotal, impuestos, descuentos, total, costo_envio,
		                    descuento_producto, descuento_promocion, descuento_recompensa,
		                    canje_id, estado, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := tx.ExecContext(ctx, orderQuery,
		order.ID, order.CustomerID, guestName, guestEmail, guestPhone,
		order.Subtotal, order.Taxes, order.Discounts, order.Total, order.DeliveryFee,
		order.ProductDiscount, order.PromotionDiscount, order.RewardDiscount,
		order.RedemptionID, order.Status, order.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO pedido_detalle (id, pedido_id, producto_id, nombre, cantidad, precio_original, precio_final)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, item := range req.Items {
		itemID := uuid.New()
		if _, err := tx.ExecContext(ctx, itemQuery,
			itemID, orderID, item.ProductID, item.Name, item.Quantity, item.OriginalPrice, item.FinalPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:            itemID,
			OrderID:       orderID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Quantity:      item.Quantity,
			OriginalPrice: item.OriginalPrice,
			FinalPrice:    item.FinalPrice,
		})
	}

	if redemption != nil {
		if err := s.loyalty.ApplyRedemptionTx(ctx, tx, redemption.ID, orderID); err != nil {
			return nil, err
		}
		redemption.State = models.RedemptionStateApplied
		redemption.OrderID = &orderID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"total":    order.Total,
	}).Info("Order created")

	return &models.CheckoutResponse{Order: order, Breakdown: breakdown}, nil
}

// GetOrder loads an order with its lines.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	query := `
		SELECT id, cliente_id, invitado_nombre, invitado_email, invitado_telefono,
		       subtotal, impuestos, descuentos, total, costo_envio,
		       descuento_producto, descuento_promocion, descuento_recompensa,
		       canje_id, estado, fecha_creacion
		FROM pedido
		WHERE id = $1
	`
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		return nil, err
	}

	itemsQuery := `
		SELECT id, pedido_id, producto_id, nombre, cantidad, precio_original, precio_final
		FROM pedido_detalle
		WHERE pedido_id = $1
	`
	rows, err := s.db.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Quantity, &item.OriginalPrice, &item.FinalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return order, nil
}

// ListOrders returns orders, optionally filtered by customer.
func (s *OrderService) ListOrders(ctx context.Context, customerID *uuid.UUID, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, cliente_id, invitado_nombre, invitado_email, invitado_telefono,
		       subtotal, impuestos, descuentos, total, costo_envio,
		       descuento_producto, descuento_promocion, descuento_recompensa,
		       canje_id, estado, fecha_creacion
		FROM pedido
	`
	args := []interface{}{}
	if customerID != nil {
		query += ` WHERE cliente_id = $1 ORDER BY fecha_creacion DESC LIMIT $2 OFFSET $3`
		args = append(args, *customerID, limit, offset)
	} else {
		query += ` ORDER BY fecha_creacion DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrderFromRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

func validateCheckoutRequest(req *models.CheckoutRequest) error {
	if req == nil || len(req.Items) == 0 {
		return apperror.Validation("cart items are required", nil)
	}
	if req.CustomerID == nil && req.Guest == nil {
		return apperror.Validation("customer or guest identity is required", nil)
	}
	if req.Guest != nil && req.Guest.Name == "" {
		return apperror.Validation("guest name is required", nil)
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return apperror.Validation(fmt.Sprintf("item %d: quantity must be positive", i+1), nil)
		}
		if item.OriginalPrice.IsNegative() || item.FinalPrice.IsNegative() {
			return apperror.Validation(fmt.Sprintf("item %d: price cannot be negative", i+1), nil)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrderFields(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var guestName, guestEmail, guestPhone *string
	err := row.Scan(
		&order.ID, &order.CustomerID, &guestName, &guestEmail, &guestPhone,
		&order.Subtotal, &order.Taxes, &order.Discounts, &order.Total, &order.DeliveryFee,
		&order.ProductDiscount, &order.PromotionDiscount, &order.RewardDiscount,
		&order.RedemptionID, &order.Status, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if guestName != nil {
		order.Guest = &models.GuestInfo{Name: *guestName}
		if guestEmail != nil {
			order.Guest.Email = *guestEmail
		}
		if guestPhone != nil {
			order.Guest.Phone = *guestPhone
		}
	}
	return order, nil
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	order, err := scanOrderFields(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("order not found", err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func scanOrderFromRows(rows *sql.Rows) (*models.Order, error) {
	order, err := scanOrderFields(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return order, nil
}
