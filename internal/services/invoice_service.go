package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sunsets-ordering/internal/apperror"
	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/database"
	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// InvoiceService generates at-most-once invoices and recovers a displayable
// pricing breakdown from the persisted aggregates. Orders written by this
// service carry the full breakdown; legacy rows only persisted the reward
// discount, so their breakdown has to be reconstructed by inverting the
// pricing pipeline with documented fallback heuristics. Reconstruction is
// best effort by design: it warns on mismatches but never fails invoice
// generation over a numeric discrepancy.
type InvoiceService struct {
	db      *database.DB
	log     *logger.Logger
	orders  *OrderService
	loyalty *LoyaltyService

	deliveryFee decimal.Decimal
	taxRate     decimal.Decimal
	epsilon     decimal.Decimal
}

// NewInvoiceService creates the invoice service.
func NewInvoiceService(db *database.DB, log *logger.Logger, orders *OrderService, loyalty *LoyaltyService, cfg *config.PricingConfig) *InvoiceService {
	return &InvoiceService{
		db:          db,
		log:         log,
		orders:      orders,
		loyalty:     loyalty,
		deliveryFee: decimal.NewFromFloat(cfg.DeliveryFee),
		taxRate:     decimal.NewFromFloat(cfg.TaxRate),
		epsilon:     decimal.NewFromFloat(cfg.ReconcileEpsilon),
	}
}

// GenerateInvoice creates the invoice for an order, idempotently: a second
// call returns the existing invoice. The pre-check handles the common path;
// the unique constraint on pedido_id is the backstop when two requests race.
func (s *InvoiceService) GenerateInvoice(ctx context.Context, orderID uuid.UUID) (*models.InvoiceView, error) {
	if existing, err := s.findInvoice(ctx, orderID); err != nil {
		return nil, err
	} else if existing != nil {
		return s.viewForInvoice(ctx, existing)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	breakdown := s.BreakdownForOrder(ctx, order)

	invoice := &models.Invoice{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Subtotal:  order.Subtotal,
		Taxes:     order.Taxes,
		Discounts: order.Discounts,
		Total:     breakdown.Total,
		Components: models.InvoiceComponents{
			Subtotal:  order.Subtotal,
			Taxes:     order.Taxes,
			Discounts: order.Discounts,
		},
		CreatedAt: time.Now(),
	}

	query := `
		INSERT INTO factura (id, pedido_id, subtotal, impuestos, descuentos, total, componentes, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.ExecContext(ctx, query,
		invoice.ID, invoice.OrderID, invoice.Subtotal, invoice.Taxes, invoice.Discounts,
		invoice.Total, invoice.Components, invoice.CreatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Lost the race against a concurrent generation; the winner's
			// invoice is the invoice.
			existing, findErr := s.findInvoice(ctx, orderID)
			if findErr == nil && existing != nil {
				return s.viewForInvoice(ctx, existing)
			}
			return nil, apperror.Conflict("invoice already exists", err)
		}
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"invoice_id": invoice.ID,
		"order_id":   orderID,
	}).Info("Invoice generated")

	return &models.InvoiceView{Invoice: invoice, Lines: s.RenderLines(breakdown)}, nil
}

// GetInvoice returns the existing invoice with renderer-ready lines.
func (s *InvoiceService) GetInvoice(ctx context.Context, orderID uuid.UUID) (*models.InvoiceView, error) {
	invoice, err := s.findInvoice(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice not found", nil)
	}
	return s.viewForInvoice(ctx, invoice)
}

func (s *InvoiceService) viewForInvoice(ctx context.Context, invoice *models.Invoice) (*models.InvoiceView, error) {
	order, err := s.orders.GetOrder(ctx, invoice.OrderID)
	if err != nil {
		return nil, err
	}
	breakdown := s.BreakdownForOrder(ctx, order)
	return &models.InvoiceView{Invoice: invoice, Lines: s.RenderLines(breakdown)}, nil
}

func (s *InvoiceService) findInvoice(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	query := `
		SELECT id, pedido_id, subtotal, impuestos, descuentos, total, componentes, fecha_creacion
		FROM factura
		WHERE pedido_id = $1
	`
	invoice := &models.Invoice{}
	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&invoice.ID, &invoice.OrderID, &invoice.Subtotal, &invoice.Taxes, &invoice.Discounts,
		&invoice.Total, &invoice.Components, &invoice.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// BreakdownForOrder recovers the full breakdown for an order. Orders with
// the persisted breakdown columns are rebuilt directly; legacy rows go
// through the reconstruction algorithm.
func (s *InvoiceService) BreakdownForOrder(ctx context.Context, order *models.Order) *models.PricingBreakdown {
	if order.ProductDiscount.Valid && order.PromotionDiscount.Valid && order.RewardDiscount.Valid {
		return s.breakdownFromPersisted(order)
	}
	return s.ReconstructBreakdown(ctx, order)
}

// breakdownFromPersisted rebuilds the breakdown from the fully-persisted
// fields; no inversion needed.
func (s *InvoiceService) breakdownFromPersisted(order *models.Order) *models.PricingBreakdown {
	productDiscount := order.ProductDiscount.Decimal
	promotionDiscount := order.PromotionDiscount.Decimal
	reward := order.RewardDiscount.Decimal

	subtotalAfterPromotions := clampNonNegative(order.Subtotal.Sub(promotionDiscount))
	subtotalAfterReward := clampNonNegative(subtotalAfterPromotions.Sub(reward))

	return &models.PricingBreakdown{
		SubtotalOriginal:        order.Subtotal.Add(productDiscount),
		ProductDiscount:         productDiscount,
		Subtotal:                order.Subtotal,
		PromotionDiscount:       promotionDiscount,
		SubtotalAfterPromotions: subtotalAfterPromotions,
		RewardDiscount:          reward,
		SubtotalAfterReward:     subtotalAfterReward,
		DeliveryFee:             order.DeliveryFee,
		Taxes:                   order.Taxes,
		Total:                   order.Total,
	}
}

// ReconstructBreakdown inverts the pricing pipeline from the four legacy
// aggregate columns plus a best-effort lookup of the original redemption.
// The promotion discount was never persisted, so it is inferred as whatever
// is left between the stored subtotal and the reward-adjusted remainder.
func (s *InvoiceService) ReconstructBreakdown(ctx context.Context, order *models.Order) *models.PricingBreakdown {
	deliveryFee := order.DeliveryFee
	if !deliveryFee.IsPositive() {
		deliveryFee = s.deliveryFee
	}

	// Invert the tax step: taxes were computed on the post-reward subtotal.
	subtotalAfterReward := decimal.Zero
	if order.Taxes.IsPositive() && s.taxRate.IsPositive() {
		subtotalAfterReward = roundCurrency(order.Taxes.Div(s.taxRate))
	}

	kind, value := s.inferRewardKind(ctx, order)

	var subtotalAfterPromotions, reward decimal.Decimal
	switch kind {
	case models.RewardKindPercentage:
		fraction := models.ParseDiscountValue(value).Fraction()
		oneMinus := decimal.NewFromInt(1).Sub(fraction)
		if !oneMinus.IsPositive() {
			// A 100%+ discount cannot be inverted; degrade to the additive
			// fallback.
			subtotalAfterPromotions = subtotalAfterReward.Add(order.Discounts)
			reward = order.Discounts
			break
		}
		subtotalAfterPromotions = roundCurrency(subtotalAfterReward.Div(oneMinus))
		// The recomputed value can differ from the stored one because the
		// original rounded in currency; the recomputed number keeps the
		// displayed breakdown internally consistent. The stored aggregate is
		// never altered.
		reward = roundCurrency(subtotalAfterPromotions.Mul(fraction))
	default:
		subtotalAfterPromotions = subtotalAfterReward.Add(order.Discounts)
		reward = order.Discounts
	}

	promotionDiscount := clampNonNegative(order.Subtotal.Sub(subtotalAfterPromotions))

	total := order.Total
	recomputed := subtotalAfterReward.Add(deliveryFee).Add(order.Taxes)
	if recomputed.Sub(order.Total).Abs().GreaterThanOrEqual(s.epsilon) {
		s.log.WithFields(map[string]interface{}{
			"order_id":   order.ID,
			"stored":     order.Total,
			"recomputed": recomputed,
		}).Warn("Reconstructed invoice total does not reconcile with stored total")
		total = recomputed
	}

	return &models.PricingBreakdown{
		// The cart is gone; the stored subtotal already folds the product
		// discounts in.
		SubtotalOriginal:        order.Subtotal,
		ProductDiscount:         decimal.Zero,
		Subtotal:                order.Subtotal,
		PromotionDiscount:       promotionDiscount,
		SubtotalAfterPromotions: subtotalAfterPromotions,
		RewardDiscount:          reward,
		SubtotalAfterReward:     subtotalAfterReward,
		DeliveryFee:             deliveryFee,
		Taxes:                   order.Taxes,
		Total:                   total,
	}
}

// inferRewardKind prefers the snapshot on the matched redemption record.
// Without a record, a stored discount is guessed: small value against a
// large subtotal reads as percent units, anything else as a fixed currency
// amount. A guess, documented as such, not a guarantee.
func (s *InvoiceService) inferRewardKind(ctx context.Context, order *models.Order) (models.RewardKind, decimal.Decimal) {
	if order.CustomerID != nil {
		redemption, err := s.loyalty.FindRedemptionForOrder(ctx, *order.CustomerID, order.CreatedAt)
		if err != nil {
			s.log.WithError(err).WithField("order_id", order.ID).Warn("Redemption lookup failed, falling back to heuristic")
		} else if redemption != nil {
			return redemption.Kind, redemption.Value
		}
	}

	if order.Discounts.IsPositive() &&
		order.Discounts.LessThan(decimal.NewFromInt(100)) &&
		order.Subtotal.GreaterThan(decimal.NewFromInt(1000)) {
		return models.RewardKindPercentage, order.Discounts
	}
	return models.RewardKindFixed, order.Discounts
}

// RenderLines shapes a breakdown into the label/amount rows the PDF renderer
// expects. Layout is the renderer's problem.
func (s *InvoiceService) RenderLines(breakdown *models.PricingBreakdown) []models.InvoiceLine {
	lines := []models.InvoiceLine{
		{Label: "Subtotal", Amount: breakdown.Subtotal},
	}
	if breakdown.ProductDiscount.IsPositive() {
		lines = append(lines, models.InvoiceLine{Label: "Product discounts", Amount: breakdown.ProductDiscount.Neg()})
	}
	if breakdown.PromotionDiscount.IsPositive() {
		lines = append(lines, models.InvoiceLine{Label: "Promotion discount", Amount: breakdown.PromotionDiscount.Neg()})
	}
	if breakdown.RewardDiscount.IsPositive() {
		lines = append(lines, models.InvoiceLine{Label: "Reward discount", Amount: breakdown.RewardDiscount.Neg()})
	}
	lines = append(lines,
		models.InvoiceLine{Label: "Delivery fee", Amount: breakdown.DeliveryFee},
		models.InvoiceLine{Label: "Tax", Amount: breakdown.Taxes},
		models.InvoiceLine{Label: "Total", Amount: breakdown.Total},
	)
	return lines
}
