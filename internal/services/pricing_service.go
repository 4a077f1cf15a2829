package services

import (
	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingService computes the full order breakdown: catalog product
// discounts, then promotions, then an optional reward redemption, then
// delivery fee and tax. Pure computation, no I/O; both the cart preview and
// the checkout commit go through PriceCart so the two can never drift.
type PricingService struct {
	deliveryFee decimal.Decimal
	taxRate     decimal.Decimal
}

// NewPricingService creates the pricing engine from configuration.
func NewPricingService(cfg *config.PricingConfig) *PricingService {
	return &PricingService{
		deliveryFee: decimal.NewFromFloat(cfg.DeliveryFee),
		taxRate:     decimal.NewFromFloat(cfg.TaxRate),
	}
}

// DeliveryFee returns the configured flat delivery fee.
func (s *PricingService) DeliveryFee() decimal.Decimal { return s.deliveryFee }

// TaxRate returns the configured tax rate as a fraction.
func (s *PricingService) TaxRate() decimal.Decimal { return s.taxRate }

// roundCurrency rounds to 2 decimals, half away from zero.
func roundCurrency(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// clampNonNegative clamps arithmetic invariant violations to zero. These can
// only come from inconsistent upstream data, so they are absorbed rather
// than raised.
func clampNonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// cartTotals is the output of the product discount stage.
type cartTotals struct {
	subtotalOriginal decimal.Decimal
	subtotal         decimal.Decimal
	productDiscount  decimal.Decimal
	// discounted holds product ids whose final price is below catalog price;
	// those lines are excluded from promotions to prevent stacking.
	discounted map[uuid.UUID]bool
}

// productDiscountStage folds the per-product catalog discounts already baked
// into the cart's final prices.
func productDiscountStage(items []models.CartItem) cartTotals {
	totals := cartTotals{
		subtotalOriginal: decimal.Zero,
		subtotal:         decimal.Zero,
		discounted:       make(map[uuid.UUID]bool),
	}

	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		totals.subtotalOriginal = totals.subtotalOriginal.Add(item.OriginalPrice.Mul(qty))
		totals.subtotal = totals.subtotal.Add(item.FinalPrice.Mul(qty))
		if item.FinalPrice.LessThan(item.OriginalPrice) {
			totals.discounted[item.ProductID] = true
		}
	}

	totals.subtotalOriginal = roundCurrency(totals.subtotalOriginal)
	totals.subtotal = roundCurrency(totals.subtotal)
	totals.productDiscount = clampNonNegative(totals.subtotalOriginal.Sub(totals.subtotal))
	return totals
}

// promotionStage computes the accumulated promotion discount and its display
// breakdown. Lines already carrying a product discount are excluded so a
// catalog discount and a promotion never stack on the same line. A
// product-scoped promotion whose entire product set is excluded contributes
// nothing. Promotions co-apply by independent summation; the accumulated
// discount is clamped to the remaining subtotal.
func promotionStage(subtotal decimal.Decimal, items []models.CartItem, promotions []models.Promotion, discounted map[uuid.UUID]bool) (decimal.Decimal, []models.DiscountLine) {
	total := decimal.Zero
	var lines []models.DiscountLine

	for i := range promotions {
		promo := &promotions[i]

		applicable := decimal.Zero
		for _, item := range items {
			if discounted[item.ProductID] {
				continue
			}
			if !promo.AppliesTo(item.ProductID) {
				continue
			}
			qty := decimal.NewFromInt(int64(item.Quantity))
			applicable = applicable.Add(item.OriginalPrice.Mul(qty))
		}
		if applicable.IsZero() {
			continue
		}

		fraction := models.ParseDiscountValue(promo.Percentage).Fraction()
		amount := roundCurrency(applicable.Mul(fraction))
		if !amount.IsPositive() {
			continue
		}

		total = total.Add(amount)
		lines = append(lines, models.DiscountLine{
			Label:  promo.Name,
			Amount: amount,
			Scope:  promo.Scope,
		})
	}

	if total.GreaterThan(subtotal) {
		total = subtotal
	}
	return total, lines
}

// rewardDiscount computes the discount granted by a redemption against the
// post-promotion subtotal. Percentage values follow the legacy wire
// convention (>1 means percent units); fixed discounts never exceed what
// remains.
func rewardDiscount(redemption *models.Redemption, subtotalAfterPromotions decimal.Decimal) decimal.Decimal {
	if redemption == nil {
		return decimal.Zero
	}

	switch redemption.Kind {
	case models.RewardKindPercentage:
		fraction := models.ParseDiscountValue(redemption.Value).Fraction()
		return roundCurrency(subtotalAfterPromotions.Mul(fraction))
	case models.RewardKindFixed:
		if redemption.Value.GreaterThan(subtotalAfterPromotions) {
			return subtotalAfterPromotions
		}
		return roundCurrency(redemption.Value)
	default:
		return decimal.Zero
	}
}

// PriceCart runs the full pipeline. The promotions slice must already be
// time-filtered by the caller; redemption may be nil. Tax is computed after
// the reward discount, never before.
func (s *PricingService) PriceCart(items []models.CartItem, promotions []models.Promotion, redemption *models.Redemption) *models.PricingBreakdown {
	totals := productDiscountStage(items)

	promotionTotal, promotionLines := promotionStage(totals.subtotal, items, promotions, totals.discounted)
	subtotalAfterPromotions := clampNonNegative(totals.subtotal.Sub(promotionTotal))

	reward := rewardDiscount(redemption, subtotalAfterPromotions)
	subtotalAfterReward := clampNonNegative(subtotalAfterPromotions.Sub(reward))

	taxes := roundCurrency(subtotalAfterReward.Mul(s.taxRate))
	total := clampNonNegative(subtotalAfterReward.Add(s.deliveryFee).Add(taxes))

	return &models.PricingBreakdown{
		SubtotalOriginal:        totals.subtotalOriginal,
		ProductDiscount:         totals.productDiscount,
		Subtotal:                totals.subtotal,
		PromotionDiscount:       promotionTotal,
		PromotionLines:          promotionLines,
		SubtotalAfterPromotions: subtotalAfterPromotions,
		RewardDiscount:          reward,
		SubtotalAfterReward:     subtotalAfterReward,
		DeliveryFee:             s.deliveryFee,
		Taxes:                   taxes,
		Total:                   roundCurrency(total),
	}
}
