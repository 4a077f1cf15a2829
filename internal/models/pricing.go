package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PromotionScope determines which cart lines a promotion applies to.
type PromotionScope string

const (
	PromotionScopeGeneral PromotionScope = "general"
	PromotionScopeProduct PromotionScope = "product"
)

// DiscountValueKind tags how a stored discount number is to be read.
type DiscountValueKind string

const (
	DiscountValuePercent  DiscountValueKind = "percent"
	DiscountValueFraction DiscountValueKind = "fraction"
)

// DiscountValue is a tagged percentage. Stored values follow the legacy wire
// convention: v > 1 means percent units (10 means 10%), v <= 1 is an
// already-normalized fraction. ParseDiscountValue applies that convention
// exactly once, at the serialization boundary; everything downstream works
// with the tagged value.
type DiscountValue struct {
	Kind  DiscountValueKind `json:"kind"`
	Value decimal.Decimal   `json:"value"`
}

// ParseDiscountValue interprets a raw stored discount number.
func ParseDiscountValue(raw decimal.Decimal) DiscountValue {
	if raw.GreaterThan(decimal.NewFromInt(1)) {
		return DiscountValue{Kind: DiscountValuePercent, Value: raw}
	}
	return DiscountValue{Kind: DiscountValueFraction, Value: raw}
}

// Fraction returns the discount as a normalized fraction in [0, 1].
func (v DiscountValue) Fraction() decimal.Decimal {
	if v.Kind == DiscountValuePercent {
		return v.Value.Div(decimal.NewFromInt(100))
	}
	return v.Value
}

// CartItem is one checkout line. OriginalPrice is the catalog price before
// any discount; FinalPrice already carries the per-product catalog discount
// and never exceeds OriginalPrice.
type CartItem struct {
	ProductID     uuid.UUID       `json:"product_id"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	FinalPrice    decimal.Decimal `json:"final_price"`
}

// Promotion is a time-windowed percentage discount, scoped to the whole cart
// or to an explicit product set.
type Promotion struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Name       string          `json:"name" db:"nombre"`
	Scope      PromotionScope  `json:"scope" db:"alcance"`
	ProductIDs []uuid.UUID     `json:"product_ids,omitempty"`
	Percentage decimal.Decimal `json:"percentage" db:"porcentaje"`
	StartDate  time.Time       `json:"start_date" db:"fecha_inicio"`
	EndDate    time.Time       `json:"end_date" db:"fecha_fin"`
	StartTime  string          `json:"start_time" db:"hora_inicio"`
	EndTime    string          `json:"end_time" db:"hora_fin"`
	Active     bool            `json:"active" db:"activo"`
}

// ActiveAt reports whether the promotion window covers the given instant:
// the calendar date must fall inside the date range and the time of day
// inside the daily window. Empty daily bounds mean all day.
func (p *Promotion) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}

	day := now.Truncate(24 * time.Hour)
	start := p.StartDate.Truncate(24 * time.Hour)
	end := p.EndDate.Truncate(24 * time.Hour)
	if day.Before(start) || day.After(end) {
		return false
	}

	if p.StartTime == "" || p.EndTime == "" {
		return true
	}

	minute := now.Hour()*60 + now.Minute()
	from, err := parseMinuteOfDay(p.StartTime)
	if err != nil {
		return false
	}
	to, err := parseMinuteOfDay(p.EndTime)
	if err != nil {
		return false
	}
	return minute >= from && minute <= to
}

// AppliesTo reports whether a product-scoped promotion covers the product.
func (p *Promotion) AppliesTo(productID uuid.UUID) bool {
	if p.Scope != PromotionScopeProduct {
		return true
	}
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// parseMinuteOfDay parses "HH:MM" into minutes since midnight.
func parseMinuteOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// DiscountLine is one display row of the promotion breakdown. It is never
// persisted; the invoice reconstructor has to re-derive this information.
type DiscountLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Scope  PromotionScope  `json:"scope"`
}

// PricingBreakdown is the full result of pricing a cart. The same structure
// backs the checkout preview, the persisted order aggregates and the invoice
// renderer input.
type PricingBreakdown struct {
	SubtotalOriginal        decimal.Decimal `json:"subtotal_original"`
	ProductDiscount         decimal.Decimal `json:"product_discount"`
	Subtotal                decimal.Decimal `json:"subtotal"`
	PromotionDiscount       decimal.Decimal `json:"promotion_discount"`
	PromotionLines          []DiscountLine  `json:"promotion_lines,omitempty"`
	SubtotalAfterPromotions decimal.Decimal `json:"subtotal_after_promotions"`
	RewardDiscount          decimal.Decimal `json:"reward_discount"`
	SubtotalAfterReward     decimal.Decimal `json:"subtotal_after_reward"`
	DeliveryFee             decimal.Decimal `json:"delivery_fee"`
	Taxes                   decimal.Decimal `json:"taxes"`
	Total                   decimal.Decimal `json:"total"`
}

// LooseBool normalizes legacy flag columns that arrive as TINYINT, string or
// bool depending on the driver. Normalization happens once, at scan time;
// downstream code only ever sees a Go bool.
type LooseBool bool

// Scan implements sql.Scanner.
func (b *LooseBool) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*b = false
	case bool:
		*b = LooseBool(v)
	case int64:
		*b = v != 0
	case []byte:
		return b.scanString(string(v))
	case string:
		return b.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into LooseBool", value)
	}
	return nil
}

func (b *LooseBool) scanString(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes":
		*b = true
	case "0", "f", "false", "no", "":
		*b = false
	default:
		return fmt.Errorf("cannot parse %q as LooseBool", s)
	}
	return nil
}

// Value implements driver.Valuer.
func (b LooseBool) Value() (driver.Value, error) {
	return bool(b), nil
}

// Bool returns the normalized value.
func (b LooseBool) Bool() bool { return bool(b) }
