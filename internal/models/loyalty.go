package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RewardKind is the discount type of a reward catalog entry.
type RewardKind string

const (
	RewardKindPercentage RewardKind = "percentage"
	RewardKindFixed      RewardKind = "fixed_currency"
)

// Reward is a catalog entry exchangeable for loyalty points. Read-only input
// to the pricing core; lifecycle is owned by catalog management.
type Reward struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Name       string          `json:"name" db:"nombre"`
	Kind       RewardKind      `json:"kind" db:"tipo_descuento"`
	Value      decimal.Decimal `json:"value" db:"valor"`
	PointsCost int64           `json:"points_cost" db:"costo_puntos"`
	Active     bool            `json:"active" db:"activo"`
	StartsAt   *time.Time      `json:"starts_at,omitempty" db:"fecha_inicio"`
	EndsAt     *time.Time      `json:"ends_at,omitempty" db:"fecha_fin"`
}

// ActiveAt reports whether the reward can be redeemed at the given instant.
func (r *Reward) ActiveAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

// RedemptionState is the redemption state machine: discount rewards go
// pending -> applied, non-discount rewards go straight to completed.
// applied and completed are terminal.
type RedemptionState string

const (
	RedemptionStatePending   RedemptionState = "pending"
	RedemptionStateApplied   RedemptionState = "applied"
	RedemptionStateCompleted RedemptionState = "completed"
)

// Terminal reports whether the state admits no further transitions.
func (s RedemptionState) Terminal() bool {
	return s == RedemptionStateApplied || s == RedemptionStateCompleted
}

// Redemption (canje_puntos) records points exchanged for a reward. Kind and
// Value snapshot the reward at redemption time, so pricing and invoice
// reconstruction survive later catalog edits or deletion of the reward.
type Redemption struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	CustomerID  uuid.UUID       `json:"customer_id" db:"cliente_id"`
	RewardID    *uuid.UUID      `json:"reward_id,omitempty" db:"recompensa_id"`
	PointsSpent int64           `json:"points_spent" db:"puntos"`
	Kind        RewardKind      `json:"kind" db:"tipo_descuento"`
	Value       decimal.Decimal `json:"value" db:"valor"`
	State       RedemptionState `json:"state" db:"estado"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty" db:"pedido_id"`
	CreatedAt   time.Time       `json:"created_at" db:"fecha_creacion"`
}

// LedgerEntryKind classifies points ledger movements.
type LedgerEntryKind string

const (
	LedgerEntryAccrual    LedgerEntryKind = "accrual"
	LedgerEntryRedemption LedgerEntryKind = "redemption"
)

// PointsLedgerEntry is one append-only ledger row. Entries are bookkeeping
// only and never mutate Customer.AccumulatedPoints, which is a monotonic
// tier counter.
type PointsLedgerEntry struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	CustomerID  uuid.UUID       `json:"customer_id" db:"cliente_id"`
	Delta       int64           `json:"delta" db:"puntos"`
	Kind        LedgerEntryKind `json:"kind" db:"tipo"`
	Description string          `json:"description" db:"descripcion"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty" db:"pedido_id"`
	CreatedAt   time.Time       `json:"created_at" db:"fecha_creacion"`
}

// RedeemRequest asks to exchange points for a reward. CustomerID comes from
// the auth middleware.
type RedeemRequest struct {
	CustomerID uuid.UUID `json:"-"`
	RewardID   uuid.UUID `json:"reward_id"`
}

// PointsBalance is the read model for the loyalty balance endpoint.
type PointsBalance struct {
	CustomerID        uuid.UUID `json:"customer_id"`
	AccumulatedPoints int64     `json:"accumulated_points"`
	SpentPoints       int64     `json:"spent_points"`
	AvailablePoints   int64     `json:"available_points"`
}
