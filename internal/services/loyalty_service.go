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
)

// LoyaltyService owns the points ledger and the redemption state machine.
// Available points are always derived: accumulated points minus everything
// committed to redemptions. The accumulated counter itself is a monotonic
// tier signal and is never decremented by spending.
type LoyaltyService struct {
	db  *database.DB
	log *logger.Logger
}

// NewLoyaltyService creates the loyalty service.
func NewLoyaltyService(db *database.DB, log *logger.Logger) *LoyaltyService {
	return &LoyaltyService{db: db, log: log}
}

// queryRower is satisfied by both *database.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// AvailablePoints returns the derived balance for display. Lock-free; any
// state transition recomputes the balance again under lock.
func (s *LoyaltyService) AvailablePoints(ctx context.Context, customerID uuid.UUID) (*models.PointsBalance, error) {
	return s.availablePoints(ctx, s.db, customerID)
}

func (s *LoyaltyService) availablePoints(ctx context.Context, q queryRower, customerID uuid.UUID) (*models.PointsBalance, error) {
	customerQuery := `SELECT puntos_acumulados FROM cliente WHERE id = $1`

	var accumulated int64
	if err := q.QueryRowContext(ctx, customerQuery, customerID).Scan(&accumulated); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("customer not found", err)
		}
		return nil, fmt.Errorf("failed to get customer points: %w", err)
	}

	spentQuery := `SELECT COALESCE(SUM(puntos), 0) FROM canje_puntos WHERE cliente_id = $1`
	var spent int64
	if err := q.QueryRowContext(ctx, spentQuery, customerID).Scan(&spent); err != nil {
		return nil, fmt.Errorf("failed to sum spent points: %w", err)
	}

	available := accumulated - spent
	if available < 0 {
		available = 0
	}

	return &models.PointsBalance{
		CustomerID:        customerID,
		AccumulatedPoints: accumulated,
		SpentPoints:       spent,
		AvailablePoints:   available,
	}, nil
}

// Redeem exchanges points for a reward inside a single transaction with
// row-level locks on the customer and reward rows, so concurrent attempts to
// spend the same points serialize. Any rejection rolls the whole transaction
// back, including the ledger insert.
func (s *LoyaltyService) Redeem(ctx context.Context, req *models.RedeemRequest) (*models.Redemption, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Customer lock first, reward lock second; every writer takes them in
	// this order to avoid deadlocks.
	customerQuery := `SELECT puntos_acumulados FROM cliente WHERE id = $1 FOR UPDATE`
	var accumulated int64
	if err := tx.QueryRowContext(ctx, customerQuery, req.CustomerID).Scan(&accumulated); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("customer not found", err)
		}
		return nil, fmt.Errorf("failed to lock customer: %w", err)
	}

	rewardQuery := `
		SELECT nombre, tipo_descuento, valor, costo_puntos, activo, fecha_inicio, fecha_fin
		FROM recompensa
		WHERE id = $1
		FOR UPDATE
	`
	reward := models.Reward{ID: req.RewardID}
	var active models.LooseBool
	if err := tx.QueryRowContext(ctx, rewardQuery, req.RewardID).Scan(
		&reward.Name, &reward.Kind, &reward.Value, &reward.PointsCost, &active, &reward.StartsAt, &reward.EndsAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("reward not found", err)
		}
		return nil, fmt.Errorf("failed to lock reward: %w", err)
	}
	reward.Active = active.Bool()

	dupQuery := `
		SELECT COUNT(*)
		FROM canje_puntos
		WHERE cliente_id = $1 AND recompensa_id = $2 AND estado IN ('pending', 'applied')
	`
	var existing int
	if err := tx.QueryRowContext(ctx, dupQuery, req.CustomerID, req.RewardID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("failed to check existing redemptions: %w", err)
	}
	if existing > 0 {
		return nil, apperror.Conflict("reward already redeemed", nil)
	}

	if !reward.ActiveAt(time.Now()) {
		return nil, apperror.Conflict("reward is inactive or outside its window", nil)
	}

	balance, err := s.availablePoints(ctx, tx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if balance.AvailablePoints < reward.PointsCost {
		return nil, apperror.Validation("insufficient points", nil)
	}

	now := time.Now()
	rewardID := reward.ID

	// Ledger entry is bookkeeping only; it never touches the accumulated
	// counter.
	ledgerQuery := `
		INSERT INTO puntos_historial (id, cliente_id, puntos, tipo, descripcion, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, ledgerQuery,
		uuid.New(), req.CustomerID, -reward.PointsCost, models.LedgerEntryRedemption,
		fmt.Sprintf("points redeemed for reward %s", reward.Name), now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	state := models.RedemptionStateCompleted
	if reward.Kind == models.RewardKindPercentage || reward.Kind == models.RewardKindFixed {
		state = models.RedemptionStatePending
	}

	redemption := &models.Redemption{
		ID:          uuid.New(),
		CustomerID:  req.CustomerID,
		RewardID:    &rewardID,
		PointsSpent: reward.PointsCost,
		Kind:        reward.Kind,
		Value:       reward.Value,
		State:       state,
		CreatedAt:   now,
	}

	redemptionQuery := `
		INSERT INTO canje_puntos (id, cliente_id, recompensa_id, puntos, tipo_descuento, valor, estado, fecha_creacion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, redemptionQuery,
		redemption.ID, redemption.CustomerID, redemption.RewardID, redemption.PointsSpent,
		redemption.Kind, redemption.Value, redemption.State, redemption.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"customer_id":   req.CustomerID,
		"reward_id":     req.RewardID,
		"points_spent":  reward.PointsCost,
		"redemption_id": redemption.ID,
	}).Info("Points redeemed")

	return redemption, nil
}

// GetRedemption returns a redemption without locking, for display and the
// lock-free cart preview.
func (s *LoyaltyService) GetRedemption(ctx context.Context, redemptionID uuid.UUID) (*models.Redemption, error) {
	query := `
		SELECT id, cliente_id, recompensa_id, puntos, tipo_descuento, valor, estado, pedido_id, fecha_creacion
		FROM canje_puntos
		WHERE id = $1
	`
	return s.scanRedemption(s.db.QueryRowContext(ctx, query, redemptionID))
}

// LockRedemptionTx loads a redemption FOR UPDATE inside the caller's order
// transaction and revalidates ownership and state. Reusing an applied or
// completed redemption is a business error, never a silent no-op.
func (s *LoyaltyService) LockRedemptionTx(ctx context.Context, tx *sql.Tx, redemptionID, customerID uuid.UUID) (*models.Redemption, error) {
	query := `
		SELECT id, cliente_id, recompensa_id, puntos, tipo_descuento, valor, estado, pedido_id, fecha_creacion
		FROM canje_puntos
		WHERE id = $1
		FOR UPDATE
	`
	redemption, err := s.scanRedemption(tx.QueryRowContext(ctx, query, redemptionID))
	if err != nil {
		return nil, err
	}

	if redemption.CustomerID != customerID {
		return nil, apperror.Validation("redemption belongs to a different customer", nil)
	}
	if redemption.State != models.RedemptionStatePending {
		return nil, apperror.Conflict("redemption already used", nil)
	}
	return redemption, nil
}

// ApplyRedemptionTx transitions a pending redemption to applied and binds it
// to the order, inside the same transaction that creates the order. The
// state guard in the WHERE clause makes a lost race fail loudly.
func (s *LoyaltyService) ApplyRedemptionTx(ctx context.Context, tx *sql.Tx, redemptionID, orderID uuid.UUID) error {
	query := `
		UPDATE canje_puntos
		SET estado = $1, pedido_id = $2
		WHERE id = $3 AND estado = $4
	`
	result, err := tx.ExecContext(ctx, query, models.RedemptionStateApplied, orderID, redemptionID, models.RedemptionStatePending)
	if err != nil {
		return fmt.Errorf("failed to apply redemption: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("redemption already used", nil)
	}
	return nil
}

// FindRedemptionForOrder is the best-effort lookup the invoice reconstructor
// uses: the latest consumed redemption for the customer on the order's
// calendar date. A miss is not an error; the reconstructor falls back to its
// heuristic.
func (s *LoyaltyService) FindRedemptionForOrder(ctx context.Context, customerID uuid.UUID, orderDate time.Time) (*models.Redemption, error) {
	query := `
		SELECT id, cliente_id, recompensa_id, puntos, tipo_descuento, valor, estado, pedido_id, fecha_creacion
		FROM canje_puntos
		WHERE cliente_id = $1
		  AND estado IN ('applied', 'completed')
		  AND DATE(fecha_creacion) = DATE($2)
		ORDER BY fecha_creacion DESC
		LIMIT 1
	`
	redemption, err := s.scanRedemption(s.db.QueryRowContext(ctx, query, customerID, orderDate))
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return redemption, nil
}

func (s *LoyaltyService) scanRedemption(row *sql.Row) (*models.Redemption, error) {
	redemption := &models.Redemption{}
	err := row.Scan(
		&redemption.ID, &redemption.CustomerID, &redemption.RewardID, &redemption.PointsSpent,
		&redemption.Kind, &redemption.Value, &redemption.State, &redemption.OrderID, &redemption.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("redemption not found", err)
		}
		return nil, fmt.Errorf("failed to scan redemption: %w", err)
	}
	return redemption, nil
}
