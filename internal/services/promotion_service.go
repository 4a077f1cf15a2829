package services

import (
	"context"
	"fmt"
	"time"

	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/database"
	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"
	"sunsets-ordering/internal/redis"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	promotionCacheKey        = "promo:enabled"
	defaultPromotionCacheTTL = 5 * time.Minute
)

// PromotionService is a read-only lookup of promotions for the pricing
// pipeline. Promotion lifecycle (CRUD) is owned by catalog management; this
// service only answers "what applies right now". The enabled set is cached
// in Redis and the time window is evaluated per call.
type PromotionService struct {
	db       *database.DB
	redis    *redis.Client
	log      *logger.Logger
	cacheTTL time.Duration
}

// NewPromotionService creates the promotion lookup service.
func NewPromotionService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.PromotionsConfig) *PromotionService {
	cacheTTL := defaultPromotionCacheTTL
	if cfg != nil && cfg.CacheTTLMinutes > 0 {
		cacheTTL = time.Duration(cfg.CacheTTLMinutes) * time.Minute
	}
	return &PromotionService{
		db:       db,
		redis:    redisClient,
		log:      log,
		cacheTTL: cacheTTL,
	}
}

// ActivePromotions returns the promotions whose window covers now. Flags are
// normalized to a real bool once, at scan time; the window filter happens
// in-process so the cached set stays valid across minute boundaries.
func (s *PromotionService) ActivePromotions(ctx context.Context, now time.Time) ([]models.Promotion, error) {
	promotions, err := s.enabledPromotions(ctx)
	if err != nil {
		return nil, err
	}

	var active []models.Promotion
	for _, p := range promotions {
		if p.ActiveAt(now) {
			active = append(active, p)
		}
	}
	return active, nil
}

// enabledPromotions loads every promotion with its product scope, preferring
// the cache.
func (s *PromotionService) enabledPromotions(ctx context.Context) ([]models.Promotion, error) {
	if s.redis != nil {
		var cached []models.Promotion
		if err := s.redis.Get(ctx, promotionCacheKey, &cached); err == nil {
			s.log.WithField("count", len(cached)).Debug("Promotions served from cache")
			return cached, nil
		}
	}

	query := `
		SELECT id, nombre, alcance, porcentaje, fecha_inicio, fecha_fin, hora_inicio, hora_fin, activo
		FROM promocion
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	defer rows.Close()

	var promotions []models.Promotion
	var ids []uuid.UUID
	for rows.Next() {
		var p models.Promotion
		var startTime, endTime *string
		var active models.LooseBool
		if err := rows.Scan(&p.ID, &p.Name, &p.Scope, &p.Percentage, &p.StartDate, &p.EndDate, &startTime, &endTime, &active); err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		if startTime != nil {
			p.StartTime = *startTime
		}
		if endTime != nil {
			p.EndTime = *endTime
		}
		p.Active = active.Bool()
		promotions = append(promotions, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate promotions: %w", err)
	}

	if err := s.attachProductScopes(ctx, promotions, ids); err != nil {
		return nil, err
	}

	if s.redis != nil && len(promotions) > 0 {
		if err := s.redis.Set(ctx, promotionCacheKey, promotions, s.cacheTTL); err != nil {
			s.log.WithError(err).Warn("Failed to cache promotions")
		}
	}

	return promotions, nil
}

// attachProductScopes fills ProductIDs for product-scoped promotions.
func (s *PromotionService) attachProductScopes(ctx context.Context, promotions []models.Promotion, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		SELECT promocion_id, producto_id
		FROM promocion_producto
		WHERE promocion_id = ANY($1)
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to list promotion products: %w", err)
	}
	defer rows.Close()

	byPromotion := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var promotionID, productID uuid.UUID
		if err := rows.Scan(&promotionID, &productID); err != nil {
			return fmt.Errorf("failed to scan promotion product: %w", err)
		}
		byPromotion[promotionID] = append(byPromotion[promotionID], productID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate promotion products: %w", err)
	}

	for i := range promotions {
		promotions[i].ProductIDs = byPromotion[promotions[i].ID]
	}
	return nil
}

// InvalidateCache drops the cached promotion set, for back-office callers
// that just edited the catalog.
func (s *PromotionService) InvalidateCache(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Delete(ctx, promotionCacheKey)
}
