package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/models"
	"sunsets-ordering/internal/redis"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

func newTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skip: cannot start miniredis in this environment: %v", err)
		}
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	parts := strings.Split(mr.Addr(), ":")
	cfg := &config.RedisConfig{
		Host: parts[0],
		Port: parts[1],
		DB:   0,
	}

	rdb, err := redis.Connect(cfg, newTestLogger())
	if err != nil {
		t.Fatalf("failed to connect redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}

func expectPromotionLoad(mock sqlmock.Sqlmock, promoID, productID uuid.UUID) {
	yesterday := time.Now().Add(-24 * time.Hour)
	tomorrow := time.Now().Add(24 * time.Hour)

	mock.ExpectQuery("FROM promocion").
		WillReturnRows(sqlmock.NewRows(promotionColumns()).
			AddRow(promoID, "Ceviche night", models.PromotionScopeProduct, "15", yesterday, tomorrow, nil, nil, 1).
			AddRow(uuid.New(), "Retired promo", models.PromotionScopeGeneral, "20", yesterday, tomorrow, nil, nil, 0))
	mock.ExpectQuery("FROM promocion_producto").
		WillReturnRows(sqlmock.NewRows([]string{"promocion_id", "producto_id"}).
			AddRow(promoID, productID))
}

func TestActivePromotions_LoadsScopesAndSkipsDisabled(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewPromotionService(db, nil, newTestLogger(), &config.PromotionsConfig{CacheTTLMinutes: 5})
	promoID := uuid.New()
	productID := uuid.New()
	expectPromotionLoad(mock, promoID, productID)

	active, err := service.ActivePromotions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("active promotions failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active promotion, got %d", len(active))
	}
	if active[0].ID != promoID {
		t.Fatalf("expected the enabled promotion, got %s", active[0].Name)
	}
	if len(active[0].ProductIDs) != 1 || active[0].ProductIDs[0] != productID {
		t.Fatalf("expected product scope to be attached, got %v", active[0].ProductIDs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActivePromotions_DateWindowFilters(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewPromotionService(db, nil, newTestLogger(), &config.PromotionsConfig{CacheTTLMinutes: 5})
	lastWeek := time.Now().Add(-7 * 24 * time.Hour)
	promoID := uuid.New()

	mock.ExpectQuery("FROM promocion").
		WillReturnRows(sqlmock.NewRows(promotionColumns()).
			AddRow(promoID, "Expired", models.PromotionScopeGeneral, "10", lastWeek, lastWeek.Add(48*time.Hour), nil, nil, 1))
	mock.ExpectQuery("FROM promocion_producto").
		WillReturnRows(sqlmock.NewRows([]string{"promocion_id", "producto_id"}))

	active, err := service.ActivePromotions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("active promotions failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active promotions, got %d", len(active))
	}
}

func TestActivePromotions_SecondCallServedFromCache(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	rdb := newTestRedis(t)

	service := NewPromotionService(db, rdb, newTestLogger(), &config.PromotionsConfig{CacheTTLMinutes: 5})
	expectPromotionLoad(mock, uuid.New(), uuid.New())

	if _, err := service.ActivePromotions(context.Background(), time.Now()); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	active, err := service.ActivePromotions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active promotion from cache, got %d", len(active))
	}

	// The second call must not have touched the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInvalidateCache_ForcesReload(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	rdb := newTestRedis(t)

	service := NewPromotionService(db, rdb, newTestLogger(), &config.PromotionsConfig{CacheTTLMinutes: 5})
	expectPromotionLoad(mock, uuid.New(), uuid.New())

	if _, err := service.ActivePromotions(context.Background(), time.Now()); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	if err := service.InvalidateCache(context.Background()); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	expectPromotionLoad(mock, uuid.New(), uuid.New())
	if _, err := service.ActivePromotions(context.Background(), time.Now()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected a fresh database load after invalidation: %v", err)
	}
}
