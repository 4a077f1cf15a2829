package services

import (
	"context"
	"testing"
	"time"

	"sunsets-ordering/internal/apperror"
	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/database"
	"sunsets-ordering/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func newTestInvoiceService(db *database.DB) *InvoiceService {
	log := newTestLogger()
	orders := newTestOrderService(db)
	loyalty := NewLoyaltyService(db, log)
	return NewInvoiceService(db, log, orders, loyalty, &config.PricingConfig{
		DeliveryFee:      1500,
		TaxRate:          0.13,
		ReconcileEpsilon: 1.0,
	})
}

func legacyOrder(subtotal, taxes, discounts, total int64) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		Subtotal:    decimal.NewFromInt(subtotal),
		Taxes:       decimal.NewFromInt(taxes),
		Discounts:   decimal.NewFromInt(discounts),
		Total:       decimal.NewFromInt(total),
		DeliveryFee: decimal.NewFromInt(1500),
		Status:      models.OrderStatusCreated,
		CreatedAt:   time.Now(),
	}
}

func invoiceColumns() []string {
	return []string{"id", "pedido_id", "subtotal", "impuestos", "descuentos", "total", "componentes", "fecha_creacion"}
}

func TestReconstructBreakdown_FixedReward(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	order := legacyOrder(10000, 845, 2500, 8845)

	breakdown := service.ReconstructBreakdown(context.Background(), order)

	requireEqual(t, "subtotal after reward", breakdown.SubtotalAfterReward, 6500)
	requireEqual(t, "subtotal after promotions", breakdown.SubtotalAfterPromotions, 9000)
	requireEqual(t, "reward discount", breakdown.RewardDiscount, 2500)
	requireEqual(t, "promotion discount", breakdown.PromotionDiscount, 1000)
	requireEqual(t, "total", breakdown.Total, 8845)
}

func TestReconstructBreakdown_PercentageHeuristic(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	// A small discount against a large subtotal reads as percent units.
	order := legacyOrder(10000, 1053, 10, 10653)

	breakdown := service.ReconstructBreakdown(context.Background(), order)

	requireEqual(t, "subtotal after reward", breakdown.SubtotalAfterReward, 8100)
	requireEqual(t, "subtotal after promotions", breakdown.SubtotalAfterPromotions, 9000)
	requireEqual(t, "reward discount", breakdown.RewardDiscount, 900)
	requireEqual(t, "promotion discount", breakdown.PromotionDiscount, 1000)
	requireEqual(t, "total", breakdown.Total, 10653)
}

func TestReconstructBreakdown_ZeroTaxes(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	order := legacyOrder(0, 0, 0, 1500)

	breakdown := service.ReconstructBreakdown(context.Background(), order)

	requireEqual(t, "subtotal after reward", breakdown.SubtotalAfterReward, 0)
	requireEqual(t, "reward discount", breakdown.RewardDiscount, 0)
	requireEqual(t, "total", breakdown.Total, 1500)
}

func TestReconstructBreakdown_PrefersRedemptionSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	customerID := uuid.New()
	// The heuristic alone would read a discount of 10 as percent units; the
	// matched redemption says it was a fixed amount.
	order := legacyOrder(10000, 845, 10, 8845)
	order.CustomerID = &customerID

	mock.ExpectQuery("FROM canje_puntos").
		WillReturnRows(sqlmock.NewRows(redemptionColumns()).
			AddRow(uuid.New(), customerID, nil, 500, models.RewardKindFixed, "10",
				models.RedemptionStateApplied, nil, time.Now()))

	breakdown := service.ReconstructBreakdown(context.Background(), order)

	requireEqual(t, "reward discount", breakdown.RewardDiscount, 10)
	requireEqual(t, "subtotal after promotions", breakdown.SubtotalAfterPromotions, 6510)
	requireEqual(t, "promotion discount", breakdown.PromotionDiscount, 3490)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReconstructBreakdown_MismatchUsesRecomputedTotal(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	order := legacyOrder(10000, 845, 2500, 9999)

	breakdown := service.ReconstructBreakdown(context.Background(), order)

	requireEqual(t, "total", breakdown.Total, 8845)
}

func TestBreakdownForOrder_PersistedColumnsSkipReconstruction(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	order := legacyOrder(10000, 845, 2500, 8845)
	order.ProductDiscount = decimal.NewNullDecimal(decimal.NewFromInt(500))
	order.PromotionDiscount = decimal.NewNullDecimal(decimal.NewFromInt(1000))
	order.RewardDiscount = decimal.NewNullDecimal(decimal.NewFromInt(2500))

	breakdown := service.BreakdownForOrder(context.Background(), order)

	requireEqual(t, "subtotal original", breakdown.SubtotalOriginal, 10500)
	requireEqual(t, "product discount", breakdown.ProductDiscount, 500)
	requireEqual(t, "subtotal after promotions", breakdown.SubtotalAfterPromotions, 9000)
	requireEqual(t, "subtotal after reward", breakdown.SubtotalAfterReward, 6500)
	requireEqual(t, "total", breakdown.Total, 8845)

	// Persisted breakdowns never reach the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func expectLegacyOrderFetch(mock sqlmock.Sqlmock, orderID uuid.UUID) {
	mock.ExpectQuery("FROM pedido").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(orderColumns()).
			AddRow(orderID, nil, "Ana", "", "", "10000", "845", "2500", "8845", "1500", nil, nil, nil, nil, models.OrderStatusCreated, time.Now()))
	mock.ExpectQuery("FROM pedido_detalle").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pedido_id", "producto_id", "nombre", "cantidad", "precio_original", "precio_final"}).
			AddRow(uuid.New(), orderID, uuid.New(), "Ceviche", 2, "5000", "5000"))
}

func TestGenerateInvoice_Success(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	orderID := uuid.New()

	mock.ExpectQuery("FROM factura").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(invoiceColumns()))
	expectLegacyOrderFetch(mock, orderID)
	mock.ExpectExec("INSERT INTO factura").
		WillReturnResult(sqlmock.NewResult(0, 1))

	view, err := service.GenerateInvoice(context.Background(), orderID)
	if err != nil {
		t.Fatalf("generate invoice failed: %v", err)
	}

	requireEqual(t, "invoice total", view.Invoice.Total, 8845)
	if len(view.Lines) == 0 {
		t.Fatalf("expected renderer lines")
	}
	last := view.Lines[len(view.Lines)-1]
	if last.Label != "Total" {
		t.Fatalf("expected Total as the last line, got %q", last.Label)
	}
	requireEqual(t, "total line", last.Amount, 8845)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateInvoice_ReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	orderID := uuid.New()
	invoiceID := uuid.New()

	mock.ExpectQuery("FROM factura").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(invoiceColumns()).
			AddRow(invoiceID, orderID, "10000", "845", "2500", "8845", []byte(`{}`), time.Now()))
	expectLegacyOrderFetch(mock, orderID)

	view, err := service.GenerateInvoice(context.Background(), orderID)
	if err != nil {
		t.Fatalf("generate invoice failed: %v", err)
	}
	if view.Invoice.ID != invoiceID {
		t.Fatalf("expected the existing invoice, got %s", view.Invoice.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateInvoice_LostRaceReturnsWinner(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	orderID := uuid.New()
	winnerID := uuid.New()

	mock.ExpectQuery("FROM factura").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(invoiceColumns()))
	expectLegacyOrderFetch(mock, orderID)
	mock.ExpectExec("INSERT INTO factura").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("FROM factura").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(invoiceColumns()).
			AddRow(winnerID, orderID, "10000", "845", "2500", "8845", []byte(`{}`), time.Now()))
	expectLegacyOrderFetch(mock, orderID)

	view, err := service.GenerateInvoice(context.Background(), orderID)
	if err != nil {
		t.Fatalf("expected the winner's invoice, got error: %v", err)
	}
	if view.Invoice.ID != winnerID {
		t.Fatalf("expected winner invoice %s, got %s", winnerID, view.Invoice.ID)
	}
}

func TestGetInvoice_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := newTestInvoiceService(db)
	orderID := uuid.New()

	mock.ExpectQuery("FROM factura").
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(invoiceColumns()))

	_, err := service.GetInvoice(context.Background(), orderID)
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
