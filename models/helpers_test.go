package models_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/testutil"
	"github.com/shopspring/decimal"
)

const testBusiness = "biz-salon-1"

func setup(t *testing.T) context.Context {
	t.Helper()
	testutil.OpenDB(t)
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return testutil.BusinessContext(testBusiness)
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr[T any](v T) *T { return &v }

func mustInvoice(t *testing.T, ctx context.Context, total int64) *models.Invoice {
	t.Helper()
	inv, err := models.CreateInvoice(ctx, &models.NewInvoice{Subtotal: d(total)})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return inv
}

func mustPay(t *testing.T, ctx context.Context, invoiceId int, payments ...models.NewPayment) *models.Invoice {
	t.Helper()
	inv, err := models.RecordInvoicePayments(ctx, invoiceId, &models.NewInvoicePayments{Payments: payments})
	if err != nil {
		t.Fatalf("RecordInvoicePayments: %v", err)
	}
	return inv
}

func cash(v int64) models.NewPayment {
	return models.NewPayment{Method: models.PaymentMethodCash, Amount: d(v)}
}

func card(v int64) models.NewPayment {
	return models.NewPayment{Method: models.PaymentMethodCard, Amount: d(v)}
}

func mustOpen(t *testing.T, ctx context.Context, opening int64) *models.CashSession {
	t.Helper()
	s, err := models.OpenCashSession(ctx, &models.NewCashSession{OpeningBalance: d(opening)})
	if err != nil {
		t.Fatalf("OpenCashSession: %v", err)
	}
	return s
}

func expectKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	if !models.IsKind(err, kind) {
		t.Fatalf("err = %v, want %s", err, kind)
	}
}

func expectAmount(t *testing.T, what string, got decimal.Decimal, want int64) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Fatalf("%s = %s, want %d", what, got, want)
	}
}

func outboxCount(t *testing.T, refType models.SettlementReferenceType) int64 {
	t.Helper()
	var n int64
	err := config.GetDB().Model(&models.PubSubMessageRecord{}).
		Where("business_id = ? AND reference_type = ?", testBusiness, refType).
		Count(&n).Error
	if err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return n
}
