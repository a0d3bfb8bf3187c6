package reports

import (
	"testing"
	"time"

	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/testutil"
	"github.com/shopspring/decimal"
)

func TestPaymentMethodReport(t *testing.T) {
	testutil.OpenDB(t)
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := testutil.BusinessContext("biz-report")

	inv, err := models.CreateInvoice(ctx, &models.NewInvoice{Subtotal: decimal.NewFromInt(300000)})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	_, err = models.RecordInvoicePayments(ctx, inv.ID, &models.NewInvoicePayments{Payments: []models.NewPayment{
		{Method: models.PaymentMethodCash, Amount: decimal.NewFromInt(200000)},
		{Method: models.PaymentMethodTransfer, Amount: decimal.NewFromInt(100000), Status: models.PaymentStatusPending},
	}})
	if err != nil {
		t.Fatalf("RecordInvoicePayments: %v", err)
	}
	refundAmount := decimal.NewFromInt(50000)
	if _, err := models.RefundInvoice(ctx, inv.ID, &models.NewInvoiceRefund{Amount: &refundAmount}); err != nil {
		t.Fatalf("RefundInvoice: %v", err)
	}

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)
	rows, err := GetPaymentMethodReport(ctx, &from, &to)
	if err != nil {
		t.Fatalf("GetPaymentMethodReport: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	cash, card, transfer := rows[0], rows[1], rows[2]
	if cash.Method != models.PaymentMethodCash || card.Method != models.PaymentMethodCard || transfer.Method != models.PaymentMethodTransfer {
		t.Fatalf("row order = %s %s %s", cash.Method, card.Method, transfer.Method)
	}
	if !cash.Received.Equal(decimal.NewFromInt(200000)) || !cash.Refunded.Equal(decimal.NewFromInt(50000)) || !cash.Net.Equal(decimal.NewFromInt(150000)) {
		t.Fatalf("cash row = %+v", cash)
	}
	if cash.ConfirmedCount != 1 || cash.PendingCount != 0 {
		t.Fatalf("cash counts = %d confirmed %d pending", cash.ConfirmedCount, cash.PendingCount)
	}
	if !transfer.Received.IsZero() || transfer.PendingCount != 1 {
		t.Fatalf("transfer row = %+v", transfer)
	}
	if !card.Received.IsZero() || card.ConfirmedCount != 0 {
		t.Fatalf("card row = %+v", card)
	}

	future := time.Now().Add(24 * time.Hour)
	rows, err = GetPaymentMethodReport(ctx, &future, nil)
	if err != nil {
		t.Fatalf("GetPaymentMethodReport: %v", err)
	}
	for _, r := range rows {
		if !r.Received.IsZero() || r.PendingCount != 0 {
			t.Fatalf("future window row = %+v", r)
		}
	}

	if _, err := GetPaymentMethodReport(ctx, &to, &from); !models.IsKind(err, models.ErrInvalidInput) {
		t.Fatalf("inverted window err = %v", err)
	}

	// other tenants see zeros
	rows, err = GetPaymentMethodReport(testutil.BusinessContext("biz-other"), nil, nil)
	if err != nil {
		t.Fatalf("GetPaymentMethodReport: %v", err)
	}
	if !rows[0].Received.IsZero() {
		t.Fatalf("other business saw cash %s", rows[0].Received)
	}
}

func TestExportPaymentMethodReport(t *testing.T) {
	rows := []*PaymentMethodReportRow{
		{Method: models.PaymentMethodCash, Received: decimal.NewFromInt(1500), Net: decimal.NewFromInt(1500), ConfirmedCount: 2},
		{Method: models.PaymentMethodCard},
		{Method: models.PaymentMethodTransfer},
	}
	f, err := ExportPaymentMethodReport(rows)
	if err != nil {
		t.Fatalf("ExportPaymentMethodReport: %v", err)
	}
	defer f.Close()

	for cell, want := range map[string]string{"A1": "Method", "F1": "ConfirmedCount", "A2": "cash", "B2": "1500", "F2": "2", "A4": "transfer"} {
		got, err := f.GetCellValue(defaultSheet, cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		if got != want {
			t.Fatalf("%s = %q, want %q", cell, got, want)
		}
	}
}

func TestExportCashSessionReport(t *testing.T) {
	closedAt := time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC)
	actual := decimal.NewFromInt(590000)
	discrepancy := decimal.NewFromInt(-10000)
	note := "float top-up"
	snap := &models.CashSessionSnapshot{
		Session: &models.CashSession{
			ID:                   7,
			Status:               models.CashSessionStatusClosed,
			OpenedAt:             closedAt.Add(-10 * time.Hour),
			OpenedByName:         "Aye",
			ClosedAt:             &closedAt,
			ActualClosingBalance: &actual,
			Discrepancy:          &discrepancy,
		},
		OpeningBalance:         decimal.NewFromInt(500000),
		InvoiceCashIn:          decimal.NewFromInt(150000),
		ManualOut:              decimal.NewFromInt(50000),
		ExpectedClosingBalance: decimal.NewFromInt(600000),
	}
	movements := []*models.CashTransaction{
		{ID: 1, Type: models.CashTransactionTypeIn, Amount: decimal.NewFromInt(20000), Notes: &note, CreatedAt: closedAt.Add(-time.Hour)},
	}

	f, err := ExportCashSessionReport(snap, movements)
	if err != nil {
		t.Fatalf("ExportCashSessionReport: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Summary" || sheets[1] != "Movements" {
		t.Fatalf("sheets = %v", sheets)
	}
	if got, _ := f.GetCellValue("Summary", "A11"); got != "Expected Closing Balance" {
		t.Fatalf("A11 = %q", got)
	}
	if got, _ := f.GetCellValue("Summary", "B11"); got != "600000" {
		t.Fatalf("B11 = %q", got)
	}
	if got, _ := f.GetCellValue("Summary", "B14"); got != "-10000" {
		t.Fatalf("discrepancy cell = %q", got)
	}
	if got, _ := f.GetCellValue("Movements", "F2"); got != note {
		t.Fatalf("movement notes = %q", got)
	}
}
