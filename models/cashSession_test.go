package models_test

import (
	"sync"
	"testing"

	"github.com/mmdatafocus/salon_backend/models"
	"github.com/mmdatafocus/salon_backend/testutil"
)

func TestSnapshotExpectedClosingBalance(t *testing.T) {
	ctx := setup(t)
	session := mustOpen(t, ctx, 500000)

	inv := mustInvoice(t, ctx, 150000)
	mustPay(t, ctx, inv.ID, cash(150000))
	_, err := models.RecordCashTransaction(ctx, &models.NewCashTransaction{
		Type:     models.CashTransactionTypeOut,
		Amount:   d(50000),
		Category: ptr("supplies"),
	})
	if err != nil {
		t.Fatalf("RecordCashTransaction: %v", err)
	}

	snap, err := models.GetCurrentCashSessionSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetCurrentCashSessionSnapshot: %v", err)
	}
	if snap.Session.ID != session.ID {
		t.Fatalf("snapshot of session %d, want %d", snap.Session.ID, session.ID)
	}
	expectAmount(t, "invoiceCashIn", snap.InvoiceCashIn, 150000)
	expectAmount(t, "manualOut", snap.ManualOut, 50000)
	expectAmount(t, "expectedClosingBalance", snap.ExpectedClosingBalance, 600000)
}

func TestSnapshotCountsOnlyConfirmedCashOfTheSession(t *testing.T) {
	ctx := setup(t)

	// paid before any session: no stamp, never counted
	early := mustInvoice(t, ctx, 7000)
	mustPay(t, ctx, early.ID, cash(7000))

	session := mustOpen(t, ctx, 100000)
	inv := mustInvoice(t, ctx, 90000)
	mustPay(t, ctx, inv.ID, cash(40000), card(30000))
	mustPay(t, ctx, inv.ID, models.NewPayment{Method: models.PaymentMethodTransfer, Amount: d(20000), Status: models.PaymentStatusPending})
	if _, err := models.RefundInvoice(ctx, inv.ID, &models.NewInvoiceRefund{
		Amount:      ptr(d(10000)),
		Allocations: []models.RefundAllocation{{Method: models.PaymentMethodCash, Amount: d(10000)}},
	}); err != nil {
		t.Fatalf("RefundInvoice: %v", err)
	}
	if _, err := models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: models.CashTransactionTypeIn, Amount: d(5000)}); err != nil {
		t.Fatalf("RecordCashTransaction: %v", err)
	}

	snap, err := models.GetCashSessionSnapshot(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetCashSessionSnapshot: %v", err)
	}
	expectAmount(t, "invoiceCashIn", snap.InvoiceCashIn, 40000)
	expectAmount(t, "invoiceCashOut", snap.InvoiceCashOut, 10000)
	expectAmount(t, "manualIn", snap.ManualIn, 5000)
	expectAmount(t, "expected", snap.ExpectedClosingBalance, 135000)

	rows, _ := models.GetInvoicePayments(ctx, early.ID)
	if rows[0].CashSessionId != nil {
		t.Fatalf("cash paid with no session was stamped %d", *rows[0].CashSessionId)
	}
}

func TestSessionStampFollowsCurrentRegister(t *testing.T) {
	ctx := setup(t)
	inv := mustInvoice(t, ctx, 20000)
	mustPay(t, ctx, inv.ID, models.NewPayment{Method: models.PaymentMethodCard, Amount: d(20000), Status: models.PaymentStatusPending})

	first := mustOpen(t, ctx, 0)
	if _, err := models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(0)}); err != nil {
		t.Fatalf("CloseCashSession: %v", err)
	}
	second := mustOpen(t, ctx, 0)
	if first.ID == second.ID {
		t.Fatalf("reopened the same session")
	}

	rows, _ := models.GetInvoicePayments(ctx, inv.ID)
	pt, err := models.UpdatePaymentStatus(ctx, rows[0].ID, &models.PaymentStatusUpdate{Status: models.PaymentStatusConfirmed})
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if pt.CashSessionId != nil {
		t.Fatalf("card row stamped with session %d", *pt.CashSessionId)
	}

	cashInv := mustInvoice(t, ctx, 5000)
	mustPay(t, ctx, cashInv.ID, cash(5000))
	cashRows, _ := models.GetInvoicePayments(ctx, cashInv.ID)
	if cashRows[0].CashSessionId == nil || *cashRows[0].CashSessionId != second.ID {
		t.Fatalf("cash row session = %v, want %d", cashRows[0].CashSessionId, second.ID)
	}
}

func TestCloseCashSession(t *testing.T) {
	ctx := setup(t)
	session := mustOpen(t, ctx, 500000)
	inv := mustInvoice(t, ctx, 100000)
	mustPay(t, ctx, inv.ID, cash(100000))

	closed, err := models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(590000), Notes: ptr("short 10k")})
	if err != nil {
		t.Fatalf("CloseCashSession: %v", err)
	}
	if closed.Status != models.CashSessionStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("closed session = %+v", closed)
	}
	expectAmount(t, "expected", closed.ExpectedClosingBalance, 600000)
	expectAmount(t, "actual", *closed.ActualClosingBalance, 590000)
	expectAmount(t, "discrepancy", *closed.Discrepancy, -10000)

	// closing twice
	_, err = models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(0), SessionId: &session.ID})
	expectKind(t, err, models.ErrInvalidState)
	_, err = models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(0)})
	expectKind(t, err, models.ErrInvalidState)
	_, err = models.GetCurrentCashSessionSnapshot(ctx)
	expectKind(t, err, models.ErrNoOpenSession)

	// frozen figures do not move with later cash
	later := mustInvoice(t, ctx, 1000)
	mustPay(t, ctx, later.ID, cash(1000))
	stored, err := models.GetCashSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetCashSession: %v", err)
	}
	expectAmount(t, "frozen expected", stored.ExpectedClosingBalance, 600000)

	_, err = models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: models.CashTransactionTypeIn, Amount: d(10), SessionId: &session.ID})
	expectKind(t, err, models.ErrInvalidState)
	if n := outboxCount(t, models.SettlementReferenceTypeSessionClose); n != 1 {
		t.Fatalf("CSC outbox rows = %d", n)
	}
}

func TestCloseWithoutOpenSession(t *testing.T) {
	ctx := setup(t)
	_, err := models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(0)})
	expectKind(t, err, models.ErrInvalidState)

	mustOpen(t, ctx, 1000)
	if _, err := models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(1000)}); err != nil {
		t.Fatalf("CloseCashSession: %v", err)
	}
	_, err = models.CloseCashSession(ctx, &models.CloseCashSessionInput{ActualClosingBalance: d(1000)})
	expectKind(t, err, models.ErrInvalidState)
	if n := outboxCount(t, models.SettlementReferenceTypeSessionClose); n != 1 {
		t.Fatalf("CSC outbox rows = %d, want 1", n)
	}
}

func TestOpenCashSessionIsExclusive(t *testing.T) {
	ctx := setup(t)
	mustOpen(t, ctx, 1000)
	_, err := models.OpenCashSession(ctx, &models.NewCashSession{OpeningBalance: d(1000)})
	expectKind(t, err, models.ErrSessionAlreadyOpen)

	_, err = models.OpenCashSession(ctx, &models.NewCashSession{OpeningBalance: d(-1)})
	expectKind(t, err, models.ErrInvalidAmount)

	// another business has its own drawer
	if _, err := models.OpenCashSession(testutil.BusinessContext("biz-salon-2"), &models.NewCashSession{}); err != nil {
		t.Fatalf("open for second business: %v", err)
	}
}

func TestConcurrentOpensYieldOneSession(t *testing.T) {
	ctx := setup(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		opened    int
		conflicts int
		others    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.OpenCashSession(ctx, &models.NewCashSession{OpeningBalance: d(1000)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case models.IsKind(err, models.ErrSessionAlreadyOpen):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if opened != 1 || conflicts != workers-1 {
		t.Fatalf("opened=%d conflicts=%d", opened, conflicts)
	}
}

func TestOpenCashSessionIdempotencyKey(t *testing.T) {
	ctx := setup(t)
	input := &models.NewCashSession{OpeningBalance: d(2500), IdempotencyKey: ptr("drawer-morning")}
	first, err := models.OpenCashSession(ctx, input)
	if err != nil {
		t.Fatalf("OpenCashSession: %v", err)
	}
	again, err := models.OpenCashSession(ctx, input)
	if err != nil {
		t.Fatalf("replayed OpenCashSession: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay opened session %d, want %d", again.ID, first.ID)
	}
}

func TestRecordCashTransaction(t *testing.T) {
	ctx := setup(t)
	_, err := models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: models.CashTransactionTypeIn, Amount: d(100)})
	expectKind(t, err, models.ErrNoOpenSession)

	session := mustOpen(t, ctx, 0)
	_, err = models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: models.CashTransactionTypeIn, Amount: d(0)})
	expectKind(t, err, models.ErrInvalidAmount)
	_, err = models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: "sideways", Amount: d(10)})
	expectKind(t, err, models.ErrInvalidInput)
	missing := 9999
	_, err = models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: models.CashTransactionTypeIn, Amount: d(10), SessionId: &missing})
	expectKind(t, err, models.ErrNotFound)

	key := ptr("float-topup-1")
	for i := 0; i < 2; i++ {
		if _, err := models.RecordCashTransaction(ctx, &models.NewCashTransaction{Type: models.CashTransactionTypeIn, Amount: d(3000), IdempotencyKey: key}); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	moves, err := models.ListCashTransactions(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListCashTransactions: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("movements = %d, want 1", len(moves))
	}
	if n := outboxCount(t, models.SettlementReferenceTypeCashTransaction); n != 1 {
		t.Fatalf("CTX outbox rows = %d", n)
	}
}

func TestCashRequiresOpenSession(t *testing.T) {
	ctx := setup(t)
	t.Setenv("CASH_REQUIRES_OPEN_SESSION", "true")

	inv := mustInvoice(t, ctx, 1000)
	_, err := models.RecordInvoicePayments(ctx, inv.ID, &models.NewInvoicePayments{Payments: []models.NewPayment{cash(1000)}})
	expectKind(t, err, models.ErrNoOpenSession)

	// non-cash is unaffected
	mustPay(t, ctx, inv.ID, card(1000))
	_, err = models.RefundInvoice(ctx, inv.ID, &models.NewInvoiceRefund{
		Amount:      ptr(d(1000)),
		Allocations: []models.RefundAllocation{{Method: models.PaymentMethodCash, Amount: d(1000)}},
	})
	expectKind(t, err, models.ErrAllocationInfeasible)

	mustOpen(t, ctx, 0)
	other := mustInvoice(t, ctx, 500)
	mustPay(t, ctx, other.ID, cash(500))
}
