package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func row(kind PaymentKind, method PaymentMethod, status PaymentStatus, amount int64) PaymentTransaction {
	return PaymentTransaction{Kind: kind, Method: method, Status: status, Amount: amt(amount)}
}

func pay(method PaymentMethod, amount int64) PaymentTransaction {
	return row(PaymentKindPayment, method, PaymentStatusConfirmed, amount)
}

func refund(method PaymentMethod, amount int64) PaymentTransaction {
	return row(PaymentKindRefund, method, PaymentStatusConfirmed, amount)
}

func methodOf(s DerivedInvoiceState) string {
	if s.PaymentMethod == nil {
		return ""
	}
	return string(*s.PaymentMethod)
}

func TestDeriveInvoiceState(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	inv := Invoice{Total: amt(300000), Status: InvoiceStatusPending}

	cases := []struct {
		name       string
		rows       []PaymentTransaction
		wantStatus InvoiceStatus
		wantNet    int64
		wantChange int64
		wantMethod string
		wantOpen   bool
	}{
		{"empty ledger", nil, InvoiceStatusPending, 0, 0, "", true},
		{"partial cash", []PaymentTransaction{pay(PaymentMethodCash, 200000)}, InvoiceStatusPending, 200000, 0, "cash", true},
		{"cash then card", []PaymentTransaction{pay(PaymentMethodCash, 200000), pay(PaymentMethodCard, 100000)}, InvoiceStatusPaid, 300000, 0, "mixed", false},
		{"overpaid cash gives change", []PaymentTransaction{pay(PaymentMethodCash, 350000)}, InvoiceStatusPaid, 350000, 50000, "cash", false},
		{"pending rows ignored", []PaymentTransaction{pay(PaymentMethodCash, 100000), row(PaymentKindPayment, PaymentMethodCard, PaymentStatusPending, 200000)}, InvoiceStatusPending, 100000, 0, "cash", true},
		{"failed rows ignored", []PaymentTransaction{row(PaymentKindPayment, PaymentMethodTransfer, PaymentStatusFailed, 300000)}, InvoiceStatusPending, 0, 0, "", true},
		{"full refund", []PaymentTransaction{pay(PaymentMethodCash, 300000), refund(PaymentMethodCash, 300000)}, InvoiceStatusRefunded, 0, 0, "", false},
		{"partial refund stays paid", []PaymentTransaction{pay(PaymentMethodCash, 300000), refund(PaymentMethodCash, 100000)}, InvoiceStatusPaid, 200000, 0, "cash", false},
		{"refund drops method from mix", []PaymentTransaction{pay(PaymentMethodCash, 200000), pay(PaymentMethodCard, 100000), refund(PaymentMethodCard, 100000)}, InvoiceStatusPaid, 200000, 0, "cash", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := DeriveInvoiceState(inv, c.rows, now)
			if s.Status != c.wantStatus {
				t.Fatalf("status = %s, want %s", s.Status, c.wantStatus)
			}
			if !s.NetPaid.Equal(amt(c.wantNet)) {
				t.Fatalf("netPaid = %s, want %d", s.NetPaid, c.wantNet)
			}
			if !s.ChangeAmount.Equal(amt(c.wantChange)) {
				t.Fatalf("change = %s, want %d", s.ChangeAmount, c.wantChange)
			}
			if methodOf(s) != c.wantMethod {
				t.Fatalf("method = %q, want %q", methodOf(s), c.wantMethod)
			}
			if s.IsOpenInTab != c.wantOpen {
				t.Fatalf("isOpenInTab = %v, want %v", s.IsOpenInTab, c.wantOpen)
			}
		})
	}
}

func TestDeriveInvoiceStateToleratesRounding(t *testing.T) {
	inv := Invoice{Total: decimal.RequireFromString("100.00"), Status: InvoiceStatusPending}
	rows := []PaymentTransaction{{Kind: PaymentKindPayment, Method: PaymentMethodCard, Status: PaymentStatusConfirmed, Amount: decimal.RequireFromString("99.99")}}
	if s := DeriveInvoiceState(inv, rows, time.Now()); s.Status != InvoiceStatusPaid {
		t.Fatalf("99.99 of 100.00 should settle, got %s", s.Status)
	}
	rows[0].Amount = decimal.RequireFromString("99.98")
	if s := DeriveInvoiceState(inv, rows, time.Now()); s.Status != InvoiceStatusPending {
		t.Fatalf("99.98 of 100.00 should stay pending, got %s", s.Status)
	}
}

func TestDeriveInvoiceStateKeepsCancelled(t *testing.T) {
	inv := Invoice{Total: amt(1000), Status: InvoiceStatusCancelled}
	s := DeriveInvoiceState(inv, []PaymentTransaction{pay(PaymentMethodCash, 1000)}, time.Now())
	if s.Status != InvoiceStatusCancelled || s.IsOpenInTab {
		t.Fatalf("cancelled invoice derived to %s open=%v", s.Status, s.IsOpenInTab)
	}
	if s.PaidAt != nil {
		t.Fatalf("cancelled invoice got paidAt")
	}
}

func TestDeriveInvoiceStateIsIdempotent(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	refundedAt := paidAt.Add(2 * time.Hour)
	inv := Invoice{Total: amt(300000), Status: InvoiceStatusPending}
	rows := []PaymentTransaction{pay(PaymentMethodCash, 300000)}

	DeriveInvoiceState(inv, rows, paidAt).Apply(&inv)
	rows = append(rows, refund(PaymentMethodCash, 300000))
	s1 := DeriveInvoiceState(inv, rows, refundedAt)
	s1.Apply(&inv)
	s2 := DeriveInvoiceState(inv, rows, refundedAt.Add(time.Hour))

	if s2.Status != InvoiceStatusRefunded || s2.Status != s1.Status || !s2.NetPaid.Equal(s1.NetPaid) || methodOf(s2) != methodOf(s1) {
		t.Fatalf("second derivation moved: %+v vs %+v", s2, s1)
	}
	if s2.PaidAt == nil || !s2.PaidAt.Equal(paidAt) {
		t.Fatalf("paidAt = %v, want %v", s2.PaidAt, paidAt)
	}
	if s2.RefundedAt == nil || !s2.RefundedAt.Equal(refundedAt) {
		t.Fatalf("refundedAt = %v, want %v", s2.RefundedAt, refundedAt)
	}
}
