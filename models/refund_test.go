package models

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func balances(cash, card, transfer int64) []MethodBalance {
	return []MethodBalance{
		{Method: PaymentMethodCash, Balance: amt(cash)},
		{Method: PaymentMethodCard, Balance: amt(card)},
		{Method: PaymentMethodTransfer, Balance: amt(transfer)},
	}
}

func sumAllocations(allocs []RefundAllocation) decimal.Decimal {
	s := decimal.Zero
	for _, a := range allocs {
		s = s.Add(a.Amount)
	}
	return s
}

func TestAllocateRefundLargestBalanceFirst(t *testing.T) {
	allocs, err := AllocateRefund(balances(200, 100, 0), amt(250))
	if err != nil {
		t.Fatalf("AllocateRefund: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("allocations = %+v", allocs)
	}
	if allocs[0].Method != PaymentMethodCash || !allocs[0].Amount.Equal(amt(200)) {
		t.Fatalf("first allocation = %+v", allocs[0])
	}
	if allocs[1].Method != PaymentMethodCard || !allocs[1].Amount.Equal(amt(50)) {
		t.Fatalf("second allocation = %+v", allocs[1])
	}
}

func TestAllocateRefundTiesFollowMethodOrder(t *testing.T) {
	allocs, err := AllocateRefund(balances(0, 100, 100), amt(150))
	if err != nil {
		t.Fatalf("AllocateRefund: %v", err)
	}
	if allocs[0].Method != PaymentMethodCard || allocs[1].Method != PaymentMethodTransfer {
		t.Fatalf("tie order = %+v", allocs)
	}
	if !allocs[1].Amount.Equal(amt(50)) {
		t.Fatalf("transfer share = %s", allocs[1].Amount)
	}
}

func TestAllocateRefundInfeasible(t *testing.T) {
	_, err := AllocateRefund(balances(300000, 0, 0), amt(400000))
	if !IsKind(err, ErrAllocationInfeasible) {
		t.Fatalf("err = %v, want AllocationInfeasible", err)
	}
}

func TestAllocateRefundSkipsNegativeBalances(t *testing.T) {
	allocs, err := AllocateRefund(balances(-50, 100, 0), amt(100))
	if err != nil {
		t.Fatalf("AllocateRefund: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Method != PaymentMethodCard {
		t.Fatalf("allocations = %+v", allocs)
	}
}

func TestAllocateRefundSumsToTarget(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		bs := balances(r.Int63n(100000), r.Int63n(100000), r.Int63n(100000))
		total := RefundableTotal(bs)
		if total.IsZero() {
			continue
		}
		target := amt(r.Int63n(total.IntPart()) + 1)
		allocs, err := AllocateRefund(bs, target)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if !sumAllocations(allocs).Equal(target) {
			t.Fatalf("case %d: allocated %s of %s", i, sumAllocations(allocs), target)
		}
		for _, a := range allocs {
			if a.Amount.GreaterThan(balanceOf(bs, a.Method)) || !a.Amount.IsPositive() {
				t.Fatalf("case %d: allocation %+v outside balance", i, a)
			}
		}
	}
}

func TestExplicitRefundChecks(t *testing.T) {
	bs := balances(200, 100, 0)

	plan := ExplicitRefund{Allocations: []RefundAllocation{{Method: PaymentMethodCash, Amount: amt(100)}}}
	if _, err := plan.allocate(bs, amt(150)); !IsKind(err, ErrAllocationMismatch) {
		t.Fatalf("mismatch err = %v", err)
	}

	plan = ExplicitRefund{Allocations: []RefundAllocation{{Method: PaymentMethodCard, Amount: amt(150)}}}
	if _, err := plan.allocate(bs, amt(150)); !IsKind(err, ErrAllocationInfeasible) {
		t.Fatalf("over-balance err = %v", err)
	}

	plan = ExplicitRefund{Allocations: []RefundAllocation{
		{Method: PaymentMethodCash, Amount: amt(50)},
		{Method: PaymentMethodCard, Amount: amt(100)},
	}}
	allocs, err := plan.allocate(bs, amt(150))
	if err != nil || len(allocs) != 2 {
		t.Fatalf("explicit allocation: %+v, %v", allocs, err)
	}
}

func TestResolveRefundPlan(t *testing.T) {
	plan, err := resolveRefundPlan(&NewInvoiceRefund{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := plan.(AutoRefund); !ok || plan.requestedAmount() != nil {
		t.Fatalf("empty request resolved to %#v", plan)
	}

	zero := decimal.Zero
	if _, err := resolveRefundPlan(&NewInvoiceRefund{Amount: &zero}); !IsKind(err, ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v", err)
	}

	_, err = resolveRefundPlan(&NewInvoiceRefund{Allocations: []RefundAllocation{
		{Method: PaymentMethodCash, Amount: amt(10)},
		{Method: PaymentMethodCash, Amount: amt(20)},
	}})
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("duplicate method err = %v", err)
	}

	plan, err = resolveRefundPlan(&NewInvoiceRefund{Allocations: []RefundAllocation{
		{Method: PaymentMethodCard, Amount: decimal.RequireFromString("10.005")},
	}})
	if err != nil {
		t.Fatalf("resolve explicit: %v", err)
	}
	explicit, ok := plan.(ExplicitRefund)
	if !ok || !explicit.Allocations[0].Amount.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("explicit plan = %#v", plan)
	}
}

func TestRefundableBalances(t *testing.T) {
	rows := []PaymentTransaction{
		pay(PaymentMethodCash, 200),
		pay(PaymentMethodTransfer, 100),
		refund(PaymentMethodCash, 50),
		row(PaymentKindPayment, PaymentMethodCard, PaymentStatusPending, 500),
	}
	bs := RefundableBalances(rows)
	if len(bs) != len(LedgerMethods) {
		t.Fatalf("balances = %+v", bs)
	}
	want := []int64{150, 0, 100}
	for i, b := range bs {
		if b.Method != LedgerMethods[i] || !b.Balance.Equal(amt(want[i])) {
			t.Fatalf("balance[%d] = %+v, want %s %d", i, b, LedgerMethods[i], want[i])
		}
	}
	if !RefundableTotal(bs).Equal(amt(250)) {
		t.Fatalf("refundable total = %s", RefundableTotal(bs))
	}
}
