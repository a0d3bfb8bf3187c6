package models

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type RefundAllocation struct {
	Method PaymentMethod   `json:"method" validate:"required,oneof=cash card transfer"`
	Amount decimal.Decimal `json:"amount"`
}

type NewInvoiceRefund struct {
	Reason         *string            `json:"reason"`
	Amount         *decimal.Decimal   `json:"amount"`
	Allocations    []RefundAllocation `json:"allocations" validate:"dive"`
	IdempotencyKey *string            `json:"idempotency_key" validate:"omitempty,max=255"`
}

// MethodBalance is what can still be refunded through one method:
// confirmed payments minus confirmed refunds.
type MethodBalance struct {
	Method  PaymentMethod   `json:"method"`
	Balance decimal.Decimal `json:"balance"`
}

// RefundPlan is either AutoRefund or ExplicitRefund.
type RefundPlan interface {
	requestedAmount() *decimal.Decimal
	allocate(balances []MethodBalance, target decimal.Decimal) ([]RefundAllocation, error)
}

// AutoRefund spreads the refund over the methods that were paid with.
type AutoRefund struct {
	Amount *decimal.Decimal
}

// ExplicitRefund uses the caller's per-method split.
type ExplicitRefund struct {
	Amount      *decimal.Decimal
	Allocations []RefundAllocation
}

func (p AutoRefund) requestedAmount() *decimal.Decimal     { return p.Amount }
func (p ExplicitRefund) requestedAmount() *decimal.Decimal { return p.Amount }

func (p AutoRefund) allocate(balances []MethodBalance, target decimal.Decimal) ([]RefundAllocation, error) {
	return AllocateRefund(balances, target)
}

func (p ExplicitRefund) allocate(balances []MethodBalance, target decimal.Decimal) ([]RefundAllocation, error) {
	sum := decimal.Zero
	for _, a := range p.Allocations {
		sum = sum.Add(a.Amount)
	}
	if !withinTolerance(sum, target) {
		return nil, newError(ErrAllocationMismatch, "allocations add up to %s but the refund is %s", sum.StringFixed(2), target.StringFixed(2))
	}
	for _, a := range p.Allocations {
		if a.Amount.GreaterThan(balanceOf(balances, a.Method).Add(AmountTolerance)) {
			return nil, newError(ErrAllocationInfeasible, "cannot refund %s by %s; only %s was paid that way",
				a.Amount.StringFixed(2), a.Method, maxDecimal(balanceOf(balances, a.Method), decimal.Zero).StringFixed(2))
		}
	}
	return p.Allocations, nil
}

// resolveRefundPlan normalizes the request once and picks the plan variant.
func resolveRefundPlan(input *NewInvoiceRefund) (RefundPlan, error) {
	var amount *decimal.Decimal
	if input.Amount != nil {
		a, err := NormalizePositiveAmount(*input.Amount)
		if err != nil {
			return nil, err
		}
		amount = &a
	}
	if len(input.Allocations) == 0 {
		return AutoRefund{Amount: amount}, nil
	}
	seen := make(map[PaymentMethod]bool, len(input.Allocations))
	allocations := make([]RefundAllocation, 0, len(input.Allocations))
	for _, a := range input.Allocations {
		if seen[a.Method] {
			return nil, newError(ErrInvalidInput, "method %s is allocated more than once", a.Method)
		}
		seen[a.Method] = true
		v, err := NormalizePositiveAmount(a.Amount)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, RefundAllocation{Method: a.Method, Amount: v})
	}
	return ExplicitRefund{Amount: amount, Allocations: allocations}, nil
}

// RefundableBalances returns one balance per ledger method, in LedgerMethods order.
func RefundableBalances(rows []PaymentTransaction) []MethodBalance {
	byMethod := make(map[PaymentMethod]decimal.Decimal, len(LedgerMethods))
	for _, row := range rows {
		if row.Status != PaymentStatusConfirmed {
			continue
		}
		if row.Kind == PaymentKindRefund {
			byMethod[row.Method] = byMethod[row.Method].Sub(row.Amount)
		} else {
			byMethod[row.Method] = byMethod[row.Method].Add(row.Amount)
		}
	}
	balances := make([]MethodBalance, 0, len(LedgerMethods))
	for _, m := range LedgerMethods {
		balances = append(balances, MethodBalance{Method: m, Balance: byMethod[m].Round(amountPlaces)})
	}
	return balances
}

func RefundableTotal(balances []MethodBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(maxDecimal(b.Balance, decimal.Zero))
	}
	return total
}

func balanceOf(balances []MethodBalance, m PaymentMethod) decimal.Decimal {
	for _, b := range balances {
		if b.Method == m {
			return b.Balance
		}
	}
	return decimal.Zero
}

// AllocateRefund assigns target greedily, largest balance first. Equal
// balances go in LedgerMethods order.
func AllocateRefund(balances []MethodBalance, target decimal.Decimal) ([]RefundAllocation, error) {
	sorted := make([]MethodBalance, len(balances))
	copy(sorted, balances)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Balance.Equal(sorted[j].Balance) {
			return sorted[i].Balance.GreaterThan(sorted[j].Balance)
		}
		return sorted[i].Method.order() < sorted[j].Method.order()
	})

	remaining := target
	var allocations []RefundAllocation
	for _, b := range sorted {
		if remaining.LessThanOrEqual(AmountTolerance) {
			break
		}
		if !b.Balance.IsPositive() {
			continue
		}
		amount := minDecimal(remaining, b.Balance)
		allocations = append(allocations, RefundAllocation{Method: b.Method, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	if remaining.GreaterThan(AmountTolerance) {
		return nil, newError(ErrAllocationInfeasible, "%s of the refund cannot be allocated to any payment method", remaining.StringFixed(2))
	}
	return allocations, nil
}

// RefundInvoice records refund rows for an invoice and re-derives it.
func RefundInvoice(ctx context.Context, invoiceId int, input *NewInvoiceRefund) (inv *Invoice, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		input = &NewInvoiceRefund{}
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	plan, err := resolveRefundPlan(input)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "RefundInvoice", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("RefundInvoice", invoiceId, err)
	}()

	now := time.Now().UTC()
	actor := utils.GetActorFromContext(ctx)
	key := normalizeIdempotencyKey(input.IdempotencyKey)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	inv, err = lockInvoice(tx, ctx, businessId, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	resultId, done, err := findIdempotentResult(tx, businessId, idemRefundInvoice, key)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if done {
		tx.Rollback()
		if resultId != invoiceId {
			return nil, newError(ErrInvalidInput, "idempotency key %q was used for another invoice", key)
		}
		return GetInvoice(ctx, invoiceId)
	}
	if inv.Status == InvoiceStatusCancelled {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "invoice %d is cancelled", invoiceId)
	}

	rows, err := loadLedger(tx, ctx, businessId, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	netPaid := DeriveInvoiceState(*inv, rows, now).NetPaid
	if netPaid.LessThanOrEqual(AmountTolerance) {
		tx.Rollback()
		return nil, newError(ErrNothingToRefund, "invoice %d has nothing left to refund", invoiceId)
	}

	balances := RefundableBalances(rows)
	refundable := RefundableTotal(balances)
	target := minDecimal(inv.Total, netPaid)
	if requested := plan.requestedAmount(); requested != nil {
		if requested.GreaterThan(refundable.Add(AmountTolerance)) {
			tx.Rollback()
			return nil, newError(ErrAllocationInfeasible, "refund of %s exceeds the refundable %s", requested.StringFixed(2), refundable.StringFixed(2))
		}
		target = *requested
	}
	allocations, err := plan.allocate(balances, target)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var sessionId *int
	for _, a := range allocations {
		if a.Method == PaymentMethodCash {
			if sessionId, err = currentSessionIdForCash(tx, ctx, businessId); err != nil {
				tx.Rollback()
				return nil, err
			}
			break
		}
	}

	reason := trimmedOrNil(input.Reason)
	refunds := make([]PaymentTransaction, 0, len(allocations))
	for _, a := range allocations {
		if !a.Amount.IsPositive() {
			continue
		}
		row := PaymentTransaction{
			BusinessId:  businessId,
			InvoiceId:   invoiceId,
			Kind:        PaymentKindRefund,
			Method:      a.Method,
			Status:      PaymentStatusConfirmed,
			Amount:      a.Amount,
			Notes:       reason,
			ConfirmedAt: &now,
			CreatedBy:   actor.UserId,
		}
		if a.Method == PaymentMethodCash {
			row.CashSessionId = sessionId
		}
		refunds = append(refunds, row)
	}
	if len(refunds) == 0 {
		tx.Rollback()
		return nil, newError(ErrNothingToRefund, "refund allocates nothing")
	}
	if err = tx.Create(&refunds).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, invoiceId, SettlementReferenceTypeInvoiceRefund, refunds, nil, PubSubMessageActionCreate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if reason != nil {
		inv.RefundReason = reason
	}
	if inv, err = rederiveInvoice(tx, ctx, inv); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = saveIdempotentResult(tx, businessId, idemRefundInvoice, key, invoiceId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	config.LogInfo(config.GetLogger(), "models", "RefundInvoice", logrus.Fields{
		"business_id": businessId,
		"invoice_id":  invoiceId,
		"allocations": describeAllocations(allocations),
	}, "refund recorded")
	return inv, nil
}

func describeAllocations(allocations []RefundAllocation) string {
	parts := make([]string, 0, len(allocations))
	for _, a := range allocations {
		parts = append(parts, string(a.Method)+"="+a.Amount.StringFixed(2))
	}
	return strings.Join(parts, ",")
}
