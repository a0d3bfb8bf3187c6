package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DerivedInvoiceState is everything on an invoice that follows from its
// confirmed ledger rows.
type DerivedInvoiceState struct {
	NetPaid       decimal.Decimal
	ChangeAmount  decimal.Decimal
	PaymentMethod *PaymentMethod
	Status        InvoiceStatus
	PaidAt        *time.Time
	RefundedAt    *time.Time
	IsOpenInTab   bool
	HasRefund     bool
}

// DeriveInvoiceState recomputes the settlement columns of inv from rows.
// Rows that are not confirmed are ignored. paidAt and refundedAt are
// first-write-wins, so deriving twice over the same ledger is a no-op.
func DeriveInvoiceState(inv Invoice, rows []PaymentTransaction, now time.Time) DerivedInvoiceState {
	paid := decimal.Zero
	refunded := decimal.Zero
	hasRefund := false
	perMethod := make(map[PaymentMethod]decimal.Decimal, len(LedgerMethods))
	for _, row := range rows {
		if row.Status != PaymentStatusConfirmed {
			continue
		}
		switch row.Kind {
		case PaymentKindPayment:
			paid = paid.Add(row.Amount)
			perMethod[row.Method] = perMethod[row.Method].Add(row.Amount)
		case PaymentKindRefund:
			hasRefund = true
			refunded = refunded.Add(row.Amount)
			perMethod[row.Method] = perMethod[row.Method].Sub(row.Amount)
		}
	}

	state := DerivedInvoiceState{
		NetPaid:    maxDecimal(paid.Sub(refunded), decimal.Zero).Round(amountPlaces),
		PaidAt:     inv.PaidAt,
		RefundedAt: inv.RefundedAt,
		HasRefund:  hasRefund,
	}

	var resolved []PaymentMethod
	for _, m := range LedgerMethods {
		if perMethod[m].IsPositive() {
			resolved = append(resolved, m)
		}
	}
	switch len(resolved) {
	case 0:
	case 1:
		m := resolved[0]
		state.PaymentMethod = &m
	default:
		m := PaymentMethodMixed
		state.PaymentMethod = &m
	}

	switch {
	case inv.Status == InvoiceStatusCancelled:
		state.Status = InvoiceStatusCancelled
	case hasRefund && state.NetPaid.LessThanOrEqual(AmountTolerance):
		state.Status = InvoiceStatusRefunded
	case hasRefund:
		state.Status = InvoiceStatusPaid
	case state.NetPaid.GreaterThanOrEqual(inv.Total.Sub(AmountTolerance)):
		state.Status = InvoiceStatusPaid
	default:
		state.Status = InvoiceStatusPending
	}

	state.ChangeAmount = decimal.Zero
	if state.Status == InvoiceStatusPaid {
		state.ChangeAmount = maxDecimal(state.NetPaid.Sub(inv.Total), decimal.Zero)
		if state.PaidAt == nil {
			t := now
			state.PaidAt = &t
		}
	}
	if state.Status == InvoiceStatusRefunded && state.RefundedAt == nil {
		t := now
		state.RefundedAt = &t
	}
	state.IsOpenInTab = state.Status == InvoiceStatusPending
	return state
}

// Apply copies the derived columns onto inv.
func (s DerivedInvoiceState) Apply(inv *Invoice) {
	inv.AmountPaid = s.NetPaid
	inv.ChangeAmount = s.ChangeAmount
	inv.PaymentMethod = s.PaymentMethod
	inv.Status = s.Status
	inv.PaidAt = s.PaidAt
	inv.RefundedAt = s.RefundedAt
	inv.IsOpenInTab = s.IsOpenInTab
}

func loadLedger(tx *gorm.DB, ctx context.Context, businessId string, invoiceId int) ([]PaymentTransaction, error) {
	var rows []PaymentTransaction
	err := tx.WithContext(ctx).
		Where("business_id = ? AND invoice_id = ?", businessId, invoiceId).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// rederiveInvoice overwrites the stored settlement columns from the ledger
// inside tx. A status change is published as an IVS event.
func rederiveInvoice(tx *gorm.DB, ctx context.Context, inv *Invoice) (*Invoice, error) {
	rows, err := loadLedger(tx, ctx, inv.BusinessId, inv.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	oldInv := *inv
	DeriveInvoiceState(*inv, rows, now).Apply(inv)
	if err := persistInvoice(tx, ctx, inv); err != nil {
		return nil, err
	}
	if oldInv.Status != inv.Status {
		err = PublishSettlementEvent(ctx, tx, inv.BusinessId, now, inv.ID, SettlementReferenceTypeInvoiceStatus, inv, oldInv, PubSubMessageActionUpdate)
		if err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// RederiveInvoice recomputes one stored invoice from its ledger under the
// invoice lock. changed reports whether any settlement column moved.
func RederiveInvoice(ctx context.Context, invoiceId int) (inv *Invoice, changed bool, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errBusinessRequired()
	}
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	inv, err = lockInvoice(tx, ctx, businessId, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, false, err
	}
	before := *inv
	if inv, err = rederiveInvoice(tx, ctx, inv); err != nil {
		tx.Rollback()
		return nil, false, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, false, err
	}
	return inv, !sameSettlement(before, *inv), nil
}

func sameSettlement(a, b Invoice) bool {
	return a.Status == b.Status &&
		a.AmountPaid.Equal(b.AmountPaid) &&
		a.ChangeAmount.Equal(b.ChangeAmount) &&
		a.IsOpenInTab == b.IsOpenInTab &&
		equalMethod(a.PaymentMethod, b.PaymentMethod) &&
		equalTime(a.PaidAt, b.PaidAt) &&
		equalTime(a.RefundedAt, b.RefundedAt)
}

func equalMethod(a, b *PaymentMethod) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
