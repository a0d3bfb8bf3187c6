package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentTransaction is one ledger row. Amount is always positive; Kind gives
// the direction. Rows are never edited except for a status move out of pending.
type PaymentTransaction struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index:idx_pt_biz_invoice,priority:1;index:idx_pt_biz_session,priority:1" json:"business_id"`
	InvoiceId     int             `gorm:"not null;index:idx_pt_biz_invoice,priority:2" json:"invoice_id"`
	Kind          PaymentKind     `gorm:"size:20;not null" json:"kind"`
	Method        PaymentMethod   `gorm:"size:20;not null;index" json:"method"`
	Status        PaymentStatus   `gorm:"size:20;not null;index" json:"status"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ReferenceCode *string         `gorm:"size:255" json:"reference_code"`
	Notes         *string         `gorm:"type:text" json:"notes"`
	StatusNote    *string         `gorm:"type:text" json:"status_note"`
	CashSessionId *int            `gorm:"index:idx_pt_biz_session,priority:2" json:"cash_session_id"`
	ConfirmedAt   *time.Time      `json:"confirmed_at"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPayment struct {
	Method        PaymentMethod   `json:"method" validate:"required,oneof=cash card transfer"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status" validate:"omitempty,oneof=pending confirmed"`
	ReferenceCode *string         `json:"reference_code" validate:"omitempty,max=255"`
	Notes         *string         `json:"notes"`
}

type NewInvoicePayments struct {
	Payments       []NewPayment `json:"payments" validate:"dive"`
	IdempotencyKey *string      `json:"idempotency_key" validate:"omitempty,max=255"`
}

type PaymentStatusUpdate struct {
	Status PaymentStatus `json:"status" validate:"required,oneof=confirmed failed cancelled"`
	Note   *string       `json:"note"`
}

// acceptedPayments drops non-positive amounts and resolves each row's status:
// cash is always confirmed, other methods are confirmed unless pending was asked for.
func (input NewInvoicePayments) acceptedPayments() ([]NewPayment, error) {
	accepted := make([]NewPayment, 0, len(input.Payments))
	for _, p := range input.Payments {
		amount, err := NormalizeAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		if !amount.IsPositive() {
			continue
		}
		p.Amount = amount
		if p.Method == PaymentMethodCash || p.Status == "" {
			p.Status = PaymentStatusConfirmed
		}
		accepted = append(accepted, p)
	}
	if len(accepted) == 0 {
		return nil, newError(ErrNoPaymentProvided, "no payment with a positive amount was provided")
	}
	return accepted, nil
}

// RecordInvoicePayments appends payment rows to the invoice ledger and
// re-derives the invoice in the same transaction.
func RecordInvoicePayments(ctx context.Context, invoiceId int, input *NewInvoicePayments) (inv *Invoice, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		input = &NewInvoicePayments{}
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "RecordInvoicePayments", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("RecordInvoicePayments", invoiceId, err)
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
	resultId, done, err := findIdempotentResult(tx, businessId, idemRecordPayments, key)
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
	// A cancelled invoice is reported as such even when the batch is empty.
	payments, err := input.acceptedPayments()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var sessionId *int
	for _, p := range payments {
		if p.Method == PaymentMethodCash && p.Status == PaymentStatusConfirmed {
			if sessionId, err = currentSessionIdForCash(tx, ctx, businessId); err != nil {
				tx.Rollback()
				return nil, err
			}
			break
		}
	}

	rows := make([]PaymentTransaction, 0, len(payments))
	for _, p := range payments {
		row := PaymentTransaction{
			BusinessId:    businessId,
			InvoiceId:     invoiceId,
			Kind:          PaymentKindPayment,
			Method:        p.Method,
			Status:        p.Status,
			Amount:        p.Amount,
			ReferenceCode: trimmedOrNil(p.ReferenceCode),
			Notes:         trimmedOrNil(p.Notes),
			CreatedBy:     actor.UserId,
		}
		if row.Status == PaymentStatusConfirmed {
			row.ConfirmedAt = &now
			if row.Method == PaymentMethodCash {
				row.CashSessionId = sessionId
			}
		}
		rows = append(rows, row)
	}
	if err = tx.Create(&rows).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, invoiceId, SettlementReferenceTypeInvoicePayment, rows, nil, PubSubMessageActionCreate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if inv, err = rederiveInvoice(tx, ctx, inv); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = saveIdempotentResult(tx, businessId, idemRecordPayments, key, invoiceId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdatePaymentStatus moves a pending row to confirmed, failed or cancelled.
// A confirmed cash row joins the session that is open now, not the one that
// was open when the row was created.
func UpdatePaymentStatus(ctx context.Context, paymentId int, input *PaymentStatusUpdate) (pt *PaymentTransaction, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		return nil, newError(ErrInvalidInput, "status is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "UpdatePaymentStatus", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("UpdatePaymentStatus", paymentId, err)
	}()

	current, err := fetchPaymentTransaction(config.GetDB(), ctx, businessId, paymentId)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	inv, err := lockInvoice(tx, ctx, businessId, current.InvoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	// re-read under the invoice lock; the unlocked read only located the invoice
	pt, err = fetchPaymentTransaction(tx, ctx, businessId, paymentId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if pt.Status != PaymentStatusPending {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "payment %d is %s; only pending payments can change status", paymentId, pt.Status)
	}

	oldPt := *pt
	pt.Status = input.Status
	pt.StatusNote = trimmedOrNil(input.Note)
	if pt.Status == PaymentStatusConfirmed {
		pt.ConfirmedAt = &now
		if pt.Method == PaymentMethodCash {
			if pt.CashSessionId, err = currentSessionIdForCash(tx, ctx, businessId); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}
	err = tx.Model(pt).Select("status", "status_note", "confirmed_at", "cash_session_id", "updated_at").Updates(pt).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, pt.InvoiceId, SettlementReferenceTypeInvoicePayment, pt, oldPt, PubSubMessageActionUpdate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err = rederiveInvoice(tx, ctx, inv); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return pt, nil
}

// GetInvoicePayments lists the ledger of one invoice in insertion order.
func GetInvoicePayments(ctx context.Context, invoiceId int) ([]*PaymentTransaction, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if _, err := GetInvoice(ctx, invoiceId); err != nil {
		return nil, err
	}
	var rows []*PaymentTransaction
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND invoice_id = ?", businessId, invoiceId).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func fetchPaymentTransaction(db *gorm.DB, ctx context.Context, businessId string, id int) (*PaymentTransaction, error) {
	pt, err := utils.FetchModel[PaymentTransaction](db, ctx, businessId, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, newError(ErrNotFound, "payment %d not found", id)
		}
		return nil, err
	}
	return pt, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
