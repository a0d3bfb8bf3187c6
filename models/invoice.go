package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is created by checkout; the settlement engine only writes the
// derived columns (amount paid, change, method, status and its timestamps).
type Invoice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	BranchId      int             `gorm:"index;not null;default:0" json:"branch_id"`
	BookingId     *int            `gorm:"index" json:"booking_id"`
	InvoiceNumber string          `gorm:"size:100" json:"invoice_number"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	DiscountType  string          `gorm:"size:1" json:"discount_type"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	ChangeAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"change_amount"`
	PaymentMethod *PaymentMethod  `gorm:"size:20" json:"payment_method"`
	Status        InvoiceStatus   `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	IsOpenInTab   bool            `gorm:"not null;default:true" json:"is_open_in_tab"`
	PaidAt        *time.Time      `json:"paid_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	RefundedAt    *time.Time      `json:"refunded_at"`
	CancelReason  *string         `gorm:"type:text" json:"cancel_reason"`
	RefundReason  *string         `gorm:"type:text" json:"refund_reason"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

type NewInvoice struct {
	BranchId      int             `json:"branch_id" validate:"gte=0"`
	BookingId     *int            `json:"booking_id" validate:"omitempty,gt=0"`
	InvoiceNumber *string         `json:"invoice_number" validate:"omitempty,max=100"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=P A"`
}

// invoiceSettlementColumns are the columns settlement, refund and cancel write.
var invoiceSettlementColumns = []string{
	"amount_paid", "change_amount", "payment_method", "status", "is_open_in_tab",
	"paid_at", "cancelled_at", "refunded_at", "cancel_reason", "refund_reason", "updated_at",
}

func (input NewInvoice) totals() (subtotal, discount, total decimal.Decimal, err error) {
	subtotal, err = NormalizeNonNegativeAmount(input.Subtotal)
	if err != nil {
		return
	}
	discount, err = NormalizeNonNegativeAmount(input.Discount)
	if err != nil {
		return
	}
	discountType := input.DiscountType
	if discountType == "" {
		discountType = utils.DiscountTypeAmount
	}
	discountAmount := utils.CalculateDiscountAmount(subtotal, discount, discountType)
	total, err = NormalizeAmount(subtotal.Sub(discountAmount))
	return
}

// CreateInvoice stands in for checkout: it stores a pending invoice with
// total = subtotal - discount.
func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		return nil, newError(ErrInvalidInput, "invoice input is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	subtotal, discount, total, err := input.totals()
	if err != nil {
		return nil, err
	}
	branchId := input.BranchId
	if branchId == 0 {
		branchId, _ = utils.GetBranchIdFromContext(ctx)
	}

	invoice := Invoice{
		BusinessId:   businessId,
		BranchId:     branchId,
		BookingId:    input.BookingId,
		Subtotal:     subtotal,
		Discount:     discount,
		DiscountType: input.DiscountType,
		Total:        total,
		AmountPaid:   decimal.Zero,
		ChangeAmount: decimal.Zero,
		Status:       InvoiceStatusPending,
		IsOpenInTab:  true,
		CreatedBy:    utils.GetActorFromContext(ctx).UserId,
	}
	if input.InvoiceNumber != nil {
		invoice.InvoiceNumber = strings.TrimSpace(*input.InvoiceNumber)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&invoice).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if invoice.InvoiceNumber == "" {
		invoice.InvoiceNumber = fmt.Sprintf("INV-%06d", invoice.ID)
		if err := tx.Model(&invoice).Update("invoice_number", invoice.InvoiceNumber).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	inv, err := utils.FetchModel[Invoice](config.GetDB(), ctx, businessId, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, newError(ErrNotFound, "invoice %d not found", id)
		}
		return nil, err
	}
	return inv, nil
}

// CancelInvoice is the only direct status write. Money must be refunded first;
// pending ledger rows are cancelled with the invoice.
func CancelInvoice(ctx context.Context, invoiceId int, reason *string) (inv *Invoice, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	ctx, span := startSpan(ctx, "CancelInvoice", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("CancelInvoice", invoiceId, err)
	}()

	now := time.Now().UTC()
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	inv, err = lockInvoice(tx, ctx, businessId, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if inv.Status == InvoiceStatusCancelled {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "invoice %d is already cancelled", invoiceId)
	}
	rows, err := loadLedger(tx, ctx, businessId, invoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if state := DeriveInvoiceState(*inv, rows, now); state.NetPaid.GreaterThan(AmountTolerance) {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "invoice %d has %s paid; refund it before cancelling", invoiceId, state.NetPaid.StringFixed(2))
	}

	note := "invoice cancelled"
	err = tx.Model(&PaymentTransaction{}).
		Where("business_id = ? AND invoice_id = ? AND status = ?", businessId, invoiceId, PaymentStatusPending).
		Updates(map[string]interface{}{"status": PaymentStatusCancelled, "status_note": note}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	oldInv := *inv
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	if reason != nil && strings.TrimSpace(*reason) != "" {
		r := strings.TrimSpace(*reason)
		inv.CancelReason = &r
	}
	if inv, err = rederiveInvoice(tx, ctx, inv); err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, inv.ID, SettlementReferenceTypeInvoiceCancel, inv, oldInv, PubSubMessageActionUpdate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return inv, nil
}

func persistInvoice(tx *gorm.DB, ctx context.Context, inv *Invoice) error {
	return tx.WithContext(ctx).Model(inv).Select(invoiceSettlementColumns).Updates(inv).Error
}
