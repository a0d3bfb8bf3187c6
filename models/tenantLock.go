package models

import (
	"context"
	"errors"

	"github.com/mmdatafocus/salon_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock order inside one transaction is always invoice row, then cash register.

// lockInvoice loads the invoice with a row lock. Soft-deleted rows and rows of
// other businesses read as NotFound.
func lockInvoice(tx *gorm.DB, ctx context.Context, businessId string, invoiceId int) (*Invoice, error) {
	inv, err := utils.FetchModelForUpdate[Invoice](tx, ctx, businessId, invoiceId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, newError(ErrNotFound, "invoice %d not found", invoiceId)
		}
		return nil, err
	}
	return inv, nil
}

// lockCashRegister creates the business's register row on first use and locks it.
// The insert comes first so the transaction takes the write lock before any read.
func lockCashRegister(tx *gorm.DB, ctx context.Context, businessId string) (*CashRegister, error) {
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CashRegister{BusinessId: businessId}).Error; err != nil {
		return nil, err
	}
	var reg CashRegister
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).First(&reg).Error
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// currentSessionIdForCash returns the session a confirmed cash row must be
// stamped with. nil means no open session.
func currentSessionIdForCash(tx *gorm.DB, ctx context.Context, businessId string) (*int, error) {
	reg, err := lockCashRegister(tx, ctx, businessId)
	if err != nil {
		return nil, err
	}
	if reg.CurrentSessionId == nil {
		if requireOpenSession() {
			return nil, newError(ErrNoOpenSession, "no open cash session")
		}
		return nil, nil
	}
	id := *reg.CurrentSessionId
	return &id, nil
}
