package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
)

// CashTransaction is a drawer movement that is not tied to an invoice
// (petty cash, owner draws, float top-ups).
type CashTransaction struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	BusinessId    string              `gorm:"size:64;not null;index:idx_ct_biz_session,priority:1" json:"business_id"`
	CashSessionId int                 `gorm:"not null;index:idx_ct_biz_session,priority:2" json:"cash_session_id"`
	Type          CashTransactionType `gorm:"size:10;not null" json:"type"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	Category      *string             `gorm:"size:100" json:"category"`
	Notes         *string             `gorm:"type:text" json:"notes"`
	CreatedBy     int                 `json:"created_by"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCashTransaction struct {
	Type           CashTransactionType `json:"type" validate:"required,oneof=in out"`
	Amount         decimal.Decimal     `json:"amount"`
	Category       *string             `json:"category" validate:"omitempty,max=100"`
	Notes          *string             `json:"notes"`
	SessionId      *int                `json:"session_id" validate:"omitempty,gt=0"`
	IdempotencyKey *string             `json:"idempotency_key" validate:"omitempty,max=255"`
}

// RecordCashTransaction adds a manual movement to the given session, or to the
// open one when no session is named. Closed sessions are frozen.
func RecordCashTransaction(ctx context.Context, input *NewCashTransaction) (ct *CashTransaction, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		return nil, newError(ErrInvalidInput, "cash transaction input is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	amount, err := NormalizePositiveAmount(input.Amount)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "RecordCashTransaction", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("RecordCashTransaction", input, err)
	}()

	now := time.Now().UTC()
	key := normalizeIdempotencyKey(input.IdempotencyKey)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	reg, err := lockCashRegister(tx, ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	resultId, done, err := findIdempotentResult(tx, businessId, idemRecordCashMove, key)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if done {
		tx.Rollback()
		return utils.FetchModel[CashTransaction](config.GetDB(), ctx, businessId, resultId)
	}

	sessionId := reg.CurrentSessionId
	if input.SessionId != nil {
		sessionId = input.SessionId
	}
	if sessionId == nil {
		tx.Rollback()
		return nil, newError(ErrNoOpenSession, "no open cash session")
	}
	session, err := fetchCashSession(tx, ctx, businessId, *sessionId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if session.Status != CashSessionStatusOpen {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "cash session %d is closed", session.ID)
	}

	ct = &CashTransaction{
		BusinessId:    businessId,
		CashSessionId: session.ID,
		Type:          input.Type,
		Amount:        amount,
		Category:      trimmedOrNil(input.Category),
		Notes:         trimmedOrNil(input.Notes),
		CreatedBy:     utils.GetActorFromContext(ctx).UserId,
	}
	if err = tx.Create(ct).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, ct.ID, SettlementReferenceTypeCashTransaction, ct, nil, PubSubMessageActionCreate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = saveIdempotentResult(tx, businessId, idemRecordCashMove, key, ct.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return ct, nil
}

func ListCashTransactions(ctx context.Context, sessionId int) ([]*CashTransaction, error) {
	session, err := GetCashSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	var rows []*CashTransaction
	err = config.GetDB().WithContext(ctx).
		Where("business_id = ? AND cash_session_id = ?", session.BusinessId, session.ID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
