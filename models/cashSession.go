package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// requireOpenSession is swapped in tests.
var requireOpenSession = config.CashRequiresOpenSession

// CashSession is one cash drawer period. Expected, actual and discrepancy are
// frozen when the session closes.
type CashSession struct {
	ID                     int               `gorm:"primary_key" json:"id"`
	BusinessId             string            `gorm:"size:64;not null;index:idx_cs_biz_status,priority:1" json:"business_id"`
	OpeningBalance         decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"opening_balance"`
	ExpectedClosingBalance decimal.Decimal   `gorm:"type:decimal(20,4);not null;default:0" json:"expected_closing_balance"`
	ActualClosingBalance   *decimal.Decimal  `gorm:"type:decimal(20,4)" json:"actual_closing_balance"`
	Discrepancy            *decimal.Decimal  `gorm:"type:decimal(20,4)" json:"discrepancy"`
	Status                 CashSessionStatus `gorm:"size:20;not null;index:idx_cs_biz_status,priority:2" json:"status"`
	OpenedAt               time.Time         `gorm:"not null" json:"opened_at"`
	ClosedAt               *time.Time        `json:"closed_at"`
	OpenedBy               int               `json:"opened_by"`
	OpenedByName           string            `gorm:"size:255" json:"opened_by_name"`
	ClosedBy               *int              `json:"closed_by"`
	ClosedByName           *string           `gorm:"size:255" json:"closed_by_name"`
	OpeningNotes           *string           `gorm:"type:text" json:"opening_notes"`
	ClosingNotes           *string           `gorm:"type:text" json:"closing_notes"`
	CreatedAt              time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// CashRegister is the single row per business naming its open session.
// Every open, close and cash stamp goes through this row's lock.
type CashRegister struct {
	BusinessId       string    `gorm:"primaryKey;size:64" json:"business_id"`
	CurrentSessionId *int      `json:"current_session_id"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CashSessionSnapshot is computed from the ledger and never stored.
// For a closed session Session carries the frozen figures.
type CashSessionSnapshot struct {
	Session                *CashSession    `json:"session"`
	OpeningBalance         decimal.Decimal `json:"opening_balance"`
	InvoiceCashIn          decimal.Decimal `json:"invoice_cash_in"`
	InvoiceCashOut         decimal.Decimal `json:"invoice_cash_out"`
	ManualIn               decimal.Decimal `json:"manual_in"`
	ManualOut              decimal.Decimal `json:"manual_out"`
	ExpectedClosingBalance decimal.Decimal `json:"expected_closing_balance"`
}

type NewCashSession struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Notes          *string         `json:"notes"`
	IdempotencyKey *string         `json:"idempotency_key" validate:"omitempty,max=255"`
}

type CloseCashSessionInput struct {
	ActualClosingBalance decimal.Decimal `json:"actual_closing_balance"`
	Notes                *string         `json:"notes"`
	SessionId            *int            `json:"session_id" validate:"omitempty,gt=0"`
}

func OpenCashSession(ctx context.Context, input *NewCashSession) (session *CashSession, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		input = &NewCashSession{}
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	opening, err := NormalizeNonNegativeAmount(input.OpeningBalance)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "OpenCashSession", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("OpenCashSession", input, err)
	}()
	release := utils.ObtainBusinessLock(ctx, "cash-session", businessId)
	defer release()

	now := time.Now().UTC()
	actor := utils.GetActorFromContext(ctx)
	key := normalizeIdempotencyKey(input.IdempotencyKey)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	reg, err := lockCashRegister(tx, ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	resultId, done, err := findIdempotentResult(tx, businessId, idemOpenCashSession, key)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if done {
		tx.Rollback()
		return GetCashSession(ctx, resultId)
	}
	if reg.CurrentSessionId != nil {
		tx.Rollback()
		return nil, newError(ErrSessionAlreadyOpen, "cash session %d is already open", *reg.CurrentSessionId)
	}

	session = &CashSession{
		BusinessId:             businessId,
		OpeningBalance:         opening,
		ExpectedClosingBalance: opening,
		Status:                 CashSessionStatusOpen,
		OpenedAt:               now,
		OpenedBy:               actor.UserId,
		OpenedByName:           actor.UserName,
		OpeningNotes:           trimmedOrNil(input.Notes),
	}
	if err = tx.Create(session).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.Model(&CashRegister{}).Where("business_id = ?", businessId).
		Update("current_session_id", session.ID).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, session.ID, SettlementReferenceTypeSessionOpen, session, nil, PubSubMessageActionCreate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = saveIdempotentResult(tx, businessId, idemOpenCashSession, key, session.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}

	config.LogInfo(config.GetLogger(), "models", "OpenCashSession", logrus.Fields{
		"business_id":     businessId,
		"session_id":      session.ID,
		"opening_balance": opening.StringFixed(2),
	}, "cash session opened")
	return session, nil
}

// CloseCashSession freezes the snapshot's expected balance together with the
// counted cash and the signed discrepancy (actual - expected).
// Closing with no open session, or a session that is already closed, is InvalidState.
func CloseCashSession(ctx context.Context, input *CloseCashSessionInput) (session *CashSession, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	if input == nil {
		return nil, newError(ErrInvalidInput, "actual closing balance is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	actual, err := NormalizeNonNegativeAmount(input.ActualClosingBalance)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "CloseCashSession", businessId)
	defer func() {
		endSpan(span, err)
		logIfUnexpected("CloseCashSession", input, err)
	}()
	release := utils.ObtainBusinessLock(ctx, "cash-session", businessId)
	defer release()

	now := time.Now().UTC()
	actor := utils.GetActorFromContext(ctx)

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	reg, err := lockCashRegister(tx, ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	sessionId := reg.CurrentSessionId
	if input.SessionId != nil {
		sessionId = input.SessionId
	}
	if sessionId == nil {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "no open cash session to close")
	}
	session, err = fetchCashSession(tx, ctx, businessId, *sessionId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if session.Status != CashSessionStatusOpen {
		tx.Rollback()
		return nil, newError(ErrInvalidState, "cash session %d is already closed", session.ID)
	}

	snap, err := computeSnapshot(tx, ctx, session)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	oldSession := *session
	discrepancy := actual.Sub(snap.ExpectedClosingBalance)
	session.ExpectedClosingBalance = snap.ExpectedClosingBalance
	session.ActualClosingBalance = &actual
	session.Discrepancy = &discrepancy
	session.Status = CashSessionStatusClosed
	session.ClosedAt = &now
	session.ClosedBy = &actor.UserId
	if actor.UserName != "" {
		session.ClosedByName = &actor.UserName
	}
	session.ClosingNotes = trimmedOrNil(input.Notes)

	err = tx.Model(session).Select("expected_closing_balance", "actual_closing_balance", "discrepancy", "status",
		"closed_at", "closed_by", "closed_by_name", "closing_notes", "updated_at").Updates(session).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = tx.Model(&CashRegister{}).Where("business_id = ? AND current_session_id = ?", businessId, session.ID).
		Update("current_session_id", nil).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	err = PublishSettlementEvent(ctx, tx, businessId, now, session.ID, SettlementReferenceTypeSessionClose, session, oldSession, PubSubMessageActionUpdate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit().Error; err != nil {
		return nil, err
	}

	config.LogInfo(config.GetLogger(), "models", "CloseCashSession", logrus.Fields{
		"business_id": businessId,
		"session_id":  session.ID,
		"expected":    session.ExpectedClosingBalance.StringFixed(2),
		"actual":      actual.StringFixed(2),
		"discrepancy": discrepancy.StringFixed(2),
	}, "cash session closed")
	return session, nil
}

func GetCashSession(ctx context.Context, id int) (*CashSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	return fetchCashSession(config.GetDB(), ctx, businessId, id)
}

func GetCashSessionSnapshot(ctx context.Context, sessionId int) (*CashSessionSnapshot, error) {
	session, err := GetCashSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return computeSnapshot(config.GetDB(), ctx, session)
}

func GetCurrentCashSessionSnapshot(ctx context.Context) (*CashSessionSnapshot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	var reg CashRegister
	err := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId).Limit(1).Find(&reg).Error
	if err != nil {
		return nil, err
	}
	if reg.CurrentSessionId == nil {
		return nil, newError(ErrNoOpenSession, "no open cash session")
	}
	return GetCashSessionSnapshot(ctx, *reg.CurrentSessionId)
}

type amountByKey struct {
	GroupKey string
	Total    decimal.Decimal
}

// computeSnapshot sums the confirmed cash ledger rows and the manual cash
// movements linked to session.
func computeSnapshot(db *gorm.DB, ctx context.Context, session *CashSession) (*CashSessionSnapshot, error) {
	var ledger []amountByKey
	err := db.WithContext(ctx).Model(&PaymentTransaction{}).
		Select("kind AS group_key, COALESCE(SUM(amount), 0) AS total").
		Where("business_id = ? AND cash_session_id = ? AND method = ? AND status = ?",
			session.BusinessId, session.ID, PaymentMethodCash, PaymentStatusConfirmed).
		Group("kind").
		Scan(&ledger).Error
	if err != nil {
		return nil, err
	}
	var manual []amountByKey
	err = db.WithContext(ctx).Model(&CashTransaction{}).
		Select("type AS group_key, COALESCE(SUM(amount), 0) AS total").
		Where("business_id = ? AND cash_session_id = ?", session.BusinessId, session.ID).
		Group("type").
		Scan(&manual).Error
	if err != nil {
		return nil, err
	}

	snap := &CashSessionSnapshot{
		Session:        session,
		OpeningBalance: session.OpeningBalance.Round(amountPlaces),
		InvoiceCashIn:  sumFor(ledger, string(PaymentKindPayment)),
		InvoiceCashOut: sumFor(ledger, string(PaymentKindRefund)),
		ManualIn:       sumFor(manual, string(CashTransactionTypeIn)),
		ManualOut:      sumFor(manual, string(CashTransactionTypeOut)),
	}
	snap.ExpectedClosingBalance = snap.OpeningBalance.
		Add(snap.InvoiceCashIn).
		Add(snap.ManualIn).
		Sub(snap.InvoiceCashOut).
		Sub(snap.ManualOut)
	return snap, nil
}

func sumFor(rows []amountByKey, key string) decimal.Decimal {
	for _, r := range rows {
		if r.GroupKey == key {
			return r.Total.Round(amountPlaces)
		}
	}
	return decimal.Zero
}

func fetchCashSession(db *gorm.DB, ctx context.Context, businessId string, id int) (*CashSession, error) {
	session, err := utils.FetchModel[CashSession](db, ctx, businessId, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, newError(ErrNotFound, "cash session %d not found", id)
		}
		return nil, err
	}
	return session, nil
}
