package models

import (
	"errors"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type IdempotencyStatus string

const (
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
)

// Handler names for request idempotency keys.
const (
	idemRecordPayments  = "RecordInvoicePayments"
	idemRefundInvoice   = "RefundInvoice"
	idemOpenCashSession = "OpenCashSession"
	idemRecordCashMove  = "RecordCashTransaction"
)

// IdempotencyKey makes retried, non-idempotent requests safe.
// Unique constraint: (business_id, handler_name, message_id).
// Keys are written inside the operation's transaction, so a key exists iff
// the operation committed.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"business_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResultId    int               `gorm:"not null;default:0" json:"result_id"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func normalizeIdempotencyKey(key *string) string {
	if key == nil {
		return ""
	}
	return strings.TrimSpace(*key)
}

// findIdempotentResult returns the result id recorded for key, if any.
// Call it after taking the row lock that serializes the operation.
func findIdempotentResult(tx *gorm.DB, businessId, handlerName, key string) (int, bool, error) {
	if key == "" {
		return 0, false, nil
	}
	var existing IdempotencyKey
	err := tx.Where("business_id = ? AND handler_name = ? AND message_id = ?", businessId, handlerName, key).
		Limit(1).Find(&existing).Error
	if err != nil {
		return 0, false, err
	}
	if existing.ID == 0 {
		return 0, false, nil
	}
	return existing.ResultId, true, nil
}

func saveIdempotentResult(tx *gorm.DB, businessId, handlerName, key string, resultId int) error {
	if key == "" {
		return nil
	}
	err := tx.Create(&IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		MessageId:   key,
		Status:      IdempotencyStatusSucceeded,
		ResultId:    resultId,
	}).Error
	if isDuplicateKeyErr(err) {
		return newError(ErrInvalidInput, "idempotency key %q was already used", key)
	}
	return err
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
