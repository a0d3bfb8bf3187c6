package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
	"gorm.io/gorm"
)

// PubSubMessageRecord is the transactional outbox row. It is written in the
// same transaction as the ledger change and published after commit by the
// outbox dispatcher.
type PubSubMessageRecord struct {
	ID                  int                     `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId          string                  `gorm:"size:64;not null;index" json:"business_id"`
	TransactionDateTime time.Time               `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                     `gorm:"index" json:"reference_id"`
	ReferenceType       SettlementReferenceType `gorm:"size:10;not null" json:"reference_type"`
	Action              PubSubMessageAction     `gorm:"size:1;not null" json:"action"`
	OldObj              []byte                  `gorm:"type:blob" json:"old_obj"`
	NewObj              []byte                  `gorm:"type:blob" json:"new_obj"`
	PublishStatus       string                  `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt         *time.Time              `gorm:"index" json:"published_at"`
	PubSubMessageId     *string                 `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts     int                     `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt       *time.Time              `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt            *time.Time              `gorm:"index" json:"locked_at"`
	LockedBy            *string                 `gorm:"size:100" json:"locked_by"`
	LastPublishError    *string                 `gorm:"type:text" json:"last_publish_error"`
	CorrelationId       string                  `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time               `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record PubSubMessageRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  record.ID,
		BusinessId:          record.BusinessId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		Action:              string(record.Action),
		OldObj:              record.OldObj,
		NewObj:              record.NewObj,
		CorrelationId:       record.CorrelationId,
	}
}

// PublishSettlementEvent writes an outbox record inside tx. It never talks to
// Pub/Sub itself.
func PublishSettlementEvent(ctx context.Context, tx *gorm.DB, businessId string, transactionDateTime time.Time, refId int, refType SettlementReferenceType, obj interface{}, oldObj interface{}, msgAction PubSubMessageAction) error {
	var newObj, prevObj []byte
	var err error
	if obj != nil {
		if newObj, err = json.Marshal(obj); err != nil {
			return err
		}
	}
	if msgAction == PubSubMessageActionUpdate && oldObj != nil {
		if prevObj, err = json.Marshal(oldObj); err != nil {
			return err
		}
	}

	record := PubSubMessageRecord{
		BusinessId:          businessId,
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              msgAction,
		NewObj:              newObj,
		OldObj:              prevObj,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ReplayOutboxRecord puts a DEAD or FAILED record of the caller's business
// back in the dispatcher's queue, due now.
func ReplayOutboxRecord(ctx context.Context, recordId int) (*PubSubMessageRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	db := config.GetDB().WithContext(ctx)
	var record PubSubMessageRecord
	if err := db.Where("business_id = ?", businessId).Limit(1).Find(&record, recordId).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, newError(ErrNotFound, "outbox record %d not found", recordId)
	}
	if record.PublishStatus != OutboxPublishStatusDead && record.PublishStatus != OutboxPublishStatusFailed {
		return nil, newError(ErrInvalidState, "outbox record %d is %s; only DEAD or FAILED records can be replayed", recordId, record.PublishStatus)
	}
	now := time.Now().UTC()
	err := db.Model(&PubSubMessageRecord{}).
		Where("id = ? AND business_id = ?", recordId, businessId).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusFailed,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		}).Error
	if err != nil {
		return nil, err
	}
	record.PublishStatus = OutboxPublishStatusFailed
	record.PublishAttempts = 0
	record.NextAttemptAt = &now
	record.LockedAt = nil
	record.LockedBy = nil
	record.LastPublishError = nil
	return &record, nil
}
