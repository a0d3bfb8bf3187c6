package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
)

// OutboxStatus is the delivery view of the latest outbox row for one
// settlement reference (an invoice, a session or a cash movement).
type OutboxStatus struct {
	RecordId         int                     `json:"record_id"`
	ReferenceType    SettlementReferenceType `json:"reference_type"`
	ReferenceId      int                     `json:"reference_id"`
	PublishStatus    string                  `json:"publish_status"`
	PublishAttempts  int                     `json:"publish_attempts"`
	NextAttemptAt    *time.Time              `json:"next_attempt_at"`
	LastPublishError *string                 `json:"last_publish_error"`
	CreatedAt        time.Time               `json:"created_at"`
	PublishedAt      *time.Time              `json:"published_at"`
}

func GetOutboxStatus(ctx context.Context, referenceType SettlementReferenceType, referenceId int) (*OutboxStatus, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errBusinessRequired()
	}
	var rec PubSubMessageRecord
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("id DESC").
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, newError(ErrNotFound, "no outbox record for %s %d", referenceType, referenceId)
	}
	return &OutboxStatus{
		RecordId:         rec.ID,
		ReferenceType:    rec.ReferenceType,
		ReferenceId:      rec.ReferenceId,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}, nil
}
