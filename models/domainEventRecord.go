package models

import (
	"encoding/json"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"gorm.io/gorm"
)

// DomainEventRecord is the transactional outbox row. It is written inside the
// same transaction as the run transition it describes; the dispatcher publishes
// it to Pub/Sub after commit, so a rolled-back transition emits nothing.
type DomainEventRecord struct {
	ID         int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId string              `gorm:"size:64;not null;index" json:"business_id"`
	EventType  ProductionEventType `gorm:"size:30;not null;index" json:"event_type"`
	OccurredAt time.Time           `gorm:"index;not null" json:"occurred_at"`
	RunId      int                 `gorm:"index;not null" json:"run_id"`
	Payload    []byte              `gorm:"type:blob" json:"payload"`
	// Outbox metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r DomainEventRecord) GetBusinessId() string { return r.BusinessId }

func ConvertToProductionEventMessage(record DomainEventRecord) config.ProductionEventMessage {
	return config.ProductionEventMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		EventType:     string(record.EventType),
		OccurredAt:    record.OccurredAt,
		RunId:         record.RunId,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// InsertDomainEvent stages an event in the outbox under the caller's
// transaction. Payload is marshalled here so callers pass plain structs.
func InsertDomainEvent(tx *gorm.DB, businessId string, eventType ProductionEventType, runId int, payload interface{}, correlationId string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := DomainEventRecord{
		BusinessId:    businessId,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		RunId:         runId,
		Payload:       body,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}
