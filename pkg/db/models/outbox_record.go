package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// OutboxRecord is a notification written in the same transaction as the
// business mutation it describes.
type OutboxRecord struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	AggregateID    uuid.UUID           `gorm:"column:aggregate_id;type:uuid;not null"`
	AggregateType  enums.AggregateType `gorm:"column:aggregate_type;not null"`
	EventType      string              `gorm:"column:event_type;not null"`
	Payload        []byte              `gorm:"column:payload;type:bytea;not null"`
	Status         enums.OutboxStatus  `gorm:"column:status;not null"`
	OccurredOn     time.Time           `gorm:"column:occurred_on;not null"`
	NextAttemptAt  time.Time           `gorm:"column:next_attempt_at;not null"`
	RetryAttempts  int                 `gorm:"column:retry_attempts;not null;default:0"`
	ClaimedBy      *string             `gorm:"column:claimed_by"`
	ClaimedUntil   *time.Time          `gorm:"column:claimed_until"`
	LastError      *string             `gorm:"column:last_error"`
	DeadLetteredAt *time.Time          `gorm:"column:dead_lettered_at"`
	SentAt         *time.Time          `gorm:"column:sent_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxRecord) TableName() string { return "outbox_records" }

// LeaseActive reports whether the claim on the record is still held at now.
func (r OutboxRecord) LeaseActive(now time.Time) bool {
	return r.ClaimedUntil != nil && r.ClaimedUntil.After(now)
}
