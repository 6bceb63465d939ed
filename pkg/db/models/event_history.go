package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// EventHistoryRecord is one append-only audit entry for an aggregate.
type EventHistoryRecord struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	AggregateID uuid.UUID              `gorm:"column:aggregate_id;type:uuid;not null"`
	EventType   enums.HistoryEventType `gorm:"column:event_type;not null"`
	OccurredOn  time.Time              `gorm:"column:occurred_on;not null"`
	Description string                 `gorm:"column:description;not null"`
	EventData   string                 `gorm:"column:event_data;not null"`
}

func (EventHistoryRecord) TableName() string { return "event_history" }
