package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

// EnqueueParams describes one outbox record. ID is generated when nil and
// OccurredOn defaults to the current time. Payload is stored as opaque bytes
// and handed to channels unchanged; it need not be JSON.
type EnqueueParams struct {
	ID            uuid.UUID
	AggregateID   uuid.UUID
	AggregateType enums.AggregateType
	EventType     string
	Payload       []byte
	OccurredOn    time.Time
}

// HistoryParams describes one audit entry.
type HistoryParams struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	EventType   enums.HistoryEventType
	OccurredOn  time.Time
	Description string
	EventData   string
}

// DomainEvent is the typed form callers hand to Emit.
type DomainEvent struct {
	EventType     string
	AggregateType enums.AggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          interface{}
	OccurredAt    time.Time
}

type Service struct {
	repo    *Repository
	history *HistoryRepository
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(repo *Repository, history *HistoryRepository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, history: history, logg: logg, now: time.Now}
}

// EnqueueOutbox inserts one pending record inside the caller's transaction.
// Storage errors are returned as-is so the caller rolls back.
func (s *Service) EnqueueOutbox(ctx context.Context, tx *gorm.DB, params EnqueueParams) (models.OutboxRecord, error) {
	if tx == nil {
		return models.OutboxRecord{}, errTxRequired
	}
	occurred := params.OccurredOn
	if occurred.IsZero() {
		occurred = s.now()
	}
	occurred = occurred.UTC()
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	record := models.OutboxRecord{
		ID:            id,
		AggregateID:   params.AggregateID,
		AggregateType: params.AggregateType,
		EventType:     params.EventType,
		Payload:       params.Payload,
		Status:        enums.OutboxStatusPending,
		OccurredOn:    occurred,
		NextAttemptAt: occurred,
		RetryAttempts: 0,
	}
	if err := s.repo.Insert(ctx, tx, &record); err != nil {
		return models.OutboxRecord{}, err
	}

	logCtx := s.logg.WithAggregate(ctx, string(record.AggregateType), record.AggregateID.String())
	logCtx = s.logg.WithOutboxRecord(logCtx, record.ID.String())
	logCtx = s.logg.WithField(logCtx, "event_type", record.EventType)
	s.logg.Debug(logCtx, "outbox record queued")
	return record, nil
}

// AppendHistory inserts one audit entry inside the caller's transaction.
func (s *Service) AppendHistory(ctx context.Context, tx *gorm.DB, params HistoryParams) (models.EventHistoryRecord, error) {
	if tx == nil {
		return models.EventHistoryRecord{}, errTxRequired
	}
	occurred := params.OccurredOn
	if occurred.IsZero() {
		occurred = s.now()
	}
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	record := models.EventHistoryRecord{
		ID:          id,
		AggregateID: params.AggregateID,
		EventType:   params.EventType,
		OccurredOn:  occurred.UTC(),
		Description: params.Description,
		EventData:   params.EventData,
	}
	if err := s.history.Append(ctx, tx, &record); err != nil {
		return models.EventHistoryRecord{}, err
	}
	return record, nil
}

// Emit wraps event.Data in a versioned envelope and enqueues it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (models.OutboxRecord, error) {
	if tx == nil {
		return models.OutboxRecord{}, errTxRequired
	}
	if event.EventType == "" {
		return models.OutboxRecord{}, errors.New("outbox: event type required")
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxRecord{}, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	envelope := PayloadEnvelope{
		Version:     envelopeVersion,
		EventID:     uuid.NewString(),
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		OccurredAt:  event.OccurredAt.UTC(),
		Actor:       event.Actor,
		Data:        data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxRecord{}, err
	}
	return s.EnqueueOutbox(ctx, tx, EnqueueParams{
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Payload:       payload,
		OccurredOn:    event.OccurredAt,
	})
}

// History returns the audit trail of an aggregate.
func (s *Service) History(ctx context.Context, aggregateID uuid.UUID) ([]models.EventHistoryRecord, error) {
	return s.history.FindByAggregateID(ctx, aggregateID)
}
