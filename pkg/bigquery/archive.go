package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
)

type rowInserter interface {
	InsertRows(ctx context.Context, rows []any) error
}

// ArchivedRecord is one sent outbox record as stored in the archive table.
type ArchivedRecord struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	OccurredOn    time.Time
	SentAt        time.Time
	RetryAttempts int
}

// Save implements bigquery.ValueSaver. The record id doubles as the insert
// id so a re-archived page is deduplicated by the streaming API.
func (r ArchivedRecord) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"id":             r.ID,
		"aggregate_id":   r.AggregateID,
		"aggregate_type": r.AggregateType,
		"event_type":     r.EventType,
		"payload":        r.Payload,
		"occurred_on":    r.OccurredOn,
		"sent_at":        r.SentAt,
		"retry_attempts": r.RetryAttempts,
	}, r.ID, nil
}

// NewArchivedRecord converts a sent outbox record to its archive row.
func NewArchivedRecord(record models.OutboxRecord) (ArchivedRecord, error) {
	if record.SentAt == nil {
		return ArchivedRecord{}, fmt.Errorf("outbox record %s has not been sent", record.ID)
	}
	return ArchivedRecord{
		ID:            record.ID.String(),
		AggregateID:   record.AggregateID.String(),
		AggregateType: string(record.AggregateType),
		EventType:     record.EventType,
		Payload:       record.Payload,
		OccurredOn:    record.OccurredOn.UTC(),
		SentAt:        record.SentAt.UTC(),
		RetryAttempts: record.RetryAttempts,
	}, nil
}

// OutboxArchiver copies sent outbox records into BigQuery before retention
// deletes them.
type OutboxArchiver struct {
	inserter rowInserter
}

func NewOutboxArchiver(inserter rowInserter) (*OutboxArchiver, error) {
	if inserter == nil {
		return nil, errors.New("bigquery inserter required")
	}
	return &OutboxArchiver{inserter: inserter}, nil
}

func (a *OutboxArchiver) Archive(ctx context.Context, records []models.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for _, record := range records {
		row, err := NewArchivedRecord(record)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := a.inserter.InsertRows(ctx, rows); err != nil {
		return fmt.Errorf("archive %d outbox records: %w", len(rows), err)
	}
	return nil
}
