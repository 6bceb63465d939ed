package bigquery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

type recordingInserter struct {
	rows []any
	err  error
}

func (r *recordingInserter) InsertRows(_ context.Context, rows []any) error {
	r.rows = append(r.rows, rows...)
	return r.err
}

func sentRecord(sentAt time.Time) models.OutboxRecord {
	return models.OutboxRecord{
		ID:            uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: enums.AggregateEmployee,
		EventType:     "EmployeeCreated",
		Payload:       []byte(`{"employeeId":"e-1"}`),
		Status:        enums.OutboxStatusSent,
		OccurredOn:    sentAt.Add(-time.Minute),
		RetryAttempts: 2,
		SentAt:        &sentAt,
	}
}

func TestArchiveWritesOneRowPerRecord(t *testing.T) {
	inserter := &recordingInserter{}
	archiver, err := NewOutboxArchiver(inserter)
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []models.OutboxRecord{sentRecord(sentAt), sentRecord(sentAt)}

	if err := archiver.Archive(context.Background(), records); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(inserter.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(inserter.rows))
	}
	row, ok := inserter.rows[0].(ArchivedRecord)
	if !ok {
		t.Fatalf("unexpected row type %T", inserter.rows[0])
	}
	values, insertID, err := row.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if insertID != records[0].ID.String() {
		t.Fatalf("insert id %q, want record id", insertID)
	}
	if values["event_type"] != "EmployeeCreated" {
		t.Fatalf("unexpected values %v", values)
	}
	if payload, ok := values["payload"].([]byte); !ok || string(payload) != `{"employeeId":"e-1"}` {
		t.Fatalf("unexpected payload %v", values["payload"])
	}
	if values["retry_attempts"] != 2 {
		t.Fatalf("unexpected retry attempts %v", values["retry_attempts"])
	}
}

func TestArchiveRejectsUnsentRecord(t *testing.T) {
	inserter := &recordingInserter{}
	archiver, _ := NewOutboxArchiver(inserter)
	record := sentRecord(time.Now())
	record.SentAt = nil

	if err := archiver.Archive(context.Background(), []models.OutboxRecord{record}); err == nil {
		t.Fatal("expected error for unsent record")
	}
	if len(inserter.rows) != 0 {
		t.Fatal("nothing should be inserted")
	}
}

func TestArchivePropagatesInsertError(t *testing.T) {
	archiver, _ := NewOutboxArchiver(&recordingInserter{err: errors.New("quota exceeded")})
	err := archiver.Archive(context.Background(), []models.OutboxRecord{sentRecord(time.Now())})
	if err == nil {
		t.Fatal("expected insert error")
	}
}

func TestArchiveEmptyIsNoop(t *testing.T) {
	inserter := &recordingInserter{}
	archiver, _ := NewOutboxArchiver(inserter)
	if err := archiver.Archive(context.Background(), nil); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(inserter.rows) != 0 {
		t.Fatal("expected no insert")
	}
}
