package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/hrcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
)

type fakeOutboxRetentionRepo struct {
	pages      [][]models.OutboxRecord
	listCalls  int
	lastCutoff time.Time
	deletes    int
	err        error
}

func (f *fakeOutboxRetentionRepo) ListSentBefore(_ context.Context, cutoff time.Time, _ *uuid.UUID, _ int) ([]models.OutboxRecord, error) {
	f.lastCutoff = cutoff
	if f.listCalls >= len(f.pages) {
		f.listCalls++
		return nil, nil
	}
	page := f.pages[f.listCalls]
	f.listCalls++
	return page, nil
}

func (f *fakeOutboxRetentionRepo) DeleteSentBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deletes++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type fakeArchiver struct {
	archived []models.OutboxRecord
	err      error
}

func (f *fakeArchiver) Archive(_ context.Context, records []models.OutboxRecord) error {
	if f.err != nil {
		return f.err
	}
	f.archived = append(f.archived, records...)
	return nil
}

func newOutboxRetentionJob(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	jobIface, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

func TestOutboxRetentionJobDeletesSentRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{Repository: repo})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.deletes != 1 {
		t.Fatalf("expected one delete, got %d", repo.deletes)
	}
	if repo.listCalls != 0 {
		t.Fatal("nothing should be listed without an archiver")
	}
}

func TestOutboxRetentionJobArchivesEveryPageFirst(t *testing.T) {
	page := func(n int) []models.OutboxRecord {
		out := make([]models.OutboxRecord, n)
		for i := range out {
			out[i].ID = uuid.New()
		}
		return out
	}
	repo := &fakeOutboxRetentionRepo{pages: [][]models.OutboxRecord{page(2), page(2), page(1)}}
	archiver := &fakeArchiver{}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{Repository: repo, Archiver: archiver, PageSize: 2})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(archiver.archived) != 5 {
		t.Fatalf("expected 5 archived, got %d", len(archiver.archived))
	}
	if repo.listCalls != 3 {
		t.Fatalf("expected 3 pages, got %d", repo.listCalls)
	}
	if repo.deletes != 1 {
		t.Fatal("expected delete after archiving")
	}
}

func TestOutboxRetentionJobKeepsRowsWhenArchiveFails(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{pages: [][]models.OutboxRecord{{{ID: uuid.New()}}}}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{
		Repository: repo,
		Archiver:   &fakeArchiver{err: errors.New("bigquery unavailable")},
	})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected archive error")
	}
	if repo.deletes != 0 {
		t.Fatal("rows must not be deleted when archiving failed")
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{Repository: repo})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOutboxRetentionJobOnlyRemovesOldSentRecords(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	insert := func(status enums.OutboxStatus, sentAt *time.Time, deadLettered bool) uuid.UUID {
		record := models.OutboxRecord{
			ID:            uuid.New(),
			AggregateID:   uuid.New(),
			AggregateType: enums.AggregateEmployee,
			EventType:     "EmployeeCreated",
			Payload:       []byte(`{}`),
			Status:        status,
			OccurredOn:    now.Add(-90 * 24 * time.Hour),
			NextAttemptAt: now.Add(-90 * 24 * time.Hour),
			SentAt:        sentAt,
		}
		if deadLettered {
			at := now.Add(-60 * 24 * time.Hour)
			record.DeadLetteredAt = &at
		}
		require.NoError(t, repo.Insert(ctx, conn, &record))
		return record.ID
	}
	old := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)
	oldSent := insert(enums.OutboxStatusSent, &old, false)
	recentSent := insert(enums.OutboxStatusSent, &recent, false)
	parked := insert(enums.OutboxStatusFailed, nil, true)
	pending := insert(enums.OutboxStatusPending, nil, false)

	archiver := &fakeArchiver{}
	job := newOutboxRetentionJob(t, OutboxRetentionJobParams{Repository: repo, Archiver: archiver})
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(ctx))

	require.Len(t, archiver.archived, 1)
	assert.Equal(t, oldSent, archiver.archived[0].ID)

	_, err := repo.FindByID(ctx, oldSent)
	assert.Error(t, err)
	for _, id := range []uuid.UUID{recentSent, parked, pending} {
		_, err := repo.FindByID(ctx, id)
		assert.NoError(t, err, "record %s should survive retention", id)
	}
}
