package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// DeadLetterParams describes why a record is parked.
type DeadLetterParams struct {
	Now    time.Time
	Reason enums.OutboxDLQErrorReason
	Err    error
}

// DeadLetterWriter marks a record terminally failed and writes its DLQ row in
// the same transaction.
type DeadLetterWriter struct {
	runner db.TxRunner
	repo   *Repository
	dlq    *DLQRepository
}

func NewDeadLetterWriter(runner db.TxRunner, repo *Repository, dlq *DLQRepository) *DeadLetterWriter {
	return &DeadLetterWriter{runner: runner, repo: repo, dlq: dlq}
}

func (w *DeadLetterWriter) DeadLetter(ctx context.Context, record models.OutboxRecord, params DeadLetterParams) error {
	if !params.Reason.IsValid() {
		return fmt.Errorf("invalid dlq reason %q", params.Reason)
	}
	now := params.Now.UTC()
	return w.runner.WithTx(ctx, func(tx *db.Tx) error {
		if err := w.repo.WithTx(tx.DB()).MarkDeadLettered(ctx, record, FailureParams{Now: now, Err: params.Err}); err != nil {
			return err
		}
		entry := models.OutboxDLQ{
			RecordID:      record.ID,
			EventType:     record.EventType,
			AggregateType: record.AggregateType,
			AggregateID:   record.AggregateID,
			Payload:       record.Payload,
			ErrorReason:   params.Reason,
			ErrorMessage:  lastError(params.Err),
			AttemptCount:  record.RetryAttempts + 1,
			FailedAt:      now,
		}
		if err := w.dlq.Insert(ctx, tx.DB(), entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", record.ID, err)
		}
		return nil
	})
}
