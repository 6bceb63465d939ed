package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

const maxLastErrorLen = 1024

var (
	// ErrClaimLost means the record is no longer owned by the caller.
	ErrClaimLost = errors.New("outbox: claim lost")
	// ErrNotFound is returned by lookups for unknown record ids.
	ErrNotFound = errors.New("outbox: record not found")

	errTxRequired = errors.New("outbox: transaction required")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Insert writes a new record through tx.
func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, record *models.OutboxRecord) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.WithContext(ctx).Create(record).Error
}

// ClaimParams bounds one claim cycle.
type ClaimParams struct {
	Owner string
	Now   time.Time
	Limit int
	Lease time.Duration
}

// eligible restricts a query to rows a worker may take at now.
func eligible(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.
			Where("status IN ?", enums.ClaimableOutboxStatuses).
			Where("next_attempt_at < ?", now).
			Where("dead_lettered_at IS NULL").
			Where("(claimed_until IS NULL OR claimed_until < ?)", now)
	}
}

// Claim selects up to Limit ready records, oldest occurred_on first, and takes
// each one with a conditional update. Rows another worker took in between are
// dropped from the result.
func (r *Repository) Claim(ctx context.Context, params ClaimParams) ([]models.OutboxRecord, error) {
	if params.Owner == "" {
		return nil, errors.New("outbox: claim owner required")
	}
	if params.Limit <= 0 {
		return nil, nil
	}
	if params.Lease <= 0 {
		return nil, errors.New("outbox: claim lease must be positive")
	}
	now := params.Now.UTC()

	var candidates []models.OutboxRecord
	err := r.db.WithContext(ctx).
		Scopes(eligible(now)).
		Order("occurred_on ASC").
		Order("id ASC").
		Limit(params.Limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}

	until := now.Add(params.Lease)
	owner := params.Owner
	claimed := make([]models.OutboxRecord, 0, len(candidates))
	for _, candidate := range candidates {
		res := r.db.WithContext(ctx).
			Model(&models.OutboxRecord{}).
			Where("id = ?", candidate.ID).
			Scopes(eligible(now)).
			Updates(map[string]any{
				"claimed_by":    owner,
				"claimed_until": until,
			})
		if res.Error != nil {
			return claimed, fmt.Errorf("claim %s: %w", candidate.ID, res.Error)
		}
		if res.RowsAffected != 1 {
			continue
		}
		candidate.ClaimedBy = &owner
		candidate.ClaimedUntil = &until
		claimed = append(claimed, candidate)
	}
	return claimed, nil
}

// MarkSent moves a claimed record to sent and releases the lease.
func (r *Repository) MarkSent(ctx context.Context, record models.OutboxRecord, now time.Time) error {
	if err := enums.ValidateOutboxTransition(record.Status, enums.OutboxStatusSent); err != nil {
		return err
	}
	return r.updateClaimed(ctx, record, map[string]any{
		"status":        enums.OutboxStatusSent,
		"sent_at":       now.UTC(),
		"last_error":    nil,
		"claimed_by":    nil,
		"claimed_until": nil,
	})
}

// FailureParams describes one failed delivery attempt.
type FailureParams struct {
	Now           time.Time
	NextAttemptAt time.Time
	Err           error
}

// MarkFailed records a retryable failure: retry_attempts grows by one and
// next_attempt_at moves to the later of its current value and NextAttemptAt.
func (r *Repository) MarkFailed(ctx context.Context, record models.OutboxRecord, params FailureParams) error {
	if err := enums.ValidateOutboxTransition(record.Status, enums.OutboxStatusFailed); err != nil {
		return err
	}
	next := params.NextAttemptAt.UTC()
	if next.Before(record.NextAttemptAt) {
		next = record.NextAttemptAt.UTC()
	}
	return r.updateClaimed(ctx, record, map[string]any{
		"status":          enums.OutboxStatusFailed,
		"retry_attempts":  gorm.Expr("retry_attempts + 1"),
		"next_attempt_at": next,
		"last_error":      lastError(params.Err),
		"claimed_by":      nil,
		"claimed_until":   nil,
	})
}

// MarkDeadLettered parks the record as terminally failed. next_attempt_at is
// left untouched.
func (r *Repository) MarkDeadLettered(ctx context.Context, record models.OutboxRecord, params FailureParams) error {
	if err := enums.ValidateOutboxTransition(record.Status, enums.OutboxStatusFailed); err != nil {
		return err
	}
	return r.updateClaimed(ctx, record, map[string]any{
		"status":           enums.OutboxStatusFailed,
		"retry_attempts":   gorm.Expr("retry_attempts + 1"),
		"dead_lettered_at": params.Now.UTC(),
		"last_error":       lastError(params.Err),
		"claimed_by":       nil,
		"claimed_until":    nil,
	})
}

func (r *Repository) updateClaimed(ctx context.Context, record models.OutboxRecord, updates map[string]any) error {
	if record.ClaimedBy == nil {
		return ErrClaimLost
	}
	res := r.db.WithContext(ctx).
		Model(&models.OutboxRecord{}).
		Where("id = ? AND status = ? AND claimed_by = ?", record.ID, record.Status, *record.ClaimedBy).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxRecord, error) {
	var record models.OutboxRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// StatusCounts is the outbox backlog broken down by state.
type StatusCounts struct {
	Pending      int64 `json:"pending"`
	Failed       int64 `json:"failed"`
	Sent         int64 `json:"sent"`
	DeadLettered int64 `json:"deadLettered"`
}

func (r *Repository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	var rows []struct {
		Status       enums.OutboxStatus
		DeadLettered bool
		Total        int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxRecord{}).
		Select("status, dead_lettered_at IS NOT NULL AS dead_lettered, COUNT(*) AS total").
		Group("status, dead_lettered_at IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, row := range rows {
		switch {
		case row.DeadLettered:
			counts.DeadLettered += row.Total
		case row.Status == enums.OutboxStatusPending:
			counts.Pending += row.Total
		case row.Status == enums.OutboxStatusFailed:
			counts.Failed += row.Total
		case row.Status == enums.OutboxStatusSent:
			counts.Sent += row.Total
		}
	}
	return counts, nil
}

// ListSentBefore pages through sent records older than cutoff in id order.
func (r *Repository) ListSentBefore(ctx context.Context, cutoff time.Time, afterID *uuid.UUID, limit int) ([]models.OutboxRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	q := r.db.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusSent).
		Where("sent_at < ?", cutoff.UTC())
	if afterID != nil {
		q = q.Where("id > ?", *afterID)
	}
	var rows []models.OutboxRecord
	err := q.Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// DeleteSentBefore removes sent records whose sent_at is older than cutoff.
func (r *Repository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ?", enums.OutboxStatusSent).
		Where("sent_at < ?", cutoff.UTC()).
		Delete(&models.OutboxRecord{})
	return res.RowsAffected, res.Error
}

func lastError(err error) *string {
	if err == nil {
		return nil
	}
	msg := truncate(err.Error(), maxLastErrorLen)
	return &msg
}

func truncate(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	return message[:limit]
}
