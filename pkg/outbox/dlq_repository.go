package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) Insert(ctx context.Context, tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.WithContext(ctx).Create(&entry).Error
}

func (r *DLQRepository) FindByRecordID(ctx context.Context, recordID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("record_id = ?", recordID).First(&dlq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dlq, nil
}

// List returns dead letters newest first. after continues from the last row
// of a previous page; the returned cursor is nil on the last page.
func (r *DLQRepository) List(ctx context.Context, limit int, after *pagination.Cursor) ([]models.OutboxDLQ, *pagination.Cursor, error) {
	pageSize := pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).
		Order("failed_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if after != nil {
		query = query.Where("failed_at < ? OR (failed_at = ? AND id < ?)", after.At, after.At, after.ID)
	}

	var rows []models.OutboxDLQ
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) <= pageSize {
		return rows, nil, nil
	}
	rows = rows[:pageSize]
	last := rows[pageSize-1]
	return rows, &pagination.Cursor{At: last.FailedAt, ID: last.ID}, nil
}
