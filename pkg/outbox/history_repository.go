package outbox

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
)

// HistoryRepository is the append-only store behind the audit trail.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts one history row through tx.
func (r *HistoryRepository) Append(ctx context.Context, tx *gorm.DB, record *models.EventHistoryRecord) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.WithContext(ctx).Create(record).Error
}

// FindByAggregateID returns the aggregate's history, oldest first.
func (r *HistoryRepository) FindByAggregateID(ctx context.Context, aggregateID uuid.UUID) ([]models.EventHistoryRecord, error) {
	var rows []models.EventHistoryRecord
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("occurred_on ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
