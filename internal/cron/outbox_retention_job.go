package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

const (
	outboxRetentionDays   = 30
	outboxArchivePageSize = 500
)

// OutboxArchiver receives sent records before they are deleted.
type OutboxArchiver interface {
	Archive(ctx context.Context, records []models.OutboxRecord) error
}

type outboxRetentionRepo interface {
	ListSentBefore(ctx context.Context, cutoff time.Time, afterID *uuid.UUID, limit int) ([]models.OutboxRecord, error)
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// Archiver is optional; without it sent rows are deleted outright.
	Archiver  OutboxArchiver
	Retention int
	PageSize  int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = outboxArchivePageSize
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		archiver:  params.Archiver,
		retention: retention,
		pageSize:  pageSize,
		now:       time.Now,
	}, nil
}

// outboxRetentionJob removes sent records older than the retention window.
// Failed and dead-lettered rows are never touched.
type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	archiver  OutboxArchiver
	retention int
	pageSize  int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)

	archived, err := j.archive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox archive: %w", err)
	}

	deleted, err := j.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_archived":  archived,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}

func (j *outboxRetentionJob) archive(ctx context.Context, cutoff time.Time) (int, error) {
	if j.archiver == nil {
		return 0, nil
	}
	var (
		after *uuid.UUID
		total int
	)
	for {
		page, err := j.repo.ListSentBefore(ctx, cutoff, after, j.pageSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}
		if err := j.archiver.Archive(ctx, page); err != nil {
			return total, err
		}
		total += len(page)
		if len(page) < j.pageSize {
			return total, nil
		}
		last := page[len(page)-1].ID
		after = &last
	}
}
