package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/metrics"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
)

type outboxCounter interface {
	CountByStatus(ctx context.Context) (outbox.StatusCounts, error)
}

type OutboxBacklogJobParams struct {
	Logger     *logger.Logger
	Repository outboxCounter
	Metrics    *metrics.OutboxMetrics
}

func NewOutboxBacklogJob(params OutboxBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxBacklogJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
	}, nil
}

// outboxBacklogJob publishes the per-status row counts as gauges and warns
// while dead-lettered records are waiting for an operator.
type outboxBacklogJob struct {
	logg    *logger.Logger
	repo    outboxCounter
	metrics *metrics.OutboxMetrics
}

func (j *outboxBacklogJob) Name() string { return "outbox-backlog" }

func (j *outboxBacklogJob) Run(ctx context.Context) error {
	counts, err := j.repo.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count outbox records: %w", err)
	}
	j.metrics.SetBacklog(string(enums.OutboxStatusPending), counts.Pending)
	j.metrics.SetBacklog(string(enums.OutboxStatusFailed), counts.Failed)
	j.metrics.SetBacklog(string(enums.OutboxStatusSent), counts.Sent)
	j.metrics.SetBacklog(metrics.OutcomeDeadLettered, counts.DeadLettered)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending":       counts.Pending,
		"failed":        counts.Failed,
		"sent":          counts.Sent,
		"dead_lettered": counts.DeadLettered,
	})
	if counts.DeadLettered > 0 {
		j.logg.Warn(logCtx, "outbox has dead-lettered records")
		return nil
	}
	j.logg.Info(logCtx, "outbox backlog scanned")
	return nil
}
