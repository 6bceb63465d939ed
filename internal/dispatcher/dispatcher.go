// Package dispatcher polls the outbox, hands ready records to the delivery
// channel and records the outcome on each row.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/delivery"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/env"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/metrics"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 500 * time.Millisecond
	defaultDeliveryTimeout = 15 * time.Second
	defaultMaxAttempts     = 10
	defaultClaimLease      = 2 * time.Minute
	maxErrorBackoff        = 10 * time.Second
	jitterWindow           = 250 * time.Millisecond

	// ConsumerName scopes the delivery idempotency keys.
	ConsumerName = "outbox-dispatcher"
)

type outboxRepository interface {
	Claim(ctx context.Context, params outbox.ClaimParams) ([]models.OutboxRecord, error)
	MarkSent(ctx context.Context, record models.OutboxRecord, now time.Time) error
	MarkFailed(ctx context.Context, record models.OutboxRecord, params outbox.FailureParams) error
}

type deadLetterer interface {
	DeadLetter(ctx context.Context, record models.OutboxRecord, params outbox.DeadLetterParams) error
}

type deliveryGuard interface {
	Delivered(ctx context.Context, consumer string, recordID uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, consumer string, recordID uuid.UUID) error
}

type recordValidator interface {
	Resolve(record models.OutboxRecord) (*registry.ResolvedEvent, error)
}

type wakeSource interface {
	C() <-chan struct{}
}

// ReadinessCheck is pinged once before the workers start.
type ReadinessCheck struct {
	Name string
	Ping func(context.Context) error
}

type ServiceParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	Repository  outboxRepository
	DeadLetters deadLetterer
	Channel     delivery.Channel
	// Optional collaborators.
	Guard     deliveryGuard
	Validator recordValidator
	Wake      wakeSource
	Metrics   *metrics.OutboxMetrics
	Checks    []ReadinessCheck
	Now       func() time.Time
}

type Service struct {
	logg        *logger.Logger
	repo        outboxRepository
	deadLetters deadLetterer
	channel     delivery.Channel
	guard       deliveryGuard
	validator   recordValidator
	wake        wakeSource
	metrics     *metrics.OutboxMetrics
	checks      []ReadinessCheck
	now         func() time.Time
	backoff     Backoff

	owner           string
	workers         int
	batchSize       int
	maxAttempts     int
	pollInterval    time.Duration
	deliveryTimeout time.Duration
	lease           time.Duration
}

// Result summarises one dispatch cycle.
type Result struct {
	Claimed      int
	Sent         int
	Failed       int
	DeadLettered int
	Skipped      int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead letter writer is required")
	}
	if params.Channel == nil {
		return nil, errors.New("delivery channel is required")
	}

	cfg := params.Config
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := cfg.PollInterval()
	if poll <= 0 {
		poll = defaultPollInterval
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	lease := cfg.ClaimLease
	if lease <= 0 {
		lease = defaultClaimLease
	}
	if lease <= timeout {
		return nil, fmt.Errorf("claim lease %s must exceed delivery timeout %s", lease, timeout)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		logg:            params.Logger,
		repo:            params.Repository,
		deadLetters:     params.DeadLetters,
		channel:         params.Channel,
		guard:           params.Guard,
		validator:       params.Validator,
		wake:            params.Wake,
		metrics:         params.Metrics,
		checks:          params.Checks,
		now:             func() time.Time { return now().UTC() },
		backoff:         NewBackoff(cfg),
		owner:           newWorkerID(),
		workers:         workers,
		batchSize:       batch,
		maxAttempts:     maxAttempts,
		pollInterval:    poll,
		deliveryTimeout: timeout,
		lease:           lease,
	}, nil
}

// newWorkerID names one claim owner: the process instance plus a ULID, so
// leases in the table point back at the host that holds them.
func newWorkerID() string {
	return env.Instance() + "/" + ulid.Make().String()
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, check := range s.checks {
		if check.Ping == nil {
			continue
		}
		if err := check.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", check.Name), err)
			return fmt.Errorf("%s ping failed: %w", check.Name, err)
		}
	}
	return nil
}

// Run starts the workers and blocks until ctx is cancelled or a worker fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		workerID := newWorkerID()
		g.Go(func() error {
			return s.loop(gctx, workerID)
		})
	}
	return g.Wait()
}

func (s *Service) loop(ctx context.Context, workerID string) error {
	ctx = s.logg.WithWorker(ctx, workerID)
	s.logg.Info(ctx, "outbox worker started")
	backoff := s.pollInterval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox worker context canceled")
			return ctx.Err()
		default:
		}

		res, err := s.dispatch(ctx, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Error(ctx, "outbox dispatch cycle failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxErrorBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = s.pollInterval

		if res.Claimed >= s.batchSize {
			runtime.Gosched()
			continue
		}

		if err := s.waitForWork(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// DispatchOnce runs a single claim-and-deliver cycle.
func (s *Service) DispatchOnce(ctx context.Context) (Result, error) {
	return s.dispatch(ctx, s.owner)
}

func (s *Service) dispatch(ctx context.Context, owner string) (Result, error) {
	var res Result
	records, err := s.repo.Claim(ctx, outbox.ClaimParams{
		Owner: owner,
		Now:   s.now(),
		Limit: s.batchSize,
		Lease: s.lease,
	})
	res.Claimed = len(records)
	if err != nil {
		return res, fmt.Errorf("claim outbox batch: %w", err)
	}

	var errs error
	for _, record := range records {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		errs = multierr.Append(errs, s.process(ctx, record, &res))
	}
	if res.Claimed > 0 {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"claimed":       res.Claimed,
			"sent":          res.Sent,
			"failed":        res.Failed,
			"dead_lettered": res.DeadLettered,
			"skipped":       res.Skipped,
		}), "outbox batch processed")
	}
	return res, errs
}

func (s *Service) process(ctx context.Context, record models.OutboxRecord, res *Result) error {
	ctx = s.logg.WithFields(ctx, recordFields(record))

	if !record.LeaseActive(s.now()) {
		s.logg.Warn(ctx, "outbox claim lease expired before delivery")
		s.skip(res)
		return nil
	}

	if s.validator != nil {
		if _, err := s.validator.Resolve(record); err != nil {
			return s.deadLetter(ctx, record, enums.OutboxDLQReasonNonRetryable, err, res)
		}
	}

	if s.guard != nil {
		delivered, err := s.guard.Delivered(ctx, ConsumerName, record.ID)
		if err != nil {
			s.logg.Warn(s.logg.WithError(ctx, err), "outbox idempotency lookup failed")
		} else if delivered {
			s.logg.Info(ctx, "outbox record already delivered, marking sent")
			return s.markSent(ctx, record, res)
		}
	}

	start := time.Now()
	err := s.deliver(ctx, record)
	s.metrics.ObserveDelivery(time.Since(start))

	if err == nil {
		if s.guard != nil {
			if gerr := s.guard.MarkDelivered(ctx, ConsumerName, record.ID); gerr != nil {
				s.logg.Warn(s.logg.WithError(ctx, gerr), "outbox idempotency mark failed")
			}
		}
		return s.markSent(ctx, record, res)
	}
	if ctx.Err() != nil {
		// Shutting down; the lease runs out and another worker retries.
		return ctx.Err()
	}
	if delivery.IsNonRetryable(err) {
		return s.deadLetter(ctx, record, enums.OutboxDLQReasonNonRetryable, err, res)
	}

	attempts := record.RetryAttempts + 1
	if s.maxAttempts > 0 && attempts >= s.maxAttempts {
		return s.deadLetter(ctx, record, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max delivery attempts reached: %w", err), res)
	}

	now := s.now()
	next := now.Add(s.backoff.Next(attempts))
	fields := map[string]any{
		"attempt":         attempts,
		"next_attempt_at": next.Format(time.RFC3339Nano),
		"error":           err.Error(),
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox delivery failed")

	markErr := s.repo.MarkFailed(ctx, record, outbox.FailureParams{Now: now, NextAttemptAt: next, Err: err})
	if errors.Is(markErr, outbox.ErrClaimLost) {
		s.logg.Warn(ctx, "outbox claim lost before failure was recorded")
		s.skip(res)
		return nil
	}
	if markErr != nil {
		return fmt.Errorf("mark failed %s: %w", record.ID, markErr)
	}
	res.Failed++
	s.metrics.IncOutcome(metrics.OutcomeFailed)
	return nil
}

// deliver calls the channel with its own deadline. A channel that ignores the
// context is abandoned when the deadline passes.
func (s *Service) deliver(ctx context.Context, record models.OutboxRecord) error {
	deliverCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	msg := delivery.Message{
		RecordID:      record.ID,
		AggregateID:   record.AggregateID,
		AggregateType: record.AggregateType,
		EventType:     record.EventType,
		Payload:       record.Payload,
		OccurredOn:    record.OccurredOn,
		Attempt:       record.RetryAttempts + 1,
	}

	done := make(chan error, 1)
	go func() {
		done <- s.channel.Deliver(deliverCtx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-deliverCtx.Done():
		return fmt.Errorf("delivery timed out after %s: %w", s.deliveryTimeout, deliverCtx.Err())
	}
}

func (s *Service) markSent(ctx context.Context, record models.OutboxRecord, res *Result) error {
	err := s.repo.MarkSent(ctx, record, s.now())
	if errors.Is(err, outbox.ErrClaimLost) {
		s.logg.Warn(ctx, "outbox claim lost before sent was recorded")
		s.skip(res)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", record.ID, err)
	}
	res.Sent++
	s.metrics.IncOutcome(metrics.OutcomeSent)
	s.logg.Info(ctx, "outbox record delivered")
	return nil
}

func (s *Service) deadLetter(ctx context.Context, record models.OutboxRecord, reason enums.OutboxDLQErrorReason, cause error, res *Result) error {
	fields := map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox record will not be retried")

	err := s.deadLetters.DeadLetter(ctx, record, outbox.DeadLetterParams{
		Now:    s.now(),
		Reason: reason,
		Err:    cause,
	})
	if errors.Is(err, outbox.ErrClaimLost) {
		s.logg.Warn(ctx, "outbox claim lost before dead letter was recorded")
		s.skip(res)
		return nil
	}
	if err != nil {
		return fmt.Errorf("dead letter %s: %w", record.ID, err)
	}
	res.DeadLettered++
	s.metrics.IncOutcome(metrics.OutcomeDeadLettered)
	return nil
}

func (s *Service) skip(res *Result) {
	res.Skipped++
	s.metrics.IncOutcome(metrics.OutcomeSkipped)
}

func recordFields(record models.OutboxRecord) map[string]any {
	fields := map[string]any{
		"outbox_id":      record.ID.String(),
		"event_type":     record.EventType,
		"aggregate_type": record.AggregateType,
		"aggregate_id":   record.AggregateID.String(),
		"retry_attempts": record.RetryAttempts,
		"occurred_on":    record.OccurredOn.Format(time.RFC3339Nano),
	}
	if record.LastError != nil {
		fields["last_error"] = *record.LastError
	}
	return fields
}

func (s *Service) waitForWork(ctx context.Context, d time.Duration) error {
	var wake <-chan struct{}
	if s.wake != nil {
		wake = s.wake.C()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
