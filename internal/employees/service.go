package employees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/hrcore-backend/pkg/errors"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/payloads"
)

var emailRules = validator.New()

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *db.Tx) error) error
}

type eventWriter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (models.OutboxRecord, error)
	AppendHistory(ctx context.Context, tx *gorm.DB, params outbox.HistoryParams) (models.EventHistoryRecord, error)
	History(ctx context.Context, aggregateID uuid.UUID) ([]models.EventHistoryRecord, error)
}

type commitSignal interface {
	Raise(tx *db.Tx)
}

// Service exposes the employee use cases. Every mutation writes the employee
// row, one outbox record and one history entry in a single transaction.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Employee, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	ChangeStatus(ctx context.Context, input ChangeStatusInput) (*models.Employee, error)
	Reactivate(ctx context.Context, input ReactivateInput) (*models.Employee, error)
	History(ctx context.Context, id uuid.UUID) ([]models.EventHistoryRecord, error)
}

type ServiceParams struct {
	Logger     *logger.Logger
	Tx         txRunner
	Repository Repository
	Events     eventWriter
	// Signal is optional; without it dispatchers pick work up on their poll.
	Signal commitSignal
	Now    func() time.Time
}

type service struct {
	logg   *logger.Logger
	tx     txRunner
	repo   Repository
	events eventWriter
	signal commitSignal
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("employee repository required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:   logg,
		tx:     params.Tx,
		repo:   params.Repository,
		events: params.Events,
		signal: params.Signal,
		now:    now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Employee, error) {
	employee, err := newEmployee(input)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *db.Tx) error {
		now := s.now().UTC()
		employee.CreatedAt = now
		employee.UpdatedAt = now
		if err := s.repo.WithTx(tx.DB()).Create(ctx, employee); err != nil {
			return mapRepoError(err, "create employee")
		}
		return s.record(ctx, tx, change{
			employee:    employee,
			eventType:   payloads.EventEmployeeCreated,
			history:     enums.HistoryCreated,
			description: fmt.Sprintf("employee %s hired as %s", employee.FullName, employee.Status),
			actor:       input.Actor,
			occurredAt:  now,
			data: payloads.EmployeeCreatedEvent{
				EmployeeID: employee.ID,
				FullName:   employee.FullName,
				Email:      employee.Email,
				Status:     employee.Status,
				Salary:     employee.Salary,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithAggregate(ctx, string(enums.AggregateEmployee), employee.ID.String()), "employee created")
	return employee, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	employee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "load employee")
	}
	return employee, nil
}

func (s *service) ChangeStatus(ctx context.Context, input ChangeStatusInput) (*models.Employee, error) {
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid employee status %q", input.Status)
	}

	var employee *models.Employee
	err := s.tx.WithTx(ctx, func(tx *db.Tx) error {
		repo := s.repo.WithTx(tx.DB())
		current, err := repo.FindByID(ctx, input.EmployeeID)
		if err != nil {
			return mapRepoError(err, "load employee")
		}
		from := current.Status
		if err := enums.ValidateEmployeeTransition(from, input.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "status change not allowed").
				WithDetails(map[string]any{"from": from, "to": input.Status})
		}
		now := s.now().UTC()
		if err := repo.UpdateStatus(ctx, current.ID, from, input.Status, now); err != nil {
			return mapRepoError(err, "update employee status")
		}
		current.Status = input.Status
		current.UpdatedAt = now
		employee = current

		description := fmt.Sprintf("status changed from %s to %s", from, input.Status)
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			description += ": " + reason
		}
		return s.record(ctx, tx, change{
			employee:    current,
			eventType:   payloads.EventEmployeeStatusChanged,
			history:     enums.HistoryStatusChanged,
			description: description,
			actor:       input.Actor,
			occurredAt:  now,
			data: payloads.EmployeeStatusChangedEvent{
				EmployeeID: current.ID,
				From:       from,
				To:         input.Status,
				Reason:     strings.TrimSpace(input.Reason),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return employee, nil
}

func (s *service) Reactivate(ctx context.Context, input ReactivateInput) (*models.Employee, error) {
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}

	var employee *models.Employee
	err := s.tx.WithTx(ctx, func(tx *db.Tx) error {
		repo := s.repo.WithTx(tx.DB())
		current, err := repo.FindByID(ctx, input.EmployeeID)
		if err != nil {
			return mapRepoError(err, "load employee")
		}
		previous := current.Status
		if !previous.CanReactivate() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "employee in status %s cannot be reactivated", previous)
		}
		now := s.now().UTC()
		if err := repo.UpdateStatus(ctx, current.ID, previous, enums.EmployeeStatusActive, now); err != nil {
			return mapRepoError(err, "reactivate employee")
		}
		current.Status = enums.EmployeeStatusActive
		current.UpdatedAt = now
		employee = current

		return s.record(ctx, tx, change{
			employee:    current,
			eventType:   payloads.EventEmployeeReactivated,
			history:     enums.HistoryReactivated,
			description: fmt.Sprintf("reactivated from %s", previous),
			actor:       input.Actor,
			occurredAt:  now,
			data: payloads.EmployeeReactivatedEvent{
				EmployeeID:     current.ID,
				PreviousStatus: previous,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return employee, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]models.EventHistoryRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.events.History(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load employee history")
	}
	return records, nil
}

type change struct {
	employee    *models.Employee
	eventType   string
	history     enums.HistoryEventType
	description string
	actor       *outbox.ActorRef
	occurredAt  time.Time
	data        any
}

// record writes the outbox row and the history entry through tx and arms the
// commit signal.
func (s *service) record(ctx context.Context, tx *db.Tx, c change) error {
	if _, err := s.events.Emit(ctx, tx.DB(), outbox.DomainEvent{
		EventType:     c.eventType,
		AggregateType: enums.AggregateEmployee,
		AggregateID:   c.employee.ID,
		Actor:         c.actor,
		Data:          c.data,
		OccurredAt:    c.occurredAt,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue outbox event")
	}

	data, err := json.Marshal(c.data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode history data")
	}
	if _, err := s.events.AppendHistory(ctx, tx.DB(), outbox.HistoryParams{
		AggregateID: c.employee.ID,
		EventType:   c.history,
		OccurredOn:  c.occurredAt,
		Description: c.description,
		EventData:   string(data),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append history")
	}

	if s.signal != nil {
		s.signal.Raise(tx)
	}
	return nil
}

func newEmployee(input CreateInput) (*models.Employee, error) {
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name required")
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := emailRules.Var(email, "required,email,max=254"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid email required")
	}
	if input.Salary.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "salary cannot be negative")
	}
	status := input.Status
	if status == "" {
		status = enums.EmployeeStatusActive
	}
	if !status.IsValid() || status == enums.EmployeeStatusTerminated {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid initial status %q", status)
	}
	return &models.Employee{
		FullName: name,
		Email:    email,
		Status:   status,
		Salary:   input.Salary.Round(2),
	}, nil
}

func mapRepoError(err error, action string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
	case errors.Is(err, ErrEmailTaken):
		return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	case errors.Is(err, ErrStatusChanged):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "employee was modified concurrently")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
