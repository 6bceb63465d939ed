package employees

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/hrcore-backend/pkg/errors"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/payloads"
)

var fixedNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	conn    *gorm.DB
	signal  *outbox.Signal
	events  *outbox.Service
	service Service
}

func newFixture(t *testing.T, wrap func(eventWriter) eventWriter) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	events := outbox.NewService(outbox.NewRepository(conn), outbox.NewHistoryRepository(conn), logger.Nop())
	var writer eventWriter = events
	if wrap != nil {
		writer = wrap(events)
	}
	signal := outbox.NewSignal(outbox.SignalParams{})
	ticks := 0
	svc, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Tx:         db.NewFromGorm(conn, logger.Nop()),
		Repository: NewRepository(conn),
		Events:     writer,
		Signal:     signal,
		Now: func() time.Time {
			ticks++
			return fixedNow.Add(time.Duration(ticks-1) * time.Second)
		},
	})
	require.NoError(t, err)
	return fixture{conn: conn, signal: signal, events: events, service: svc}
}

func (f fixture) outboxRecords(t *testing.T) []models.OutboxRecord {
	t.Helper()
	var rows []models.OutboxRecord
	require.NoError(t, f.conn.Order("occurred_on ASC, id ASC").Find(&rows).Error)
	return rows
}

func (f fixture) employeeCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.Employee{}).Count(&n).Error)
	return n
}

func (f fixture) signaled() bool {
	select {
	case <-f.signal.C():
		return true
	default:
		return false
	}
}

func (f fixture) hire(t *testing.T, email string) *models.Employee {
	t.Helper()
	employee, err := f.service.Create(context.Background(), CreateInput{
		FullName: "Ada Lovelace",
		Email:    email,
		Salary:   decimal.RequireFromString("5200.50"),
	})
	require.NoError(t, err)
	f.signaled()
	return employee
}

func TestCreateWritesEmployeeOutboxAndHistoryTogether(t *testing.T) {
	f := newFixture(t, nil)

	employee, err := f.service.Create(context.Background(), CreateInput{
		FullName: "  Ada Lovelace ",
		Email:    "Ada@Example.com",
		Salary:   decimal.RequireFromString("5200.505"),
		Actor:    &outbox.ActorRef{Subject: "hr-admin", Role: "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", employee.FullName)
	assert.Equal(t, "ada@example.com", employee.Email)
	assert.Equal(t, enums.EmployeeStatusActive, employee.Status)
	assert.True(t, employee.Salary.Equal(decimal.RequireFromString("5200.51")))

	records := f.outboxRecords(t)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, employee.ID, record.AggregateID)
	assert.Equal(t, enums.AggregateEmployee, record.AggregateType)
	assert.Equal(t, payloads.EventEmployeeCreated, record.EventType)
	assert.Equal(t, enums.OutboxStatusPending, record.Status)
	assert.True(t, record.OccurredOn.Equal(fixedNow))

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(record.Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "hr-admin", envelope.Actor.Subject)
	var created payloads.EmployeeCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	assert.Equal(t, employee.ID, created.EmployeeID)

	history, err := f.service.History(context.Background(), employee.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.HistoryCreated, history[0].EventType)
	assert.Contains(t, history[0].Description, "Ada Lovelace")

	assert.True(t, f.signaled(), "commit should raise the dispatcher signal")
}

func TestCreateDuplicateEmailLeavesNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	f.hire(t, "ada@example.com")

	_, err := f.service.Create(context.Background(), CreateInput{FullName: "Ada Again", Email: "ADA@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	assert.Len(t, f.outboxRecords(t), 1)
	assert.Equal(t, int64(1), f.employeeCount(t))
	assert.False(t, f.signaled(), "rolled back transaction must not signal")
}

type failingHistory struct {
	eventWriter
}

func (failingHistory) AppendHistory(context.Context, *gorm.DB, outbox.HistoryParams) (models.EventHistoryRecord, error) {
	return models.EventHistoryRecord{}, errors.New("history table locked")
}

func TestCreateRollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t, func(w eventWriter) eventWriter { return failingHistory{w} })

	_, err := f.service.Create(context.Background(), CreateInput{FullName: "Grace Hopper", Email: "grace@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	assert.Empty(t, f.outboxRecords(t), "outbox row must roll back with the business write")
	assert.Zero(t, f.employeeCount(t))
	assert.False(t, f.signaled())
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]CreateInput{
		"missing name":     {Email: "a@example.com"},
		"bad email":        {FullName: "A", Email: "not-an-email"},
		"negative salary":  {FullName: "A", Email: "a@example.com", Salary: decimal.NewFromInt(-1)},
		"terminated start": {FullName: "A", Email: "a@example.com", Status: enums.EmployeeStatusTerminated},
	}
	for name, input := range cases {
		_, err := f.service.Create(context.Background(), input)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	assert.Empty(t, f.outboxRecords(t))
}

func TestChangeStatusEmitsEventAndHistory(t *testing.T) {
	f := newFixture(t, nil)
	employee := f.hire(t, "ada@example.com")

	updated, err := f.service.ChangeStatus(context.Background(), ChangeStatusInput{
		EmployeeID: employee.ID,
		Status:     enums.EmployeeStatusOnLeave,
		Reason:     "parental leave",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EmployeeStatusOnLeave, updated.Status)

	stored, err := f.service.Get(context.Background(), employee.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EmployeeStatusOnLeave, stored.Status)

	records := f.outboxRecords(t)
	require.Len(t, records, 2)
	assert.Equal(t, payloads.EventEmployeeStatusChanged, records[1].EventType)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(records[1].Payload, &envelope))
	var changed payloads.EmployeeStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &changed))
	assert.Equal(t, enums.EmployeeStatusActive, changed.From)
	assert.Equal(t, enums.EmployeeStatusOnLeave, changed.To)
	assert.Equal(t, "parental leave", changed.Reason)

	history, err := f.service.History(context.Background(), employee.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.HistoryStatusChanged, history[1].EventType)
	assert.Equal(t, "status changed from active to on_leave: parental leave", history[1].Description)
	assert.True(t, f.signaled())
}

func TestChangeStatusRejectsForbiddenTransition(t *testing.T) {
	f := newFixture(t, nil)
	employee := f.hire(t, "ada@example.com")
	_, err := f.service.ChangeStatus(context.Background(), ChangeStatusInput{EmployeeID: employee.ID, Status: enums.EmployeeStatusTerminated})
	require.NoError(t, err)

	_, err = f.service.ChangeStatus(context.Background(), ChangeStatusInput{EmployeeID: employee.ID, Status: enums.EmployeeStatusOnLeave})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.ErrorIs(t, err, enums.ErrInvalidEmployeeTransition)
	assert.Len(t, f.outboxRecords(t), 2)
}

func TestChangeStatusUnknownEmployee(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.ChangeStatus(context.Background(), ChangeStatusInput{EmployeeID: uuid.New(), Status: enums.EmployeeStatusInactive})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = f.service.ChangeStatus(context.Background(), ChangeStatusInput{EmployeeID: uuid.New(), Status: "retired"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestReactivate(t *testing.T) {
	f := newFixture(t, nil)
	employee := f.hire(t, "ada@example.com")

	_, err := f.service.Reactivate(context.Background(), ReactivateInput{EmployeeID: employee.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "active employees cannot be reactivated: %v", err)

	_, err = f.service.ChangeStatus(context.Background(), ChangeStatusInput{EmployeeID: employee.ID, Status: enums.EmployeeStatusInactive})
	require.NoError(t, err)

	reactivated, err := f.service.Reactivate(context.Background(), ReactivateInput{EmployeeID: employee.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.EmployeeStatusActive, reactivated.Status)

	records := f.outboxRecords(t)
	require.Len(t, records, 3)
	assert.Equal(t, payloads.EventEmployeeReactivated, records[2].EventType)

	history, err := f.service.History(context.Background(), employee.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, enums.HistoryReactivated, history[2].EventType)
	assert.Equal(t, "reactivated from inactive", history[2].Description)
}

func TestHistoryOfUnknownEmployee(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.History(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
