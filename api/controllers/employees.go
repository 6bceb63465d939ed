package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/hrcore-backend/api/middleware"
	"github.com/angelmondragon/hrcore-backend/api/responses"
	"github.com/angelmondragon/hrcore-backend/api/validators"
	"github.com/angelmondragon/hrcore-backend/internal/employees"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/hrcore-backend/pkg/errors"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/types"
)

type employeeCreateRequest struct {
	FullName string          `json:"full_name" validate:"required,max=200"`
	Email    string          `json:"email" validate:"required,email"`
	Salary   decimal.Decimal `json:"salary"`
	Status   string          `json:"status" validate:"omitempty,oneof=active inactive on_leave"`
}

type employeeStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type employeeResponse struct {
	ID        uuid.UUID       `json:"id"`
	FullName  string          `json:"full_name"`
	Email     string          `json:"email"`
	Status    string          `json:"status"`
	Salary    decimal.Decimal `json:"salary"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type historyEntryResponse struct {
	ID          uuid.UUID       `json:"id"`
	EventType   string          `json:"event_type"`
	OccurredOn  time.Time       `json:"occurred_on"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

func toEmployeeResponse(e *models.Employee) employeeResponse {
	return employeeResponse{
		ID:        e.ID,
		FullName:  e.FullName,
		Email:     e.Email,
		Status:    string(e.Status),
		Salary:    e.Salary,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toHistoryResponse(records []models.EventHistoryRecord) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(records))
	for _, rec := range records {
		data := json.RawMessage(rec.EventData)
		if !json.Valid(data) {
			data = json.RawMessage("null")
		}
		out = append(out, historyEntryResponse{
			ID:          rec.ID,
			EventType:   string(rec.EventType),
			OccurredOn:  rec.OccurredOn,
			Description: rec.Description,
			Data:        data,
		})
	}
	return out
}

func actorFromRequest(r *http.Request) *outbox.ActorRef {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" {
		return nil
	}
	return &outbox.ActorRef{Subject: subject, Role: string(middleware.RoleFromContext(r.Context()))}
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "employee service unavailable"))
}

// EmployeeCreate hires an employee and emits EmployeeCreated.
func EmployeeCreate(svc employees.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		var req employeeCreateRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		employee, err := svc.Create(r.Context(), employees.CreateInput{
			FullName: strings.TrimSpace(req.FullName),
			Email:    req.Email,
			Salary:   req.Salary,
			Status:   enums.EmployeeStatus(req.Status),
			Actor:    actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toEmployeeResponse(employee))
	}
}

func EmployeeGet(svc employees.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		employee, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toEmployeeResponse(employee))
	}
}

// EmployeeChangeStatus moves an employee along the status lifecycle.
func EmployeeChangeStatus(svc employees.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req employeeStatusRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseEmployeeStatus(strings.TrimSpace(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		employee, err := svc.ChangeStatus(r.Context(), employees.ChangeStatusInput{
			EmployeeID: id,
			Status:     status,
			Reason:     strings.TrimSpace(req.Reason),
			Actor:      actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toEmployeeResponse(employee))
	}
}

func EmployeeReactivate(svc employees.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		employee, err := svc.Reactivate(r.Context(), employees.ReactivateInput{
			EmployeeID: id,
			Actor:      actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toEmployeeResponse(employee))
	}
}

// EmployeeHistory returns the audit trail oldest first.
func EmployeeHistory(svc employees.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		id, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := svc.History(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.NewListPage(toHistoryResponse(records)))
	}
}
