package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/api/responses"
	"github.com/angelmondragon/hrcore-backend/api/validators"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/hrcore-backend/pkg/errors"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/pagination"
	"github.com/angelmondragon/hrcore-backend/pkg/types"
)

type OutboxStatsReader interface {
	CountByStatus(ctx context.Context) (outbox.StatusCounts, error)
}

type DeadLetterLister interface {
	List(ctx context.Context, limit int, after *pagination.Cursor) ([]models.OutboxDLQ, *pagination.Cursor, error)
}

type deadLetterResponse struct {
	ID            uuid.UUID       `json:"id"`
	RecordID      uuid.UUID       `json:"record_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	PayloadFormat string          `json:"payload_format"`
	ErrorReason   string          `json:"error_reason"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	FailedAt      time.Time       `json:"failed_at"`
}

// OutboxStats reports the outbox backlog by state.
func OutboxStats(repo OutboxStatsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox repository unavailable"))
			return
		}
		counts, err := repo.CountByStatus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count outbox records"))
			return
		}
		responses.WriteSuccess(w, counts)
	}
}

// OutboxDeadLetters lists dead-lettered deliveries newest first, paged with
// ?limit and ?cursor.
func OutboxDeadLetters(dlq DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter repository unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		after, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		entries, next, err := dlq.List(r.Context(), limit, after)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}

		items := make([]deadLetterResponse, 0, len(entries))
		for _, e := range entries {
			payload, format := encodePayload(e.Payload)
			items = append(items, deadLetterResponse{
				ID:            e.ID,
				RecordID:      e.RecordID,
				EventType:     e.EventType,
				AggregateType: string(e.AggregateType),
				AggregateID:   e.AggregateID,
				Payload:       payload,
				PayloadFormat: format,
				ErrorReason:   string(e.ErrorReason),
				ErrorMessage:  e.ErrorMessage,
				AttemptCount:  e.AttemptCount,
				FailedAt:      e.FailedAt,
			})
		}
		page := types.NewListPage(items)
		if next != nil {
			page = page.WithCursor(pagination.EncodeCursor(*next))
		}
		responses.WriteSuccess(w, page)
	}
}

// encodePayload embeds JSON payloads as-is and carries anything else as a
// JSON string.
func encodePayload(p []byte) (json.RawMessage, string) {
	if json.Valid(p) {
		return p, "json"
	}
	quoted, _ := json.Marshal(string(p))
	return quoted, "text"
}
