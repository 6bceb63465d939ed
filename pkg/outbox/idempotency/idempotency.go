package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/redis"
)

// Manager tracks delivered outbox records per consumer using Redis keys with a
// TTL. Keys follow the `hrcore:idempotency:delivered:<consumer>:<record_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that remembers deliveries for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// Delivered reports whether the record was already handed to the channel.
func (m *Manager) Delivered(ctx context.Context, consumer string, recordID uuid.UUID) (bool, error) {
	key, err := m.deliveredKey(consumer, recordID)
	if err != nil {
		return false, err
	}
	return m.store.Exists(ctx, key)
}

// MarkDelivered remembers a successful delivery. Marking twice is not an error.
func (m *Manager) MarkDelivered(ctx context.Context, consumer string, recordID uuid.UUID) error {
	key, err := m.deliveredKey(consumer, recordID)
	if err != nil {
		return err
	}
	_, err = m.store.SetNX(ctx, key, "1", m.ttl)
	return err
}

func (m *Manager) deliveredKey(consumer string, recordID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if recordID == uuid.Nil {
		return "", errors.New("record id is required")
	}
	scope := fmt.Sprintf("delivered:%s", consumer)
	return m.store.IdempotencyKey(scope, recordID.String()), nil
}
