package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	keys       map[string]bool
	existsErr  error
	setNXError error
	lastKey    string
	lastTTL    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]bool{}}
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.keys[key], nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	if f.setNXError != nil {
		return false, f.setNXError
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "hrcore:idempotency:" + scope + ":" + id
}

func TestMarkDeliveredThenDelivered(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	recordID := uuid.New()
	delivered, err := manager.Delivered(context.Background(), "kafka", recordID)
	if err != nil {
		t.Fatalf("Delivered: %v", err)
	}
	if delivered {
		t.Fatal("expected fresh record to be undelivered")
	}

	if err := manager.MarkDelivered(context.Background(), "kafka", recordID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	expectedKey := "hrcore:idempotency:delivered:kafka:" + recordID.String()
	if store.lastKey != expectedKey {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}

	delivered, err = manager.Delivered(context.Background(), "kafka", recordID)
	if err != nil || !delivered {
		t.Fatalf("expected delivered after mark, got %v %v", delivered, err)
	}
	if err := manager.MarkDelivered(context.Background(), "kafka", recordID); err != nil {
		t.Fatalf("second mark should be a no-op, got %v", err)
	}
}

func TestConsumersAreIsolated(t *testing.T) {
	store := newFakeStore()
	manager, _ := NewManager(store, time.Hour)
	recordID := uuid.New()

	if err := manager.MarkDelivered(context.Background(), "webhook", recordID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	delivered, err := manager.Delivered(context.Background(), "kafka", recordID)
	if err != nil || delivered {
		t.Fatalf("expected other consumer to be unaffected, got %v %v", delivered, err)
	}
}

func TestGuardErrors(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewManager(newFakeStore(), -time.Second); err == nil {
		t.Fatal("expected error for negative ttl")
	}

	store := newFakeStore()
	store.existsErr = errors.New("boom")
	manager, _ := NewManager(store, time.Hour)
	if _, err := manager.Delivered(context.Background(), "kafka", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := manager.Delivered(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected error for empty consumer")
	}
	if err := manager.MarkDelivered(context.Background(), "kafka", uuid.Nil); err == nil {
		t.Fatal("expected error for nil record id")
	}
}
