package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/db/dbtest"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (b *recordingBroadcaster) Publish(_ context.Context, channel, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, channel+"|"+message)
	return b.err
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func TestNotifyCoalesces(t *testing.T) {
	signal := NewSignal(SignalParams{})
	for i := 0; i < 5; i++ {
		signal.Notify(context.Background())
	}
	select {
	case <-signal.C():
	default:
		t.Fatal("expected pending wake")
	}
	select {
	case <-signal.C():
		t.Fatal("wakes should coalesce into one")
	default:
	}
}

func TestNotifyBroadcasts(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	signal := NewSignal(SignalParams{Broadcaster: broadcaster, Channel: "hrcore:outbox:wake", Source: "api-1"})

	signal.Notify(context.Background())
	if broadcaster.count() != 1 || broadcaster.messages[0] != "hrcore:outbox:wake|api-1" {
		t.Fatalf("unexpected broadcasts %v", broadcaster.messages)
	}

	broadcaster.err = errors.New("redis down")
	signal.Notify(context.Background())
	select {
	case <-signal.C():
	default:
		t.Fatal("local wake must survive broadcast failure")
	}
}

func TestBroadcasterNeedsChannel(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	signal := NewSignal(SignalParams{Broadcaster: broadcaster})
	signal.Notify(context.Background())
	if broadcaster.count() != 0 {
		t.Fatal("expected no broadcast without a channel name")
	}
}

func TestRaiseFiresOnlyAfterCommit(t *testing.T) {
	client := db.NewFromGorm(dbtest.Open(t), nil)
	broadcaster := &recordingBroadcaster{}
	signal := NewSignal(SignalParams{Broadcaster: broadcaster, Channel: "wake"})

	err := client.WithTx(context.Background(), func(tx *db.Tx) error {
		signal.Raise(tx)
		if broadcaster.count() != 0 {
			t.Fatal("signal fired before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if broadcaster.count() != 1 {
		t.Fatalf("expected one notification after commit, got %d", broadcaster.count())
	}

	_ = client.WithTx(context.Background(), func(tx *db.Tx) error {
		signal.Raise(tx)
		return errors.New("rollback")
	})
	if broadcaster.count() != 1 {
		t.Fatalf("rollback must not notify, got %d", broadcaster.count())
	}
}

func TestForwardIgnoresOwnMessages(t *testing.T) {
	signal := NewSignal(SignalParams{Source: "dispatcher-1"})
	messages := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		signal.Forward(ctx, messages)
		close(done)
	}()

	messages <- "dispatcher-1"
	messages <- "api-7"
	select {
	case <-signal.C():
	case <-time.After(time.Second):
		t.Fatal("expected remote message to wake the dispatcher")
	}

	close(messages)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward should return when messages closes")
	}
}
