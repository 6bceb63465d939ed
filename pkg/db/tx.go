package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"gorm.io/gorm"
)

// Tx is an open transaction plus the callbacks waiting for its commit.
type Tx struct {
	conn *gorm.DB

	mu          sync.Mutex
	afterCommit []func(context.Context)
	done        bool
}

func newTx(conn *gorm.DB) *Tx {
	return &Tx{conn: conn}
}

// DB returns the transactional GORM handle.
func (t *Tx) DB() *gorm.DB {
	return t.conn
}

// AfterCommit queues fn to run once the transaction has durably committed.
// Queued callbacks are dropped when the transaction rolls back.
func (t *Tx) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.afterCommit = append(t.afterCommit, fn)
}

// Pending returns how many callbacks are queued.
func (t *Tx) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.afterCommit)
}

func (t *Tx) drain() []func(context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	callbacks := t.afterCommit
	t.afterCommit = nil
	t.done = true
	return callbacks
}

func (t *Tx) discard() {
	_ = t.drain()
}

func (t *Tx) runAfterCommit(ctx context.Context, logg *logger.Logger) {
	for i, fn := range t.drain() {
		runCallback(ctx, logg, i, fn)
	}
}

func runCallback(ctx context.Context, logg *logger.Logger, index int, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil && logg != nil {
			logg.Error(logg.WithField(ctx, "callback_index", index), "after-commit callback panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	fn(ctx)
}
