package delivery

import (
	"context"
	"io"
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker trips after Threshold consecutive failures and rejects deliveries
// with ErrCircuitOpen until Cooldown has passed. One trial call is then let
// through; its outcome closes or reopens the circuit. Non-retryable errors
// describe the message, not the channel, and do not count as failures.
type Breaker struct {
	next      Channel
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	nextTryAt        time.Time
	trialInFlight    bool
}

func NewBreaker(next Channel, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{next: next, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *Breaker) Deliver(ctx context.Context, msg Message) error {
	if !b.tryAcquire() {
		return ErrCircuitOpen
	}
	err := b.next.Deliver(ctx, msg)
	if err == nil || IsNonRetryable(err) {
		b.onSuccess()
		return err
	}
	b.onFailure()
	return err
}

// Close closes the wrapped channel when it holds resources.
func (b *Breaker) Close() error {
	if closer, ok := b.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Open reports whether deliveries are currently being rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen && b.now().Before(b.nextTryAt)
}

func (b *Breaker) tryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Before(b.nextTryAt) || b.trialInFlight {
			return false
		}
		b.state = breakerHalfOpen
		b.trialInFlight = true
		return true
	case breakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	b.consecutiveFails = 0
	b.state = breakerClosed
	b.trialInFlight = false
	b.mu.Unlock()
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.nextTryAt = b.now().Add(b.cooldown)
		b.trialInFlight = false
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.threshold {
		b.state = breakerOpen
		b.nextTryAt = b.now().Add(b.cooldown)
	}
}
