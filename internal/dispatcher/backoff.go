package dispatcher

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/angelmondragon/hrcore-backend/pkg/config"
)

const (
	defaultBackoffBase       = time.Second
	defaultBackoffMax        = 10 * time.Minute
	defaultBackoffMultiplier = 2.0
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randFloat() float64 {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return jitterSource.Float64()
}

// Backoff computes the delay before retry attempt n (1-based):
// min(Max, Base * Multiplier^(n-1)), plus up to Jitter of that value.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	rand func() float64
}

func NewBackoff(cfg config.OutboxConfig) Backoff {
	b := Backoff{
		Base:       cfg.BackoffBase,
		Max:        cfg.BackoffMax,
		Multiplier: cfg.BackoffMultiplier,
		Jitter:     cfg.BackoffJitter,
	}
	if b.Base <= 0 {
		b.Base = defaultBackoffBase
	}
	if b.Max <= 0 {
		b.Max = defaultBackoffMax
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	if b.Multiplier < 1 {
		b.Multiplier = defaultBackoffMultiplier
	}
	return b
}

func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.Max) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(b.Max)
	}
	d := time.Duration(delay)
	if b.Jitter > 0 {
		r := b.rand
		if r == nil {
			r = randFloat
		}
		d += time.Duration(float64(d) * b.Jitter * r())
	}
	return d
}

// nextBackoff doubles the idle delay after a failed cycle.
func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	jitterMu.Unlock()
	return d + jitter
}
