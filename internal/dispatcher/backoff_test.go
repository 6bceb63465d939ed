package dispatcher

import (
	"testing"
	"time"

	"github.com/angelmondragon/hrcore-backend/pkg/config"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(config.OutboxConfig{
		BackoffBase:       time.Second,
		BackoffMax:        10 * time.Second,
		BackoffMultiplier: 2,
	})
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(i + 1); got != w {
			t.Fatalf("Next(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := b.Next(0); got != time.Second {
		t.Fatalf("Next(0) = %s, want base", got)
	}
	if got := b.Next(5000); got != 10*time.Second {
		t.Fatalf("huge attempt should cap, got %s", got)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(config.OutboxConfig{})
	if b.Base != defaultBackoffBase || b.Max != defaultBackoffMax || b.Multiplier != defaultBackoffMultiplier {
		t.Fatalf("unexpected defaults %+v", b)
	}
}

func TestBackoffJitterStaysWithinFraction(t *testing.T) {
	b := NewBackoff(config.OutboxConfig{BackoffBase: time.Second, BackoffMax: time.Minute, BackoffMultiplier: 2, BackoffJitter: 0.5})
	b.rand = func() float64 { return 0.99 }
	got := b.Next(2)
	if got < 2*time.Second || got > 3*time.Second {
		t.Fatalf("jittered delay out of range: %s", got)
	}
}

func TestNextBackoffDoublesUntilMax(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := withJitter(time.Second); got < time.Second || got >= time.Second+jitterWindow {
		t.Fatalf("jitter out of window: %s", got)
	}
}
