package outbox

import (
	"context"

	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

// Broadcaster fans a wake-up out to dispatchers in other processes.
type Broadcaster interface {
	Publish(ctx context.Context, channel, message string) error
}

// SignalParams configure a Signal. Broadcaster is optional.
type SignalParams struct {
	Logger      *logger.Logger
	Broadcaster Broadcaster
	Channel     string
	Source      string
}

// Signal tells dispatchers that new outbox rows may be ready. It is a hint:
// notifications coalesce and may be dropped, dispatchers still poll.
type Signal struct {
	wake        chan struct{}
	logg        *logger.Logger
	broadcaster Broadcaster
	channel     string
	source      string
}

func NewSignal(params SignalParams) *Signal {
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	broadcaster := params.Broadcaster
	if params.Channel == "" {
		broadcaster = nil
	}
	return &Signal{
		wake:        make(chan struct{}, 1),
		logg:        logg,
		broadcaster: broadcaster,
		channel:     params.Channel,
		source:      params.Source,
	}
}

// Raise arranges for Notify to run once tx commits. Nothing fires on rollback.
func (s *Signal) Raise(tx *db.Tx) {
	if s == nil || tx == nil {
		return
	}
	tx.AfterCommit(s.Notify)
}

// Notify wakes the local dispatcher without blocking and broadcasts to peers.
func (s *Signal) Notify(ctx context.Context) {
	if s == nil {
		return
	}
	s.wakeLocal()
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, s.channel, s.source); err != nil {
		s.logg.Warn(s.logg.WithError(ctx, err), "outbox wake broadcast failed")
	}
}

// C is closed over by dispatchers waiting for work.
func (s *Signal) C() <-chan struct{} {
	return s.wake
}

// Forward turns remote wake messages into local wake-ups until ctx is done or
// messages closes. Messages published by this process are ignored.
func (s *Signal) Forward(ctx context.Context, messages <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if s.source != "" && msg == s.source {
				continue
			}
			s.wakeLocal()
		}
	}
}

func (s *Signal) wakeLocal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
