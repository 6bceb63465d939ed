package delivery

import (
	"context"

	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

// LogChannel writes each message to the structured log. Local development only.
type LogChannel struct {
	logg *logger.Logger
}

func NewLogChannel(logg *logger.Logger) *LogChannel {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogChannel{logg: logg}
}

func (c *LogChannel) Deliver(ctx context.Context, msg Message) error {
	fields := make(map[string]any, 7)
	for k, v := range msg.Attributes() {
		fields[k] = v
	}
	fields["attempt"] = msg.Attempt
	fields["payload"] = string(msg.Payload)
	c.logg.Info(c.logg.WithFields(ctx, fields), "outbox message delivered to log")
	return nil
}
