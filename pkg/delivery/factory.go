package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

// Deps carries the clients a channel may need. Only the ones used by the
// configured channel are required.
type Deps struct {
	Logger     *logger.Logger
	PubSub     pubSubClient
	Topics     TopicResolver
	HTTPClient *http.Client
}

// NewChannel builds the channel selected by HRCORE_OUTBOX_CHANNEL and wraps it
// in a Breaker when a threshold is configured.
func NewChannel(cfg config.Config, deps Deps) (Channel, error) {
	var (
		ch  Channel
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Outbox.Channel)) {
	case "", config.OutboxChannelLog:
		ch = NewLogChannel(deps.Logger)
	case config.OutboxChannelPubSub:
		if deps.PubSub == nil {
			return nil, errors.New("pubsub channel requires a pubsub client")
		}
		ch, err = NewPubSubChannel(deps.PubSub, deps.Topics)
	case config.OutboxChannelKafka:
		ch, err = NewKafkaChannel(KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
	case config.OutboxChannelWebhook:
		client := deps.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: cfg.Outbox.DeliveryTimeout}
		}
		ch, err = NewWebhookChannel(WebhookConfig{
			URL:          cfg.Webhook.URL,
			SecretHeader: cfg.Webhook.SecretHeader,
			Secret:       cfg.Webhook.Secret,
		}, client)
	default:
		return nil, fmt.Errorf("unknown outbox channel %q", cfg.Outbox.Channel)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Outbox.BreakerThreshold > 0 {
		ch = NewBreaker(ch, cfg.Outbox.BreakerThreshold, cfg.Outbox.BreakerCooldown)
	}
	return ch, nil
}
