package delivery

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// TopicResolver maps an aggregate type to the topic its events go to.
type TopicResolver interface {
	TopicFor(aggregateType enums.AggregateType) (string, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type pubSubClient interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubChannel publishes the raw payload to Google Pub/Sub with the record
// metadata as attributes.
type PubSubChannel struct {
	topics           TopicResolver
	publisherFactory publisherFactory
}

func NewPubSubChannel(client pubSubClient, topics TopicResolver) (*PubSubChannel, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if topics == nil {
		return nil, errors.New("topic resolver is required")
	}
	return &PubSubChannel{
		topics: topics,
		publisherFactory: func(topic string) publisher {
			return newGCPPublisher(client.Publisher(topic))
		},
	}, nil
}

func (c *PubSubChannel) Deliver(ctx context.Context, msg Message) error {
	topic, err := c.topics.TopicFor(msg.AggregateType)
	if err != nil {
		return NewNonRetryableError(err)
	}
	pub := c.publisherFactory(topic)
	if pub == nil {
		return NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Payload,
		Attributes: msg.Attributes(),
	})
	if result == nil {
		return NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(ctx); err != nil {
		return classifyPubSubError(topic, err)
	}
	return nil
}

func classifyPubSubError(topic string, err error) error {
	wrapped := fmt.Errorf("publish to %s: %w", topic, err)
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied:
		return NewNonRetryableError(wrapped)
	default:
		return wrapped
	}
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
