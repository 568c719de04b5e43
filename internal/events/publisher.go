package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventPublisher publishes domain events. Publishing is best-effort from the
// caller's point of view: state changes are already committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// WatermillEventPublisher publishes JSON events through any watermill publisher.
type WatermillEventPublisher struct {
	publisher   message.Publisher
	topicPrefix string
	logger      *slog.Logger
}

func NewWatermillEventPublisher(publisher message.Publisher, topicPrefix string, logger *slog.Logger) *WatermillEventPublisher {
	return &WatermillEventPublisher{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

// NewKafkaEventPublisher connects to the given brokers.
func NewKafkaEventPublisher(brokers []string, topicPrefix string, logger *slog.Logger) (*WatermillEventPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.NewWithPartitioningMarshaler(partitionBySubject),
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return NewWatermillEventPublisher(publisher, topicPrefix, logger), nil
}

// partitionBySubject keeps events for the same subject on one partition.
func partitionBySubject(topic string, msg *message.Message) (string, error) {
	if subject := msg.Metadata.Get("subject"); subject != "" {
		return subject, nil
	}
	return msg.UUID, nil
}

// NewInMemoryEventPublisher is used when no brokers are configured.
func NewInMemoryEventPublisher(topicPrefix string, logger *slog.Logger) *WatermillEventPublisher {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	return NewWatermillEventPublisher(pubSub, topicPrefix, logger)
}

// Topic returns the topic an event type is published to.
func (p *WatermillEventPublisher) Topic(eventType EventType) string {
	if p.topicPrefix == "" {
		return string(eventType)
	}
	return strings.TrimSuffix(p.topicPrefix, ".") + "." + string(eventType)
}

func (p *WatermillEventPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	if event.Subject != "" {
		msg.Metadata.Set("subject", event.Subject)
	}
	msg.SetContext(ctx)

	topic := p.Topic(event.Type)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published", "event_id", event.ID, "type", event.Type, "topic", topic)
	return nil
}

func (p *WatermillEventPublisher) Close() error {
	return p.publisher.Close()
}

// SafePublish publishes and logs failures instead of returning them.
func SafePublish(ctx context.Context, publisher EventPublisher, logger *slog.Logger, event *Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
	}
}
