package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/guildflow/guildflow/pkg/events"
)

// WatermillEventBus moves events over any watermill publisher/subscriber
// pair; the in-memory channel and Kafka share this codec.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) PublishGatewayEvent(ctx context.Context, event *events.GatewayEvent) error {
	if event.ID == "" {
		event.ID = eb.GenerateID()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(events.GatewayEventType))
	msg.Metadata.Set(events.EventMetadataKey, event.ServerID)

	return eb.publisher.Publish(events.GatewayTopic, msg)
}

func (eb *WatermillEventBus) PublishDispatchCompleted(ctx context.Context, result events.DispatchCompleted) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(result.GetType()))
	msg.Metadata.Set(events.EventMetadataKey, result.ServerID)

	return eb.publisher.Publish(events.DispatchTopic, msg)
}

// SubscribeGateway consumes the gateway topic until ctx is cancelled.
// Undecodable payloads are acked and dropped; a handler error nacks the
// message for redelivery. Every message is handled on its own goroutine, so
// a workflow sitting in a long wait_delay cannot stall the events of other
// servers; the handler itself bounds total concurrency.
func (eb *WatermillEventBus) SubscribeGateway(ctx context.Context, handler GatewayHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.GatewayTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			go eb.handleMessage(ctx, msg, handler)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) handleMessage(ctx context.Context, msg *message.Message, handler GatewayHandler) {
	var event events.GatewayEvent

	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		eb.logger.Error("Failed to decode gateway event", "message_id", msg.UUID, "error", err)
		msg.Ack()

		return
	}

	if err := handler(ctx, &event); err != nil {
		eb.logger.Error("Gateway handler failed", "event_id", event.ID, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
