// Package eventbus carries gateway events from the ingest edge to dispatch
// workers, and publishes dispatch summaries for downstream consumers.
package eventbus

import (
	"context"

	"github.com/guildflow/guildflow/pkg/events"
)

// GatewayHandler consumes one inbound gateway event. Returning an error
// nacks the message so the transport can redeliver it.
type GatewayHandler func(ctx context.Context, event *events.GatewayEvent) error

type EventBus interface {
	PublishGatewayEvent(ctx context.Context, event *events.GatewayEvent) error
	PublishDispatchCompleted(ctx context.Context, result events.DispatchCompleted) error
	SubscribeGateway(ctx context.Context, handler GatewayHandler) error
	GenerateID() string
	Close() error
}
