// Package registry maps action types to their handlers. The handler set is
// sealed: it is populated once at startup from the known action types, and
// new kinds of actions are added by extending the models.ActionType enum and
// registering here, never by runtime lookup into a mutable table.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/protocol"
)

// Handler performs one action kind with an already resolved config. The
// workflow id identifies the dispatch the action belongs to, for handlers
// that scope their effect per workflow.
type Handler interface {
	Execute(ctx context.Context, workflowID string, config models.ActionConfig, event *events.GatewayEvent) (*protocol.EffectResult, error)
}

type Registry struct {
	logger   *slog.Logger
	handlers map[models.ActionType]Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		handlers: make(map[models.ActionType]Handler),
	}
}

// Register binds a handler to an action type. Later registrations of the same
// type are a wiring bug and panic at startup rather than shadowing silently.
func (r *Registry) Register(action models.ActionType, handler Handler) {
	if _, exists := r.handlers[action]; exists {
		panic(fmt.Sprintf("handler for action type %q registered twice", action))
	}

	r.handlers[action] = handler
}

// Handler returns the handler for an action type. Unknown types fail closed.
func (r *Registry) Handler(action models.ActionType) (Handler, error) {
	handler, ok := r.handlers[action]
	if !ok {
		return nil, fmt.Errorf("action type %q not registered", action)
	}

	return handler, nil
}
