// Package protocol defines the contracts between the engine and its external
// collaborators: the platform integration that performs action side effects
// and the gateway client that supplies events.
package protocol

import (
	"context"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
)

// EffectResult is the outcome the platform integration reports for one
// performed side effect.
type EffectResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ActionEffector performs the concrete platform side effect for one action
// (sending a message, assigning a role, calling a webhook). The engine is
// agnostic to how the effect is carried out; it only requires this contract.
//
// Implementations must honor ctx cancellation: the executor wraps each
// invocation in a per-action timeout and surfaces a deadline as a failed
// action result.
type ActionEffector interface {
	Execute(ctx context.Context, action models.ActionType, config models.ActionConfig, event *events.GatewayEvent) (*EffectResult, error)
}

// EffectorFunc adapts a function to the ActionEffector interface.
type EffectorFunc func(ctx context.Context, action models.ActionType, config models.ActionConfig, event *events.GatewayEvent) (*EffectResult, error)

func (f EffectorFunc) Execute(ctx context.Context, action models.ActionType, config models.ActionConfig, event *events.GatewayEvent) (*EffectResult, error) {
	return f(ctx, action, config, event)
}
