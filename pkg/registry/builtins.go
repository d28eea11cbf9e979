package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/guildflow/guildflow/pkg/protocol"
)

// effectorActionTypes are the action kinds delegated to the external platform
// integration. Control-flow actions (branch_if, wait_delay) live in the
// executor; set_variable is handled in-engine by the variable handler.
var effectorActionTypes = []models.ActionType{
	models.ActionSendMessage,
	models.ActionSendEmbed,
	models.ActionSendDM,
	models.ActionAddRole,
	models.ActionRemoveRole,
	models.ActionCreateThread,
	models.ActionDeleteMessage,
	models.ActionAddReaction,
	models.ActionTimeoutUser,
	models.ActionKickUser,
	models.ActionBanUser,
	models.ActionSetNickname,
	models.ActionMoveToVoice,
	models.ActionDisconnectFromVoice,
	models.ActionCallWebhook,
}

// RegisterBuiltins wires the full sealed handler set.
func RegisterBuiltins(r *Registry, effector protocol.ActionEffector, variables persistence.VariableRepository) {
	for _, action := range effectorActionTypes {
		r.Register(action, &effectorHandler{action: action, effector: effector})
	}

	r.Register(models.ActionSetVariable, &setVariableHandler{variables: variables, logger: r.logger})
}

// effectorHandler delegates one action kind to the external side-effect
// capability.
type effectorHandler struct {
	action   models.ActionType
	effector protocol.ActionEffector
}

func (h *effectorHandler) Execute(ctx context.Context, _ string, config models.ActionConfig, event *events.GatewayEvent) (*protocol.EffectResult, error) {
	result, err := h.effector.Execute(ctx, h.action, config, event)
	if err != nil {
		return nil, fmt.Errorf("effector %s: %w", h.action, err)
	}

	if result == nil {
		return nil, fmt.Errorf("effector %s returned no result", h.action)
	}

	return result, nil
}

// setVariableHandler upserts a stored custom variable through the persistence
// contract, making it visible to the resolver on subsequent dispatches.
type setVariableHandler struct {
	variables persistence.VariableRepository
	logger    *slog.Logger
}

func (h *setVariableHandler) Execute(ctx context.Context, workflowID string, config models.ActionConfig, event *events.GatewayEvent) (*protocol.EffectResult, error) {
	cfg, ok := config.(*models.SetVariableConfig)
	if !ok {
		return nil, fmt.Errorf("set_variable handler got %T config", config)
	}

	scope := cfg.Scope
	if scope == "" {
		scope = models.ScopeServer
	}

	scopeID := cfg.ScopeID
	if scopeID == "" {
		switch scope {
		case models.ScopeChannel:
			scopeID = event.ChannelID
		case models.ScopeUser:
			scopeID = event.UserID
		}
	}

	boundWorkflow := workflowID
	if cfg.Global {
		boundWorkflow = ""
	}

	variable := &models.WorkflowVariable{
		ServerID:   event.ServerID,
		WorkflowID: boundWorkflow,
		Name:       cfg.Name,
		Value:      cfg.Value,
		Scope:      scope,
		ScopeID:    scopeID,
	}

	err := h.variables.Upsert(ctx, variable)
	if err != nil {
		return nil, fmt.Errorf("set variable %s: %w", cfg.Name, err)
	}

	h.logger.Debug("Stored variable", "name", cfg.Name, "scope", scope, "server_id", event.ServerID)

	return &protocol.EffectResult{Success: true, Detail: "variable " + cfg.Name + " stored"}, nil
}
