// Package effector provides built-in ActionEffector implementations. The
// production deployment plugs in the platform gateway client; the logging
// effector here backs dry runs and local development.
package effector

import (
	"context"
	"encoding/json"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/log"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/protocol"
)

// LogEffector records every requested side effect and reports success
// without touching the platform. It logs through the dispatch context, so
// each line carries the workflow and event ids the dispatcher attached.
type LogEffector struct{}

func NewLogEffector() *LogEffector {
	return &LogEffector{}
}

func (e *LogEffector) Execute(ctx context.Context, action models.ActionType, config models.ActionConfig, event *events.GatewayEvent) (*protocol.EffectResult, error) {
	payload, err := json.Marshal(config)
	if err != nil {
		payload = []byte("{}")
	}

	logger := log.FromContext(ctx).With("module", "log_effector")

	logger.InfoContext(ctx, "Dry-run action effect",
		"action", action,
		"server_id", event.ServerID,
		"channel_id", event.ChannelID,
		"user_id", event.UserID,
		"config", string(payload))

	return &protocol.EffectResult{Success: true, Detail: "dry-run"}, nil
}
