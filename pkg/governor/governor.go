package governor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
)

// RateWindow is the trailing window maxExecutionsPerHour is measured over.
// Rolling, not calendar-aligned.
const RateWindow = time.Hour

// Decision is the governor's verdict for one dispatch attempt.
type Decision struct {
	Allow bool

	// Reason is StatusCooldown or StatusRateLimited when denied.
	Reason models.ExecutionStatus
}

// Governor performs the cooldown and rate-limit checks for the dispatcher.
//
// Check is read-only: both gates are written by Reserve only once the
// workflow's conditions have passed and the pipeline is about to run, so a
// condition skip never burns either gate. Reserve claims the rate-window
// slot and the cooldown key through the store's atomic primitives; the rate
// slot is never withdrawn after the pipeline runs, so a pipeline aborted by
// a hard failure still counts against the window, which keeps retry storms
// against a misconfigured action in check.
type Governor struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Governor {
	return &Governor{
		store:  store,
		logger: logger.With("module", "governor"),
	}
}

// Check evaluates both governance gates without writing anything.
func (g *Governor) Check(ctx context.Context, workflow *models.Workflow, event *events.GatewayEvent) (Decision, error) {
	if workflow.CooldownEnabled && workflow.CooldownSeconds > 0 {
		live, err := g.store.Live(ctx, cooldownKey(workflow, event))
		if err != nil {
			return Decision{}, fmt.Errorf("cooldown check for workflow %s: %w", workflow.ID, err)
		}

		if live {
			return Decision{Reason: models.StatusCooldown}, nil
		}
	}

	if workflow.MaxExecutionsPerHour > 0 {
		count, err := g.store.CountInWindow(ctx, workflow.ID, RateWindow)
		if err != nil {
			return Decision{}, fmt.Errorf("rate check for workflow %s: %w", workflow.ID, err)
		}

		if count >= workflow.MaxExecutionsPerHour {
			return Decision{Reason: models.StatusRateLimited}, nil
		}
	}

	return Decision{Allow: true}, nil
}

// Reserve atomically claims both gates right before the pipeline runs: a
// rate-window slot first, then the cooldown key. Losing either claim to a
// concurrent event is a denial with the losing gate's reason; a cooldown
// denial withdraws the already-claimed rate slot so denied dispatches never
// count against the window. Disabled gates always pass.
func (g *Governor) Reserve(ctx context.Context, workflow *models.Workflow, event *events.GatewayEvent) (Decision, error) {
	var token string

	if workflow.MaxExecutionsPerHour > 0 {
		token = uuid.NewString()

		ok, err := g.store.ReserveExecution(ctx, workflow.ID, token, RateWindow, workflow.MaxExecutionsPerHour)
		if err != nil {
			return Decision{}, fmt.Errorf("rate reserve for workflow %s: %w", workflow.ID, err)
		}

		if !ok {
			g.logger.Debug("Lost rate-window slot race", "workflow_id", workflow.ID)

			return Decision{Reason: models.StatusRateLimited}, nil
		}
	}

	if workflow.CooldownEnabled && workflow.CooldownSeconds > 0 {
		ok, err := g.store.Reserve(ctx, cooldownKey(workflow, event), workflow.CooldownDuration())
		if err != nil {
			g.releaseSlot(ctx, workflow.ID, token)

			return Decision{}, fmt.Errorf("cooldown reserve for workflow %s: %w", workflow.ID, err)
		}

		if !ok {
			g.logger.Debug("Lost cooldown reservation race",
				"workflow_id", workflow.ID,
				"cooldown_type", workflow.CooldownType)
			g.releaseSlot(ctx, workflow.ID, token)

			return Decision{Reason: models.StatusCooldown}, nil
		}
	}

	return Decision{Allow: true}, nil
}

func (g *Governor) releaseSlot(ctx context.Context, workflowID, token string) {
	if token == "" {
		return
	}

	if err := g.store.ReleaseExecution(ctx, workflowID, token); err != nil {
		g.logger.Error("Failed to release rate-window slot",
			"workflow_id", workflowID, "error", err)
	}
}

// cooldownKey serializes concurrent access per (workflow, type, target).
func cooldownKey(workflow *models.Workflow, event *events.GatewayEvent) string {
	target := workflow.CooldownTargetID(event.UserID, event.ChannelID)
	if target == "" {
		target = "-"
	}

	cooldownType := workflow.CooldownType
	if cooldownType == "" {
		cooldownType = models.CooldownServer
	}

	return fmt.Sprintf("%s:%s:%s", workflow.ID, cooldownType, target)
}
