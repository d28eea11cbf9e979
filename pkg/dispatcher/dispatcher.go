// Package dispatcher is the engine's entry point: it takes one inbound
// gateway event, selects candidate workflows, applies trigger filters, and
// orchestrates governance, condition evaluation, pipeline execution and
// execution logging per workflow.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildflow/guildflow/pkg/actions"
	"github.com/guildflow/guildflow/pkg/conditions"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/execlog"
	"github.com/guildflow/guildflow/pkg/governor"
	"github.com/guildflow/guildflow/pkg/log"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

// Outcome is the result of one matched workflow's dispatch.
type Outcome struct {
	WorkflowID      string
	Status          models.ExecutionStatus
	ActionsExecuted int
	LogID           string
}

// ResultPublisher receives a fire-and-forget summary after each finalized
// dispatch. Optional; the execution log remains the audit trail.
type ResultPublisher interface {
	PublishDispatchCompleted(ctx context.Context, result events.DispatchCompleted) error
}

type Dispatcher struct {
	store     persistence.Persistence
	governor  *governor.Governor
	evaluator *conditions.Evaluator
	executor  *actions.Executor
	execLog   *execlog.Logger
	matcher   *matcher
	publisher ResultPublisher
	logger    *slog.Logger
}

func New(store persistence.Persistence, gov *governor.Governor, evaluator *conditions.Evaluator, executor *actions.Executor, execLog *execlog.Logger, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		governor:  gov,
		evaluator: evaluator,
		executor:  executor,
		execLog:   execLog,
		matcher:   newMatcher(logger),
		logger:    logger.With("module", "dispatcher"),
	}
}

// WithPublisher attaches a dispatch-result publisher.
func (d *Dispatcher) WithPublisher(publisher ResultPublisher) *Dispatcher {
	d.publisher = publisher

	return d
}

// Dispatch processes one inbound event and returns one outcome per matched
// workflow, in evaluation order (priority descending, id ascending). Only
// storage outages return an error; everything else is absorbed into per
// workflow outcomes so one workflow can never block its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, event *events.GatewayEvent) ([]Outcome, error) {
	if !models.KnownTriggerType(event.Type) {
		d.logger.Debug("Ignoring event with unknown trigger type", "type", event.Type)

		return nil, nil
	}

	workflows, err := d.store.Workflows().ByTrigger(ctx, event.ServerID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows for server %s: %w", event.ServerID, err)
	}

	var outcomes []Outcome

	for _, workflow := range workflows {
		outcome, err := d.dispatchOne(ctx, workflow, event)
		if err != nil {
			// Storage outage: stop here rather than executing workflows the
			// engine cannot govern or audit.
			return outcomes, err
		}

		if outcome != nil {
			outcomes = append(outcomes, *outcome)
		}
	}

	return outcomes, nil
}

// dispatchOne runs the full lifecycle for a single workflow. A nil outcome
// means the workflow was filtered out before anything started.
func (d *Dispatcher) dispatchOne(ctx context.Context, workflow *models.Workflow, event *events.GatewayEvent) (outcome *Outcome, storageErr error) {
	logger := d.logger.With("workflow_id", workflow.ID, "event_id", event.ID)

	// Effectors deep in the pipeline log through the context so their lines
	// carry the workflow and event ids without threading a logger parameter.
	ctx = log.IntoContext(ctx, logger)

	var handle *execlog.Handle

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic during workflow dispatch", "panic", r)

			outcome = &Outcome{WorkflowID: workflow.ID, Status: models.StatusFailed}

			// An entry opened before the panic must still reach a terminal
			// state; without this it would stick at started forever.
			if handle != nil && !handle.Finalized() {
				d.finish(ctx, handle, execlog.Outcome{
					Status: models.StatusFailed,
					Error:  fmt.Sprintf("panic: %v", r),
				})
				outcome.LogID = handle.Entry().ID
			}
		}
	}()

	triggerConfig, err := models.DecodeTriggerConfig(workflow.TriggerType, workflow.TriggerConfig)
	if err != nil {
		// Malformed trigger config fails closed but leaves an audit trail.
		logger.Warn("Rejecting workflow with invalid trigger config", "error", err)

		return d.skipWithWarning(ctx, workflow, event, err.Error())
	}

	if !d.matcher.matches(workflow, triggerConfig, event) {
		return nil, nil
	}

	handle, err = d.execLog.Begin(ctx, workflow, event)
	if err != nil {
		return nil, err
	}

	decision, err := d.governor.Check(ctx, workflow, event)
	if err != nil {
		d.finish(ctx, handle, execlog.Outcome{Status: models.StatusFailed, Error: err.Error()})

		return nil, err
	}

	if !decision.Allow {
		logger.Debug("Dispatch denied by governor", "reason", decision.Reason)
		d.finish(ctx, handle, execlog.Outcome{Status: decision.Reason})

		return d.outcome(ctx, handle, workflow, event), nil
	}

	verdict := d.evaluator.Evaluate(workflow.Conditions, event)
	if !verdict.Passed {
		d.finish(ctx, handle, execlog.Outcome{Status: models.StatusSkipped, Warnings: verdict.Warnings})

		return d.outcome(ctx, handle, workflow, event), nil
	}

	// Both governor slots are claimed atomically right before the pipeline
	// runs; losing either race to a concurrent event is a denial. The rate
	// slot counts the attempt even when the pipeline later aborts, so retry
	// storms against a misconfigured action stay bounded.
	grant, err := d.governor.Reserve(ctx, workflow, event)
	if err != nil {
		d.finish(ctx, handle, execlog.Outcome{Status: models.StatusFailed, Error: err.Error()})

		return nil, err
	}

	if !grant.Allow {
		d.finish(ctx, handle, execlog.Outcome{Status: grant.Reason, Warnings: verdict.Warnings})

		return d.outcome(ctx, handle, workflow, event), nil
	}

	result := d.executor.Run(ctx, workflow, event)

	now := time.Now().UTC()
	if err := d.store.Workflows().TouchExecution(ctx, workflow.ID, now); err != nil {
		logger.Error("Failed to update workflow counters", "error", err)
	}

	d.finish(ctx, handle, execlog.Outcome{
		Status:          result.Status,
		ActionsExecuted: result.ActionsExecuted,
		Results:         result.Results,
		FailedActionID:  result.FailedActionID,
		Error:           result.Error,
		Warnings:        append(verdict.Warnings, result.Warnings...),
	})

	return d.outcome(ctx, handle, workflow, event), nil
}

// skipWithWarning opens and immediately finalizes a skipped entry.
func (d *Dispatcher) skipWithWarning(ctx context.Context, workflow *models.Workflow, event *events.GatewayEvent, warning string) (*Outcome, error) {
	handle, err := d.execLog.Begin(ctx, workflow, event)
	if err != nil {
		return nil, err
	}

	d.finish(ctx, handle, execlog.Outcome{Status: models.StatusSkipped, Warnings: []string{warning}})

	return d.outcome(ctx, handle, workflow, event), nil
}

func (d *Dispatcher) finish(ctx context.Context, handle *execlog.Handle, outcome execlog.Outcome) {
	err := d.execLog.Finish(ctx, handle, outcome)
	if err != nil {
		d.logger.Error("Failed to finalize execution log",
			"log_id", handle.Entry().ID,
			"error", err)
	}
}

func (d *Dispatcher) outcome(ctx context.Context, handle *execlog.Handle, workflow *models.Workflow, event *events.GatewayEvent) *Outcome {
	entry := handle.Entry()

	if d.publisher != nil {
		result := events.DispatchCompleted{
			ID:              entry.ID,
			EventID:         event.ID,
			WorkflowID:      workflow.ID,
			ServerID:        workflow.ServerID,
			Status:          entry.Status,
			ActionsExecuted: entry.ActionsExecuted,
			Error:           entry.Error,
			FinishedAt:      time.Now().UTC(),
		}

		if err := d.publisher.PublishDispatchCompleted(ctx, result); err != nil {
			d.logger.Warn("Failed to publish dispatch result", "log_id", entry.ID, "error", err)
		}
	}

	return &Outcome{
		WorkflowID:      workflow.ID,
		Status:          entry.Status,
		ActionsExecuted: entry.ActionsExecuted,
		LogID:           entry.ID,
	}
}
