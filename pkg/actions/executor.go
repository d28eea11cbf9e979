// Package actions walks a workflow's ordered action pipeline: variable
// resolution, branch_if sub-trees, wait_delay suspension and per-action error
// policy.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildflow/guildflow/pkg/conditions"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/registry"
	"github.com/guildflow/guildflow/pkg/template"
)

// MaxDelay caps a single wait_delay step.
const MaxDelay = 5 * time.Minute

// DefaultActionTimeout bounds one effector invocation.
const DefaultActionTimeout = 10 * time.Second

// PipelineResult is the outcome of one pipeline run.
type PipelineResult struct {
	Status          models.ExecutionStatus // success or failed
	ActionsExecuted int
	Results         []models.ActionResult
	FailedActionID  string
	Error           string
	Warnings        []string
}

type Executor struct {
	registry      *registry.Registry
	evaluator     *conditions.Evaluator
	variables     template.VariableSource
	actionTimeout time.Duration
	logger        *slog.Logger
}

func NewExecutor(reg *registry.Registry, evaluator *conditions.Evaluator, variables template.VariableSource, logger *slog.Logger) *Executor {
	return &Executor{
		registry:      reg,
		evaluator:     evaluator,
		variables:     variables,
		actionTimeout: DefaultActionTimeout,
		logger:        logger.With("module", "action_executor"),
	}
}

// WithActionTimeout overrides the per-action effector timeout.
func (e *Executor) WithActionTimeout(timeout time.Duration) *Executor {
	e.actionTimeout = timeout

	return e
}

// Run executes the workflow's top-level pipeline against the event. Errors
// tolerated via continue_on_error never escape; a non-tolerated failure stops
// the walk and marks the result failed. Run itself never returns an error:
// side-effect failures are data, not exceptions.
func (e *Executor) Run(ctx context.Context, workflow *models.Workflow, event *events.GatewayEvent) *PipelineResult {
	result := &PipelineResult{Status: models.StatusSuccess}

	resolve := template.Resolver(ctx, &template.Context{
		Event:      event,
		WorkflowID: workflow.ID,
		Variables:  e.variables,
	})

	e.runList(ctx, workflow, workflow.Actions, event, resolve, result)

	return result
}

// runList walks one ordered action list; returns false when the pipeline must
// halt.
func (e *Executor) runList(ctx context.Context, workflow *models.Workflow, list []*models.Action, event *events.GatewayEvent, resolve func(string) string, result *PipelineResult) bool {
	for _, action := range list {
		var (
			actionResult models.ActionResult
			branch       []*models.Action
		)

		started := time.Now()
		config, err := models.DecodeActionConfig(action.Type, action.Config)

		switch {
		case err != nil:
			actionResult = models.ActionResult{ActionID: action.ID, Type: action.Type, Error: err.Error()}
		case action.Type == models.ActionBranchIf:
			actionResult, branch = e.selectBranch(action, config.(*models.BranchIfConfig), event, result)
		default:
			config.ApplyTemplates(resolve)
			actionResult = e.performAction(ctx, workflow.ID, action, config, event)
		}

		actionResult.DurationMS = time.Since(started).Milliseconds()
		if !actionResult.Success && action.ErrorMessage != "" {
			actionResult.Detail = action.ErrorMessage
		}

		result.Results = append(result.Results, actionResult)
		result.ActionsExecuted++

		if !actionResult.Success {
			e.logger.Warn("Action failed",
				"workflow_id", workflow.ID,
				"action_id", action.ID,
				"action_type", action.Type,
				"continue_on_error", action.ContinueOnError,
				"error", actionResult.Error)

			if !action.ContinueOnError {
				result.Status = models.StatusFailed
				result.FailedActionID = action.ID
				result.Error = actionResult.Error

				return false
			}

			continue
		}

		// Exactly one child list runs; control returns to the next action in
		// this list afterwards, branches never fall through to each other.
		if branch != nil {
			if !e.runList(ctx, workflow, branch, event, resolve, result) {
				return false
			}
		}
	}

	return true
}

// selectBranch evaluates the branch_if guard and picks the child list to run.
func (e *Executor) selectBranch(action *models.Action, config *models.BranchIfConfig, event *events.GatewayEvent, result *PipelineResult) (models.ActionResult, []*models.Action) {
	verdict := e.evaluator.Evaluate(config.ConditionRows(), event)
	result.Warnings = append(result.Warnings, verdict.Warnings...)

	actionResult := models.ActionResult{ActionID: action.ID, Type: action.Type, Success: true}

	if verdict.Passed {
		actionResult.Detail = "then"

		return actionResult, nonNil(action.Then)
	}

	actionResult.Detail = "else"

	return actionResult, nonNil(action.Else)
}

// nonNil keeps an empty branch distinguishable from "no branch selected".
func nonNil(list []*models.Action) []*models.Action {
	if list == nil {
		return []*models.Action{}
	}

	return list
}

// performAction runs one non-control action: wait_delay in-engine, everything
// else through the registry's handler set.
func (e *Executor) performAction(ctx context.Context, workflowID string, action *models.Action, config models.ActionConfig, event *events.GatewayEvent) models.ActionResult {
	actionResult := models.ActionResult{ActionID: action.ID, Type: action.Type}

	if delayConfig, ok := config.(*models.WaitDelayConfig); ok {
		e.runDelay(ctx, delayConfig, &actionResult)

		return actionResult
	}

	handler, err := e.registry.Handler(action.Type)
	if err != nil {
		actionResult.Error = err.Error()

		return actionResult
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	effect, err := handler.Execute(actionCtx, workflowID, config, event)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		actionResult.Error = fmt.Sprintf("action %s timed out after %s", action.Type, e.actionTimeout)
	case err != nil:
		actionResult.Error = err.Error()
	case effect.Success:
		actionResult.Success = true
		actionResult.Detail = effect.Detail
	default:
		actionResult.Error = effect.Error
		if actionResult.Error == "" {
			actionResult.Error = "action reported failure"
		}

		actionResult.Detail = effect.Detail
	}

	return actionResult
}

func (e *Executor) runDelay(ctx context.Context, config *models.WaitDelayConfig, actionResult *models.ActionResult) {
	delay := time.Duration(config.DelayMS) * time.Millisecond
	if delay > MaxDelay {
		delay = MaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	// Suspends only this workflow's chain; no governor or logger state is
	// held across the wait.
	select {
	case <-timer.C:
		actionResult.Success = true
		actionResult.Detail = delay.String()
	case <-ctx.Done():
		actionResult.Error = fmt.Sprintf("delay interrupted: %v", ctx.Err())
	}
}
