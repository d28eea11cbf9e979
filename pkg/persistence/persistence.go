// Package persistence provides the data storage abstraction the engine
// requires: read-only workflow rows (authored externally), custom variables,
// and append-only execution logs. Cooldown and rate state live behind the
// governor's store, not here.
package persistence

import (
	"context"
	"time"

	"github.com/guildflow/guildflow/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Variables() VariableRepository
	ExecutionLogs() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository reads workflow rows with conditions and actions loaded
// and branch trees materialized (models.BuildActionTree).
type WorkflowRepository interface {
	// ByTrigger returns the enabled workflows for a server reacting to the
	// given trigger type, ordered by priority descending then id ascending.
	ByTrigger(ctx context.Context, serverID string, trigger models.TriggerType) ([]*models.Workflow, error)

	ByID(ctx context.Context, id string) (*models.Workflow, error)

	// ByServer lists a server's workflows regardless of trigger type or
	// enabled flag, ordered by priority descending then id ascending.
	ByServer(ctx context.Context, serverID string) ([]*models.Workflow, error)

	// Scheduled returns every enabled scheduled workflow across servers, for
	// the cron feeder.
	Scheduled(ctx context.Context) ([]*models.Workflow, error)

	// TouchExecution bumps the workflow's execution counter and last
	// triggered timestamp after a committed pipeline run.
	TouchExecution(ctx context.Context, id string, at time.Time) error
}

// VariableRepository stores custom variables written by set_variable actions
// and read by the resolver.
type VariableRepository interface {
	// Find returns every variable named name stored for the server, across
	// workflow bindings and scopes; the resolver applies precedence.
	Find(ctx context.Context, serverID, name string) ([]*models.WorkflowVariable, error)

	Upsert(ctx context.Context, variable *models.WorkflowVariable) error
}

// ExecutionLogRepository is append-only: Append inserts a started entry,
// Finalize writes its terminal state exactly once. Finalized entries are
// never mutated again.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	Finalize(ctx context.Context, entry *models.ExecutionLog) error

	ByID(ctx context.Context, id string) (*models.ExecutionLog, error)
	ByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionLog, error)
	ByServer(ctx context.Context, serverID string, status models.ExecutionStatus, limit int) ([]*models.ExecutionLog, error)
}
