// Package postgresql provides PostgreSQL persistence for workflows,
// variables and execution logs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/guildflow/guildflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	variableRepo  *VariableRepository
	executionRepo *ExecutionLogRepository
}

// NewPersistence connects, runs migrations and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		variableRepo:  NewVariableRepository(database),
		executionRepo: NewExecutionLogRepository(database),
	}, nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) Variables() persistence.VariableRepository {
	return p.variableRepo
}

func (p *Persistence) ExecutionLogs() persistence.ExecutionLogRepository {
	return p.executionRepo
}

// HealthCheck pings the database.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				server_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type TEXT NOT NULL,
				trigger_config JSONB,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				priority INTEGER NOT NULL DEFAULT 0,
				cooldown_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				cooldown_seconds INTEGER NOT NULL DEFAULT 0,
				cooldown_type TEXT NOT NULL DEFAULT 'server',
				max_executions_per_hour INTEGER NOT NULL DEFAULT 0,
				execution_count BIGINT NOT NULL DEFAULT 0,
				last_triggered_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_workflows_dispatch
				ON workflows (server_id, trigger_type) WHERE enabled;

			CREATE TABLE IF NOT EXISTS workflow_conditions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				group_index INTEGER NOT NULL DEFAULT 0,
				condition_type TEXT NOT NULL,
				condition_config JSONB,
				negated BOOLEAN NOT NULL DEFAULT FALSE,
				sort_order INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_conditions_workflow
				ON workflow_conditions (workflow_id);

			CREATE TABLE IF NOT EXISTS workflow_actions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				sort_order INTEGER NOT NULL DEFAULT 0,
				action_type TEXT NOT NULL,
				action_config JSONB,
				branch_parent_id TEXT,
				branch_type TEXT,
				continue_on_error BOOLEAN NOT NULL DEFAULT FALSE,
				error_message TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_actions_workflow
				ON workflow_actions (workflow_id);

			CREATE TABLE IF NOT EXISTS workflow_variables (
				server_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL,
				value TEXT NOT NULL DEFAULT '',
				scope TEXT NOT NULL DEFAULT 'server',
				scope_id TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (server_id, workflow_id, name, scope, scope_id)
			);

			CREATE TABLE IF NOT EXISTS execution_logs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				server_id TEXT NOT NULL,
				status TEXT NOT NULL,
				trigger_snapshot JSONB NOT NULL,
				actions_executed INTEGER NOT NULL DEFAULT 0,
				action_results JSONB,
				failed_action_id TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				warnings JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_execution_logs_workflow
				ON execution_logs (workflow_id, started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_execution_logs_server
				ON execution_logs (server_id, started_at DESC);
		`,
	}
}
