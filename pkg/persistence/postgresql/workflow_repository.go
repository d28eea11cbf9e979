package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

const workflowColumns = `
	id, server_id, name, description, trigger_type, trigger_config,
	enabled, priority, cooldown_enabled, cooldown_seconds, cooldown_type,
	max_executions_per_hour, execution_count, last_triggered_at,
	created_at, updated_at`

// WorkflowRepository reads workflow rows with their conditions and actions.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger.With("module", "workflow_repository")}
}

func (r *WorkflowRepository) ByTrigger(ctx context.Context, serverID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `
		FROM workflows
		WHERE server_id = $1 AND trigger_type = $2 AND enabled
		ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, serverID, string(trigger))
	if err != nil {
		return nil, persistence.NewStoreError("ByTrigger", serverID, err)
	}
	defer rows.Close()

	return r.collect(ctx, rows, "ByTrigger")
}

func (r *WorkflowRepository) ByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, persistence.NewStoreError("ByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("ByID", id, err)
	}

	err = r.attachRows(ctx, workflow)
	if err != nil {
		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) ByServer(ctx context.Context, serverID string) ([]*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `
		FROM workflows
		WHERE server_id = $1
		ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, persistence.NewStoreError("ByServer", serverID, err)
	}
	defer rows.Close()

	return r.collect(ctx, rows, "ByServer")
}

func (r *WorkflowRepository) Scheduled(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `
		FROM workflows
		WHERE trigger_type = $1 AND enabled
		ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, string(models.TriggerScheduled))
	if err != nil {
		return nil, persistence.NewStoreError("Scheduled", "", err)
	}
	defer rows.Close()

	return r.collect(ctx, rows, "Scheduled")
}

func (r *WorkflowRepository) TouchExecution(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET execution_count = execution_count + 1, last_triggered_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at)
	if err != nil {
		return persistence.NewStoreError("TouchExecution", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewStoreError("TouchExecution", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) collect(ctx context.Context, rows *sql.Rows, op string) ([]*models.Workflow, error) {
	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, "", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError(op, "", err)
	}

	for _, workflow := range workflows {
		err := r.attachRows(ctx, workflow)
		if err != nil {
			return nil, persistence.NewStoreError(op, workflow.ID, err)
		}
	}

	return workflows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		triggerConfig []byte
		lastTriggered sql.NullTime
	)

	err := row.Scan(
		&workflow.ID, &workflow.ServerID, &workflow.Name, &workflow.Description,
		&workflow.TriggerType, &triggerConfig, &workflow.Enabled, &workflow.Priority,
		&workflow.CooldownEnabled, &workflow.CooldownSeconds, &workflow.CooldownType,
		&workflow.MaxExecutionsPerHour, &workflow.ExecutionCount, &lastTriggered,
		&workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.TriggerConfig = triggerConfig
	if lastTriggered.Valid {
		workflow.LastTriggeredAt = &lastTriggered.Time
	}

	return &workflow, nil
}

// attachRows loads the workflow's conditions and actions and materializes the
// action branch tree.
func (r *WorkflowRepository) attachRows(ctx context.Context, workflow *models.Workflow) error {
	conditions, err := r.conditions(ctx, workflow.ID)
	if err != nil {
		return err
	}

	workflow.Conditions = conditions

	flat, err := r.actions(ctx, workflow.ID)
	if err != nil {
		return err
	}

	top, err := models.BuildActionTree(flat)
	if err != nil {
		return err
	}

	workflow.Actions = top

	return nil
}

func (r *WorkflowRepository) conditions(ctx context.Context, workflowID string) ([]*models.Condition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workflow_id, group_index, condition_type, condition_config, negated, sort_order
		 FROM workflow_conditions WHERE workflow_id = $1
		 ORDER BY group_index ASC, sort_order ASC, id ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conditions []*models.Condition

	for rows.Next() {
		var (
			condition models.Condition
			config    []byte
		)

		err = rows.Scan(&condition.ID, &condition.WorkflowID, &condition.GroupIndex,
			&condition.Type, &config, &condition.Negated, &condition.SortOrder)
		if err != nil {
			return nil, err
		}

		condition.Config = config
		conditions = append(conditions, &condition)
	}

	return conditions, rows.Err()
}

func (r *WorkflowRepository) actions(ctx context.Context, workflowID string) ([]*models.Action, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workflow_id, sort_order, action_type, action_config,
		        COALESCE(branch_parent_id, ''), COALESCE(branch_type, ''),
		        continue_on_error, error_message
		 FROM workflow_actions WHERE workflow_id = $1
		 ORDER BY sort_order ASC, id ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.Action

	for rows.Next() {
		var (
			action models.Action
			config []byte
		)

		err = rows.Scan(&action.ID, &action.WorkflowID, &action.SortOrder,
			&action.Type, &config, &action.BranchParentID, &action.BranchType,
			&action.ContinueOnError, &action.ErrorMessage)
		if err != nil {
			return nil, err
		}

		action.Config = config
		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

// marshalJSON is shared by the sibling repositories for nullable JSONB writes.
func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}
