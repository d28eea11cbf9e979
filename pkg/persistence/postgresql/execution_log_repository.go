package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

const executionLogColumns = `
	id, workflow_id, server_id, status, trigger_snapshot, actions_executed,
	action_results, failed_action_id, error, warnings, started_at, finished_at`

// ExecutionLogRepository appends and finalizes dispatch audit entries.
type ExecutionLogRepository struct {
	db *sql.DB
}

func NewExecutionLogRepository(db *sql.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	snapshot, err := json.Marshal(entry.Trigger)
	if err != nil {
		return persistence.NewStoreError("Append", entry.ID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO execution_logs (id, workflow_id, server_id, status, trigger_snapshot, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.WorkflowID, entry.ServerID, string(entry.Status), snapshot, entry.StartedAt)
	if err != nil {
		return persistence.NewStoreError("Append", entry.ID, err)
	}

	return nil
}

// Finalize writes the terminal state. The status guard in the WHERE clause
// makes double finalization observable instead of silently rewriting history.
func (r *ExecutionLogRepository) Finalize(ctx context.Context, entry *models.ExecutionLog) error {
	results, err := marshalJSON(entry.ActionResults)
	if err != nil {
		return persistence.NewStoreError("Finalize", entry.ID, err)
	}

	warnings, err := marshalJSON(entry.Warnings)
	if err != nil {
		return persistence.NewStoreError("Finalize", entry.ID, err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE execution_logs
		 SET status = $2, actions_executed = $3, action_results = $4,
		     failed_action_id = $5, error = $6, warnings = $7, finished_at = $8
		 WHERE id = $1 AND status = $9`,
		entry.ID, string(entry.Status), entry.ActionsExecuted, results,
		entry.FailedActionID, entry.Error, warnings, entry.FinishedAt,
		string(models.StatusStarted))
	if err != nil {
		return persistence.NewStoreError("Finalize", entry.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return persistence.NewStoreError("Finalize", entry.ID, persistence.ErrLogFinalized)
	}

	return nil
}

func (r *ExecutionLogRepository) ByID(ctx context.Context, id string) (*models.ExecutionLog, error) {
	query := `SELECT` + executionLogColumns + ` FROM execution_logs WHERE id = $1`

	entry, err := scanExecutionLog(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, persistence.NewStoreError("ByID", id, persistence.ErrExecutionLogNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("ByID", id, err)
	}

	return entry, nil
}

func (r *ExecutionLogRepository) ByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionLog, error) {
	query := `SELECT` + executionLogColumns + `
		FROM execution_logs WHERE workflow_id = $1
		ORDER BY started_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, workflowID, normalizeLimit(limit))
	if err != nil {
		return nil, persistence.NewStoreError("ByWorkflow", workflowID, err)
	}
	defer rows.Close()

	return collectExecutionLogs(rows, "ByWorkflow")
}

func (r *ExecutionLogRepository) ByServer(ctx context.Context, serverID string, status models.ExecutionStatus, limit int) ([]*models.ExecutionLog, error) {
	query := `SELECT` + executionLogColumns + `
		FROM execution_logs
		WHERE server_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, serverID, string(status), normalizeLimit(limit))
	if err != nil {
		return nil, persistence.NewStoreError("ByServer", serverID, err)
	}
	defer rows.Close()

	return collectExecutionLogs(rows, "ByServer")
}

func collectExecutionLogs(rows *sql.Rows, op string) ([]*models.ExecutionLog, error) {
	var entries []*models.ExecutionLog

	for rows.Next() {
		entry, err := scanExecutionLog(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, "", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError(op, "", err)
	}

	return entries, nil
}

func scanExecutionLog(row rowScanner) (*models.ExecutionLog, error) {
	var (
		entry      models.ExecutionLog
		snapshot   []byte
		results    []byte
		warnings   []byte
		finishedAt sql.NullTime
	)

	err := row.Scan(&entry.ID, &entry.WorkflowID, &entry.ServerID, &entry.Status,
		&snapshot, &entry.ActionsExecuted, &results, &entry.FailedActionID,
		&entry.Error, &warnings, &entry.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(snapshot, &entry.Trigger)
	if err != nil {
		return nil, err
	}

	if len(results) > 0 {
		err = json.Unmarshal(results, &entry.ActionResults)
		if err != nil {
			return nil, err
		}
	}

	if len(warnings) > 0 {
		err = json.Unmarshal(warnings, &entry.Warnings)
		if err != nil {
			return nil, err
		}
	}

	if finishedAt.Valid {
		entry.FinishedAt = &finishedAt.Time
	}

	return &entry, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}

	return limit
}
