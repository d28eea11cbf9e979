package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

// VariableRepository stores custom variables.
type VariableRepository struct {
	db *sql.DB
}

func NewVariableRepository(db *sql.DB) *VariableRepository {
	return &VariableRepository{db: db}
}

func (r *VariableRepository) Find(ctx context.Context, serverID, name string) ([]*models.WorkflowVariable, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT server_id, workflow_id, name, value, scope, scope_id, updated_at
		 FROM workflow_variables WHERE server_id = $1 AND name = $2`, serverID, name)
	if err != nil {
		return nil, persistence.NewStoreError("Find", serverID, err)
	}
	defer rows.Close()

	var variables []*models.WorkflowVariable

	for rows.Next() {
		var variable models.WorkflowVariable

		err = rows.Scan(&variable.ServerID, &variable.WorkflowID, &variable.Name,
			&variable.Value, &variable.Scope, &variable.ScopeID, &variable.UpdatedAt)
		if err != nil {
			return nil, persistence.NewStoreError("Find", serverID, err)
		}

		variables = append(variables, &variable)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Find", serverID, err)
	}

	return variables, nil
}

func (r *VariableRepository) Upsert(ctx context.Context, variable *models.WorkflowVariable) error {
	variable.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_variables (server_id, workflow_id, name, value, scope, scope_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (server_id, workflow_id, name, scope, scope_id)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		variable.ServerID, variable.WorkflowID, variable.Name, variable.Value,
		string(variable.Scope), variable.ScopeID, variable.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("Upsert", variable.Name, err)
	}

	return nil
}
