package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

// VariableRepository stores one JSON document per server under
// root/variables, holding that server's variable rows.
type VariableRepository struct {
	dir string
	mu  sync.Mutex
}

func NewVariableRepository(root string) *VariableRepository {
	return &VariableRepository{dir: filepath.Join(root, "variables")}
}

func (r *VariableRepository) Find(_ context.Context, serverID, name string) ([]*models.WorkflowVariable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load(serverID)
	if err != nil {
		return nil, err
	}

	var matched []*models.WorkflowVariable

	for _, row := range rows {
		if row.Name == name {
			matched = append(matched, row)
		}
	}

	return matched, nil
}

func (r *VariableRepository) Upsert(_ context.Context, variable *models.WorkflowVariable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.load(variable.ServerID)
	if err != nil {
		return err
	}

	variable.UpdatedAt = time.Now().UTC()

	replaced := false

	for i, row := range rows {
		if row.Name == variable.Name && row.WorkflowID == variable.WorkflowID &&
			row.Scope == variable.Scope && row.ScopeID == variable.ScopeID {
			rows[i] = variable
			replaced = true

			break
		}
	}

	if !replaced {
		rows = append(rows, variable)
	}

	return r.write(variable.ServerID, rows)
}

func (r *VariableRepository) load(serverID string) ([]*models.WorkflowVariable, error) {
	data, err := os.ReadFile(r.path(serverID))
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("load", serverID, err)
	}

	var rows []*models.WorkflowVariable

	err = json.Unmarshal(data, &rows)
	if err != nil {
		return nil, persistence.NewStoreError("load", serverID, err)
	}

	return rows, nil
}

func (r *VariableRepository) write(serverID string, rows []*models.WorkflowVariable) error {
	err := os.MkdirAll(r.dir, 0o755)
	if err != nil {
		return persistence.NewStoreError("write", serverID, err)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return persistence.NewStoreError("write", serverID, err)
	}

	err = os.WriteFile(r.path(serverID), data, 0o644)
	if err != nil {
		return persistence.NewStoreError("write", serverID, err)
	}

	return nil
}

func (r *VariableRepository) path(serverID string) string {
	return filepath.Join(r.dir, serverID+".json")
}
