package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

// WorkflowRepository stores one JSON document per workflow under
// root/workflows. The stored document carries the flat action list; branch
// trees are materialized on load.
type WorkflowRepository struct {
	dir string
	mu  sync.RWMutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{dir: filepath.Join(root, "workflows")}
}

func (r *WorkflowRepository) ByTrigger(ctx context.Context, serverID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*models.Workflow

	for _, workflow := range all {
		if workflow.Enabled && workflow.ServerID == serverID && workflow.TriggerType == trigger {
			matched = append(matched, workflow)
		}
	}

	sortByPriority(matched)

	return matched, nil
}

func (r *WorkflowRepository) ByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.load(id)
}

func (r *WorkflowRepository) ByServer(ctx context.Context, serverID string) ([]*models.Workflow, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*models.Workflow

	for _, workflow := range all {
		if workflow.ServerID == serverID {
			matched = append(matched, workflow)
		}
	}

	sortByPriority(matched)

	return matched, nil
}

func (r *WorkflowRepository) Scheduled(ctx context.Context) ([]*models.Workflow, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	var scheduled []*models.Workflow

	for _, workflow := range all {
		if workflow.Enabled && workflow.TriggerType == models.TriggerScheduled {
			scheduled = append(scheduled, workflow)
		}
	}

	sortByPriority(scheduled)

	return scheduled, nil
}

func (r *WorkflowRepository) TouchExecution(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.load(id)
	if err != nil {
		return err
	}

	workflow.ExecutionCount++
	workflow.LastTriggeredAt = &at

	return r.write(workflow)
}

// Save persists a workflow document. The engine never calls this; it exists
// for seeding stores in tests and operational tooling.
func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(workflow)
}

// Delete removes a workflow document.
func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if os.IsNotExist(err) {
		return persistence.NewStoreError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return err
}

func (r *WorkflowRepository) loadAll(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("loadAll", r.dir, err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		workflow, err := r.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) load(id string) (*models.Workflow, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, persistence.NewStoreError("load", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("load", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, persistence.NewStoreError("load", id, fmt.Errorf("corrupt workflow document: %w", err))
	}

	top, err := models.BuildActionTree(workflow.Actions)
	if err != nil {
		return nil, persistence.NewStoreError("load", id, err)
	}

	workflow.Actions = top

	return &workflow, nil
}

func (r *WorkflowRepository) write(workflow *models.Workflow) error {
	err := os.MkdirAll(r.dir, 0o755)
	if err != nil {
		return persistence.NewStoreError("write", workflow.ID, err)
	}

	// Flatten the branch tree back to stored rows.
	data, err := json.MarshalIndent(flattenWorkflow(workflow), "", "  ")
	if err != nil {
		return persistence.NewStoreError("write", workflow.ID, err)
	}

	err = os.WriteFile(r.path(workflow.ID), data, 0o644)
	if err != nil {
		return persistence.NewStoreError("write", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// flattenWorkflow returns a copy whose action list contains every action row,
// branch children included, with Then/Else cleared so the document stores the
// back-reference form.
func flattenWorkflow(workflow *models.Workflow) *models.Workflow {
	flat := *workflow
	flat.Actions = nil

	var walk func(actions []*models.Action)
	walk = func(actions []*models.Action) {
		for _, action := range actions {
			row := *action
			row.Then = nil
			row.Else = nil
			flat.Actions = append(flat.Actions, &row)

			if action.Type == models.ActionBranchIf {
				walk(action.Then)
				walk(action.Else)
			}
		}
	}
	walk(workflow.Actions)

	return &flat
}

func sortByPriority(workflows []*models.Workflow) {
	sort.SliceStable(workflows, func(i, j int) bool {
		if workflows[i].Priority != workflows[j].Priority {
			return workflows[i].Priority > workflows[j].Priority
		}

		return workflows[i].ID < workflows[j].ID
	})
}
