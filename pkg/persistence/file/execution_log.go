package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

// ExecutionLogRepository stores one JSON document per log entry under
// root/executions. Entries are append-only; Finalize rejects a second write.
type ExecutionLogRepository struct {
	dir string
	mu  sync.Mutex
}

func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{dir: filepath.Join(root, "executions")}
}

func (r *ExecutionLogRepository) Append(_ context.Context, entry *models.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(entry)
}

func (r *ExecutionLogRepository) Finalize(_ context.Context, entry *models.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.load(entry.ID)
	if err != nil {
		return err
	}

	if existing.Status.Final() {
		return persistence.NewStoreError("Finalize", entry.ID, persistence.ErrLogFinalized)
	}

	return r.write(entry)
}

func (r *ExecutionLogRepository) ByID(_ context.Context, id string) (*models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(id)
}

func (r *ExecutionLogRepository) ByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionLog, error) {
	return r.query(ctx, limit, func(entry *models.ExecutionLog) bool {
		return entry.WorkflowID == workflowID
	})
}

func (r *ExecutionLogRepository) ByServer(ctx context.Context, serverID string, status models.ExecutionStatus, limit int) ([]*models.ExecutionLog, error) {
	return r.query(ctx, limit, func(entry *models.ExecutionLog) bool {
		if entry.ServerID != serverID {
			return false
		}

		return status == "" || entry.Status == status
	})
}

func (r *ExecutionLogRepository) query(_ context.Context, limit int, keep func(*models.ExecutionLog) bool) ([]*models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewStoreError("query", r.dir, err)
	}

	var matched []*models.ExecutionLog

	for _, fileEntry := range entries {
		if fileEntry.IsDir() || !strings.HasSuffix(fileEntry.Name(), ".json") {
			continue
		}

		entry, err := r.load(strings.TrimSuffix(fileEntry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if keep(entry) {
			matched = append(matched, entry)
		}
	}

	// Newest first, matching how the observability API pages.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

func (r *ExecutionLogRepository) load(id string) (*models.ExecutionLog, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, persistence.NewStoreError("load", id, persistence.ErrExecutionLogNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("load", id, err)
	}

	var entry models.ExecutionLog

	err = json.Unmarshal(data, &entry)
	if err != nil {
		return nil, persistence.NewStoreError("load", id, err)
	}

	return &entry, nil
}

func (r *ExecutionLogRepository) write(entry *models.ExecutionLog) error {
	err := os.MkdirAll(r.dir, 0o755)
	if err != nil {
		return persistence.NewStoreError("write", entry.ID, err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return persistence.NewStoreError("write", entry.ID, err)
	}

	err = os.WriteFile(r.path(entry.ID), data, 0o644)
	if err != nil {
		return persistence.NewStoreError("write", entry.ID, err)
	}

	return nil
}

func (r *ExecutionLogRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}
