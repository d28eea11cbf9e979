package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence/file"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	api := NewAPI(slog.Default(), store)

	return api.App(), store
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, body
}

func seedTestWorkflow(t *testing.T, store *file.Persistence, id string, priority int) {
	t.Helper()

	err := store.Workflows().(*file.WorkflowRepository).Save(context.Background(), &models.Workflow{
		ID:          id,
		ServerID:    "server-1",
		Name:        "workflow " + id,
		TriggerType: models.TriggerMessageReceived,
		Enabled:     true,
		Priority:    priority,
	})
	require.NoError(t, err)
}

func TestAPIRootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Guildflow API", string(body))
}

func TestAPIGetWorkflows(t *testing.T) {
	app, store := setupTestApp(t)
	seedTestWorkflow(t, store, "wf-a", 0)
	seedTestWorkflow(t, store, "wf-b", 10)

	resp, body := get(t, app, "/workflows?server_id=server-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Workflows []*models.Workflow `json:"workflows"`
		Count     int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, 2, payload.Count)
	require.Len(t, payload.Workflows, 2)
	assert.Equal(t, "wf-b", payload.Workflows[0].ID)
}

func TestAPIGetWorkflowsRequiresServerID(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := get(t, app, "/workflows")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIGetWorkflowByID(t *testing.T) {
	app, store := setupTestApp(t)
	seedTestWorkflow(t, store, "wf-a", 0)

	resp, body := get(t, app, "/workflows/wf-a")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, "wf-a", workflow.ID)
	assert.Equal(t, "server-1", workflow.ServerID)
}

func TestAPIGetWorkflowNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := get(t, app, "/workflows/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIGetExecutions(t *testing.T) {
	app, store := setupTestApp(t)

	base := time.Now().UTC()
	entries := []*models.ExecutionLog{
		{ID: "log-1", WorkflowID: "wf-1", ServerID: "server-1", Status: models.StatusSuccess, StartedAt: base},
		{ID: "log-2", WorkflowID: "wf-1", ServerID: "server-1", Status: models.StatusSkipped, StartedAt: base.Add(time.Minute)},
		{ID: "log-3", WorkflowID: "wf-2", ServerID: "server-1", Status: models.StatusSuccess, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		require.NoError(t, store.ExecutionLogs().Append(context.Background(), entry))
	}

	resp, body := get(t, app, "/executions?workflow_id=wf-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Executions []*models.ExecutionLog `json:"executions"`
		Count      int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, "log-2", payload.Executions[0].ID)

	resp, body = get(t, app, "/executions?server_id=server-1&status=success")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 2, payload.Count)

	resp, _ = get(t, app, "/executions?server_id=server-1&status=exploded")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, app, "/executions")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIGetExecutionByID(t *testing.T) {
	app, store := setupTestApp(t)

	entry := &models.ExecutionLog{
		ID:         "log-1",
		WorkflowID: "wf-1",
		ServerID:   "server-1",
		Status:     models.StatusSuccess,
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.ExecutionLogs().Append(context.Background(), entry))

	resp, body := get(t, app, "/executions/log-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.ExecutionLog
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, "wf-1", loaded.WorkflowID)

	resp, _ = get(t, app, "/executions/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHealthEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, app, "/livez")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
