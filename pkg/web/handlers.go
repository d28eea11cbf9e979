// Package web exposes the read-only observability API: workflow listings and
// the execution log. Workflows are authored through the companion dashboard,
// so the engine's surface carries no write endpoints.
package web

import (
	"strconv"

	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	store persistence.Persistence
}

func NewAPIHandlers(store persistence.Persistence) *APIHandlers {
	return &APIHandlers{store: store}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	serverID := c.Query("server_id")
	if serverID == "" {
		return badRequest(c, "server_id query parameter is required")
	}

	workflows, err := h.store.Workflows().ByServer(c.Context(), serverID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	workflow, err := h.store.Workflows().ByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

// GetExecutions lists execution log entries, newest first. Filter by
// workflow_id, or by server_id with an optional status.
func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return badRequest(c, "invalid limit: "+err.Error())
	}

	var entries []*models.ExecutionLog

	switch {
	case c.Query("workflow_id") != "":
		entries, err = h.store.ExecutionLogs().ByWorkflow(c.Context(), c.Query("workflow_id"), limit)
	case c.Query("server_id") != "":
		status := models.ExecutionStatus(c.Query("status"))
		if status != "" && !knownStatus(status) {
			return badRequest(c, "unknown status: "+string(status))
		}

		entries, err = h.store.ExecutionLogs().ByServer(c.Context(), c.Query("server_id"), status, limit)
	default:
		return badRequest(c, "workflow_id or server_id query parameter is required")
	}

	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": entries,
		"count":      len(entries),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "execution id is required")
	}

	entry, err := h.store.ExecutionLogs().ByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(entry)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}

func knownStatus(status models.ExecutionStatus) bool {
	switch status {
	case models.StatusStarted, models.StatusSuccess, models.StatusFailed,
		models.StatusSkipped, models.StatusRateLimited, models.StatusCooldown:
		return true
	}

	return false
}
