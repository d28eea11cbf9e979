// Package execlog records the lifecycle of every dispatch attempt. Entries
// are the engine's sole audit trail: they open with status started the moment
// a workflow passes trigger-level filtering and are finalized exactly once.
package execlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
)

type Logger struct {
	store  persistence.ExecutionLogRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(store persistence.ExecutionLogRepository, logger *slog.Logger) *Logger {
	return &Logger{
		store:  store,
		logger: logger.With("module", "execution_logger"),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now

	return l
}

// Handle tracks one open log entry until it is finalized.
type Handle struct {
	entry     *models.ExecutionLog
	finalized atomic.Bool
}

// Entry exposes the underlying record for inspection; callers must not mutate
// it after Finish.
func (h *Handle) Entry() *models.ExecutionLog {
	return h.entry
}

// Finalized reports whether Finish has already claimed this entry.
func (h *Handle) Finalized() bool {
	return h.finalized.Load()
}

// Begin appends a started entry capturing the trigger context.
func (l *Logger) Begin(ctx context.Context, workflow *models.Workflow, event *events.GatewayEvent) (*Handle, error) {
	entry := &models.ExecutionLog{
		ID:         "exec-" + uuid.New().String(),
		WorkflowID: workflow.ID,
		ServerID:   workflow.ServerID,
		Status:     models.StatusStarted,
		Trigger:    event.Snapshot(),
		StartedAt:  l.now().UTC(),
	}

	err := l.store.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to open execution log for workflow %s: %w", workflow.ID, err)
	}

	return &Handle{entry: entry}, nil
}

// Outcome is the terminal state Finish writes.
type Outcome struct {
	Status          models.ExecutionStatus
	ActionsExecuted int
	Results         []models.ActionResult
	FailedActionID  string
	Error           string
	Warnings        []string
}

// Finish finalizes the entry exactly once; later calls are rejected.
func (l *Logger) Finish(ctx context.Context, handle *Handle, outcome Outcome) error {
	if !outcome.Status.Final() {
		return fmt.Errorf("cannot finalize log %s with non-terminal status %s", handle.entry.ID, outcome.Status)
	}

	if !handle.finalized.CompareAndSwap(false, true) {
		return persistence.NewStoreError("Finish", handle.entry.ID, persistence.ErrLogFinalized)
	}

	finishedAt := l.now().UTC()

	entry := handle.entry
	entry.Status = outcome.Status
	entry.ActionsExecuted = outcome.ActionsExecuted
	entry.ActionResults = outcome.Results
	entry.FailedActionID = outcome.FailedActionID
	entry.Error = outcome.Error
	entry.Warnings = outcome.Warnings
	entry.FinishedAt = &finishedAt

	err := l.store.Finalize(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to finalize execution log %s: %w", entry.ID, err)
	}

	l.logger.Debug("Execution logged",
		"log_id", entry.ID,
		"workflow_id", entry.WorkflowID,
		"status", entry.Status,
		"actions_executed", entry.ActionsExecuted)

	return nil
}
