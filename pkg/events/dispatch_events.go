package events

import (
	"time"

	"github.com/guildflow/guildflow/pkg/models"
)

// EventType tags messages on the dispatch results topic.
type EventType string

const (
	GatewayEventType      EventType = "gateway.event"
	DispatchCompletedType EventType = "dispatch.completed"
)

// DispatchCompleted summarizes one finished dispatch attempt for downstream
// consumers (dashboards, companion bots). It mirrors the execution log entry
// but is fire-and-forget; the log remains the audit trail.
type DispatchCompleted struct {
	ID              string                 `json:"id"`
	EventID         string                 `json:"event_id"`
	WorkflowID      string                 `json:"workflow_id"`
	ServerID        string                 `json:"server_id"`
	Status          models.ExecutionStatus `json:"status"`
	ActionsExecuted int                    `json:"actions_executed"`
	Error           string                 `json:"error,omitempty"`
	FinishedAt      time.Time              `json:"finished_at"`
}

func (DispatchCompleted) GetType() EventType {
	return DispatchCompletedType
}
