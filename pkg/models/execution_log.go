package models

import "time"

// ExecutionStatus is the lifecycle state of one dispatch attempt.
type ExecutionStatus string

const (
	StatusStarted     ExecutionStatus = "started"
	StatusSuccess     ExecutionStatus = "success"
	StatusFailed      ExecutionStatus = "failed"
	StatusSkipped     ExecutionStatus = "skipped"
	StatusRateLimited ExecutionStatus = "rate_limited"
	StatusCooldown    ExecutionStatus = "cooldown"
)

// Final reports whether the status closes a log entry. Entries are never
// mutated after finalization.
func (s ExecutionStatus) Final() bool {
	return s != StatusStarted
}

// TriggerSnapshot captures enough of the triggering context to reproduce a
// dispatch decision offline.
type TriggerSnapshot struct {
	EventID   string      `json:"event_id,omitempty"`
	Type      TriggerType `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	ChannelID string      `json:"channel_id,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	CustomID  string      `json:"custom_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ExecutionLog is the append-only audit record of one dispatch attempt. It is
// created with status started the instant a workflow passes trigger-level
// filtering and finalized exactly once.
type ExecutionLog struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	ServerID   string          `json:"server_id"`
	Status     ExecutionStatus `json:"status"`

	Trigger TriggerSnapshot `json:"trigger"`

	ActionsExecuted int            `json:"actions_executed"`
	ActionResults   []ActionResult `json:"action_results,omitempty"`

	// FailedActionID and Error are set when the pipeline aborted on a
	// non-tolerated action failure.
	FailedActionID string `json:"failed_action_id,omitempty"`
	Error          string `json:"error,omitempty"`

	// Warnings collects non-fatal evaluation problems (unknown condition
	// types, malformed configs) observed during the attempt.
	Warnings []string `json:"warnings,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
