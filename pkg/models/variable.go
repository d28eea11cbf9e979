package models

import "time"

// VariableScope narrows where a stored custom variable is visible.
type VariableScope string

const (
	ScopeServer  VariableScope = "server"
	ScopeChannel VariableScope = "channel"
	ScopeUser    VariableScope = "user"
)

// WorkflowVariable is a stored custom variable. An empty WorkflowID denotes a
// server-wide variable visible to every workflow on the server. ScopeID holds
// the channel or user the variable is bound to for non-server scopes.
type WorkflowVariable struct {
	ServerID   string        `json:"server_id"   validate:"required"`
	WorkflowID string        `json:"workflow_id,omitempty"`
	Name       string        `json:"name"        validate:"required"`
	Value      string        `json:"value"`
	Scope      VariableScope `json:"scope"       validate:"required"`
	ScopeID    string        `json:"scope_id,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
