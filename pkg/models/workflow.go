// Package models defines the core domain models for the guildflow automation engine.
package models

import (
	"encoding/json"
	"time"
)

// TriggerType identifies the platform event a workflow reacts to.
type TriggerType string

const (
	TriggerMessageReceived TriggerType = "message_received"
	TriggerMemberJoin      TriggerType = "member_join"
	TriggerMemberLeave     TriggerType = "member_leave"
	TriggerReactionAdd     TriggerType = "reaction_add"
	TriggerReactionRemove  TriggerType = "reaction_remove"
	TriggerButtonClick     TriggerType = "button_click"
	TriggerSelectMenu      TriggerType = "select_menu"
	TriggerScheduled       TriggerType = "scheduled"
	TriggerVoiceJoin       TriggerType = "voice_join"
	TriggerVoiceLeave      TriggerType = "voice_leave"
	TriggerRoleAdd         TriggerType = "role_add"
	TriggerRoleRemove      TriggerType = "role_remove"
	TriggerChannelCreate   TriggerType = "channel_create"
	TriggerThreadCreate    TriggerType = "thread_create"
)

// KnownTriggerType reports whether t is one of the trigger types the engine
// dispatches on. Events carrying an unknown type match no workflows.
func KnownTriggerType(t TriggerType) bool {
	switch t {
	case TriggerMessageReceived, TriggerMemberJoin, TriggerMemberLeave,
		TriggerReactionAdd, TriggerReactionRemove, TriggerButtonClick,
		TriggerSelectMenu, TriggerScheduled, TriggerVoiceJoin,
		TriggerVoiceLeave, TriggerRoleAdd, TriggerRoleRemove,
		TriggerChannelCreate, TriggerThreadCreate:
		return true
	}

	return false
}

// CooldownType selects the target a workflow cooldown is keyed on.
type CooldownType string

const (
	CooldownUser    CooldownType = "user"
	CooldownChannel CooldownType = "channel"
	CooldownServer  CooldownType = "server"
)

// Workflow is one automation rule owned by a server. Workflows are authored
// through an external surface and are read-only to the engine.
type Workflow struct {
	ID          string      `json:"id"          validate:"required"`
	ServerID    string      `json:"server_id"   validate:"required"`
	Name        string      `json:"name"        validate:"required,min=1"`
	Description string      `json:"description"`
	TriggerType TriggerType `json:"trigger_type" validate:"required"`

	// TriggerConfig is the stored filter payload; its shape is keyed by
	// TriggerType and decoded via DecodeTriggerConfig before use.
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"`

	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"`

	CooldownEnabled bool         `json:"cooldown_enabled"`
	CooldownSeconds int          `json:"cooldown_seconds" validate:"gte=0"`
	CooldownType    CooldownType `json:"cooldown_type,omitempty"`

	// MaxExecutionsPerHour caps committed dispatches within a rolling hour.
	// Zero means unlimited.
	MaxExecutionsPerHour int `json:"max_executions_per_hour" validate:"gte=0"`

	ExecutionCount  int64      `json:"execution_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	Conditions []*Condition `json:"conditions,omitempty"`

	// Actions holds the top-level pipeline with branch children already
	// materialized onto their branch_if parents (see BuildActionTree).
	Actions []*Action `json:"actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CooldownTargetID returns the identifier the workflow's cooldown is keyed on
// for the given event actor, or "" for a server-wide cooldown.
func (w *Workflow) CooldownTargetID(userID, channelID string) string {
	switch w.CooldownType {
	case CooldownUser:
		return userID
	case CooldownChannel:
		return channelID
	default:
		return ""
	}
}

// CooldownDuration returns the configured cooldown window.
func (w *Workflow) CooldownDuration() time.Duration {
	return time.Duration(w.CooldownSeconds) * time.Second
}
