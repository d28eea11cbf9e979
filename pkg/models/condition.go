package models

import "encoding/json"

// ConditionType identifies the test a condition row performs.
type ConditionType string

const (
	ConditionUserHasRole    ConditionType = "user_has_role"
	ConditionChannelMatches ConditionType = "channel_matches"
	ConditionUserMatches    ConditionType = "user_matches"
	ConditionHasPermission  ConditionType = "has_permission"
	ConditionContentMatches ConditionType = "content_matches"
	ConditionTimeWindow     ConditionType = "time_window"
	ConditionNumericCompare ConditionType = "numeric_compare"
)

// Condition is one boolean test belonging to a workflow. Conditions sharing a
// GroupIndex are AND-ed; distinct groups are OR-ed together, so the overall
// predicate is a disjunction of conjunctions. A workflow with zero conditions
// always passes.
type Condition struct {
	ID         string        `json:"id"`
	WorkflowID string        `json:"workflow_id"`
	GroupIndex int           `json:"group_index"`
	Type       ConditionType `json:"type" validate:"required"`

	// Config is the type-specific payload, decoded via DecodeConditionConfig.
	Config json.RawMessage `json:"config,omitempty"`

	// Negated flips the raw result before it enters the group AND.
	Negated bool `json:"negated"`

	// SortOrder is the evaluation order within a group; groups short-circuit
	// on the first false condition.
	SortOrder int `json:"sort_order"`
}
