package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ActionType identifies one step kind in a workflow pipeline.
type ActionType string

const (
	ActionSendMessage         ActionType = "send_message"
	ActionSendEmbed           ActionType = "send_embed"
	ActionSendDM              ActionType = "send_dm"
	ActionAddRole             ActionType = "add_role"
	ActionRemoveRole          ActionType = "remove_role"
	ActionCreateThread        ActionType = "create_thread"
	ActionDeleteMessage       ActionType = "delete_message"
	ActionAddReaction         ActionType = "add_reaction"
	ActionTimeoutUser         ActionType = "timeout_user"
	ActionKickUser            ActionType = "kick_user"
	ActionBanUser             ActionType = "ban_user"
	ActionSetNickname         ActionType = "set_nickname"
	ActionMoveToVoice         ActionType = "move_to_voice"
	ActionDisconnectFromVoice ActionType = "disconnect_from_voice"
	ActionWaitDelay           ActionType = "wait_delay"
	ActionCallWebhook         ActionType = "call_webhook"
	ActionSetVariable         ActionType = "set_variable"
	ActionBranchIf            ActionType = "branch_if"
)

// BranchType tags which child list of a branch_if an action belongs to.
type BranchType string

const (
	BranchThen BranchType = "then"
	BranchElse BranchType = "else"
)

// Action is one ordered step in a workflow's execution pipeline. Actions
// stored with a BranchParentID are excluded from the top-level walk and are
// reachable only through the branch they belong to.
type Action struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	SortOrder  int        `json:"sort_order"`
	Type       ActionType `json:"type" validate:"required"`

	// Config is the type-specific payload, decoded via DecodeActionConfig.
	Config json.RawMessage `json:"config,omitempty"`

	BranchParentID string     `json:"branch_parent_id,omitempty"`
	BranchType     BranchType `json:"branch_type,omitempty"`

	// ContinueOnError lets the pipeline proceed past a failure of this action.
	ContinueOnError bool `json:"continue_on_error"`

	// ErrorMessage is an optional diagnostic note shown alongside failures.
	ErrorMessage string `json:"error_message,omitempty"`

	// Then and Else are materialized at load time from the stored
	// BranchParentID back-references; only branch_if actions carry them.
	Then []*Action `json:"then,omitempty"`
	Else []*Action `json:"else,omitempty"`
}

// BuildActionTree turns a flat stored action list into the executable
// top-level pipeline: branch children are attached to their branch_if parent's
// Then/Else lists and removed from the top level. Each list is ordered by
// SortOrder (id as tiebreak). A child referencing a missing or non-branch
// parent is an authoring-surface integrity violation and is rejected.
func BuildActionTree(flat []*Action) ([]*Action, error) {
	byID := make(map[string]*Action, len(flat))
	for _, action := range flat {
		byID[action.ID] = action
	}

	var top []*Action

	for _, action := range flat {
		if action.BranchParentID == "" {
			top = append(top, action)

			continue
		}

		parent, ok := byID[action.BranchParentID]
		if !ok {
			return nil, fmt.Errorf("action %s references missing branch parent %s", action.ID, action.BranchParentID)
		}

		if parent.Type != ActionBranchIf {
			return nil, fmt.Errorf("action %s has branch parent %s of type %s, want %s", action.ID, parent.ID, parent.Type, ActionBranchIf)
		}

		switch action.BranchType {
		case BranchThen:
			parent.Then = append(parent.Then, action)
		case BranchElse:
			parent.Else = append(parent.Else, action)
		default:
			return nil, fmt.Errorf("action %s under branch parent %s has invalid branch type %q", action.ID, parent.ID, action.BranchType)
		}
	}

	sortActions(top)

	for _, action := range flat {
		if action.Type == ActionBranchIf {
			sortActions(action.Then)
			sortActions(action.Else)
		}
	}

	return top, nil
}

func sortActions(actions []*Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].SortOrder != actions[j].SortOrder {
			return actions[i].SortOrder < actions[j].SortOrder
		}

		return actions[i].ID < actions[j].ID
	})
}

// ActionResult records the outcome of one executed action.
type ActionResult struct {
	ActionID   string     `json:"action_id"`
	Type       ActionType `json:"type"`
	Success    bool       `json:"success"`
	Detail     string     `json:"detail,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}
