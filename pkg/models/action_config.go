package models

import (
	"encoding/json"
	"fmt"
)

// ActionConfig is the decoded payload of one action. Exactly one variant
// exists per ActionType; DecodeActionConfig selects and validates it.
//
// ApplyTemplates runs the given substitution over every string field that may
// carry variable tokens. The executor calls it with the variable resolver
// immediately before the action runs, so tokens see the live event context.
type ActionConfig interface {
	ActionType() ActionType
	ApplyTemplates(resolve func(string) string)
}

// SendMessageConfig posts a message to a channel. An empty ChannelID targets
// the channel the event originated in.
type SendMessageConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content" validate:"required"`
}

func (*SendMessageConfig) ActionType() ActionType { return ActionSendMessage }

func (c *SendMessageConfig) ApplyTemplates(resolve func(string) string) {
	c.ChannelID = resolve(c.ChannelID)
	c.Content = resolve(c.Content)
}

// SendEmbedConfig posts a rich embed.
type SendEmbedConfig struct {
	ChannelID   string `json:"channel_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description" validate:"required"`
	Color       int    `json:"color,omitempty"`
	Footer      string `json:"footer,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

func (*SendEmbedConfig) ActionType() ActionType { return ActionSendEmbed }

func (c *SendEmbedConfig) ApplyTemplates(resolve func(string) string) {
	c.ChannelID = resolve(c.ChannelID)
	c.Title = resolve(c.Title)
	c.Description = resolve(c.Description)
	c.Footer = resolve(c.Footer)
	c.ImageURL = resolve(c.ImageURL)
}

// SendDMConfig direct-messages a user. An empty UserID targets the acting
// user.
type SendDMConfig struct {
	UserID  string `json:"user_id,omitempty"`
	Content string `json:"content" validate:"required"`
}

func (*SendDMConfig) ActionType() ActionType { return ActionSendDM }

func (c *SendDMConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
	c.Content = resolve(c.Content)
}

// RoleChangeConfig adds or removes a role; the action type disambiguates.
type RoleChangeConfig struct {
	UserID string `json:"user_id,omitempty"`
	RoleID string `json:"role_id" validate:"required"`
	Reason string `json:"reason,omitempty"`

	action ActionType
}

func (c *RoleChangeConfig) ActionType() ActionType { return c.action }

func (c *RoleChangeConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
	c.RoleID = resolve(c.RoleID)
	c.Reason = resolve(c.Reason)
}

// CreateThreadConfig spawns a thread off a channel or message.
type CreateThreadConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Name      string `json:"name" validate:"required"`
	Private   bool   `json:"private,omitempty"`
}

func (*CreateThreadConfig) ActionType() ActionType { return ActionCreateThread }

func (c *CreateThreadConfig) ApplyTemplates(resolve func(string) string) {
	c.ChannelID = resolve(c.ChannelID)
	c.MessageID = resolve(c.MessageID)
	c.Name = resolve(c.Name)
}

// DeleteMessageConfig removes a message; defaults to the triggering message.
type DeleteMessageConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (*DeleteMessageConfig) ActionType() ActionType { return ActionDeleteMessage }

func (c *DeleteMessageConfig) ApplyTemplates(resolve func(string) string) {
	c.ChannelID = resolve(c.ChannelID)
	c.MessageID = resolve(c.MessageID)
	c.Reason = resolve(c.Reason)
}

// AddReactionConfig reacts to a message; defaults to the triggering message.
type AddReactionConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji" validate:"required"`
}

func (*AddReactionConfig) ActionType() ActionType { return ActionAddReaction }

func (c *AddReactionConfig) ApplyTemplates(resolve func(string) string) {
	c.ChannelID = resolve(c.ChannelID)
	c.MessageID = resolve(c.MessageID)
	c.Emoji = resolve(c.Emoji)
}

// TimeoutUserConfig times a member out.
type TimeoutUserConfig struct {
	UserID          string `json:"user_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds" validate:"required,gt=0"`
	Reason          string `json:"reason,omitempty"`
}

func (*TimeoutUserConfig) ActionType() ActionType { return ActionTimeoutUser }

func (c *TimeoutUserConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
	c.Reason = resolve(c.Reason)
}

// ModerationConfig kicks or bans a member; the action type disambiguates.
type ModerationConfig struct {
	UserID            string `json:"user_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
	DeleteMessageDays int    `json:"delete_message_days,omitempty" validate:"gte=0,lte=7"`

	action ActionType
}

func (c *ModerationConfig) ActionType() ActionType { return c.action }

func (c *ModerationConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
	c.Reason = resolve(c.Reason)
}

// SetNicknameConfig renames a member.
type SetNicknameConfig struct {
	UserID   string `json:"user_id,omitempty"`
	Nickname string `json:"nickname" validate:"required"`
}

func (*SetNicknameConfig) ActionType() ActionType { return ActionSetNickname }

func (c *SetNicknameConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
	c.Nickname = resolve(c.Nickname)
}

// MoveToVoiceConfig moves a member to a voice channel.
type MoveToVoiceConfig struct {
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id" validate:"required"`
}

func (*MoveToVoiceConfig) ActionType() ActionType { return ActionMoveToVoice }

func (c *MoveToVoiceConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
	c.ChannelID = resolve(c.ChannelID)
}

// DisconnectFromVoiceConfig drops a member from voice.
type DisconnectFromVoiceConfig struct {
	UserID string `json:"user_id,omitempty"`
}

func (*DisconnectFromVoiceConfig) ActionType() ActionType { return ActionDisconnectFromVoice }

func (c *DisconnectFromVoiceConfig) ApplyTemplates(resolve func(string) string) {
	c.UserID = resolve(c.UserID)
}

// WaitDelayConfig suspends this workflow's action chain. The executor caps the
// delay; see actions.MaxDelay.
type WaitDelayConfig struct {
	DelayMS int `json:"delay_ms" validate:"required,gt=0"`
}

func (*WaitDelayConfig) ActionType() ActionType { return ActionWaitDelay }

func (*WaitDelayConfig) ApplyTemplates(func(string) string) {}

// CallWebhookConfig posts the event context to an external URL.
type CallWebhookConfig struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (*CallWebhookConfig) ActionType() ActionType { return ActionCallWebhook }

func (c *CallWebhookConfig) ApplyTemplates(resolve func(string) string) {
	c.Body = resolve(c.Body)
	for k, v := range c.Headers {
		c.Headers[k] = resolve(v)
	}
}

// SetVariableConfig upserts a stored custom variable. The executor handles
// this action internally through the variables store; it never reaches the
// external effector.
type SetVariableConfig struct {
	Name    string        `json:"name" validate:"required"`
	Value   string        `json:"value"`
	Scope   VariableScope `json:"scope,omitempty" validate:"omitempty,oneof=server channel user"`
	Global  bool          `json:"global,omitempty"` // store server-wide instead of per-workflow
	ScopeID string        `json:"scope_id,omitempty"`
}

func (*SetVariableConfig) ActionType() ActionType { return ActionSetVariable }

func (c *SetVariableConfig) ApplyTemplates(resolve func(string) string) {
	c.Value = resolve(c.Value)
	c.ScopeID = resolve(c.ScopeID)
}

// BranchCondition is one condition row embedded in a branch_if config.
type BranchCondition struct {
	Type       ConditionType   `json:"type" validate:"required"`
	Config     json.RawMessage `json:"config,omitempty"`
	Negated    bool            `json:"negated,omitempty"`
	GroupIndex int             `json:"group_index,omitempty"`
	SortOrder  int             `json:"sort_order,omitempty"`
}

// BranchIfConfig guards the then/else child lists of a branch_if action. Its
// conditions follow the same group semantics as workflow conditions.
type BranchIfConfig struct {
	Conditions []BranchCondition `json:"conditions" validate:"required,min=1"`
}

func (*BranchIfConfig) ActionType() ActionType { return ActionBranchIf }

func (*BranchIfConfig) ApplyTemplates(func(string) string) {}

// ConditionRows converts the embedded rows into condition models for the
// evaluator.
func (c *BranchIfConfig) ConditionRows() []*Condition {
	rows := make([]*Condition, 0, len(c.Conditions))
	for i, bc := range c.Conditions {
		rows = append(rows, &Condition{
			ID:         fmt.Sprintf("branch-%d", i),
			GroupIndex: bc.GroupIndex,
			Type:       bc.Type,
			Config:     bc.Config,
			Negated:    bc.Negated,
			SortOrder:  bc.SortOrder,
		})
	}

	return rows
}

// DecodeActionConfig unmarshals and validates an action payload. Malformed
// payloads and unknown action types fail closed: the executor records a failed
// action result instead of invoking any side effect.
func DecodeActionConfig(action ActionType, raw json.RawMessage) (ActionConfig, error) {
	// An absent payload decodes to the zero value; variants with required
	// fields are then rejected by validation.
	decode := func(dst any) error {
		if len(raw) == 0 {
			return nil
		}

		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("malformed %s action config: %w", action, err)
		}

		return nil
	}

	var cfg ActionConfig

	switch action {
	case ActionSendMessage:
		cfg = &SendMessageConfig{}
	case ActionSendEmbed:
		cfg = &SendEmbedConfig{}
	case ActionSendDM:
		cfg = &SendDMConfig{}
	case ActionAddRole, ActionRemoveRole:
		cfg = &RoleChangeConfig{action: action}
	case ActionCreateThread:
		cfg = &CreateThreadConfig{}
	case ActionDeleteMessage:
		cfg = &DeleteMessageConfig{}
	case ActionAddReaction:
		cfg = &AddReactionConfig{}
	case ActionTimeoutUser:
		cfg = &TimeoutUserConfig{}
	case ActionKickUser, ActionBanUser:
		cfg = &ModerationConfig{action: action}
	case ActionSetNickname:
		cfg = &SetNicknameConfig{}
	case ActionMoveToVoice:
		cfg = &MoveToVoiceConfig{}
	case ActionDisconnectFromVoice:
		cfg = &DisconnectFromVoiceConfig{}
	case ActionWaitDelay:
		cfg = &WaitDelayConfig{}
	case ActionCallWebhook:
		cfg = &CallWebhookConfig{}
	case ActionSetVariable:
		cfg = &SetVariableConfig{}
	case ActionBranchIf:
		cfg = &BranchIfConfig{}
	default:
		return nil, fmt.Errorf("unknown action type %q", action)
	}

	if err := decode(cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s action config: %w", action, err)
	}

	return cfg, nil
}
