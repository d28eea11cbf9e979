package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// KeywordMatchType selects how message keyword filters compare content.
type KeywordMatchType string

const (
	MatchContains   KeywordMatchType = "contains"
	MatchStartsWith KeywordMatchType = "starts_with"
	MatchEndsWith   KeywordMatchType = "ends_with"
	MatchExact      KeywordMatchType = "exact"
	MatchRegex      KeywordMatchType = "regex"
)

// TriggerConfig is the decoded trigger-level filter of a workflow. Exactly one
// variant exists per TriggerType; DecodeTriggerConfig selects and validates it.
type TriggerConfig interface {
	TriggerType() TriggerType
}

// MessageTriggerConfig filters message_received events.
type MessageTriggerConfig struct {
	Keywords         []string         `json:"keywords,omitempty"`
	KeywordMatchType KeywordMatchType `json:"keyword_match_type,omitempty" validate:"omitempty,oneof=contains starts_with ends_with exact regex"`
	CaseSensitive    bool             `json:"case_sensitive,omitempty"`
	ChannelIDs       []string         `json:"channel_ids,omitempty"`
	ExcludeChannels  []string         `json:"exclude_channel_ids,omitempty"`
	RoleIDs          []string         `json:"role_ids,omitempty"`
	IgnoreBots       bool             `json:"ignore_bots,omitempty"`
	IgnoreCommands   bool             `json:"ignore_commands,omitempty"`
}

func (MessageTriggerConfig) TriggerType() TriggerType { return TriggerMessageReceived }

// MemberTriggerConfig filters member_join / member_leave events.
type MemberTriggerConfig struct {
	IgnoreBots bool     `json:"ignore_bots,omitempty"`
	RoleIDs    []string `json:"role_ids,omitempty"`

	trigger TriggerType
}

func (c MemberTriggerConfig) TriggerType() TriggerType { return c.trigger }

// ReactionTriggerConfig filters reaction_add / reaction_remove events.
type ReactionTriggerConfig struct {
	Emojis          []string `json:"emojis,omitempty"`
	ChannelIDs      []string `json:"channel_ids,omitempty"`
	ExcludeChannels []string `json:"exclude_channel_ids,omitempty"`
	IgnoreBots      bool     `json:"ignore_bots,omitempty"`

	trigger TriggerType
}

func (c ReactionTriggerConfig) TriggerType() TriggerType { return c.trigger }

// ComponentTriggerConfig filters button_click / select_menu events by their
// component custom-id allow-list.
type ComponentTriggerConfig struct {
	CustomIDs       []string `json:"custom_ids,omitempty"`
	ChannelIDs      []string `json:"channel_ids,omitempty"`
	ExcludeChannels []string `json:"exclude_channel_ids,omitempty"`

	trigger TriggerType
}

func (c ComponentTriggerConfig) TriggerType() TriggerType { return c.trigger }

// ScheduleTriggerConfig binds a scheduled workflow to a cron expression. The
// scheduler feeder stamps emitted events with the owning workflow id, so one
// tick fires exactly one workflow.
type ScheduleTriggerConfig struct {
	Cron     string `json:"cron" validate:"required"`
	Timezone string `json:"timezone,omitempty"`
}

func (ScheduleTriggerConfig) TriggerType() TriggerType { return TriggerScheduled }

// VoiceTriggerConfig filters voice_join / voice_leave events.
type VoiceTriggerConfig struct {
	ChannelIDs      []string `json:"channel_ids,omitempty"`
	ExcludeChannels []string `json:"exclude_channel_ids,omitempty"`
	IgnoreBots      bool     `json:"ignore_bots,omitempty"`

	trigger TriggerType
}

func (c VoiceTriggerConfig) TriggerType() TriggerType { return c.trigger }

// RoleChangeTriggerConfig filters role_add / role_remove events.
type RoleChangeTriggerConfig struct {
	RoleIDs []string `json:"role_ids,omitempty"`

	trigger TriggerType
}

func (c RoleChangeTriggerConfig) TriggerType() TriggerType { return c.trigger }

// ChannelTriggerConfig filters channel_create / thread_create events.
type ChannelTriggerConfig struct {
	ParentChannelIDs []string `json:"parent_channel_ids,omitempty"`
	NameContains     string   `json:"name_contains,omitempty"`

	trigger TriggerType
}

func (c ChannelTriggerConfig) TriggerType() TriggerType { return c.trigger }

// DecodeTriggerConfig unmarshals and validates the stored filter payload for
// the given trigger type. A nil payload decodes to the variant's zero value,
// which filters nothing. Unknown trigger types and malformed payloads fail
// closed: the caller skips the workflow instead of guessing at intent.
func DecodeTriggerConfig(trigger TriggerType, raw json.RawMessage) (TriggerConfig, error) {
	decode := func(dst any) error {
		if len(raw) == 0 {
			return nil
		}

		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("malformed %s trigger config: %w", trigger, err)
		}

		return nil
	}

	var cfg TriggerConfig

	switch trigger {
	case TriggerMessageReceived:
		var c MessageTriggerConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerMemberJoin, TriggerMemberLeave:
		c := MemberTriggerConfig{trigger: trigger}
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerReactionAdd, TriggerReactionRemove:
		c := ReactionTriggerConfig{trigger: trigger}
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerButtonClick, TriggerSelectMenu:
		c := ComponentTriggerConfig{trigger: trigger}
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerScheduled:
		var c ScheduleTriggerConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerVoiceJoin, TriggerVoiceLeave:
		c := VoiceTriggerConfig{trigger: trigger}
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerRoleAdd, TriggerRoleRemove:
		c := RoleChangeTriggerConfig{trigger: trigger}
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case TriggerChannelCreate, TriggerThreadCreate:
		c := ChannelTriggerConfig{trigger: trigger}
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	default:
		return nil, fmt.Errorf("unknown trigger type %q", trigger)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s trigger config: %w", trigger, err)
	}

	return cfg, nil
}
