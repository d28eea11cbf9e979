package models

import (
	"encoding/json"
	"fmt"
)

// ConditionConfig is the decoded payload of a condition row. Exactly one
// variant exists per ConditionType; DecodeConditionConfig selects and
// validates it.
type ConditionConfig interface {
	ConditionType() ConditionType
}

// RoleConditionConfig tests the acting user's roles.
type RoleConditionConfig struct {
	RoleIDs []string `json:"role_ids" validate:"required,min=1"`

	// RequireAll demands every listed role instead of any one of them.
	RequireAll bool `json:"require_all,omitempty"`
}

func (RoleConditionConfig) ConditionType() ConditionType { return ConditionUserHasRole }

// ChannelConditionConfig tests the event's channel.
type ChannelConditionConfig struct {
	ChannelIDs []string `json:"channel_ids" validate:"required,min=1"`
}

func (ChannelConditionConfig) ConditionType() ConditionType { return ConditionChannelMatches }

// UserConditionConfig tests the acting user's identity.
type UserConditionConfig struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1"`
}

func (UserConditionConfig) ConditionType() ConditionType { return ConditionUserMatches }

// PermissionConditionConfig tests the acting user's permission strings.
type PermissionConditionConfig struct {
	Permissions []string `json:"permissions" validate:"required,min=1"`

	RequireAll bool `json:"require_all,omitempty"`
}

func (PermissionConditionConfig) ConditionType() ConditionType { return ConditionHasPermission }

// ContentConditionConfig tests message content.
type ContentConditionConfig struct {
	MatchType     KeywordMatchType `json:"match_type" validate:"required,oneof=contains starts_with ends_with exact regex"`
	Value         string           `json:"value" validate:"required"`
	CaseSensitive bool             `json:"case_sensitive,omitempty"`
}

func (ContentConditionConfig) ConditionType() ConditionType { return ConditionContentMatches }

// TimeWindowConditionConfig tests the event timestamp against an hour window
// and optional weekday set. Hours are 0-23 in UTC; a window wrapping midnight
// (start > end) is allowed.
type TimeWindowConditionConfig struct {
	StartHour int   `json:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int   `json:"end_hour"   validate:"gte=0,lte=23"`
	Weekdays  []int `json:"weekdays,omitempty" validate:"omitempty,dive,gte=0,lte=6"`
}

func (TimeWindowConditionConfig) ConditionType() ConditionType { return ConditionTimeWindow }

// NumericConditionConfig compares a numeric field from the event payload
// (server.memberCount, message length, raw payload numbers) against a value.
type NumericConditionConfig struct {
	Field    string  `json:"field"    validate:"required"`
	Operator string  `json:"operator" validate:"required,oneof=eq ne gt gte lt lte"`
	Value    float64 `json:"value"`
}

func (NumericConditionConfig) ConditionType() ConditionType { return ConditionNumericCompare }

// DecodeConditionConfig unmarshals and validates a condition payload. Unknown
// condition types are an error; the evaluator treats them as a false condition
// with a warning rather than failing the dispatch.
func DecodeConditionConfig(condition ConditionType, raw json.RawMessage) (ConditionConfig, error) {
	var cfg ConditionConfig

	decode := func(dst any) error {
		if len(raw) == 0 {
			return fmt.Errorf("missing %s condition config", condition)
		}

		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("malformed %s condition config: %w", condition, err)
		}

		return nil
	}

	switch condition {
	case ConditionUserHasRole:
		var c RoleConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case ConditionChannelMatches:
		var c ChannelConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case ConditionUserMatches:
		var c UserConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case ConditionHasPermission:
		var c PermissionConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case ConditionContentMatches:
		var c ContentConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case ConditionTimeWindow:
		var c TimeWindowConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	case ConditionNumericCompare:
		var c NumericConditionConfig
		if err := decode(&c); err != nil {
			return nil, err
		}

		cfg = c
	default:
		return nil, fmt.Errorf("unknown condition type %q", condition)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s condition config: %w", condition, err)
	}

	return cfg, nil
}
