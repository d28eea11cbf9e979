// Package events defines the inbound gateway event contract and the dispatch
// lifecycle events the engine publishes for downstream consumers.
package events

import (
	"time"

	"github.com/guildflow/guildflow/pkg/models"
)

// Bus topics.
const GatewayTopic = "guildflow.gateway.events"
const DispatchTopic = "guildflow.dispatch.results"

// Message metadata keys. EventMetadataKey carries the server id, which the
// Kafka channel uses as the message key so a server's events stay ordered.
const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

// Raw payload keys the engine reads from gateway events. The gateway client
// normalizes platform payloads into these fields; everything else in Raw is
// carried through untouched for conditions and webhook bodies.
const (
	RawContent       = "content"
	RawAuthorIsBot   = "author_is_bot"
	RawIsCommand     = "is_command"
	RawMemberRoles   = "member_roles"
	RawPermissions   = "permissions"
	RawEmoji         = "emoji"
	RawUserName      = "user_name"
	RawUserMention   = "user_mention"
	RawChannelName   = "channel_name"
	RawServerName    = "server_name"
	RawMemberCount   = "member_count"
	RawEntityName    = "entity_name"
	RawParentChannel = "parent_channel_id"
	RawWorkflowID    = "workflow_id"
)

// GatewayEvent is one normalized platform event as delivered by the external
// gateway client. Unrecognized Type values match no workflows.
type GatewayEvent struct {
	ID        string             `json:"id"`
	Type      models.TriggerType `json:"type"`
	ServerID  string             `json:"server_id"`
	UserID    string             `json:"user_id,omitempty"`
	ChannelID string             `json:"channel_id,omitempty"`
	MessageID string             `json:"message_id,omitempty"`
	CustomID  string             `json:"custom_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Raw       map[string]any     `json:"raw,omitempty"`
}

// rawString returns a string payload field, or "" when absent.
func (e *GatewayEvent) rawString(key string) string {
	if e.Raw == nil {
		return ""
	}

	s, _ := e.Raw[key].(string)

	return s
}

// rawBool returns a boolean payload field, or false when absent.
func (e *GatewayEvent) rawBool(key string) bool {
	if e.Raw == nil {
		return false
	}

	b, _ := e.Raw[key].(bool)

	return b
}

// Content returns the message content for message-shaped events.
func (e *GatewayEvent) Content() string { return e.rawString(RawContent) }

// AuthorIsBot reports whether the acting user is a bot account.
func (e *GatewayEvent) AuthorIsBot() bool { return e.rawBool(RawAuthorIsBot) }

// IsCommand reports whether the message was a bot command invocation.
func (e *GatewayEvent) IsCommand() bool { return e.rawBool(RawIsCommand) }

// Emoji returns the reaction emoji for reaction events.
func (e *GatewayEvent) Emoji() string { return e.rawString(RawEmoji) }

// WorkflowID returns the owning workflow id stamped on scheduled events.
func (e *GatewayEvent) WorkflowID() string { return e.rawString(RawWorkflowID) }

// MemberRoles returns the acting user's role ids.
func (e *GatewayEvent) MemberRoles() []string { return e.rawStrings(RawMemberRoles) }

// Permissions returns the acting user's permission strings.
func (e *GatewayEvent) Permissions() []string { return e.rawStrings(RawPermissions) }

func (e *GatewayEvent) rawStrings(key string) []string {
	if e.Raw == nil {
		return nil
	}

	switch v := e.Raw[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

// RawNumber returns a numeric payload field, reporting whether it was present
// and numeric. JSON decoding yields float64; native ints are converted.
func (e *GatewayEvent) RawNumber(key string) (float64, bool) {
	if e.Raw == nil {
		return 0, false
	}

	switch v := e.Raw[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Snapshot captures the trigger context for execution logging.
func (e *GatewayEvent) Snapshot() models.TriggerSnapshot {
	return models.TriggerSnapshot{
		EventID:   e.ID,
		Type:      e.Type,
		UserID:    e.UserID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		CustomID:  e.CustomID,
		Timestamp: e.Timestamp,
	}
}
