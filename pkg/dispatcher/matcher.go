package dispatcher

import (
	"log/slog"
	"strings"

	"github.com/guildflow/guildflow/pkg/conditions"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
)

// matcher applies trigger-level filters from a workflow's decoded trigger
// config. A workflow failing a filter is excluded from the dispatch with no
// log entry: it never started.
type matcher struct {
	logger *slog.Logger
}

func newMatcher(logger *slog.Logger) *matcher {
	return &matcher{logger: logger.With("module", "trigger_matcher")}
}

func (m *matcher) matches(workflow *models.Workflow, config models.TriggerConfig, event *events.GatewayEvent) bool {
	switch c := config.(type) {
	case models.MessageTriggerConfig:
		return m.matchMessage(workflow, c, event)
	case models.MemberTriggerConfig:
		return m.matchMember(c, event)
	case models.ReactionTriggerConfig:
		return m.matchReaction(c, event)
	case models.ComponentTriggerConfig:
		return m.matchComponent(c, event)
	case models.ScheduleTriggerConfig:
		// Scheduled events are stamped with the workflow they belong to; a
		// tick fires exactly one workflow.
		return event.WorkflowID() == workflow.ID
	case models.VoiceTriggerConfig:
		return channelAllowed(c.ChannelIDs, c.ExcludeChannels, event.ChannelID) &&
			!(c.IgnoreBots && event.AuthorIsBot())
	case models.RoleChangeTriggerConfig:
		return m.matchRoleChange(c, event)
	case models.ChannelTriggerConfig:
		return m.matchChannelCreate(c, event)
	default:
		m.logger.Warn("Unhandled trigger config variant",
			"workflow_id", workflow.ID,
			"trigger_type", workflow.TriggerType)

		return false
	}
}

func (m *matcher) matchMessage(workflow *models.Workflow, c models.MessageTriggerConfig, event *events.GatewayEvent) bool {
	if c.IgnoreBots && event.AuthorIsBot() {
		return false
	}

	if c.IgnoreCommands && event.IsCommand() {
		return false
	}

	if !channelAllowed(c.ChannelIDs, c.ExcludeChannels, event.ChannelID) {
		return false
	}

	if len(c.RoleIDs) > 0 && !anyOverlap(event.MemberRoles(), c.RoleIDs) {
		return false
	}

	if len(c.Keywords) > 0 {
		content := event.Content()
		matched := false

		for _, keyword := range c.Keywords {
			ok, err := conditions.MatchKeyword(content, keyword, c.KeywordMatchType, c.CaseSensitive)
			if err != nil {
				m.logger.Warn("Keyword filter error",
					"workflow_id", workflow.ID,
					"keyword", keyword,
					"error", err)

				continue
			}

			if ok {
				matched = true

				break
			}
		}

		if !matched {
			return false
		}
	}

	return true
}

func (m *matcher) matchMember(c models.MemberTriggerConfig, event *events.GatewayEvent) bool {
	if c.IgnoreBots && event.AuthorIsBot() {
		return false
	}

	if len(c.RoleIDs) > 0 && !anyOverlap(event.MemberRoles(), c.RoleIDs) {
		return false
	}

	return true
}

func (m *matcher) matchReaction(c models.ReactionTriggerConfig, event *events.GatewayEvent) bool {
	if c.IgnoreBots && event.AuthorIsBot() {
		return false
	}

	if !channelAllowed(c.ChannelIDs, c.ExcludeChannels, event.ChannelID) {
		return false
	}

	if len(c.Emojis) > 0 && !contains(c.Emojis, event.Emoji()) {
		return false
	}

	return true
}

func (m *matcher) matchComponent(c models.ComponentTriggerConfig, event *events.GatewayEvent) bool {
	if !channelAllowed(c.ChannelIDs, c.ExcludeChannels, event.ChannelID) {
		return false
	}

	// An empty allow-list matches nothing: component workflows are bound to
	// the custom ids they were authored against.
	return contains(c.CustomIDs, event.CustomID)
}

func (m *matcher) matchRoleChange(c models.RoleChangeTriggerConfig, event *events.GatewayEvent) bool {
	if len(c.RoleIDs) == 0 {
		return true
	}

	role, _ := event.Raw["role_id"].(string)

	return contains(c.RoleIDs, role)
}

func (m *matcher) matchChannelCreate(c models.ChannelTriggerConfig, event *events.GatewayEvent) bool {
	if len(c.ParentChannelIDs) > 0 {
		parent, _ := event.Raw[events.RawParentChannel].(string)
		if !contains(c.ParentChannelIDs, parent) {
			return false
		}
	}

	if c.NameContains != "" {
		name, _ := event.Raw[events.RawEntityName].(string)
		if !strings.Contains(strings.ToLower(name), strings.ToLower(c.NameContains)) {
			return false
		}
	}

	return true
}

// channelAllowed applies include then exclude lists; an empty include list
// allows every channel.
func channelAllowed(include, exclude []string, channelID string) bool {
	if len(include) > 0 && !contains(include, channelID) {
		return false
	}

	return !contains(exclude, channelID)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

func anyOverlap(have, want []string) bool {
	for _, h := range have {
		if contains(want, h) {
			return true
		}
	}

	return false
}
