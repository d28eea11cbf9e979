package dispatcher

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func newTestMatcher() *matcher {
	return newMatcher(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func matcherEvent(eventType models.TriggerType, raw map[string]any) *events.GatewayEvent {
	return &events.GatewayEvent{
		ID:        "evt-1",
		Type:      eventType,
		ServerID:  "server-1",
		UserID:    "user-1",
		ChannelID: "channel-1",
		Timestamp: time.Now().UTC(),
		Raw:       raw,
	}
}

func TestMatchMessageKeywords(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerMessageReceived}

	config := models.MessageTriggerConfig{
		Keywords:         []string{"welcome", "hello"},
		KeywordMatchType: models.MatchContains,
	}

	event := matcherEvent(models.TriggerMessageReceived, map[string]any{
		events.RawContent: "well hello there",
	})
	assert.True(t, m.matches(workflow, config, event))

	event.Raw[events.RawContent] = "nothing relevant"
	assert.False(t, m.matches(workflow, config, event))
}

func TestMatchMessageIgnoresBotsAndCommands(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerMessageReceived}

	config := models.MessageTriggerConfig{IgnoreBots: true, IgnoreCommands: true}

	bot := matcherEvent(models.TriggerMessageReceived, map[string]any{
		events.RawContent: "hi", events.RawAuthorIsBot: true,
	})
	assert.False(t, m.matches(workflow, config, bot))

	command := matcherEvent(models.TriggerMessageReceived, map[string]any{
		events.RawContent: "!rank", events.RawIsCommand: true,
	})
	assert.False(t, m.matches(workflow, config, command))

	human := matcherEvent(models.TriggerMessageReceived, map[string]any{
		events.RawContent: "hi",
	})
	assert.True(t, m.matches(workflow, config, human))
}

func TestMatchMessageChannelLists(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerMessageReceived}
	event := matcherEvent(models.TriggerMessageReceived, map[string]any{events.RawContent: "hi"})

	include := models.MessageTriggerConfig{ChannelIDs: []string{"channel-1"}}
	assert.True(t, m.matches(workflow, include, event))

	includeOther := models.MessageTriggerConfig{ChannelIDs: []string{"channel-2"}}
	assert.False(t, m.matches(workflow, includeOther, event))

	exclude := models.MessageTriggerConfig{ExcludeChannels: []string{"channel-1"}}
	assert.False(t, m.matches(workflow, exclude, event))
}

func TestMatchMessageInvalidRegexKeywordIsNoMatch(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerMessageReceived}

	config := models.MessageTriggerConfig{
		Keywords:         []string{"("},
		KeywordMatchType: models.MatchRegex,
	}

	event := matcherEvent(models.TriggerMessageReceived, map[string]any{events.RawContent: "(anything)"})
	assert.False(t, m.matches(workflow, config, event))
}

func TestMatchReactionEmojis(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerReactionAdd}

	config := models.ReactionTriggerConfig{Emojis: []string{"star"}}

	starred := matcherEvent(models.TriggerReactionAdd, map[string]any{events.RawEmoji: "star"})
	assert.True(t, m.matches(workflow, config, starred))

	other := matcherEvent(models.TriggerReactionAdd, map[string]any{events.RawEmoji: "wave"})
	assert.False(t, m.matches(workflow, config, other))
}

func TestMatchComponentEmptyAllowListMatchesNothing(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerButtonClick}

	event := matcherEvent(models.TriggerButtonClick, nil)
	event.CustomID = "verify-button"

	assert.False(t, m.matches(workflow, models.ComponentTriggerConfig{}, event))
	assert.True(t, m.matches(workflow, models.ComponentTriggerConfig{CustomIDs: []string{"verify-button"}}, event))
	assert.False(t, m.matches(workflow, models.ComponentTriggerConfig{CustomIDs: []string{"other"}}, event))
}

func TestMatchScheduleRequiresStampedWorkflowID(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerScheduled}
	config := models.ScheduleTriggerConfig{Cron: "* * * * *"}

	mine := matcherEvent(models.TriggerScheduled, map[string]any{events.RawWorkflowID: "wf-1"})
	assert.True(t, m.matches(workflow, config, mine))

	sibling := matcherEvent(models.TriggerScheduled, map[string]any{events.RawWorkflowID: "wf-2"})
	assert.False(t, m.matches(workflow, config, sibling))

	unstamped := matcherEvent(models.TriggerScheduled, nil)
	assert.False(t, m.matches(workflow, config, unstamped))
}

func TestMatchMemberRoleFilter(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerMemberLeave}

	config := models.MemberTriggerConfig{RoleIDs: []string{"role-vip"}}

	vip := matcherEvent(models.TriggerMemberLeave, map[string]any{
		events.RawMemberRoles: []any{"role-vip", "role-member"},
	})
	assert.True(t, m.matches(workflow, config, vip))

	pleb := matcherEvent(models.TriggerMemberLeave, map[string]any{
		events.RawMemberRoles: []any{"role-member"},
	})
	assert.False(t, m.matches(workflow, config, pleb))
}

func TestMatchChannelCreateFilters(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerThreadCreate}

	config := models.ChannelTriggerConfig{
		ParentChannelIDs: []string{"channel-help"},
		NameContains:     "support",
	}

	match := matcherEvent(models.TriggerThreadCreate, map[string]any{
		events.RawParentChannel: "channel-help",
		events.RawEntityName:    "SUPPORT: printer on fire",
	})
	assert.True(t, m.matches(workflow, config, match))

	wrongParent := matcherEvent(models.TriggerThreadCreate, map[string]any{
		events.RawParentChannel: "channel-general",
		events.RawEntityName:    "support request",
	})
	assert.False(t, m.matches(workflow, config, wrongParent))

	wrongName := matcherEvent(models.TriggerThreadCreate, map[string]any{
		events.RawParentChannel: "channel-help",
		events.RawEntityName:    "chitchat",
	})
	assert.False(t, m.matches(workflow, config, wrongName))
}

func TestMatchRoleChangeFilter(t *testing.T) {
	m := newTestMatcher()
	workflow := &models.Workflow{ID: "wf-1", TriggerType: models.TriggerRoleAdd}

	unfiltered := models.RoleChangeTriggerConfig{}
	event := matcherEvent(models.TriggerRoleAdd, map[string]any{"role_id": "role-vip"})
	assert.True(t, m.matches(workflow, unfiltered, event))

	filtered := models.RoleChangeTriggerConfig{RoleIDs: []string{"role-admin"}}
	assert.False(t, m.matches(workflow, filtered, event))
}
