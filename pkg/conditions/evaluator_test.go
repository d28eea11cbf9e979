package conditions

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func condition(id string, group int, condType models.ConditionType, config any, negated bool, sortOrder int) *models.Condition {
	raw, err := json.Marshal(config)
	if err != nil {
		panic(err)
	}

	return &models.Condition{
		ID:         id,
		GroupIndex: group,
		Type:       condType,
		Config:     raw,
		Negated:    negated,
		SortOrder:  sortOrder,
	}
}

func messageEvent(content string, roles ...string) *events.GatewayEvent {
	return &events.GatewayEvent{
		ID:        "evt-1",
		Type:      models.TriggerMessageReceived,
		ServerID:  "server-1",
		UserID:    "user-1",
		ChannelID: "channel-1",
		Timestamp: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Raw: map[string]any{
			events.RawContent:     content,
			events.RawMemberRoles: rolesAny(roles),
		},
	}
}

func rolesAny(roles []string) []any {
	out := make([]any, len(roles))
	for i, r := range roles {
		out[i] = r
	}

	return out
}

func TestEvaluateNoConditionsPasses(t *testing.T) {
	result := newTestEvaluator().Evaluate(nil, messageEvent("hello"))

	assert.True(t, result.Passed)
	assert.Empty(t, result.Warnings)
}

func TestEvaluateSingleGroupAllMustPass(t *testing.T) {
	evaluator := newTestEvaluator()
	event := messageEvent("welcome friends", "role-mod")

	conds := []*models.Condition{
		condition("c1", 0, models.ConditionUserHasRole,
			models.RoleConditionConfig{RoleIDs: []string{"role-mod"}}, false, 0),
		condition("c2", 0, models.ConditionContentMatches,
			models.ContentConditionConfig{MatchType: models.MatchContains, Value: "welcome"}, false, 1),
	}

	assert.True(t, evaluator.Evaluate(conds, event).Passed)

	conds[1] = condition("c2", 0, models.ConditionContentMatches,
		models.ContentConditionConfig{MatchType: models.MatchContains, Value: "goodbye"}, false, 1)

	assert.False(t, evaluator.Evaluate(conds, event).Passed)
}

func TestEvaluateGroupsAreORed(t *testing.T) {
	evaluator := newTestEvaluator()
	event := messageEvent("hello", "role-member")

	conds := []*models.Condition{
		// Group 0 fails: user lacks the role.
		condition("c1", 0, models.ConditionUserHasRole,
			models.RoleConditionConfig{RoleIDs: []string{"role-admin"}}, false, 0),
		// Group 1 passes.
		condition("c2", 1, models.ConditionChannelMatches,
			models.ChannelConditionConfig{ChannelIDs: []string{"channel-1"}}, false, 0),
	}

	assert.True(t, evaluator.Evaluate(conds, event).Passed)
}

func TestEvaluateNegation(t *testing.T) {
	evaluator := newTestEvaluator()
	event := messageEvent("hello")

	negated := []*models.Condition{
		condition("c1", 0, models.ConditionChannelMatches,
			models.ChannelConditionConfig{ChannelIDs: []string{"channel-ignored"}}, true, 0),
	}

	assert.True(t, evaluator.Evaluate(negated, event).Passed)

	negated[0].Negated = false

	assert.False(t, evaluator.Evaluate(negated, event).Passed)
}

func TestEvaluateUnknownTypeFailsClosedWithWarning(t *testing.T) {
	evaluator := newTestEvaluator()

	conds := []*models.Condition{
		{ID: "c1", GroupIndex: 0, Type: "astrology_sign", Config: json.RawMessage(`{}`)},
	}

	result := evaluator.Evaluate(conds, messageEvent("hello"))

	assert.False(t, result.Passed)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "c1")
}

func TestEvaluateMalformedConfigFailsGroupOnly(t *testing.T) {
	evaluator := newTestEvaluator()
	event := messageEvent("hello")

	conds := []*models.Condition{
		{ID: "bad", GroupIndex: 0, Type: models.ConditionContentMatches, Config: json.RawMessage(`{"match_type":"contains"}`)},
		condition("ok", 1, models.ConditionChannelMatches,
			models.ChannelConditionConfig{ChannelIDs: []string{"channel-1"}}, false, 0),
	}

	result := evaluator.Evaluate(conds, event)

	assert.True(t, result.Passed)
	assert.NotEmpty(t, result.Warnings)
}

func TestEvaluateGroupShortCircuits(t *testing.T) {
	evaluator := newTestEvaluator()
	event := messageEvent("hello")

	// The second condition in group 0 is malformed; it must never run because
	// the first condition already failed the group.
	conds := []*models.Condition{
		condition("c1", 0, models.ConditionChannelMatches,
			models.ChannelConditionConfig{ChannelIDs: []string{"other"}}, false, 0),
		{ID: "c2", GroupIndex: 0, SortOrder: 1, Type: models.ConditionContentMatches, Config: json.RawMessage(`{`)},
	}

	result := evaluator.Evaluate(conds, event)

	assert.False(t, result.Passed)
	assert.Empty(t, result.Warnings)
}

func TestEvaluateRequireAllRoles(t *testing.T) {
	evaluator := newTestEvaluator()
	event := messageEvent("hello", "role-a", "role-b")

	all := []*models.Condition{
		condition("c1", 0, models.ConditionUserHasRole,
			models.RoleConditionConfig{RoleIDs: []string{"role-a", "role-c"}, RequireAll: true}, false, 0),
	}

	assert.False(t, evaluator.Evaluate(all, event).Passed)

	anyOf := []*models.Condition{
		condition("c1", 0, models.ConditionUserHasRole,
			models.RoleConditionConfig{RoleIDs: []string{"role-a", "role-c"}}, false, 0),
	}

	assert.True(t, evaluator.Evaluate(anyOf, event).Passed)
}

func TestEvaluateTimeWindowWrapsMidnight(t *testing.T) {
	evaluator := newTestEvaluator()

	event := messageEvent("hello")
	event.Timestamp = time.Date(2025, 6, 2, 23, 15, 0, 0, time.UTC)

	conds := []*models.Condition{
		condition("c1", 0, models.ConditionTimeWindow,
			models.TimeWindowConditionConfig{StartHour: 22, EndHour: 2}, false, 0),
	}

	assert.True(t, evaluator.Evaluate(conds, event).Passed)

	event.Timestamp = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	assert.False(t, evaluator.Evaluate(conds, event).Passed)
}

func TestEvaluateNumericCompare(t *testing.T) {
	evaluator := newTestEvaluator()

	event := messageEvent("hello")
	event.Raw[events.RawMemberCount] = float64(150)

	conds := []*models.Condition{
		condition("c1", 0, models.ConditionNumericCompare,
			models.NumericConditionConfig{Field: "server.member_count", Operator: "gte", Value: 100}, false, 0),
	}

	assert.True(t, evaluator.Evaluate(conds, event).Passed)

	conds[0] = condition("c1", 0, models.ConditionNumericCompare,
		models.NumericConditionConfig{Field: "server.member_count", Operator: "lt", Value: 100}, false, 0)

	assert.False(t, evaluator.Evaluate(conds, event).Passed)
}

func TestMatchKeywordModes(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		value         string
		matchType     models.KeywordMatchType
		caseSensitive bool
		want          bool
	}{
		{"contains", "say hello there", "hello", models.MatchContains, false, true},
		{"contains case sensitive miss", "say Hello", "hello", models.MatchContains, true, false},
		{"starts_with", "hello there", "hello", models.MatchStartsWith, false, true},
		{"ends_with", "see you there", "there", models.MatchEndsWith, false, true},
		{"exact", "ping", "PING", models.MatchExact, false, true},
		{"exact miss", "ping pong", "ping", models.MatchExact, false, false},
		{"regex", "order #4521", `#\d+`, models.MatchRegex, false, true},
		{"regex case insensitive", "HELLO", "hello", models.MatchRegex, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MatchKeyword(tc.content, tc.value, tc.matchType, tc.caseSensitive)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchKeywordInvalidRegex(t *testing.T) {
	_, err := MatchKeyword("content", "(", models.MatchRegex, true)

	assert.Error(t, err)
}
