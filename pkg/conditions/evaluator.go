// Package conditions evaluates a workflow's stored condition set against an
// event context. The overall predicate is a disjunction of conjunctions:
// conditions sharing a group index are AND-ed, groups are OR-ed together.
package conditions

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
)

// Result carries the verdict plus any non-fatal evaluation warnings. A
// misconfigured condition contributes false and a warning; it never aborts
// the surrounding dispatch.
type Result struct {
	Passed   bool
	Warnings []string
}

type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate applies the stored condition set to the event. Zero conditions
// pass vacuously. Groups are tried in ascending index order and short-circuit
// on the first passing group; within a group conditions run in sort order and
// short-circuit on the first failure.
func (e *Evaluator) Evaluate(conds []*models.Condition, event *events.GatewayEvent) Result {
	if len(conds) == 0 {
		return Result{Passed: true}
	}

	groups := make(map[int][]*models.Condition)
	for _, cond := range conds {
		groups[cond.GroupIndex] = append(groups[cond.GroupIndex], cond)
	}

	indices := make([]int, 0, len(groups))
	for idx := range groups {
		indices = append(indices, idx)
	}

	sort.Ints(indices)

	result := Result{}

	for _, idx := range indices {
		group := groups[idx]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].SortOrder < group[j].SortOrder
		})

		if e.evaluateGroup(group, event, &result) {
			result.Passed = true

			return result
		}
	}

	return result
}

// evaluateGroup ANDs the group's conditions, short-circuiting on the first
// false. Unevaluated conditions are skipped entirely.
func (e *Evaluator) evaluateGroup(group []*models.Condition, event *events.GatewayEvent, result *Result) bool {
	for _, cond := range group {
		raw, warning := e.evaluateOne(cond, event)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
			e.logger.Warn("Condition evaluation warning",
				"condition_id", cond.ID,
				"condition_type", cond.Type,
				"warning", warning)
		}

		// Negation flips the raw result before it enters the AND.
		if effective := raw != cond.Negated; !effective {
			return false
		}
	}

	return true
}

// evaluateOne runs a single condition, failing closed on unknown types and
// malformed configs.
func (e *Evaluator) evaluateOne(cond *models.Condition, event *events.GatewayEvent) (bool, string) {
	cfg, err := models.DecodeConditionConfig(cond.Type, cond.Config)
	if err != nil {
		return false, fmt.Sprintf("condition %s: %v", cond.ID, err)
	}

	switch c := cfg.(type) {
	case models.RoleConditionConfig:
		return matchSet(event.MemberRoles(), c.RoleIDs, c.RequireAll), ""
	case models.ChannelConditionConfig:
		return contains(c.ChannelIDs, event.ChannelID), ""
	case models.UserConditionConfig:
		return contains(c.UserIDs, event.UserID), ""
	case models.PermissionConditionConfig:
		return matchSet(event.Permissions(), c.Permissions, c.RequireAll), ""
	case models.ContentConditionConfig:
		return matchContent(event.Content(), c)
	case models.TimeWindowConditionConfig:
		return matchTimeWindow(event, c), ""
	case models.NumericConditionConfig:
		return matchNumeric(event, c)
	default:
		return false, fmt.Sprintf("condition %s: unhandled condition type %q", cond.ID, cond.Type)
	}
}

// matchSet reports whether have covers any (or all) of want.
func matchSet(have, want []string, requireAll bool) bool {
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		haveSet[h] = struct{}{}
	}

	matched := 0

	for _, w := range want {
		if _, ok := haveSet[w]; ok {
			matched++
		}
	}

	if requireAll {
		return matched == len(want)
	}

	return matched > 0
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

// MatchKeyword compares content against value using the given match type.
// Shared with the dispatcher's trigger-level keyword filters. Regex compile
// failures are reported; the caller treats them as no match.
func MatchKeyword(content, value string, matchType models.KeywordMatchType, caseSensitive bool) (bool, error) {
	if !caseSensitive && matchType != models.MatchRegex {
		content = strings.ToLower(content)
		value = strings.ToLower(value)
	}

	switch matchType {
	case models.MatchContains, "":
		return strings.Contains(content, value), nil
	case models.MatchStartsWith:
		return strings.HasPrefix(content, value), nil
	case models.MatchEndsWith:
		return strings.HasSuffix(content, value), nil
	case models.MatchExact:
		return content == value, nil
	case models.MatchRegex:
		expr := value
		if !caseSensitive {
			expr = "(?i)" + expr
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", value, err)
		}

		return re.MatchString(content), nil
	default:
		return false, fmt.Errorf("unknown keyword match type %q", matchType)
	}
}

func matchContent(content string, c models.ContentConditionConfig) (bool, string) {
	ok, err := MatchKeyword(content, c.Value, c.MatchType, c.CaseSensitive)
	if err != nil {
		return false, err.Error()
	}

	return ok, ""
}

func matchTimeWindow(event *events.GatewayEvent, c models.TimeWindowConditionConfig) bool {
	at := event.Timestamp.UTC()

	if len(c.Weekdays) > 0 {
		day := int(at.Weekday())
		found := false

		for _, d := range c.Weekdays {
			if d == day {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	hour := at.Hour()
	if c.StartHour <= c.EndHour {
		return hour >= c.StartHour && hour <= c.EndHour
	}

	// Window wraps midnight.
	return hour >= c.StartHour || hour <= c.EndHour
}

func matchNumeric(event *events.GatewayEvent, c models.NumericConditionConfig) (bool, string) {
	var (
		value float64
		ok    bool
	)

	switch c.Field {
	case "server.member_count":
		value, ok = event.RawNumber(events.RawMemberCount)
	case "message.length":
		value, ok = float64(len(event.Content())), true
	default:
		value, ok = event.RawNumber(c.Field)
	}

	if !ok {
		return false, fmt.Sprintf("numeric field %q not present on event", c.Field)
	}

	switch c.Operator {
	case "eq":
		return value == c.Value, ""
	case "ne":
		return value != c.Value, ""
	case "gt":
		return value > c.Value, ""
	case "gte":
		return value >= c.Value, ""
	case "lt":
		return value < c.Value, ""
	case "lte":
		return value <= c.Value, ""
	default:
		return false, fmt.Sprintf("unknown numeric operator %q", c.Operator)
	}
}
