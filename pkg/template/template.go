// Package template provides variable substitution for dynamic action
// configuration. Tokens use the platform's {namespace.field} grammar; bare
// {name} tokens resolve stored custom variables with workflow, channel, user
// then server precedence. Unresolved tokens are left verbatim so the action's
// side effect surfaces the misconfiguration instead of silently dropping it.
package template

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/guildflow/guildflow/pkg/events"
)

const randomChoicePrefix = "random.choice:"

// VariableSource resolves stored custom variables. The bool reports whether a
// value was found; lookup errors degrade to "not found" at the resolver level.
type VariableSource interface {
	ResolveVariable(ctx context.Context, serverID, workflowID, channelID, userID, name string) (string, bool, error)
}

// Context carries everything a resolution pass may reference.
type Context struct {
	Event      *events.GatewayEvent
	WorkflowID string
	Variables  VariableSource
}

// Render substitutes every {token} in input using the given context. It never
// fails; unknown tokens pass through verbatim.
func Render(ctx context.Context, input string, rc *Context) string {
	if !strings.Contains(input, "{") {
		return input
	}

	var out strings.Builder

	rest := input

	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)

			break
		}

		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			out.WriteString(rest)

			break
		}

		out.WriteString(rest[:open])

		token := rest[open+1 : open+closing]

		value, ok := resolveToken(ctx, token, rc)
		if ok {
			out.WriteString(value)
		} else {
			out.WriteString(rest[open : open+closing+1])
		}

		rest = rest[open+closing+1:]
	}

	return out.String()
}

// Resolver returns a substitution closure suitable for
// models.ActionConfig.ApplyTemplates.
func Resolver(ctx context.Context, rc *Context) func(string) string {
	return func(s string) string {
		return Render(ctx, s, rc)
	}
}

func resolveToken(ctx context.Context, token string, rc *Context) (string, bool) {
	if token == "" {
		return "", false
	}

	if strings.HasPrefix(token, randomChoicePrefix) {
		return randomChoice(token[len(randomChoicePrefix):])
	}

	if ns, field, ok := strings.Cut(token, "."); ok {
		return resolveNamespaced(ns, field, rc)
	}

	return resolveCustom(ctx, token, rc)
}

func resolveNamespaced(namespace, field string, rc *Context) (string, bool) {
	event := rc.Event
	if event == nil {
		return "", false
	}

	switch namespace {
	case "user":
		switch field {
		case "id":
			return event.UserID, true
		case "mention":
			if m := rawString(event, events.RawUserMention); m != "" {
				return m, true
			}

			return "<@" + event.UserID + ">", event.UserID != ""
		case "name":
			return rawString(event, events.RawUserName), true
		}
	case "channel":
		switch field {
		case "id":
			return event.ChannelID, true
		case "mention":
			return "<#" + event.ChannelID + ">", event.ChannelID != ""
		case "name":
			return rawString(event, events.RawChannelName), true
		}
	case "server":
		switch field {
		case "id":
			return event.ServerID, true
		case "name":
			return rawString(event, events.RawServerName), true
		case "memberCount":
			if n, ok := event.RawNumber(events.RawMemberCount); ok {
				return strconv.FormatInt(int64(n), 10), true
			}

			return "", false
		}
	case "message":
		switch field {
		case "id":
			return event.MessageID, true
		case "content":
			return event.Content(), true
		}
	case "trigger":
		switch field {
		case "type":
			return string(event.Type), true
		case "timestamp":
			return event.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"), true
		}
	case "random":
		switch field {
		case "number":
			return strconv.Itoa(rand.IntN(1000000)), true
		case "uuid":
			return uuid.NewString(), true
		}
	}

	return "", false
}

func randomChoice(list string) (string, bool) {
	choices := strings.Split(list, ",")
	if len(choices) == 0 {
		return "", false
	}

	return strings.TrimSpace(choices[rand.IntN(len(choices))]), true
}

// resolveCustom looks a bare {name} token up in stored variables, trying
// workflow scope first, then channel, user and finally server-wide.
func resolveCustom(ctx context.Context, name string, rc *Context) (string, bool) {
	if rc.Variables == nil || rc.Event == nil {
		return "", false
	}

	value, found, err := rc.Variables.ResolveVariable(ctx, rc.Event.ServerID, rc.WorkflowID, rc.Event.ChannelID, rc.Event.UserID, name)
	if err != nil || !found {
		return "", false
	}

	return value, true
}

func rawString(event *events.GatewayEvent, key string) string {
	if event.Raw == nil {
		return ""
	}

	s, _ := event.Raw[key].(string)

	return s
}
