package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/guildflow/guildflow/pkg/actions"
	"github.com/guildflow/guildflow/pkg/conditions"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/execlog"
	"github.com/guildflow/guildflow/pkg/governor"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence/file"
	"github.com/guildflow/guildflow/pkg/protocol"
	"github.com/guildflow/guildflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEffector struct {
	mu       sync.Mutex
	calls    []models.ActionType
	failures map[models.ActionType]string
	panics   map[models.ActionType]string
}

func (e *countingEffector) Execute(_ context.Context, action models.ActionType, _ models.ActionConfig, _ *events.GatewayEvent) (*protocol.EffectResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, action)
	e.mu.Unlock()

	if msg, ok := e.panics[action]; ok {
		panic(msg)
	}

	if msg, ok := e.failures[action]; ok {
		return &protocol.EffectResult{Success: false, Error: msg}, nil
	}

	return &protocol.EffectResult{Success: true}, nil
}

func (e *countingEffector) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.calls)
}

type capturingPublisher struct {
	mu      sync.Mutex
	results []events.DispatchCompleted
}

func (p *capturingPublisher) PublishDispatchCompleted(_ context.Context, result events.DispatchCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.results = append(p.results, result)

	return nil
}

type fixture struct {
	store      *file.Persistence
	effector   *countingEffector
	publisher  *capturingPublisher
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())

	effector := &countingEffector{
		failures: map[models.ActionType]string{},
		panics:   map[models.ActionType]string{},
	}
	publisher := &capturingPublisher{}

	reg := registry.NewRegistry(logger)
	registry.RegisterBuiltins(reg, effector, store.Variables())

	evaluator := conditions.NewEvaluator(logger)
	executor := actions.NewExecutor(reg, evaluator, actions.NewStoredVariables(store.Variables()), logger)
	logs := execlog.NewLogger(store.ExecutionLogs(), logger)
	gov := governor.New(governor.NewMemoryStore(), logger)

	d := New(store, gov, evaluator, executor, logs, logger).WithPublisher(publisher)

	return &fixture{store: store, effector: effector, publisher: publisher, dispatcher: d}
}

func (f *fixture) seed(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.store.Workflows().(*file.WorkflowRepository).Save(context.Background(), workflow))
}

func messageWorkflow(id string, priority int) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		ServerID:    "server-1",
		Name:        "greeter " + id,
		TriggerType: models.TriggerMessageReceived,
		Enabled:     true,
		Priority:    priority,
		Actions: []*models.Action{
			{
				ID:         id + "-a1",
				WorkflowID: id,
				SortOrder:  0,
				Type:       models.ActionSendMessage,
				Config:     json.RawMessage(`{"content":"hello {user.name}"}`),
			},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func gatewayMessage(content string) *events.GatewayEvent {
	return &events.GatewayEvent{
		ID:        "evt-1",
		Type:      models.TriggerMessageReceived,
		ServerID:  "server-1",
		UserID:    "user-1",
		ChannelID: "channel-1",
		Timestamp: time.Now().UTC(),
		Raw: map[string]any{
			events.RawContent:  content,
			events.RawUserName: "Ada",
		},
	}
}

func (f *fixture) logsFor(t *testing.T, workflowID string) []*models.ExecutionLog {
	t.Helper()

	entries, err := f.store.ExecutionLogs().ByWorkflow(context.Background(), workflowID, 50)
	require.NoError(t, err)

	return entries
}

func TestDispatchSuccessWritesLogAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, messageWorkflow("wf-1", 0))

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.Equal(t, "wf-1", outcomes[0].WorkflowID)
	assert.Equal(t, models.StatusSuccess, outcomes[0].Status)
	assert.Equal(t, 1, outcomes[0].ActionsExecuted)
	assert.NotEmpty(t, outcomes[0].LogID)
	assert.Equal(t, 1, f.effector.callCount())

	entries := f.logsFor(t, "wf-1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusSuccess, entries[0].Status)
	assert.NotNil(t, entries[0].FinishedAt)
	assert.Equal(t, "evt-1", entries[0].Trigger.EventID)

	require.Len(t, f.publisher.results, 1)
	assert.Equal(t, "wf-1", f.publisher.results[0].WorkflowID)
	assert.Equal(t, models.StatusSuccess, f.publisher.results[0].Status)
}

func TestDispatchConditionSkipDoesNotBurnCooldown(t *testing.T) {
	f := newFixture(t)

	workflow := messageWorkflow("wf-1", 0)
	workflow.CooldownEnabled = true
	workflow.CooldownSeconds = 3600
	workflow.CooldownType = models.CooldownUser
	workflow.Conditions = []*models.Condition{
		{
			ID:     "c1",
			Type:   models.ConditionChannelMatches,
			Config: json.RawMessage(`{"channel_ids":["channel-2"]}`),
		},
	}
	f.seed(t, workflow)

	// channel-1 fails the condition: skipped, no cooldown claimed.
	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusSkipped, outcomes[0].Status)
	assert.Equal(t, 0, f.effector.callCount())

	// channel-2 passes and must not be blocked by the earlier skip.
	passing := gatewayMessage("hi")
	passing.ChannelID = "channel-2"

	outcomes, err = f.dispatcher.Dispatch(context.Background(), passing)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusSuccess, outcomes[0].Status)

	// The success claimed the slot; the same user is now on cooldown.
	outcomes, err = f.dispatcher.Dispatch(context.Background(), passing)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusCooldown, outcomes[0].Status)
	assert.Equal(t, 1, f.effector.callCount())
}

func TestDispatchRateLimited(t *testing.T) {
	f := newFixture(t)

	workflow := messageWorkflow("wf-1", 0)
	workflow.MaxExecutionsPerHour = 1
	f.seed(t, workflow)

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusSuccess, outcomes[0].Status)

	outcomes, err = f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi again"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusRateLimited, outcomes[0].Status)
	assert.Equal(t, 1, f.effector.callCount())

	entries := f.logsFor(t, "wf-1")
	require.Len(t, entries, 2)
}

func TestDispatchOrdersByPriorityThenID(t *testing.T) {
	f := newFixture(t)
	f.seed(t, messageWorkflow("wf-b", 5))
	f.seed(t, messageWorkflow("wf-c", 10))
	f.seed(t, messageWorkflow("wf-a", 5))

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "wf-c", outcomes[0].WorkflowID)
	assert.Equal(t, "wf-a", outcomes[1].WorkflowID)
	assert.Equal(t, "wf-b", outcomes[2].WorkflowID)
}

func TestDispatchFailingWorkflowDoesNotBlockSiblings(t *testing.T) {
	f := newFixture(t)
	f.effector.failures[models.ActionSendDM] = "dm channel closed"

	broken := messageWorkflow("wf-a", 10)
	broken.Actions = []*models.Action{
		{
			ID:         "wf-a-a1",
			WorkflowID: "wf-a",
			SortOrder:  0,
			Type:       models.ActionSendDM,
			Config:     json.RawMessage(`{"content":"psst"}`),
		},
	}
	f.seed(t, broken)
	f.seed(t, messageWorkflow("wf-b", 0))

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, models.StatusFailed, outcomes[0].Status)
	assert.Equal(t, models.StatusSuccess, outcomes[1].Status)

	entries := f.logsFor(t, "wf-a")
	require.Len(t, entries, 1)
	assert.Equal(t, "wf-a-a1", entries[0].FailedActionID)
	assert.Contains(t, entries[0].Error, "dm channel closed")
}

func TestDispatchPanicFinalizesOpenLogEntry(t *testing.T) {
	f := newFixture(t)
	f.effector.panics[models.ActionSendMessage] = "nil gateway session"
	f.seed(t, messageWorkflow("wf-1", 0))

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusFailed, outcomes[0].Status)
	assert.NotEmpty(t, outcomes[0].LogID)

	// The entry opened before the panic must not stay stuck at started.
	entries := f.logsFor(t, "wf-1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
	assert.NotNil(t, entries[0].FinishedAt)
	assert.Contains(t, entries[0].Error, "panic")
	assert.Contains(t, entries[0].Error, "nil gateway session")
}

func TestDispatchInvalidTriggerConfigIsSkippedWithWarning(t *testing.T) {
	f := newFixture(t)

	workflow := messageWorkflow("wf-1", 0)
	workflow.TriggerConfig = json.RawMessage(`{"keyword_match_type":"fuzzy"}`)
	f.seed(t, workflow)

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusSkipped, outcomes[0].Status)
	assert.Equal(t, 0, f.effector.callCount())

	entries := f.logsFor(t, "wf-1")
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Warnings)
}

func TestDispatchFilterMismatchLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	workflow := messageWorkflow("wf-1", 0)
	workflow.TriggerConfig = json.RawMessage(`{"keywords":["deploy"],"keyword_match_type":"contains"}`)
	f.seed(t, workflow)

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("lunch?"))
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, f.logsFor(t, "wf-1"))
}

func TestDispatchDisabledWorkflowIgnored(t *testing.T) {
	f := newFixture(t)

	workflow := messageWorkflow("wf-1", 0)
	workflow.Enabled = false
	f.seed(t, workflow)

	outcomes, err := f.dispatcher.Dispatch(context.Background(), gatewayMessage("hi"))
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestDispatchUnknownEventTypeIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(t, messageWorkflow("wf-1", 0))

	event := gatewayMessage("hi")
	event.Type = models.TriggerType("poll_created")

	outcomes, err := f.dispatcher.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
