package execlog

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLogStore keeps entries in memory and enforces the append/finalize
// contract the way the real repositories do.
type memoryLogStore struct {
	mu      sync.Mutex
	entries map[string]*models.ExecutionLog
}

func newMemoryLogStore() *memoryLogStore {
	return &memoryLogStore{entries: make(map[string]*models.ExecutionLog)}
}

func (s *memoryLogStore) Append(_ context.Context, entry *models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.ID] = &copied

	return nil
}

func (s *memoryLogStore) Finalize(_ context.Context, entry *models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[entry.ID]
	if !ok {
		return persistence.NewStoreError("Finalize", entry.ID, persistence.ErrExecutionLogNotFound)
	}

	if stored.Status != models.StatusStarted {
		return persistence.NewStoreError("Finalize", entry.ID, persistence.ErrLogFinalized)
	}

	copied := *entry
	s.entries[entry.ID] = &copied

	return nil
}

func (s *memoryLogStore) ByID(_ context.Context, id string) (*models.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, persistence.NewStoreError("ByID", id, persistence.ErrExecutionLogNotFound)
	}

	return entry, nil
}

func (s *memoryLogStore) ByWorkflow(_ context.Context, workflowID string, _ int) ([]*models.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ExecutionLog

	for _, entry := range s.entries {
		if entry.WorkflowID == workflowID {
			out = append(out, entry)
		}
	}

	return out, nil
}

func (s *memoryLogStore) ByServer(_ context.Context, serverID string, status models.ExecutionStatus, _ int) ([]*models.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ExecutionLog

	for _, entry := range s.entries {
		if entry.ServerID == serverID && (status == "" || entry.Status == status) {
			out = append(out, entry)
		}
	}

	return out, nil
}

func testLoggerWith(store persistence.ExecutionLogRepository) *Logger {
	return NewLogger(store, slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func logEvent() *events.GatewayEvent {
	return &events.GatewayEvent{
		ID:        "evt-1",
		Type:      models.TriggerMessageReceived,
		ServerID:  "server-1",
		UserID:    "user-1",
		ChannelID: "channel-1",
		MessageID: "msg-1",
		Timestamp: time.Now().UTC(),
	}
}

func TestBeginOpensStartedEntry(t *testing.T) {
	store := newMemoryLogStore()
	logger := testLoggerWith(store)
	workflow := &models.Workflow{ID: "wf-1", ServerID: "server-1"}

	handle, err := logger.Begin(context.Background(), workflow, logEvent())
	require.NoError(t, err)

	entry := handle.Entry()
	assert.Equal(t, models.StatusStarted, entry.Status)
	assert.Equal(t, "wf-1", entry.WorkflowID)
	assert.Equal(t, "evt-1", entry.Trigger.EventID)
	assert.Nil(t, entry.FinishedAt)

	stored, err := store.ByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, stored.Status)
}

func TestFinishWritesTerminalState(t *testing.T) {
	store := newMemoryLogStore()
	logger := testLoggerWith(store)
	workflow := &models.Workflow{ID: "wf-1", ServerID: "server-1"}

	handle, err := logger.Begin(context.Background(), workflow, logEvent())
	require.NoError(t, err)
	assert.False(t, handle.Finalized())

	err = logger.Finish(context.Background(), handle, Outcome{
		Status:          models.StatusSuccess,
		ActionsExecuted: 3,
		Results: []models.ActionResult{
			{ActionID: "a1", Type: models.ActionSendMessage, Success: true},
		},
	})
	require.NoError(t, err)

	stored, err := store.ByID(context.Background(), handle.Entry().ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, stored.Status)
	assert.Equal(t, 3, stored.ActionsExecuted)
	require.NotNil(t, stored.FinishedAt)
	assert.True(t, handle.Finalized())
}

func TestFinishRejectsSecondCall(t *testing.T) {
	store := newMemoryLogStore()
	logger := testLoggerWith(store)
	workflow := &models.Workflow{ID: "wf-1", ServerID: "server-1"}

	handle, err := logger.Begin(context.Background(), workflow, logEvent())
	require.NoError(t, err)

	require.NoError(t, logger.Finish(context.Background(), handle, Outcome{Status: models.StatusSuccess}))

	err = logger.Finish(context.Background(), handle, Outcome{Status: models.StatusFailed})
	assert.ErrorIs(t, err, persistence.ErrLogFinalized)

	// The first terminal state survives.
	stored, err := store.ByID(context.Background(), handle.Entry().ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, stored.Status)
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	store := newMemoryLogStore()
	logger := testLoggerWith(store)
	workflow := &models.Workflow{ID: "wf-1", ServerID: "server-1"}

	handle, err := logger.Begin(context.Background(), workflow, logEvent())
	require.NoError(t, err)

	err = logger.Finish(context.Background(), handle, Outcome{Status: models.StatusStarted})
	assert.Error(t, err)
}

func TestFinishConcurrentCallsExactlyOneWins(t *testing.T) {
	store := newMemoryLogStore()
	logger := testLoggerWith(store)
	workflow := &models.Workflow{ID: "wf-1", ServerID: "server-1"}

	handle, err := logger.Begin(context.Background(), workflow, logEvent())
	require.NoError(t, err)

	const goroutines = 8

	var (
		wg   sync.WaitGroup
		wins int32
		mu   sync.Mutex
	)

	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if logger.Finish(context.Background(), handle, Outcome{Status: models.StatusSuccess}) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
