// Package scheduler feeds scheduled-trigger workflows into the event bus.
// Each enabled workflow with a cron trigger becomes a cron job that emits a
// gateway event stamped with the workflow's id, so the dispatcher fires
// exactly that workflow.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guildflow/guildflow/pkg/eventbus"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/models"
	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultReloadInterval = time.Minute

type Scheduler struct {
	store          persistence.Persistence
	bus            eventbus.EventBus
	logger         *slog.Logger
	reloadInterval time.Duration

	mu        sync.Mutex
	cron      *cron.Cron
	signature map[string]string
	stop      context.CancelFunc
}

func New(store persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:          store,
		bus:            bus,
		logger:         logger.With("module", "scheduler"),
		reloadInterval: DefaultReloadInterval,
	}
}

// WithReloadInterval overrides how often the workflow set is re-read.
func (s *Scheduler) WithReloadInterval(interval time.Duration) *Scheduler {
	s.reloadInterval = interval

	return s
}

// Start loads the current scheduled workflows and keeps reloading them until
// Stop is called or ctx is cancelled. Edits to workflows are picked up on
// the next reload without a restart.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return fmt.Errorf("failed to load scheduled workflows: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel

	go func() {
		ticker := time.NewTicker(s.reloadInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := s.reload(runCtx); err != nil {
					s.logger.Error("Failed to reload scheduled workflows", "error", err)
				}
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

// reload swaps the cron job set when the scheduled workflow set changed.
func (s *Scheduler) reload(ctx context.Context) error {
	workflows, err := s.store.Workflows().Scheduled(ctx)
	if err != nil {
		return err
	}

	jobs := make(map[string]string, len(workflows))
	byID := make(map[string]*models.Workflow, len(workflows))

	for _, workflow := range workflows {
		config, err := models.DecodeTriggerConfig(workflow.TriggerType, workflow.TriggerConfig)
		if err != nil {
			s.logger.Warn("Skipping workflow with invalid schedule config",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		schedule, ok := config.(models.ScheduleTriggerConfig)
		if !ok {
			continue
		}

		if _, err := cron.ParseStandard(schedule.Cron); err != nil {
			s.logger.Warn("Skipping workflow with invalid cron expression",
				"workflow_id", workflow.ID, "cron", schedule.Cron, "error", err)

			continue
		}

		jobs[workflow.ID] = schedule.Cron
		byID[workflow.ID] = workflow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sameJobs(s.signature, jobs) {
		return nil
	}

	next := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	for workflowID, expr := range jobs {
		workflow := byID[workflowID]

		if _, err := next.AddFunc(expr, func() { s.emit(workflow) }); err != nil {
			s.logger.Error("Failed to register cron job",
				"workflow_id", workflowID, "cron", expr, "error", err)
		}
	}

	if s.cron != nil {
		s.cron.Stop()
	}

	s.cron = next
	s.signature = jobs
	s.cron.Start()

	s.logger.Info("Scheduled workflows loaded", "count", len(jobs))

	return nil
}

func (s *Scheduler) emit(workflow *models.Workflow) {
	event := &events.GatewayEvent{
		ID:        s.bus.GenerateID(),
		Type:      models.TriggerScheduled,
		ServerID:  workflow.ServerID,
		Timestamp: time.Now().UTC(),
		Raw: map[string]any{
			events.RawWorkflowID: workflow.ID,
		},
	}

	if err := s.bus.PublishGatewayEvent(context.Background(), event); err != nil {
		s.logger.Error("Failed to publish scheduled event",
			"workflow_id", workflow.ID, "error", err)
	}
}

func sameJobs(current, next map[string]string) bool {
	if len(current) != len(next) {
		return false
	}

	for id, expr := range next {
		if current[id] != expr {
			return false
		}
	}

	return true
}
