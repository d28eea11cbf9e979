package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/guildflow/guildflow/pkg/actions"
	"github.com/guildflow/guildflow/pkg/channels/gochannel"
	"github.com/guildflow/guildflow/pkg/channels/kafka"
	"github.com/guildflow/guildflow/pkg/conditions"
	"github.com/guildflow/guildflow/pkg/dispatcher"
	"github.com/guildflow/guildflow/pkg/effector"
	"github.com/guildflow/guildflow/pkg/eventbus"
	"github.com/guildflow/guildflow/pkg/events"
	"github.com/guildflow/guildflow/pkg/execlog"
	"github.com/guildflow/guildflow/pkg/governor"
	"github.com/guildflow/guildflow/pkg/log"
	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/guildflow/guildflow/pkg/persistence/file"
	"github.com/guildflow/guildflow/pkg/persistence/postgresql"
	"github.com/guildflow/guildflow/pkg/registry"
	"github.com/guildflow/guildflow/pkg/scheduler"
	"github.com/guildflow/guildflow/pkg/web"
)

type Config struct {
	DatabaseURL  string
	EventBus     string
	KafkaBrokers string
	RedisURL     string
	APIPort      int
	Workers      int
}

// Runner owns every engine component and their shutdown order.
type Runner struct {
	config     Config
	logger     *slog.Logger
	store      persistence.Persistence
	govStore   governor.Store
	bus        eventbus.EventBus
	dispatcher *dispatcher.Dispatcher
	scheduler  *scheduler.Scheduler
	api        *web.API
	slots      chan struct{}
}

func NewRunner(ctx context.Context, config Config) (*Runner, error) {
	logger := log.WithModule("guildflow")

	store, err := newPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to set up persistence: %w", err)
	}

	govStore, err := newGovernorStore(ctx, config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to set up governor store: %w", err)
	}

	bus, err := newEventBus(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up event bus: %w", err)
	}

	evaluator := conditions.NewEvaluator(logger)

	reg := registry.NewRegistry(logger)
	registry.RegisterBuiltins(reg, effector.NewLogEffector(), store.Variables())

	executor := actions.NewExecutor(reg, evaluator, actions.NewStoredVariables(store.Variables()), logger)
	execLogger := execlog.NewLogger(store.ExecutionLogs(), logger)

	gov := governor.New(govStore, logger)

	disp := dispatcher.New(store, gov, evaluator, executor, execLogger, logger).WithPublisher(bus)

	workers := config.Workers
	if workers < 1 {
		workers = 1
	}

	runner := &Runner{
		config:     config,
		logger:     logger,
		store:      store,
		govStore:   govStore,
		bus:        bus,
		dispatcher: disp,
		scheduler:  scheduler.New(store, bus, logger),
		slots:      make(chan struct{}, workers),
	}

	if config.APIPort > 0 {
		runner.api = web.NewAPI(logger, store)
	}

	return runner, nil
}

// Run blocks until SIGINT or SIGTERM, then shuts components down in reverse
// start order.
func (r *Runner) Run(ctx context.Context) error {
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.bus.SubscribeGateway(runCtx, r.handleGatewayEvent); err != nil {
		return fmt.Errorf("failed to subscribe to gateway events: %w", err)
	}

	if err := r.scheduler.Start(runCtx); err != nil {
		return err
	}

	if r.api != nil {
		go func() {
			if err := r.api.Start(r.config.APIPort); err != nil {
				r.logger.Error("API server stopped", "error", err)
			}
		}()
	}

	r.logger.Info("Engine started",
		"event_bus", r.config.EventBus,
		"workers", cap(r.slots),
		"api_port", r.config.APIPort)

	<-runCtx.Done()
	r.logger.Info("Shutting down")

	r.scheduler.Stop()

	if err := r.bus.Close(); err != nil {
		r.logger.Error("Failed to close event bus", "error", err)
	}

	if err := r.govStore.Close(); err != nil {
		r.logger.Error("Failed to close governor store", "error", err)
	}

	if err := r.store.Close(context.Background()); err != nil {
		r.logger.Error("Failed to close persistence", "error", err)
	}

	return nil
}

// handleGatewayEvent dispatches one event under the concurrency cap. A
// returned error nacks the message so the bus can redeliver it.
func (r *Runner) handleGatewayEvent(ctx context.Context, event *events.GatewayEvent) error {
	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	outcomes, err := r.dispatcher.Dispatch(ctx, event)
	if err != nil {
		return err
	}

	for _, outcome := range outcomes {
		r.logger.Debug("Workflow dispatched",
			"event_id", event.ID,
			"workflow_id", outcome.WorkflowID,
			"status", outcome.Status,
			"actions_executed", outcome.ActionsExecuted)
	}

	return nil
}

func newPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	}

	return file.NewPersistence(databaseURL), nil
}

func newGovernorStore(ctx context.Context, redisURL string) (governor.Store, error) {
	if redisURL == "" {
		return governor.NewMemoryStore(), nil
	}

	return governor.NewRedisStore(ctx, redisURL)
}

func newEventBus(config Config, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch config.EventBus {
	case "kafka":
		brokers := strings.Split(config.KafkaBrokers, ",")

		pub, sub, err := kafka.CreateChannel(watermillLogger, brokers, "guildflow")
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "memory", "":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", config.EventBus)
	}
}
