package web

import (
	"log/slog"
	"strconv"

	"github.com/guildflow/guildflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger *slog.Logger
	store  persistence.Persistence
}

func NewAPI(logger *slog.Logger, store persistence.Persistence) *API {
	return &API{
		logger: logger.With("module", "api"),
		store:  store,
	}
}

func (a *API) App() *fiber.App {
	handlers := NewAPIHandlers(a.store)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Guildflow API")
	})

	app.Get("/workflows", handlers.GetWorkflows)
	app.Get("/workflows/:id", handlers.GetWorkflow)
	app.Get("/executions", handlers.GetExecutions)
	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Starting API server", "port", port)

	return a.App().Listen(":" + strconv.Itoa(port))
}
