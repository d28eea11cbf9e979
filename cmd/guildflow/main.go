// Package main provides the guildflow engine: it consumes gateway events,
// dispatches matching workflows, runs the cron feeder and serves the
// read-only observability API.
package main

import (
	"context"
	"os"

	"github.com/guildflow/guildflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "guildflow",
		EnableShellCompletion: true,
		Usage:                 "Run the workflow automation engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Storage backend: a postgres:// URL or a directory path for file storage",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers (required when event-bus is kafka)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for shared cooldown and rate state (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "api-port",
				Usage:   "Port for the observability API (disabled when 0)",
				Value:   8080,
				Sources: cli.EnvVars("API_PORT"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Maximum concurrent dispatches",
				Value:   8,
				Sources: cli.EnvVars("WORKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			runner, err := NewRunner(ctx, Config{
				DatabaseURL:  command.String("database-url"),
				EventBus:     command.String("event-bus"),
				KafkaBrokers: command.String("kafka-brokers"),
				RedisURL:     command.String("redis-url"),
				APIPort:      int(command.Int("api-port")),
				Workers:      int(command.Int("workers")),
			})
			if err != nil {
				return err
			}

			return runner.Run(ctx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
