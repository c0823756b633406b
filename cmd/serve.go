package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/yardline/internal/api"
	"github.com/yardline/internal/config"
	"github.com/yardline/internal/database"
	"github.com/yardline/internal/jobqueue"
	"github.com/yardline/internal/logging"
	"github.com/yardline/internal/market"
	"github.com/yardline/internal/messaging"
	"github.com/yardline/internal/notifications"
	"github.com/yardline/internal/realtime"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Yardline messaging API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

			databaseURL := cfg.Database.URL
			if databaseURL == "" {
				databaseURL, err = database.LoadDatabaseURL()
				if err != nil {
					return fmt.Errorf("failed to resolve database URL: %w", err)
				}
			}

			db, err := database.NewDB(databaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := database.EnsureSchema(context.Background(), db); err != nil {
				return fmt.Errorf("failed to ensure schema: %w", err)
			}

			subjects := market.NewStorage(db)
			store := messaging.NewStorage(db)
			ledger := notifications.NewLedger(db)
			registry := realtime.NewRegistry(time.Duration(cfg.Realtime.SendTimeoutMS) * time.Millisecond)

			queue, err := jobqueue.NewJobQueue(databaseURL, ledger, registry)
			if err != nil {
				return fmt.Errorf("failed to create job queue: %w", err)
			}
			if err := queue.Start(context.Background()); err != nil {
				return fmt.Errorf("failed to start job queue: %w", err)
			}

			service := messaging.NewService(subjects, store, ledger, queue, cfg.Messaging.MaxContentLength)

			log.Info().Int("port", cfg.Server.Port).Msg("starting Yardline API server")
			server := api.NewServer(cfg, service, ledger, registry)
			serveErr := server.Start()

			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				log.Warn().Err(err).Msg("job queue did not stop cleanly")
			}

			return serveErr
		},
	}
}
