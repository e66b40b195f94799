package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/audittrail/internal/app"
	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/usecase"
	"github.com/atvirokodosprendimai/audittrail/migrations"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cmd := &cli.Command{
		Name:  "audittrail",
		Usage: "Entity audit trail store with a read API and webhook delivery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./audittrail.sqlite",
				Sources: cli.EnvVars("AUDITTRAIL_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "tracking-config",
				Sources: cli.EnvVars("AUDITTRAIL_TRACKING_CONFIG"),
				Usage:   "Optional JSON file with tracking switches and overrides",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("AUDITTRAIL_LOG_LEVEL"),
				Usage:   "Log level (trace, debug, info, warn, error)",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, err
			}
			log.SetLevel(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(log),
			migrateCommand(log),
			logsCommand(log),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithError(err).Fatal("audittrail failed")
	}
}

func baseConfig(c *cli.Command) app.Config {
	return app.Config{
		DBPath:             c.String("db-path"),
		TrackingConfigPath: c.String("tracking-config"),
	}
}

func serveCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the audit log API and deliver new logs to the webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("AUDITTRAIL_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "api-token",
				Sources: cli.EnvVars("AUDITTRAIL_API_TOKEN"),
				Usage:   "Bearer token required on /v1 routes; empty disables auth",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("AUDITTRAIL_WEBHOOK_URL"),
				Usage:   "Audit log webhook target URL; logs are only written to the log when empty",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("AUDITTRAIL_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("AUDITTRAIL_WEBHOOK_TIMEOUT"),
				Usage:   "Timeout of one webhook delivery",
			},
			&cli.DurationFlag{
				Name:    "dispatch-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("AUDITTRAIL_DISPATCH_INTERVAL"),
				Usage:   "Outbox polling interval",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := baseConfig(c)
			cfg.Addr = c.String("addr")
			cfg.APIToken = c.String("api-token")
			cfg.WebhookURL = c.String("webhook-url")
			cfg.WebhookSecret = c.String("webhook-secret")
			cfg.WebhookTimeout = c.Duration("webhook-timeout")
			cfg.DispatchInterval = c.Duration("dispatch-interval")

			server, closer, err := app.NewServer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.WithError(closeErr).Warn("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.Addr).Info("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				log.WithField("signal", sig.String()).Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func migrateCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and print the schema version",
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := app.Open(ctx, baseConfig(c), log)
			if err != nil {
				return err
			}
			defer rt.Close()

			sqlDB, err := rt.DB.WriteSQLDB()
			if err != nil {
				return err
			}
			version, err := migrations.Version(ctx, sqlDB)
			if err != nil {
				return err
			}
			log.WithField("version", version).Info("schema up to date")
			return nil
		},
	}
}

func logsCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "logs",
		Usage:     "Print the stored audit logs of entity types as JSON lines",
		ArgsUsage: "<type> [type...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "record",
				Usage: "Only logs of this stringified primary key",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Value: usecase.DefaultListLimit,
				Usage: "Rows fetched per query",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			typeNames := c.Args().Slice()
			if len(typeNames) == 0 {
				return errors.New("at least one type name is required")
			}
			var recordID *string
			if c.IsSet("record") {
				v := c.String("record")
				recordID = &v
			}

			rt, err := app.Open(ctx, baseConfig(c), log)
			if err != nil {
				return err
			}
			defer rt.Close()

			enc := json.NewEncoder(c.Root().Writer)
			return usecase.ReplayHistory(ctx, rt.Audit, typeNames, recordID, int(c.Int("batch-size")), func(l domain.AuditLog) error {
				return enc.Encode(l)
			})
		},
	}
}
