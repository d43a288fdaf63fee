package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"satsync/internal/config"
	"satsync/internal/constants"
	"satsync/internal/middleware"
	"satsync/internal/models"
	"satsync/internal/service"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling schedulers and the HTTP trigger surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *cliOptions) error {
	a, err := openApp(ctx, opts.configPath, opts.verbose)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting satsync")

	watcher := config.NewConfigWatcher(opts.configPath, a.logger)
	watcher.OnConfigChange(func(cfg *models.Config) {
		applyLogLevel(a.logger, cfg.LogLevel, opts.verbose)
		if err := a.engine.ProvisionFromConfig(ctx, cfg); err != nil {
			a.logger.WithError(err).Error("Failed to apply reloaded mailbox configuration")
		}
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			a.logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	originated := service.NewScheduler(models.OperationGetReturnMessages, a.engine.RunOriginatedCycle,
		intervalOr(a.cfg.Sync.OriginatedIntervalSec, constants.DefaultOriginatedIntervalSec), a.logger)
	statuses := service.NewScheduler(models.OperationGetForwardStatuses, a.engine.RunStatusCycle,
		intervalOr(a.cfg.Sync.StatusIntervalSec, constants.DefaultStatusIntervalSec), a.logger)
	go originated.Start(ctx)
	go statuses.Start(ctx)
	defer originated.Stop()
	defer statuses.Stop()

	monitorInterval := a.cfg.Monitor.IntervalMin
	if monitorInterval <= 0 {
		monitorInterval = constants.DefaultMonitorIntervalMin
	}
	staleHours := a.cfg.Monitor.StaleThresholdH
	if staleHours <= 0 {
		staleHours = constants.DefaultStaleCommandHours
	}
	monitor := service.NewCommandMonitor(a.db, a.metrics, a.notifier,
		time.Duration(monitorInterval)*time.Minute, time.Duration(staleHours)*time.Hour, a.logger)
	go monitor.Start(ctx)
	defer monitor.Stop()

	var signer *middleware.Signer
	if a.cfg.Server.JWTSecret != "" {
		signer = &middleware.Signer{Secret: []byte(a.cfg.Server.JWTSecret), TTL: 24 * time.Hour}
	} else {
		a.logger.Warn("server.jwt_secret is not set, the command API is unauthenticated")
	}

	server := NewServer(a.cfg.Server.Port, a.engine, a.db, a.metrics, a.hub, signer, a.logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		a.logger.WithError(err).Error("HTTP server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	a.logger.Info("Shutdown completed")
	return nil
}

func newPollCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "poll originated|statuses",
		Short:     "Run one synchronization cycle and exit",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"originated", "statuses"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.configPath, opts.verbose)
			if err != nil {
				return err
			}
			defer a.close()

			run := a.engine.RunOriginatedCycle
			if args[0] == "statuses" {
				run = a.engine.RunStatusCycle
			}
			report, err := run(cmd.Context(), false)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newSendCmd(opts *cliOptions) *cobra.Command {
	var req service.SubmitRequest
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit one catalog command to a terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.configPath, opts.verbose)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := a.engine.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int64{"forward_id": id})
		},
	}
	cmd.Flags().StringVar(&req.MobileID, "mobile", "", "Destination mobile id")
	cmd.Flags().StringVar(&req.Command, "cmd", "", "Catalog command name")
	cmd.Flags().Int64Var(&req.UserMessageID, "user-message-id", 0, "Caller supplied message id")
	_ = cmd.MarkFlagRequired("mobile")
	_ = cmd.MarkFlagRequired("cmd")
	return cmd
}

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := newLogger()
			applyLogLevel(logger, cfg.LogLevel, opts.verbose)

			// Open applies every pending migration
			db, err := openDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			logger.WithField("driver", db.Driver()).Info("Database schema is up to date")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "satsync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
