// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/logging"
	"github.com/toolhost/toolhost/internal/observability"
	"github.com/toolhost/toolhost/pkg/errutil"
	"github.com/toolhost/toolhost/pkg/toolsdk"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tool host",
		Long: `Run the tool host: load the builtin devtools plugin and every
external plugin under the plugins directory, then serve invocations
until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("workspace", "", "workspace directory for filesystem tools")
	cmd.Flags().String("plugins_dir", "", "directory scanned for external plugins")
	cmd.Flags().String("metrics_addr", "", "observability listen address")
	cmd.Flags().String("log_format", "", "log format: json or text")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("toolhost", version, cfg.LogFormat)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observer toolsdk.Observer
	var obs *observability.Server
	var ready atomic.Bool
	if cfg.MetricsAddr != "" {
		obs = observability.NewServer(cfg.MetricsAddr, ready.Load)
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = obs.Stop(shutdownCtx)
		}()
		observer = obs.Metrics()
	}

	m, err := buildManager(cfg, logger, observer, nil)
	if err != nil {
		errutil.LogError(logger, "failed to build plugin manager", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := m.Close(shutdownCtx); closeErr != nil {
			errutil.LogError(logger, "shutdown error", closeErr)
		}
	}()

	if err := m.LoadAll(ctx, cfg.PluginsDir); err != nil {
		errutil.LogError(logger, "plugin discovery failed", err)
		return err
	}

	plugins := m.Plugins()
	if obs != nil {
		obs.Metrics().SetPluginsLoaded(len(plugins))
	}
	ready.Store(true)

	logger.Info("toolhost ready",
		"plugins", plugins,
		"workspace", cfg.Workspace,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
