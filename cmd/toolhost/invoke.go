// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/host"
	"github.com/toolhost/toolhost/internal/logging"
)

// NewInvokeCmd creates the invoke subcommand: a one-shot invocation against
// a loaded plugin, for scripting and debugging.
func NewInvokeCmd() *cobra.Command {
	var pluginID string

	cmd := &cobra.Command{
		Use:   "invoke <tool-id> [payload-json]",
		Short: "Invoke a single tool and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			// Invocations log to stderr so stdout stays machine-readable.
			logger := logging.Setup("toolhost", version, cfg.LogFormat, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			payload := "{}"
			if len(args) == 2 {
				payload = args[1]
			}

			m, err := buildManager(cfg, logger, nil, cliApprover{})
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(cmd.Context()) }()

			if err := m.LoadAll(cmd.Context(), cfg.PluginsDir); err != nil {
				return err
			}

			result, err := m.Invoke(cmd.Context(), pluginID, args[0], payload)
			if err != nil {
				return err
			}
			cmd.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&pluginID, "plugin", host.BuiltinPluginID, "plugin to invoke")
	cmd.Flags().String("workspace", "", "workspace directory for filesystem tools")
	cmd.Flags().String("plugins_dir", "", "directory scanned for external plugins")

	return cmd
}
