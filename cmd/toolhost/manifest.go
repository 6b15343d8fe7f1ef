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

// NewManifestCmd creates the manifest subcommand.
func NewManifestCmd() *cobra.Command {
	var pluginID string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print a plugin's capability manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := logging.Setup("toolhost", version, cfg.LogFormat, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			m, err := buildManager(cfg, logger, nil, nil)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(cmd.Context()) }()

			if pluginID != host.BuiltinPluginID {
				if err := m.LoadAll(cmd.Context(), cfg.PluginsDir); err != nil {
					return err
				}
			}

			doc, err := m.ManifestJSON(pluginID)
			if err != nil {
				return err
			}
			cmd.Println(doc)
			return nil
		},
	}

	cmd.Flags().StringVar(&pluginID, "plugin", host.BuiltinPluginID, "plugin whose manifest to print")
	cmd.Flags().String("workspace", "", "workspace directory for filesystem tools")
	cmd.Flags().String("plugins_dir", "", "directory scanned for external plugins")

	return cmd
}
