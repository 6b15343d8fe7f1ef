// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the toolhost CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolhost",
		Short: "Toolhost - a plugin host for agent-invoked tools",
		Long: `Toolhost runs tool plugins behind a stable invocation boundary:
a builtin devtools plugin (git, HTTP, web search, filesystem, browser)
plus external plugins loaded over gRPC.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInvokeCmd())
	cmd.AddCommand(NewManifestCmd())
	cmd.AddCommand(NewSecretsCmd())
	cmd.AddCommand(NewRegistryCmd())

	return cmd
}
