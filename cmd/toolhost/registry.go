// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/toolhost/toolhost/internal/registry"
)

// NewRegistryCmd creates the registry subcommand group.
func NewRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Work with the plugin distribution registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate every registry index file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := registry.ValidateDir(args[0]); err != nil {
				return err
			}
			cmd.Println("registry ok")
			return nil
		},
	})

	return cmd
}
