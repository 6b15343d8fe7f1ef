// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package main

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/secrets"
)

// NewSecretsCmd creates the secrets subcommand group.
func NewSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the sealed secrets store",
		Long: `Manage the sealed secrets store. The passphrase is taken from the
` + passphraseEnv + ` environment variable. Values never leave the store in
plaintext except when injected into a tool that declares them.`,
	}

	cmd.AddCommand(newSecretsSetCmd())
	cmd.AddCommand(newSecretsDeleteCmd())
	cmd.AddCommand(newSecretsListCmd())

	return cmd
}

func requireStore() (*secrets.Store, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, err
	}
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return nil, oops.Code("SECRETS_NO_PASSPHRASE").
			Hint("export " + passphraseEnv + " before managing secrets").
			Errorf("%s is not set", passphraseEnv)
	}
	return secrets.Open(cfg.SecretsFile, []byte(passphrase))
}

func newSecretsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id>",
		Short: "Store a secret value read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireStore()
			if err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			value, err := reader.ReadString('\n')
			if err != nil && value == "" {
				return oops.Wrapf(err, "failed to read secret value from stdin")
			}
			value = strings.TrimRight(value, "\r\n")
			if value == "" {
				return oops.Errorf("secret value must not be empty")
			}

			if err := store.Set(args[0], value); err != nil {
				return err
			}
			cmd.Printf("stored secret %q\n", args[0])
			return nil
		},
	}
}

func newSecretsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := requireStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted secret %q\n", args[0])
			return nil
		},
	}
}

func newSecretsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret ids (values are never printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := requireStore()
			if err != nil {
				return err
			}
			values, err := store.Load()
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(values))
			for id := range values {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				cmd.Println(id)
			}
			return nil
		},
	}
}
