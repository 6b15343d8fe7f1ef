// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/samber/oops"

	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/host"
	"github.com/toolhost/toolhost/internal/host/rpchost"
	"github.com/toolhost/toolhost/internal/permission"
	"github.com/toolhost/toolhost/internal/secrets"
	"github.com/toolhost/toolhost/internal/tools/browser"
	"github.com/toolhost/toolhost/internal/tools/websearch"
	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/toolsdk"
)

// passphraseEnv names the environment variable holding the secrets
// passphrase. Unset means the sealed store stays closed.
const passphraseEnv = "TOOLHOST_PASSPHRASE"

// openSecretStore opens the sealed store when a passphrase is available.
// Returns nil when it is not; tools that require secrets then fail with an
// actionable error at invocation time.
func openSecretStore(cfg *config.Config) (*secrets.Store, error) {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return nil, nil
	}
	return secrets.Open(cfg.SecretsFile, []byte(passphrase))
}

// buildEnforcer compiles the host-level permission overrides.
func buildEnforcer(cfg *config.Config, decider permission.Decider) (*permission.Enforcer, error) {
	enforcer := permission.NewEnforcer(decider)
	if len(cfg.Permissions) == 0 {
		return enforcer, nil
	}

	rules := make([]permission.Rule, 0, len(cfg.Permissions))
	for _, r := range cfg.Permissions {
		rules = append(rules, permission.Rule{
			Pattern: r.Pattern,
			Policy:  manifest.Permission(r.Policy),
		})
	}
	if err := enforcer.SetRules(rules); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "invalid permission rules")
	}
	return enforcer, nil
}

// cliApprover resolves "ask" policies for one-shot CLI invocations. The
// user typed the command naming the tool; that is the consent being asked
// for.
type cliApprover struct{}

func (cliApprover) Approve(_, _ string) bool { return true }

// buildManager assembles the plugin manager: builtin devtools registered
// in-process, external plugins served by the gRPC runtime.
func buildManager(cfg *config.Config, logger *slog.Logger, observer toolsdk.Observer, decider permission.Decider) (*host.Manager, error) {
	enforcer, err := buildEnforcer(cfg, decider)
	if err != nil {
		return nil, err
	}

	opts := []host.ManagerOption{
		host.WithEnforcer(enforcer),
		host.WithBinaryRuntime(rpchost.NewHost()),
		host.WithLogger(logger),
		host.WithInvokeTimeout(cfg.InvokeTimeout),
	}

	store, err := openSecretStore(cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, host.WithSecretSource(store))
	}

	builtin := host.BuiltinConfig{
		Workspace: cfg.Workspace,
		Logger:    logger,
		Observer:  observer,
	}
	if cfg.BrowserDataDir != "" {
		dataDir := cfg.BrowserDataDir
		builtin.BrowserFactory = func() (browser.Engine, error) {
			return browser.NewChromeEngine(browser.ChromeConfig{UserDataDir: dataDir, Logger: logger})
		}
	}
	if cfg.SearchEndpoint != "" {
		builtin.SearchOptions = []websearch.Option{websearch.WithEndpoint(cfg.SearchEndpoint)}
	}

	m := host.NewManager(opts...)
	if err := m.RegisterBuiltin(host.BuiltinFactory(builtin)); err != nil {
		return nil, err
	}
	return m, nil
}
