// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package secrets

import (
	"github.com/samber/oops"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

// ErrMissingSecret is returned when a tool declares a required secret the
// store does not hold.
var ErrMissingSecret = oops.Code("SECRETS_MISSING").Errorf("required secret is not configured")

// Inject merges the secret values a tool declares into an argument payload
// under the reserved secrets field. Only declared ids are injected; values
// for undeclared ids never reach the plugin.
//
// A payload that fails to decode is returned unchanged so the dispatcher
// can surface its own invalid-argument error.
func Inject(payload string, decls []manifest.Secret, values map[string]string) (string, error) {
	if len(decls) == 0 {
		return payload, nil
	}

	injected := make(map[string]string, len(decls))
	for _, d := range decls {
		v, ok := values[d.ID]
		if !ok || v == "" {
			if d.Required {
				return "", oops.With("secret", d.ID).Hint("set it with: toolhost secrets set "+d.ID).Wrapf(ErrMissingSecret, "secret %s (%s)", d.ID, d.Label)
			}
			continue
		}
		injected[d.ID] = v
	}
	if len(injected) == 0 {
		return payload, nil
	}

	args, err := wire.Decode(payload)
	if err != nil {
		return payload, nil
	}
	args[wire.SecretsField] = injected

	out, err := wire.Encode(args)
	if err != nil {
		return "", oops.Code("SECRETS_INJECT_FAILED").Wrap(err)
	}
	return out, nil
}
