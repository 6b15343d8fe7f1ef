// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package host loads plugins, enforces permission policy, injects secrets,
// and routes tool invocations. The builtin devtools plugin runs in-process
// behind the same entry-point surface an external loader would bind.
package host

import (
	"errors"
	"time"
)

// Version is the host implementation version that plugin min_host_version
// gates are checked against.
const Version = "0.1.0"

// DefaultInvokeTimeout bounds a single tool invocation end to end.
const DefaultInvokeTimeout = 30 * time.Second

// Sentinel errors for programmatic error checking.
var (
	// ErrHostClosed is returned when operations are attempted on a closed host.
	ErrHostClosed = errors.New("host is closed")
	// ErrPluginNotLoaded is returned when operating on a plugin that isn't loaded.
	ErrPluginNotLoaded = errors.New("plugin not loaded")
	// ErrPluginAlreadyLoaded is returned when loading a plugin that's already loaded.
	ErrPluginAlreadyLoaded = errors.New("plugin already loaded")
)
