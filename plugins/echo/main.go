// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package main implements the example echo plugin.
//
// Build it and drop the binary next to a plugin.yaml under the plugins
// directory:
//
//	go build -o echo ./plugins/echo
//
//	# plugins/echo/plugin.yaml
//	name: echo
//	version: 1.0.0
//	executable: echo
//
// The host launches the binary, reads its manifest over gRPC, and routes
// invocations of example.echo/echo to it.
package main

import (
	"context"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/toolsdk"
	"github.com/toolhost/toolhost/pkg/wire"
)

// EchoTool returns its arguments unchanged. It exists to exercise the full
// host-plugin round trip.
type EchoTool struct{}

func (t *EchoTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "echo",
		Description: "Echo the message argument back to the caller.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"message": {Type: "string", Description: "Text to echo back"},
			},
			Required: []string{"message"},
		},
		Permission: manifest.PermissionAllow,
	}
}

func (t *EchoTool) Execute(_ context.Context, args wire.Args) (any, error) {
	if err := args.Require("message"); err != nil {
		return nil, err
	}
	message, _ := args.String("message")
	return map[string]string{"message": message}, nil
}

func main() {
	reg, err := toolsdk.NewRegistry(&EchoTool{})
	if err != nil {
		panic(err)
	}

	toolsdk.Serve(&toolsdk.ServeConfig{
		Identity: manifest.Manifest{
			PluginID:       "example.echo",
			Name:           "Echo",
			Description:    "Minimal example plugin.",
			MinHostVersion: "0.1.0",
		},
		Registry: reg,
	})
}
