// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package toolsdk

import (
	"context"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/toolhost/toolhost/pkg/manifest"
)

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Identity is the plugin's manifest identity (plugin_id, name, version
	// gates). The tool catalog is filled in from Registry.
	// Required; Serve will panic if the combination does not validate.
	Identity manifest.Manifest

	// Registry holds the plugin's tool handlers.
	// Required; Serve will panic if nil or empty.
	Registry *Registry
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
//
// Example usage:
//
//	func main() {
//		reg, err := toolsdk.NewRegistry(&EchoTool{})
//		if err != nil {
//			log.Fatal(err)
//		}
//		toolsdk.Serve(&toolsdk.ServeConfig{
//			Identity: manifest.Manifest{
//				PluginID: "example.echo",
//				Name:     "Echo",
//			},
//			Registry: reg,
//		})
//	}
func Serve(config *ServeConfig) {
	if config == nil {
		panic("toolsdk: config cannot be nil")
	}
	if config.Registry == nil || config.Registry.Len() == 0 {
		panic("toolsdk: config.Registry must hold at least one handler")
	}

	m, err := config.Registry.Manifest(config.Identity)
	if err != nil {
		panic("toolsdk: " + err.Error())
	}
	manifestJSON, err := m.JSON()
	if err != nil {
		panic("toolsdk: " + err.Error())
	}

	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			"plugin": &grpcPlugin{
				server: &serverAdapter{
					dispatcher:   NewDispatcher(config.Registry),
					manifestJSON: manifestJSON,
				},
			},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}

// grpcPlugin implements go-plugin's Plugin interface for the plugin side.
type grpcPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	server PluginServer
}

// GRPCServer registers the plugin server (called by plugin process).
func (p *grpcPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.server == nil {
		return errors.New("toolsdk: plugin server is nil")
	}
	RegisterPluginServer(s, p.server)
	return nil
}

// GRPCClient is required by go-plugin's GRPCPlugin interface but is never
// called on the plugin side. The host has its own GRPCClient implementation.
func (p *grpcPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, _ *grpc.ClientConn) (any, error) {
	return nil, errors.New("toolsdk: GRPCClient not implemented on plugin side")
}

// serverAdapter adapts a Dispatcher to the PluginServer service.
type serverAdapter struct {
	dispatcher   *Dispatcher
	manifestJSON string
}

// GetManifest returns the manifest JSON. The manifest is static: content is
// fixed for a given build regardless of caller or call count.
func (a *serverAdapter) GetManifest(_ context.Context, _ *GetManifestRequest) (*GetManifestResponse, error) {
	return &GetManifestResponse{ManifestJSON: a.manifestJSON}, nil
}

// Invoke dispatches one invocation. Missing request fields are the
// transport-level failure: the response carries a nil result rather than an
// error string, mirroring the null return of the binary ABI.
func (a *serverAdapter) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if req == nil || req.CapabilityType == nil || req.CapabilityID == nil || req.Payload == nil {
		return &InvokeResponse{Result: nil}, nil
	}
	result := a.dispatcher.Invoke(ctx, *req.CapabilityType, *req.CapabilityID, *req.Payload)
	return &InvokeResponse{Result: &result}, nil
}
