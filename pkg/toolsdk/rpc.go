// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package toolsdk

import (
	"context"
	"encoding/json"
	"fmt"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// The plugin transport is gRPC with a JSON codec and a hand-written service
// descriptor. Payloads crossing the boundary are JSON strings already, so a
// JSON envelope keeps the protocol inspectable and avoids generated code.

// HandshakeConfig is the go-plugin handshake configuration. Both host and
// plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TOOLHOST_PLUGIN",
	MagicCookieValue: "toolhost-v1",
}

// codecName is the gRPC content-subtype for the JSON codec.
const codecName = "json"

// jsonCodec implements grpc encoding.Codec over encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GetManifestRequest asks a plugin for its manifest.
type GetManifestRequest struct{}

// GetManifestResponse carries the canonical manifest JSON.
type GetManifestResponse struct {
	ManifestJSON string `json:"manifest_json"`
}

// InvokeRequest is one invocation. Fields are pointers so that an absent
// string is distinguishable from an empty one: a missing field is a
// transport-level failure, an empty payload is a legal tool call.
type InvokeRequest struct {
	CapabilityType *string `json:"capability_type"`
	CapabilityID   *string `json:"capability_id"`
	Payload        *string `json:"payload"`
}

// InvokeResponse carries the owned result string. A nil Result is the
// transport-level null: the plugin could not process the call at all.
type InvokeResponse struct {
	Result *string `json:"result"`
}

// PluginServer is the service a plugin process implements.
type PluginServer interface {
	GetManifest(ctx context.Context, req *GetManifestRequest) (*GetManifestResponse, error)
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

// PluginClient is the host's view of a plugin process.
type PluginClient interface {
	GetManifest(ctx context.Context, req *GetManifestRequest) (*GetManifestResponse, error)
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
}

const (
	serviceName       = "toolhost.abi.v1.Plugin"
	methodGetManifest = "/" + serviceName + "/GetManifest"
	methodInvoke      = "/" + serviceName + "/Invoke"
)

// RegisterPluginServer registers srv on a gRPC server.
func RegisterPluginServer(s *grpc.Server, srv PluginServer) {
	s.RegisterService(&pluginServiceDesc, srv)
}

var pluginServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PluginServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetManifest", Handler: getManifestHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "toolhost/abi/v1/plugin",
}

func getManifestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetManifestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).GetManifest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetManifest}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).GetManifest(ctx, req.(*GetManifestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PluginServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInvoke}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PluginServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// pluginClient implements PluginClient over a gRPC connection.
type pluginClient struct {
	cc grpc.ClientConnInterface
}

// NewPluginClient creates a client for the plugin service.
func NewPluginClient(cc grpc.ClientConnInterface) PluginClient {
	return &pluginClient{cc: cc}
}

func (c *pluginClient) GetManifest(ctx context.Context, req *GetManifestRequest) (*GetManifestResponse, error) {
	out := new(GetManifestResponse)
	if err := c.cc.Invoke(ctx, methodGetManifest, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, fmt.Errorf("GetManifest RPC failed: %w", err)
	}
	return out, nil
}

func (c *pluginClient) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	if err := c.cc.Invoke(ctx, methodInvoke, req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, fmt.Errorf("Invoke RPC failed: %w", err)
	}
	return out, nil
}
