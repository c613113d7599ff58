package agentpb

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "agentpb.AgentService"
const methodInvokeAgent = "/agentpb.AgentService/InvokeAgent"

// AgentServiceClient is the client-side contract for AgentService, shaped
// the way protoc-gen-go-grpc would generate it: one method per RPC,
// returning a typed stream for the server-streaming InvokeAgent call.
type AgentServiceClient interface {
	InvokeAgent(ctx context.Context, in *InvokeAgentRequest, opts ...grpc.CallOption) (AgentService_InvokeAgentClient, error)
}

// AgentService_InvokeAgentClient is the stream handle returned by
// InvokeAgent. It embeds grpc.ClientStream the way generated streaming
// clients do; pkg/invoker only depends on the narrower Transport interface
// below so that fakes don't need to implement grpc.ClientStream.
type AgentService_InvokeAgentClient interface {
	Recv() (*Chunk, error)
	grpc.ClientStream
}

type agentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentServiceClient builds a client bound to cc. cc is typically a
// *grpc.ClientConn dialed with the insecure credentials used for sidecar
// agent processes, mirroring the teacher's GRPCLLMClient.
func NewAgentServiceClient(cc grpc.ClientConnInterface) AgentServiceClient {
	return &agentServiceClient{cc: cc}
}

var invokeAgentStreamDesc = &grpc.StreamDesc{
	StreamName:    "InvokeAgent",
	ServerStreams: true,
}

func (c *agentServiceClient) InvokeAgent(ctx context.Context, in *InvokeAgentRequest, opts ...grpc.CallOption) (AgentService_InvokeAgentClient, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	stream, err := c.cc.NewStream(ctx, invokeAgentStreamDesc, methodInvokeAgent, opts...)
	if err != nil {
		return nil, err
	}
	x := &agentServiceInvokeAgentClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type agentServiceInvokeAgentClient struct {
	grpc.ClientStream
}

func (x *agentServiceInvokeAgentClient) Recv() (*Chunk, error) {
	m := new(Chunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ChunkReceiver is the minimal surface pkg/invoker depends on: just the
// ability to pull the next chunk off the stream. Both
// AgentService_InvokeAgentClient and the in-process fake in
// internal/agentpb/fake satisfy it.
type ChunkReceiver interface {
	Recv() (*Chunk, error)
}

// Transport decouples pkg/invoker from the grpc.ClientConn/ClientStream
// plumbing so it can be exercised against a fake in unit tests.
type Transport interface {
	InvokeAgent(ctx context.Context, req *InvokeAgentRequest) (ChunkReceiver, error)
}

// GRPCTransport is the production Transport, backed by a real gRPC
// connection to the agent's sidecar process.
type GRPCTransport struct {
	conn   *grpc.ClientConn
	client AgentServiceClient
}

// NewGRPCTransport dials addr with insecure (plaintext) transport, matching
// the teacher's GRPCLLMClient: agent sidecars run alongside the
// orchestrator and are not expected to cross a network boundary.
func NewGRPCTransport(conn *grpc.ClientConn) *GRPCTransport {
	return &GRPCTransport{conn: conn, client: NewAgentServiceClient(conn)}
}

func (t *GRPCTransport) InvokeAgent(ctx context.Context, req *InvokeAgentRequest) (ChunkReceiver, error) {
	return t.client.InvokeAgent(ctx, req)
}

// Close releases the underlying connection.
func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}
