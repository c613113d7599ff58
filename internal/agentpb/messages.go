// Package agentpb is the wire contract for the agent transport described in
// proto/agent.proto. It is hand-authored rather than protoc-generated: the
// message types are plain structs carried over gRPC using a JSON codec
// (codec.go) instead of the protobuf binary wire format, so the package
// needs no generated *.pb.go and no protobuf runtime dependency for the
// message types themselves — only google.golang.org/grpc for the transport.
package agentpb

// InvokeAgentRequest is the request for AgentService.InvokeAgent.
type InvokeAgentRequest struct {
	SessionID   string `json:"session_id"`
	AgentID     string `json:"agent_id"`
	InputText   string `json:"input_text"`
	GuardrailID string `json:"guardrail_id,omitempty"`
}

// GuardrailSignal reports a guardrail action detected on the response.
// Confidence is a pointer because the transport sometimes omits it; the
// invoker applies the contractual default of 1.0 when nil.
type GuardrailSignal struct {
	Action     string   `json:"action"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// UsageSignal reports token accounting for one invocation.
type UsageSignal struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Model        string `json:"model"`
}

// ErrorSignal reports a transport-level failure.
type ErrorSignal struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Chunk is one element of the streamed response. Text chunks, the single
// usage signal, and an optional guardrail signal may all be interleaved;
// the stream ends at the first chunk with Final set.
type Chunk struct {
	Text      string           `json:"text,omitempty"`
	Final     bool             `json:"final,omitempty"`
	Guardrail *GuardrailSignal `json:"guardrail,omitempty"`
	Usage     *UsageSignal     `json:"usage,omitempty"`
	Error     *ErrorSignal     `json:"error,omitempty"`
}
