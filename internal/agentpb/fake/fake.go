// Package fake provides an in-process agentpb.Transport for tests: no
// network, no real gRPC stream, just a scripted sequence of chunks or
// errors replayed per call. Tests enqueue one Script per expected call to
// exercise retry sequences (e.g. throttled once, then success).
package fake

import (
	"context"
	"io"
	"sync"

	"github.com/opsconsensus/orchestrator/internal/agentpb"
)

// Script is one scripted InvokeAgent call outcome.
type Script struct {
	// Err, if set, is returned directly from InvokeAgent — a connection
	// level failure before any chunk is read.
	Err error
	// Chunks are delivered in order from Recv.
	Chunks []*agentpb.Chunk
	// RecvErr, if set, is returned from Recv once Chunks is exhausted,
	// instead of io.EOF.
	RecvErr error
}

// Transport is a scripted agentpb.Transport. Safe for concurrent use.
type Transport struct {
	mu      sync.Mutex
	scripts map[string][]Script
	calls   map[string]int
}

// New returns an empty Transport with no scripted calls.
func New() *Transport {
	return &Transport{scripts: map[string][]Script{}, calls: map[string]int{}}
}

// Enqueue appends a Script to agentID's call sequence. The first Enqueue
// call answers the agent's first InvokeAgent call, the second answers the
// second, and so on; once exhausted, the last script repeats.
func (t *Transport) Enqueue(agentID string, s Script) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts[agentID] = append(t.scripts[agentID], s)
}

// Calls reports how many times InvokeAgent has been called for agentID.
func (t *Transport) Calls(agentID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[agentID]
}

func (t *Transport) InvokeAgent(_ context.Context, req *agentpb.InvokeAgentRequest) (agentpb.ChunkReceiver, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.calls[req.AgentID]
	t.calls[req.AgentID] = idx + 1

	scripts := t.scripts[req.AgentID]
	if len(scripts) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	s := scripts[len(scripts)-1]
	if idx < len(scripts) {
		s = scripts[idx]
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return &receiver{chunks: s.Chunks, err: s.RecvErr}, nil
}

type receiver struct {
	chunks []*agentpb.Chunk
	idx    int
	err    error
}

func (r *receiver) Recv() (*agentpb.Chunk, error) {
	if r.idx < len(r.chunks) {
		c := r.chunks[r.idx]
		r.idx++
		return c, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, io.EOF
}

var _ agentpb.Transport = (*Transport)(nil)
