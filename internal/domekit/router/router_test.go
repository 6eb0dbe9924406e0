package router_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/adapter"
	"github.com/domekit-run/domekit/internal/domekit/audit"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/router"
	"github.com/domekit-run/domekit/internal/domekit/tools"
)

type staticManifestProvider struct{ m *manifestspec.Manifest }

func (s *staticManifestProvider) Manifest() *manifestspec.Manifest { return s.m }

func allowAllManifest() *manifestspec.Manifest {
	return &manifestspec.Manifest{
		Runtime: manifestspec.Runtime{PolicyMode: manifestspec.PolicyModeDeveloper},
	}
}

// scriptedProvider replays a fixed sequence of responses, one per Complete
// call, so a test can assert the router drives exactly the expected number
// of model↔tool round-trips.
type scriptedProvider struct {
	responses []*adapter.CompletionResponse
	calls     int
}

func (s *scriptedProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (*adapter.CompletionResponse, error) {
	if s.calls >= len(s.responses) {
		return nil, context.DeadlineExceeded
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

type echoTool struct{}

func (echoTool) Definition() message.ToolDefinition {
	return message.ToolDefinition{Type: "function", Function: message.FunctionDef{Name: "echo"}}
}

func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "echoed", nil
}

func newTestRouter(t *testing.T, prov adapter.Provider) (*router.Router, *audit.Log) {
	t.Helper()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open failed: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	reg := tools.New()
	reg.Register(echoTool{})

	engine := policy.New(&staticManifestProvider{m: allowAllManifest()})

	r := router.New(router.Config{
		Provider: prov,
		Engine:   engine,
		Registry: reg,
		Log:      log,
		Manifest: func() *manifestspec.Manifest { return allowAllManifest() },
	})
	return r, log
}

func TestHandleRequest_NoToolCallsReturnsDirectly(t *testing.T) {
	prov := &scriptedProvider{responses: []*adapter.CompletionResponse{
		{Message: message.Message{Role: message.RoleAssistant, Content: "hello"}, FinishReason: "stop"},
	}}
	r, log := newTestRouter(t, prov)

	requestID := audit.NewRequestID()
	resp, err := r.HandleRequest(context.Background(), requestID, router.Request{
		Messages: []message.Message{{Role: message.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("content = %q", resp.Message.Content)
	}

	entries := log.ByRequest(requestID)
	if len(entries) != 2 {
		t.Fatalf("got %d audit entries, want 2 (start, end)", len(entries))
	}
	if entries[0].Type != audit.EventRequestStart {
		t.Errorf("first entry = %q, want request.start", entries[0].Type)
	}
	if entries[len(entries)-1].Type != audit.EventRequestEnd {
		t.Errorf("last entry = %q, want request.end", entries[len(entries)-1].Type)
	}
}

func TestHandleRequest_ToolCallThenFinalAnswer(t *testing.T) {
	prov := &scriptedProvider{responses: []*adapter.CompletionResponse{
		{
			Message: message.Message{
				Role: message.RoleAssistant,
				ToolCalls: []message.ToolCall{
					{ID: "1", Type: "function", Function: message.FunctionCall{Name: "echo", Arguments: `{}`}},
				},
			},
			FinishReason: "tool_calls",
		},
		{Message: message.Message{Role: message.RoleAssistant, Content: "done"}, FinishReason: "stop"},
	}}
	r, log := newTestRouter(t, prov)

	requestID := audit.NewRequestID()
	resp, err := r.HandleRequest(context.Background(), requestID, router.Request{
		Messages: []message.Message{{Role: message.RoleUser, Content: "use echo"}},
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.ToolCallCount != 1 {
		t.Errorf("tool_call_count = %d, want 1", resp.ToolCallCount)
	}
	if resp.Message.Content != "done" {
		t.Errorf("content = %q", resp.Message.Content)
	}

	entries := log.ByRequest(requestID)
	var order []audit.EventType
	for _, e := range entries {
		order = append(order, e.Type)
	}
	callIdx, resultIdx := -1, -1
	for i, typ := range order {
		if typ == audit.EventToolCall {
			callIdx = i
		}
		if typ == audit.EventToolResult {
			resultIdx = i
		}
	}
	if callIdx == -1 || resultIdx == -1 || callIdx > resultIdx {
		t.Errorf("expected tool.call before tool.result, got order %v", order)
	}
	if order[0] != audit.EventRequestStart || order[len(order)-1] != audit.EventRequestEnd {
		t.Errorf("expected request.start first and request.end last, got %v", order)
	}
}

func TestHandleRequest_ExceedsIterationBound(t *testing.T) {
	loopingCall := message.ToolCall{ID: "1", Type: "function", Function: message.FunctionCall{Name: "echo", Arguments: `{}`}}
	responses := make([]*adapter.CompletionResponse, 0, 6)
	for i := 0; i < 6; i++ {
		responses = append(responses, &adapter.CompletionResponse{
			Message:      message.Message{Role: message.RoleAssistant, ToolCalls: []message.ToolCall{loopingCall}},
			FinishReason: "tool_calls",
		})
	}
	prov := &scriptedProvider{responses: responses}
	r, log := newTestRouter(t, prov)

	requestID := audit.NewRequestID()
	resp, err := r.HandleRequest(context.Background(), requestID, router.Request{
		Messages: []message.Message{{Role: message.RoleUser, Content: "loop forever"}},
	})
	if err != nil {
		t.Fatalf("exceeding the iteration bound must not fail the request: %v", err)
	}
	if resp.Message.Content == "" {
		t.Error("expected a best-effort assistant message")
	}

	entries := log.ByRequest(requestID)
	last := entries[len(entries)-1]
	if last.Type != audit.EventRequestEnd {
		t.Fatalf("last entry = %q, want request.end", last.Type)
	}
	var detail struct {
		TerminatedReason string `json:"terminated_reason"`
	}
	if err := json.Unmarshal(last.Detail, &detail); err != nil {
		t.Fatalf("unmarshal request.end detail: %v", err)
	}
	if detail.TerminatedReason != "max_iterations" {
		t.Errorf("terminated_reason = %q, want max_iterations", detail.TerminatedReason)
	}
}
