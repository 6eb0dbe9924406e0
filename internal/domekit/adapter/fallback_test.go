package adapter

import (
	"context"
	"testing"

	"github.com/domekit-run/domekit/internal/domekit/message"
)

type stubProvider struct {
	resp *CompletionResponse
	err  error
	gotTools []message.ToolDefinition
}

func (s *stubProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.gotTools = req.Tools
	return s.resp, s.err
}

func TestFallback_ParsesToolCallBlock(t *testing.T) {
	stub := &stubProvider{resp: &CompletionResponse{
		Message: message.Message{
			Role:    message.RoleAssistant,
			Content: "Sure, let me check.\n```tool_call\n{\"name\": \"read_file\", \"arguments\": {\"path\": \"/data/a.txt\"}}\n```",
		},
		FinishReason: "stop",
	}}

	p := NewFallback(stub)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Tools: []message.ToolDefinition{{Type: "function", Function: message.FunctionDef{Name: "read_file"}}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Function.Name != "read_file" {
		t.Errorf("tool name = %q", tc.Function.Name)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", resp.FinishReason)
	}
	if stub.gotTools != nil {
		t.Error("native tool definitions must not reach the wrapped backend")
	}
}

func TestFallback_NoToolCallPassesThrough(t *testing.T) {
	stub := &stubProvider{resp: &CompletionResponse{
		Message:      message.Message{Role: message.RoleAssistant, Content: "Just a plain answer."},
		FinishReason: "stop",
	}}

	p := NewFallback(stub)
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Tools: []message.ToolDefinition{{Type: "function", Function: message.FunctionDef{Name: "read_file"}}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(resp.Message.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(resp.Message.ToolCalls))
	}
	if resp.Message.Content != "Just a plain answer." {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestFallback_NoToolsSkipsGrammarEntirely(t *testing.T) {
	stub := &stubProvider{resp: &CompletionResponse{Message: message.Message{Content: "hi"}}}
	p := NewFallback(stub)

	if _, err := p.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}
