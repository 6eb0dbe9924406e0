package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/domekit-run/domekit/internal/domekit/message"
)

// toolCallPattern matches a fenced block the fallback grammar instructs the
// model to emit when it wants to call a tool:
//
//	```tool_call
//	{"name": "read_file", "arguments": {"path": "/data/notes.txt"}}
//	```
var toolCallPattern = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)\\n```")

// fallbackProvider wraps a Provider that has no native tool-calling support.
// It injects a system message teaching the model the fenced tool_call
// grammar, strips tool definitions from the wire request (native tool
// fields would otherwise be silently ignored or rejected by the backend),
// and parses the model's text response back into structured ToolCalls.
type fallbackProvider struct {
	inner Provider
}

// NewFallback wraps inner with the prompt-based tool-calling grammar. Use
// this for any backend whose Capability.NativeToolCalling is false.
func NewFallback(inner Provider) Provider {
	return &fallbackProvider{inner: inner}
}

func (p *fallbackProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Tools) == 0 {
		return p.inner.Complete(ctx, req)
	}

	grammarReq := req
	grammarReq.Messages = make([]message.Message, 0, len(req.Messages)+1)
	grammarReq.Messages = append(grammarReq.Messages, message.Message{
		Role:    message.RoleSystem,
		Content: grammarPrompt(req.Tools),
	})
	grammarReq.Messages = append(grammarReq.Messages, req.Messages...)
	grammarReq.Tools = nil // the backend does not understand native tool definitions

	resp, err := p.inner.Complete(ctx, grammarReq)
	if err != nil {
		return nil, err
	}

	call, rest, ok := parseToolCall(resp.Message.Content)
	if !ok {
		return resp, nil
	}

	resp.Message.Content = rest
	resp.Message.ToolCalls = []message.ToolCall{call}
	resp.FinishReason = "tool_calls"
	return resp, nil
}

func grammarPrompt(tools []message.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You can call tools. Available tools:\n\n")
	for _, t := range tools {
		b.WriteString(fmt.Sprintf("- %s: %s\n", t.Function.Name, t.Function.Description))
	}
	b.WriteString("\nTo call a tool, respond with exactly one fenced block of this form and nothing else on those lines:\n\n")
	b.WriteString("```tool_call\n{\"name\": \"<tool name>\", \"arguments\": {<JSON object>}}\n```\n\n")
	b.WriteString("Only emit a tool_call block when you need to call a tool. Otherwise respond normally in plain text.\n")
	return b.String()
}

type fallbackCallBody struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseToolCall extracts the first fenced tool_call block from content, if
// any, returning the structured ToolCall and the content with the block
// removed.
func parseToolCall(content string) (message.ToolCall, string, bool) {
	loc := toolCallPattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return message.ToolCall{}, content, false
	}

	raw := content[loc[2]:loc[3]]
	var body fallbackCallBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return message.ToolCall{}, content, false
	}

	rest := content[:loc[0]] + content[loc[1]:]
	return message.ToolCall{
		ID:   uuid.NewString(),
		Type: "function",
		Function: message.FunctionCall{
			Name:      body.Name,
			Arguments: string(body.Arguments),
		},
	}, strings.TrimSpace(rest), true
}
