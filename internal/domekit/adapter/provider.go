// Package adapter defines the Model Adapter contract: a uniform Complete
// interface that the Tool Router drives regardless of whether the backing
// model supports native tool-calling or needs the prompt-based fallback
// grammar.
package adapter

import (
	"context"

	"github.com/domekit-run/domekit/internal/domekit/message"
)

// CompletionRequest is the input to a single model inference call.
type CompletionRequest struct {
	Model     string
	Messages  []message.Message
	Tools     []message.ToolDefinition
	MaxTokens int
}

// CompletionResponse is the output of a single model inference call.
type CompletionResponse struct {
	Message      message.Message
	FinishReason string // "stop" or "tool_calls"
	Usage        message.TokenUsage
}

// Provider is the interface every model backend implements. The Tool Router
// calls Complete in a loop until the returned message carries no pending
// tool calls.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Capability describes what a named model supports, so the router knows
// whether to advertise native tool definitions or fall back to the
// prompt-based grammar.
type Capability struct {
	NativeToolCalling bool
	ContextWindow     int
}

// capabilityTable is a static registry of known models. Entries absent here
// default to Capability{NativeToolCalling: false}, which routes them through
// the fallback grammar — the conservative choice for an unknown backend.
var capabilityTable = map[string]Capability{
	"gpt-4o":             {NativeToolCalling: true, ContextWindow: 128_000},
	"gpt-4o-mini":        {NativeToolCalling: true, ContextWindow: 128_000},
	"gpt-4-turbo":        {NativeToolCalling: true, ContextWindow: 128_000},
	"gpt-3.5-turbo":      {NativeToolCalling: true, ContextWindow: 16_385},
	"claude-3-5-sonnet":  {NativeToolCalling: true, ContextWindow: 200_000},
	"llama3":             {NativeToolCalling: false, ContextWindow: 8_192},
	"mistral":            {NativeToolCalling: false, ContextWindow: 32_768},
}

// CapabilityFor returns the known Capability for model, or the conservative
// default (no native tool calling, zero context window) when model is not in
// the table.
func CapabilityFor(model string) Capability {
	if c, ok := capabilityTable[model]; ok {
		return c
	}
	return Capability{}
}
