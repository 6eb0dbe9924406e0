// Package message defines the conversation and tool-calling data model shared
// by the Model Adapter, Tool Router, and Audit Log: Message, ToolCall, and the
// per-request Trace that threads a request_id through every audit event it
// produces.
package message

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single message in a conversation passed to or
// returned from the Model Adapter.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set when Role == RoleTool
	Name       string     `json:"name,omitempty"`         // tool name when Role == RoleTool
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and its raw JSON-encoded arguments, exactly
// as emitted by the model (native tool-calling) or parsed out of the
// prompt-based fallback grammar.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition describes a tool the model may call, advertised to it on
// every completion request.
type ToolDefinition struct {
	Type     string      `json:"type"` // "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef is the schema of a callable function, rendered from the Tool
// Registry's JSON Schema.
type FunctionDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

// TokenUsage reports token consumption for a single completion call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Trace carries the identifiers that thread one gateway request through
// every component it touches: the Policy Engine, every tool sandbox it
// invokes, and every audit entry those invocations emit. It is attached
// verbatim to the chat-completion response so a caller can see what the
// request actually did without querying the audit log separately.
type Trace struct {
	// RequestID is a UUID assigned once per incoming gateway request and
	// copied onto every audit entry produced while serving it.
	RequestID string `json:"request_id"`
	// Model is the model name the request targets, used for the model's
	// context_window lookup and audit filtering.
	Model string `json:"model,omitempty"`
	// ToolsUsed is the set of distinct tool names invoked, in first-use
	// order.
	ToolsUsed []string `json:"tools_used"`
	// TablesQueried is the set of distinct SQLite table names referenced by
	// any sql_query call this request made, in first-use order. Best-effort:
	// parsed from the query's FROM/JOIN clauses, never used for policy
	// decisions.
	TablesQueried []string `json:"tables_queried"`
	// PolicyMode is the runtime.policy_mode in effect for this request.
	PolicyMode string `json:"policy_mode,omitempty"`
}
