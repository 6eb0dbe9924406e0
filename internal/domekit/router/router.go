// Package router implements the Tool Router: the bounded iteration loop that
// drives the Model Adapter, the Policy Engine, and the built-in tool
// sandboxes to completion for a single gateway request, while emitting a
// strictly ordered stream of audit events.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/adapter"
	"github.com/domekit-run/domekit/internal/domekit/audit"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/observability"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/tools"
)

// maxToolCallIterations bounds the number of model↔tool round-trips a single
// request may take before the router gives up and returns the best-effort
// answer it has. This is the gateway's circuit breaker against a model that
// never stops requesting tool calls.
const maxToolCallIterations = 5

// Request is a single inbound chat-completion request.
type Request struct {
	Model     string
	Messages  []message.Message
	MaxTokens int
}

// Response is the final result of driving a Request to completion.
type Response struct {
	Message       message.Message
	ToolCallCount int
	Usage         message.TokenUsage
	Trace         message.Trace
}

// Router orchestrates one request's Model Adapter ↔ Policy Engine ↔ Tool
// Sandbox ↔ Audit Log lifecycle.
type Router struct {
	provider adapter.Provider
	engine   *policy.Engine
	registry *tools.Registry
	log      *audit.Log
	manifest func() *manifestspec.Manifest

	toolSemaphore *semaphore.Weighted
	limiter       *rate.Limiter
}

// Config bundles the Router's collaborators and concurrency limits.
type Config struct {
	Provider adapter.Provider
	Engine   *policy.Engine
	Registry *tools.Registry
	Log      *audit.Log
	Manifest func() *manifestspec.Manifest

	// MaxConcurrentTools bounds how many tool calls may execute at once
	// across all requests sharing this Router. Defaults to 8.
	MaxConcurrentTools int64
	// RequestsPerSecond soft-throttles how often HandleRequest admits a new
	// request; 0 disables throttling.
	RequestsPerSecond float64
}

// New returns a Router ready to serve requests.
func New(cfg Config) *Router {
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = 8
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Router{
		provider:      cfg.Provider,
		engine:        cfg.Engine,
		registry:      cfg.Registry,
		log:           cfg.Log,
		manifest:      cfg.Manifest,
		toolSemaphore: semaphore.NewWeighted(cfg.MaxConcurrentTools),
		limiter:       limiter,
	}
}

// requestHardDeadline bounds the entire request, including every tool call
// it issues.
const requestHardDeadline = 120 * time.Second

// toolSoftDeadline bounds a single tool invocation. A tool exceeding this is
// treated as a failed call, not a fatal request error — the model gets an
// error tool-result message and may try something else.
const toolSoftDeadline = 30 * time.Second

// requestMeta is the immutable snapshot of request-scoped identifiers
// threaded through HandleRequest, runLoop, and dispatchToolCall so every
// audit entry for a request carries the same app/model/policy_mode, even if
// the manifest is reloaded mid-flight.
type requestMeta struct {
	requestID string
	model     string
	manifest  *manifestspec.Manifest
}

func (m requestMeta) app() string        { return m.manifest.App.Name }
func (m requestMeta) policyMode() string { return string(m.manifest.Runtime.PolicyMode) }

// HandleRequest drives req to completion: it calls the Model Adapter,
// evaluates and dispatches any requested tool calls through the Policy
// Engine, and loops until the model returns a plain-text response or the
// iteration bound is hit. Every step is recorded to the audit log in the
// order request.start, any number of interleaved policy.block/tool.call/
// tool.result events, then request.end.
//
// Exceeding the iteration bound is not a request failure: HandleRequest
// returns the best-effort response it has, with terminated_reason recorded
// on the audit entry. Only adapter failures and cancellation fail the
// request.
func (r *Router) HandleRequest(ctx context.Context, requestID string, req Request) (Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("router: rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, requestHardDeadline)
	defer cancel()
	ctx = observability.WithRequestID(ctx, requestID)

	ctx, span := observability.StartSpan(ctx, "router.handle_request")
	defer span.End()

	logger := observability.WithTrace(ctx)

	m := r.manifest()
	meta := requestMeta{requestID: requestID, model: req.Model, manifest: m}

	startDetail, _ := json.Marshal(requestStartDetail{
		MessageCount: len(req.Messages),
		Prompt:       redactedPrompt(req.Messages, m),
	})
	r.append(r.entryWithDetail(meta, audit.EventRequestStart, "", startDetail))

	startedAt := time.Now()
	resp, terminatedReason, err := r.runLoop(ctx, requestID, req, meta)
	endDetail := requestEndDetail{
		DurationSeconds:  time.Since(startedAt).Seconds(),
		TerminatedReason: terminatedReason,
	}

	if err != nil {
		observability.RecordError(ctx, err)
		endDetailBytes, _ := json.Marshal(endDetail)
		entry := r.entryWithDetail(meta, audit.EventRequestEnd, "", endDetailBytes)
		entry.Error = err.Error()
		r.append(entry)
		logger.Error("request failed", "error", err, "terminated_reason", terminatedReason)
		return Response{}, err
	}

	endDetail.ToolsUsed = resp.Trace.ToolsUsed
	endDetail.Completion = redactedCompletion(resp.Message.Content, m)
	endDetailBytes, _ := json.Marshal(endDetail)
	r.append(r.entryWithDetail(meta, audit.EventRequestEnd, "", endDetailBytes))

	return resp, nil
}

func (r *Router) runLoop(ctx context.Context, requestID string, req Request, meta requestMeta) (Response, string, error) {
	messages := make([]message.Message, len(req.Messages))
	copy(messages, req.Messages)

	toolDefs := r.registry.Definitions()
	totalToolCalls := 0
	var lastUsage message.TokenUsage

	toolsUsed := make([]string, 0)
	toolsSeen := make(map[string]bool)
	tablesQueried := make([]string, 0)
	tablesSeen := make(map[string]bool)
	var lastAssistantContent string

	buildTrace := func() message.Trace {
		return message.Trace{
			RequestID:     requestID,
			Model:         meta.model,
			PolicyMode:    meta.policyMode(),
			ToolsUsed:     toolsUsed,
			TablesQueried: tablesQueried,
		}
	}

	for iteration := 0; iteration < maxToolCallIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return Response{}, "cancelled", err
		}

		resp, err := r.provider.Complete(ctx, adapter.CompletionRequest{
			Model:     req.Model,
			Messages:  messages,
			Tools:     toolDefs,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return Response{}, "adapter_error", fmt.Errorf("model adapter: %w", err)
		}
		lastUsage = resp.Usage
		messages = append(messages, resp.Message)
		if resp.Message.Content != "" {
			lastAssistantContent = resp.Message.Content
		}

		if resp.FinishReason != "tool_calls" || len(resp.Message.ToolCalls) == 0 {
			return Response{Message: resp.Message, ToolCallCount: totalToolCalls, Usage: lastUsage, Trace: buildTrace()}, "", nil
		}

		for _, tc := range resp.Message.ToolCalls {
			totalToolCalls++
			if !toolsSeen[tc.Function.Name] {
				toolsSeen[tc.Function.Name] = true
				toolsUsed = append(toolsUsed, tc.Function.Name)
			}

			result, toolErr := r.dispatchToolCall(ctx, meta, tc)
			if toolErr == nil && tc.Function.Name == "sql_query" {
				recordTablesQueried(tc.Function.Arguments, tablesSeen, &tablesQueried)
			}

			toolMsg := message.Message{
				Role:       message.RoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			}
			if toolErr != nil {
				toolMsg.Content = fmt.Sprintf("error: %s", toolErr)
			} else {
				toolMsg.Content = result
			}
			messages = append(messages, toolMsg)
		}
	}

	content := lastAssistantContent
	if content == "" {
		content = "unable to produce a final answer within the tool-call iteration limit"
	}
	resp := Response{
		Message:       message.Message{Role: message.RoleAssistant, Content: content},
		ToolCallCount: totalToolCalls,
		Usage:         lastUsage,
		Trace:         buildTrace(),
	}
	return resp, "max_iterations", nil
}

func recordTablesQueried(rawArguments string, seen map[string]bool, out *[]string) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(rawArguments), &args); err != nil {
		return
	}
	query, ok := args["query"].(string)
	if !ok {
		return
	}
	for _, table := range tools.TablesReferenced(query) {
		if !seen[table] {
			seen[table] = true
			*out = append(*out, table)
		}
	}
}

// dispatchToolCall evaluates policy for a single tool call and, if allowed,
// executes it under a bounded concurrency slot and a soft per-tool deadline.
// A denial emits a single policy.block event and nothing else; an allowed
// call always emits a tool.call event before executing and a tool.result
// event after, even on failure, so the audit log's ordering invariant holds
// regardless of outcome.
func (r *Router) dispatchToolCall(ctx context.Context, meta requestMeta, tc message.ToolCall) (string, error) {
	logger := observability.WithTrace(ctx)

	var args map[string]interface{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	toolDecision := r.engine.CheckTool(tc.Function.Name)
	logger.Info("policy check", "tool", tc.Function.Name, "verdict", toolDecision.Verdict, "rule", toolDecision.Rule)
	if !toolDecision.Allowed() {
		entry := r.newEntry(meta, audit.EventPolicyBlock, tc.Function.Name)
		entry.Decision = &toolDecision
		r.append(entry)
		return "", fmt.Errorf("policy denied: %s", toolDecision.Reason)
	}

	if err := r.registry.Validate(tc.Function.Name, args); err != nil {
		return "", err
	}

	tool := r.registry.Get(tc.Function.Name)
	if tool == nil {
		return "", fmt.Errorf("unknown tool %q", tc.Function.Name)
	}

	callDetail, _ := json.Marshal(toolCallDetail{Arguments: redactedArgs(tc.Function.Arguments, meta.manifest)})
	callEntry := r.entryWithDetail(meta, audit.EventToolCall, tc.Function.Name, callDetail)
	r.append(callEntry)

	if err := r.toolSemaphore.Acquire(ctx, 1); err != nil {
		r.append(r.resultEntry(meta, tc.Function.Name, false, "", err))
		return "", fmt.Errorf("tool concurrency limit: %w", err)
	}
	defer r.toolSemaphore.Release(1)

	toolCtx, cancel := context.WithTimeout(ctx, toolSoftDeadline)
	defer cancel()

	toolCtx, span := observability.StartSpan(toolCtx, "router.tool_call")
	span.SetAttributes(observability.AttrToolName.String(tc.Function.Name))
	defer span.End()

	result, err := tool.Execute(toolCtx, args)
	if err != nil {
		observability.RecordError(toolCtx, err)
		r.append(r.resultEntry(meta, tc.Function.Name, false, "", err))
		return "", err
	}

	r.append(r.resultEntry(meta, tc.Function.Name, true, result, nil))
	return result, nil
}

func (r *Router) resultEntry(meta requestMeta, tool string, success bool, result string, err error) audit.Entry {
	summary := truncateForAudit(result)
	if meta.manifest.Audit.RedactToolOutputs {
		summary = ""
	}
	detail, _ := json.Marshal(toolResultDetail{Success: success, Result: summary})
	entry := r.entryWithDetail(meta, audit.EventToolResult, tool, detail)
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

// newEntry builds an audit.Entry carrying the request-scoped identifiers
// that belong on every entry for this request.
func (r *Router) newEntry(meta requestMeta, eventType audit.EventType, tool string) audit.Entry {
	return audit.Entry{
		RequestID:  meta.requestID,
		Type:       eventType,
		Tool:       tool,
		App:        meta.app(),
		Model:      meta.model,
		PolicyMode: meta.policyMode(),
	}
}

func (r *Router) entryWithDetail(meta requestMeta, eventType audit.EventType, tool string, detail json.RawMessage) audit.Entry {
	entry := r.newEntry(meta, eventType, tool)
	entry.Detail = detail
	return entry
}

func (r *Router) append(entry audit.Entry) {
	if err := r.log.Append(entry); err != nil {
		observability.WithTrace(context.Background()).Error("failed to append audit entry", "error", err)
	}
}

// requestStartDetail is the request.start audit entry's detail payload.
type requestStartDetail struct {
	MessageCount int    `json:"message_count"`
	Prompt       string `json:"prompt,omitempty"`
}

// requestEndDetail is the request.end audit entry's detail payload.
type requestEndDetail struct {
	ToolsUsed        []string `json:"tools_used,omitempty"`
	DurationSeconds  float64  `json:"duration_seconds"`
	Completion       string   `json:"completion,omitempty"`
	TerminatedReason string   `json:"terminated_reason,omitempty"`
}

// toolCallDetail is the tool.call audit entry's detail payload.
type toolCallDetail struct {
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolResultDetail is the tool.result audit entry's detail payload.
type toolResultDetail struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
}

// maxAuditPreviewBytes bounds how much of a prompt, completion, or tool
// result the audit log stores inline, so a large document doesn't bloat
// every entry that touches it.
const maxAuditPreviewBytes = 2048

func truncateForAudit(s string) string {
	if len(s) > maxAuditPreviewBytes {
		return s[:maxAuditPreviewBytes]
	}
	return s
}

func redactedPrompt(messages []message.Message, m *manifestspec.Manifest) string {
	if m.Audit.RedactPrompt {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == message.RoleUser {
			return truncateForAudit(messages[i].Content)
		}
	}
	return ""
}

// redactedCompletion gates the final assistant message the same way
// redactedPrompt gates the inbound one: redact_prompt governs whether
// conversation content in either direction enters the audit log.
func redactedCompletion(content string, m *manifestspec.Manifest) string {
	if m.Audit.RedactPrompt {
		return ""
	}
	return truncateForAudit(content)
}

func redactedArgs(raw string, m *manifestspec.Manifest) json.RawMessage {
	if m.Audit.RedactToolOutputs || raw == "" {
		return nil
	}
	return json.RawMessage(raw)
}
