package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/domekit-run/domekit/internal/domekit/audit"
	"github.com/domekit-run/domekit/internal/domekit/observability"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/tools"
)

// protocolVersion is the MCP wire protocol version the gateway speaks.
const protocolVersion = "2024-11-05"

// Server exposes the gateway's built-in tools as an MCP server over
// stdin/stdout: any MCP client can list and call them exactly as it would a
// normal MCP server, except every call still passes through the Policy
// Engine and is recorded to the audit log.
type Server struct {
	registry *tools.Registry
	engine   *policy.Engine
	log      *audit.Log
	version  string
}

// Config bundles the Server's dependencies.
type Config struct {
	Registry *tools.Registry
	Engine   *policy.Engine
	Log      *audit.Log
	Version  string
}

// New constructs a Server.
func New(cfg Config) *Server {
	return &Server{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		log:      cfg.Log,
		version:  cfg.Version,
	}
}

// Serve reads newline-delimited JSON-RPC 2.0 requests from r and writes
// responses to w until r reaches EOF or ctx is cancelled. Each request is
// handled sequentially, matching a single MCP client's one-request-in-flight
// expectations.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &ResponseError{Code: codeParseError, Message: "invalid JSON: " + err.Error()},
			})
			continue
		}

		resp := s.dispatch(ctx, req)
		if req.ID == nil {
			continue // notification: no response expected
		}
		resp.ID = req.ID
		resp.JSONRPC = "2.0"
		writeResponse(w, resp)
	}
	return scanner.Err()
}

func writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("stdio: failed to marshal response", "err", err)
		return
	}
	fmt.Fprintf(w, "%s\n", data)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return Response{Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "domekit", Version: s.version},
			Capabilities:    ServerCaps{Tools: &struct{}{}},
		}}
	case "notifications/initialized":
		return Response{}
	case "tools/list":
		return s.handleListTools()
	case "tools/call":
		return s.handleCallTool(ctx, req.Params)
	default:
		return Response{Error: &ResponseError{Code: codeMethodNotFound, Message: "unknown method: " + req.Method}}
	}
}

func (s *Server) handleListTools() Response {
	defs := s.registry.Definitions()
	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, Tool{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			InputSchema: d.Function.Parameters,
		})
	}
	return Response{Result: ListToolsResult{Tools: out}}
}

func (s *Server) handleCallTool(ctx context.Context, rawParams interface{}) Response {
	var params CallToolParams
	if err := remarshal(rawParams, &params); err != nil {
		return Response{Error: &ResponseError{Code: codeInvalidRequest, Message: "invalid tools/call params: " + err.Error()}}
	}

	requestID := audit.NewRequestID()
	log := observability.WithTrace(observability.WithRequestID(ctx, requestID))

	s.appendEvent(requestID, audit.EventRequestStart, "", nil, "")

	decision := s.engine.CheckTool(params.Name)
	if !decision.Allowed() {
		s.appendEvent(requestID, audit.EventPolicyBlock, params.Name, &decision, "")
		s.appendEvent(requestID, audit.EventRequestEnd, "", nil, decision.Reason)
		return Response{Result: CallToolResult{
			IsError: true,
			Content: []ContentItem{{Type: "text", Text: "denied: " + decision.Reason}},
		}}
	}

	if !s.registry.Has(params.Name) {
		err := "unknown tool: " + params.Name
		s.appendEvent(requestID, audit.EventRequestEnd, "", nil, err)
		return Response{Error: &ResponseError{Code: codeInvalidRequest, Message: err}}
	}
	if err := s.registry.Validate(params.Name, params.Arguments); err != nil {
		s.appendEvent(requestID, audit.EventRequestEnd, "", nil, err.Error())
		return Response{Result: CallToolResult{
			IsError: true,
			Content: []ContentItem{{Type: "text", Text: err.Error()}},
		}}
	}

	s.appendEvent(requestID, audit.EventToolCall, params.Name, nil, "")
	result, err := s.registry.Get(params.Name).Execute(ctx, params.Arguments)
	if err != nil {
		log.Error("tool execution failed", "tool", params.Name, "err", err)
		s.appendEvent(requestID, audit.EventToolResult, params.Name, nil, err.Error())
		s.appendEvent(requestID, audit.EventRequestEnd, "", nil, err.Error())
		return Response{Result: CallToolResult{
			IsError: true,
			Content: []ContentItem{{Type: "text", Text: err.Error()}},
		}}
	}

	s.appendEvent(requestID, audit.EventToolResult, params.Name, nil, "")
	s.appendEvent(requestID, audit.EventRequestEnd, "", nil, "")
	return Response{Result: CallToolResult{Content: []ContentItem{{Type: "text", Text: result}}}}
}

func (s *Server) appendEvent(requestID string, typ audit.EventType, tool string, decision *policy.Decision, errMsg string) {
	if err := s.log.Append(audit.Entry{
		RequestID: requestID,
		Type:      typ,
		Tool:      tool,
		Decision:  decision,
		Error:     errMsg,
	}); err != nil {
		slog.Error("stdio: failed to append audit entry", "err", err)
	}
}

func remarshal(src interface{}, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
