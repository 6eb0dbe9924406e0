// Package http implements the gateway's HTTP boundary: an OpenAI-compatible
// /v1/chat/completions endpoint plus the /v1/domekit/* control-plane
// endpoints (manifest reload, audit query/stream, derived alert/metrics
// views).
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/domekit-run/domekit/internal/domekit/audit"
	manifestpkg "github.com/domekit-run/domekit/internal/domekit/manifest"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/router"
	"github.com/domekit-run/domekit/internal/domekit/views/alerts"
	"github.com/domekit-run/domekit/internal/domekit/views/metrics"
)

// ChatCompletionRequest mirrors the OpenAI chat completions request body, the
// wire format the gateway presents to any OpenAI-compatible client.
type ChatCompletionRequest struct {
	Model     string                   `json:"model"`
	Messages  []message.Message        `json:"messages"`
	Tools     []message.ToolDefinition `json:"tools,omitempty"`
	MaxTokens int                      `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse mirrors the OpenAI chat completions response body,
// extended with trace: the request's tool-use and policy provenance, so a
// caller can see what the gateway actually did without a second call to the
// audit endpoints.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   message.TokenUsage     `json:"usage"`
	Trace   message.Trace          `json:"trace"`
}

type chatCompletionChoice struct {
	Index        int             `json:"index"`
	Message      message.Message `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Server is the gateway's HTTP boundary.
type Server struct {
	addr        string
	router      *router.Router
	manifestLdr *manifestpkg.Loader
	auditLog    *audit.Log
	startedAt   time.Time
	version     string

	server *http.Server
}

// Config bundles the Server's dependencies.
type Config struct {
	Addr        string
	Router      *router.Router
	ManifestLdr *manifestpkg.Loader
	AuditLog    *audit.Log
	Version     string
}

// New constructs a Server and registers every route. It does not start
// listening; call Start for that.
func New(cfg Config) *Server {
	s := &Server{
		addr:        cfg.Addr,
		router:      cfg.Router,
		manifestLdr: cfg.ManifestLdr,
		auditLog:    cfg.AuditLog,
		startedAt:   time.Now(),
		version:     cfg.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/domekit/health", s.handleHealth)
	mux.HandleFunc("/v1/domekit/manifest/reload", s.handleManifestReload)
	mux.HandleFunc("/v1/domekit/audit", s.handleAuditQuery)
	mux.HandleFunc("/v1/domekit/audit/stream", s.handleAuditStream)
	mux.HandleFunc("/v1/domekit/alerts", s.handleAlerts)
	mux.HandleFunc("/v1/domekit/metrics", s.handleMetrics)
	mux.Handle("/v1/domekit/metrics/prom", promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the audit SSE stream is long-lived
	}
	return s
}

// ServeHTTP lets the Server be driven directly by net/http/httptest without a
// real listener, and satisfies http.Handler for embedding in other muxes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Start begins listening. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.addr, err)
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(nopWriter{}, "%v", err) // observability.WithTrace avoided here: no request context
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()
	return nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	requestID := audit.NewRequestID()
	resp, err := s.router.HandleRequest(r.Context(), requestID, router.Request{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		// Only an adapter failure or cancellation reaches HandleRequest's
		// error return; policy denials, tool errors, and the iteration cap
		// are all surfaced as normal responses with their trace attached.
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-Domekit-Request-Id", requestID)
	writeJSON(w, http.StatusOK, ChatCompletionResponse{
		ID:     requestID,
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      resp.Message,
			FinishReason: "stop",
		}},
		Usage: resp.Usage,
		Trace: resp.Trace,
	})
}

type manifestReloadRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleManifestReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req manifestReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := s.manifestLdr.LoadFile(req.Path); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": s.manifestLdr.Hash()})
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "request_id query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": s.auditLog.ByRequest(requestID)})
}

func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.auditLog.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	entries := s.auditLog.ByRequest(requestID)
	found := alerts.Scan(entries, alerts.Thresholds{})
	found = append(found, alerts.FromFailedRequests(entries)...)
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": found})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	entries := s.auditLog.ByRequest(requestID)
	writeJSON(w, http.StatusOK, metrics.Summarize(entries))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
