package stdio_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/audit"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/transport/stdio"
	"github.com/domekit-run/domekit/internal/domekit/tools"
)

type staticManifestProvider struct{ m *manifestspec.Manifest }

func (s *staticManifestProvider) Manifest() *manifestspec.Manifest { return s.m }

func allowAllManifest() *manifestspec.Manifest {
	return &manifestspec.Manifest{
		Runtime: manifestspec.Runtime{PolicyMode: manifestspec.PolicyModeDeveloper},
	}
}

func denyAllManifest() *manifestspec.Manifest {
	return &manifestspec.Manifest{}
}

type echoTool struct{}

func (echoTool) Definition() message.ToolDefinition {
	return message.ToolDefinition{Type: "function", Function: message.FunctionDef{Name: "echo"}}
}

func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "echoed", nil
}

func newTestServer(t *testing.T, m *manifestspec.Manifest) *stdio.Server {
	t.Helper()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open failed: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	reg := tools.New()
	reg.Register(echoTool{})

	engine := policy.New(&staticManifestProvider{m: m})
	return stdio.New(stdio.Config{Registry: reg, Engine: engine, Log: log, Version: "test"})
}

func sendAndRead(t *testing.T, srv *stdio.Server, requests ...string) []string {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	var lines []string
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestServe_ListTools(t *testing.T) {
	srv := newTestServer(t, allowAllManifest())
	lines := sendAndRead(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if len(lines) != 1 {
		t.Fatalf("got %d response lines, want 1", len(lines))
	}
	var resp stdio.Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestServe_CallTool_AllowedRunsAndReturnsResult(t *testing.T) {
	srv := newTestServer(t, allowAllManifest())
	lines := sendAndRead(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	if len(lines) != 1 {
		t.Fatalf("got %d response lines, want 1", len(lines))
	}
	var resp stdio.Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestServe_CallTool_DeniedReturnsIsError(t *testing.T) {
	srv := newTestServer(t, denyAllManifest())
	lines := sendAndRead(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	if len(lines) != 1 {
		t.Fatalf("got %d response lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0], `"isError":true`) {
		t.Errorf("expected isError:true in response, got %s", lines[0])
	}
}

func TestServe_NotificationProducesNoResponse(t *testing.T) {
	srv := newTestServer(t, allowAllManifest())
	lines := sendAndRead(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if len(lines) != 0 {
		t.Fatalf("got %d response lines, want 0 for a notification", len(lines))
	}
}

func TestServe_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := newTestServer(t, allowAllManifest())
	lines := sendAndRead(t, srv, `{"jsonrpc":"2.0","id":1,"method":"bogus"}`)
	var resp stdio.Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
}
