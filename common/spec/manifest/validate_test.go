package manifest_test

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/domekit-run/domekit/common/spec/manifest"
)

const minimalValid = `
app:
  name: test-app
runtime:
  policy_mode: local_only
policy:
  tools:
    allow: ["sql_query"]
  data:
    sqlite:
      allow: ["/tmp/h.db"]
`

func decodeYAML(data []byte, v interface{}) error {
	return yaml.Unmarshal(data, v)
}

func TestParse_MinimalValid(t *testing.T) {
	m, err := manifest.Parse([]byte(minimalValid), decodeYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.App.Name != "test-app" {
		t.Errorf("app.name = %q", m.App.Name)
	}
	if m.Runtime.PolicyMode != manifest.PolicyModeLocalOnly {
		t.Errorf("policy_mode = %q", m.Runtime.PolicyMode)
	}
	if m.Policy.Network.Outbound != manifest.OutboundDeny {
		t.Errorf("expected default outbound=deny, got %q", m.Policy.Network.Outbound)
	}
	if m.Audit.Path != manifest.DefaultAuditPath {
		t.Errorf("expected default audit path, got %q", m.Audit.Path)
	}
}

func TestParse_EmptyAppName(t *testing.T) {
	_, err := manifest.Parse([]byte("app:\n  name: \"\"\n"), decodeYAML)
	if err == nil {
		t.Fatal("expected error for empty app.name")
	}
}

func TestParse_UnrecognizedPolicyMode(t *testing.T) {
	doc := `
app:
  name: test
runtime:
  policy_mode: production
`
	_, err := manifest.Parse([]byte(doc), decodeYAML)
	if err == nil {
		t.Fatal("expected error for unrecognized policy_mode")
	}
	var merr *manifest.Error
	if e, ok := err.(*manifest.Error); ok {
		merr = e
	} else {
		t.Fatalf("expected *manifest.Error, got %T", err)
	}
	if merr.Kind != manifest.KindBadPolicyMode {
		t.Errorf("kind = %q, want %q", merr.Kind, manifest.KindBadPolicyMode)
	}
}

func TestParse_SQLiteGlobRejected(t *testing.T) {
	doc := `
app:
  name: test
policy:
  data:
    sqlite:
      allow: ["/tmp/*.db"]
`
	_, err := manifest.Parse([]byte(doc), decodeYAML)
	if err == nil {
		t.Fatal("expected error for glob in sqlite allow-list")
	}
	if !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("error should mention sqlite: %v", err)
	}
}

func TestApplyDefaults_ToolConfig(t *testing.T) {
	m, err := manifest.Parse([]byte(minimalValid), decodeYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := m.ToolConfig("read_file")
	if cfg.MaxRows != manifest.DefaultMaxRows {
		t.Errorf("max_rows = %d, want default %d", cfg.MaxRows, manifest.DefaultMaxRows)
	}
	if cfg.MaxBytes != manifest.DefaultMaxBytes {
		t.Errorf("max_bytes = %d, want default %d", cfg.MaxBytes, manifest.DefaultMaxBytes)
	}
}

func TestIsDeveloperMode(t *testing.T) {
	doc := "app:\n  name: test\nruntime:\n  policy_mode: developer\n"
	m, err := manifest.Parse([]byte(doc), decodeYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.IsDeveloperMode() {
		t.Error("expected developer mode")
	}
}
