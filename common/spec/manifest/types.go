// Package manifest defines the declarative policy document that governs one
// domekit instance. It separates policy (deterministic, enforced by
// internal/domekit/policy) from the runtime/model wiring that the boundary
// and adapter layers read.
package manifest

// PolicyMode selects how strictly the Policy Engine enforces allow-lists.
type PolicyMode string

const (
	// PolicyModeLocalOnly enforces every allow-list check (default).
	PolicyModeLocalOnly PolicyMode = "local_only"
	// PolicyModeDeveloper short-circuits every check to ALLOW.
	PolicyModeDeveloper PolicyMode = "developer"
)

// Outbound is the network egress posture.
type Outbound string

const (
	OutboundDeny  Outbound = "deny"
	OutboundAllow Outbound = "allow"
)

// Manifest is the root of the declarative policy document.
type Manifest struct {
	App       App                 `yaml:"app" json:"app"`
	Runtime   Runtime             `yaml:"runtime" json:"runtime"`
	Policy    Policy              `yaml:"policy" json:"policy"`
	Models    Models              `yaml:"models" json:"models"`
	Tools     map[string]ToolSpec `yaml:"tools,omitempty" json:"tools,omitempty"`
	Embedding Embedding           `yaml:"embedding,omitempty" json:"embedding,omitempty"`
	VectorDB  VectorDB            `yaml:"vector_db,omitempty" json:"vector_db,omitempty"`
	Audit     Audit               `yaml:"audit,omitempty" json:"audit,omitempty"`
}

// App identifies the application instance.
type App struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Runtime controls enforcement strictness and the model backend's address.
type Runtime struct {
	PolicyMode PolicyMode `yaml:"policy_mode,omitempty" json:"policy_mode"`
	BaseURL    string     `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Policy is the declarative allow-list root.
type Policy struct {
	Network NetworkPolicy `yaml:"network,omitempty" json:"network"`
	Tools   ToolsPolicy   `yaml:"tools,omitempty" json:"tools"`
	Data    DataPolicy    `yaml:"data,omitempty" json:"data"`
}

// NetworkPolicy controls the advisory outbound-connection check.
type NetworkPolicy struct {
	Outbound     Outbound `yaml:"outbound,omitempty" json:"outbound"`
	AllowDomains []string `yaml:"allow_domains,omitempty" json:"allow_domains,omitempty"`
}

// ToolsPolicy is the tool-name allow-list.
type ToolsPolicy struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// DataPolicy groups the per-resource allow-lists.
type DataPolicy struct {
	SQLite     SQLitePolicy     `yaml:"sqlite,omitempty" json:"sqlite"`
	Filesystem FilesystemPolicy `yaml:"filesystem,omitempty" json:"filesystem"`
	Vector     VectorPolicy     `yaml:"vector,omitempty" json:"vector"`
}

// SQLitePolicy lists exact absolute database paths; no globs permitted.
type SQLitePolicy struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// FilesystemPolicy lists ordered path prefixes/globs for read and write access.
type FilesystemPolicy struct {
	AllowRead  []string `yaml:"allow_read,omitempty" json:"allow_read,omitempty"`
	AllowWrite []string `yaml:"allow_write,omitempty" json:"allow_write,omitempty"`
}

// VectorPolicy lists collection-name glob patterns for read and write access.
type VectorPolicy struct {
	Allow      []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	AllowWrite []string `yaml:"allow_write,omitempty" json:"allow_write,omitempty"`
}

// Models describes the model backend and the named model catalogue.
type Models struct {
	Backend string                 `yaml:"backend,omitempty" json:"backend,omitempty"`
	Default string                 `yaml:"default,omitempty" json:"default,omitempty"`
	Map     map[string]ModelConfig `yaml:"map,omitempty" json:"map,omitempty"`
}

// ModelConfig is one named model entry under models.map.
type ModelConfig struct {
	ID            string `yaml:"id" json:"id"`
	ContextWindow int    `yaml:"context_window,omitempty" json:"context_window,omitempty"`
}

// ToolSpec is per-tool configuration under tools.<name>.
type ToolSpec struct {
	MaxRows  int   `yaml:"max_rows,omitempty" json:"max_rows,omitempty"`
	MaxBytes int64 `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"`
	ReadOnly bool  `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// Embedding selects the embedding backend used to auto-embed vector documents.
type Embedding struct {
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
}

// VectorDB selects the vector store backend and its search defaults.
type VectorDB struct {
	Backend          string `yaml:"backend,omitempty" json:"backend,omitempty"`
	Path             string `yaml:"path,omitempty" json:"path,omitempty"`
	DefaultTopK      int    `yaml:"default_top_k,omitempty" json:"default_top_k,omitempty"`
	DefaultTopKUpper int    `yaml:"default_top_k_upper_bound,omitempty" json:"default_top_k_upper_bound,omitempty"`
}

// Audit configures the append-only log's location and redaction behavior.
type Audit struct {
	Path              string `yaml:"path,omitempty" json:"path,omitempty"`
	RedactPrompt      bool   `yaml:"redact_prompt,omitempty" json:"redact_prompt,omitempty"`
	RedactToolOutputs bool   `yaml:"redact_tool_outputs,omitempty" json:"redact_tool_outputs,omitempty"`
}

const (
	DefaultMaxRows       = 100
	DefaultMaxBytes      = 1_048_576
	DefaultTopK          = 10
	DefaultTopKUpper     = 50
	DefaultAuditPath     = "./audit.jsonl"
	DefaultPolicyMode    = PolicyModeLocalOnly
	DefaultOutbound      = OutboundDeny
	DefaultToolSoftDL    = 30 // seconds
	DefaultRequestHardDL = 120 // seconds
)

// ApplyDefaults fills in zero-valued fields with their documented
// defaults. Called once by the Loader after validation succeeds.
func (m *Manifest) ApplyDefaults() {
	if m.Runtime.PolicyMode == "" {
		m.Runtime.PolicyMode = DefaultPolicyMode
	}
	if m.Policy.Network.Outbound == "" {
		m.Policy.Network.Outbound = DefaultOutbound
	}
	if m.VectorDB.DefaultTopK == 0 {
		m.VectorDB.DefaultTopK = DefaultTopK
	}
	if m.VectorDB.DefaultTopKUpper == 0 {
		m.VectorDB.DefaultTopKUpper = DefaultTopKUpper
	}
	if m.Audit.Path == "" {
		m.Audit.Path = DefaultAuditPath
	}
	if m.Tools == nil {
		m.Tools = make(map[string]ToolSpec)
	}
	for name, spec := range m.Tools {
		if spec.MaxRows == 0 {
			spec.MaxRows = DefaultMaxRows
		}
		if spec.MaxBytes == 0 {
			spec.MaxBytes = DefaultMaxBytes
		}
		m.Tools[name] = spec
	}
}

// ToolConfig returns the per-tool config for name, applying defaults when the
// manifest does not declare an entry for it.
func (m *Manifest) ToolConfig(name string) ToolSpec {
	if spec, ok := m.Tools[name]; ok {
		return spec
	}
	return ToolSpec{MaxRows: DefaultMaxRows, MaxBytes: DefaultMaxBytes}
}

// IsDeveloperMode reports whether policy_mode short-circuits every check to
// ALLOW.
func (m *Manifest) IsDeveloperMode() bool {
	return m.Runtime.PolicyMode == PolicyModeDeveloper
}
