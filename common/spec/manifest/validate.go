package manifest

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a ManifestError for callers that need to branch on it.
type ErrorKind string

const (
	KindUnknownField  ErrorKind = "unknown_field"
	KindBadGlob       ErrorKind = "sqlite_glob"
	KindBadPolicyMode ErrorKind = "bad_policy_mode"
	KindStructural    ErrorKind = "structural"
)

// Error is the structured diagnostic returned by Parse/Validate on failure.
// Field is a dotted path into the document (e.g. "policy.data.sqlite.allow[0]")
// when the diagnostic can be anchored to a specific value.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("manifest: %s", e.Message)
}

// Parse decodes a YAML document into a Manifest, validates it, and applies
// its documented defaults. It is the canonical entry point used by the
// Manifest Loader.
func Parse(data []byte, decode func([]byte, interface{}) error) (*Manifest, error) {
	var m Manifest
	if err := decode(data, &m); err != nil {
		return nil, &Error{Kind: KindStructural, Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	m.ApplyDefaults()
	return &m, nil
}

// Validate checks structural correctness. It returns the first validation
// error encountered, or nil when the manifest is valid.
func Validate(m *Manifest) error {
	if m == nil {
		return &Error{Kind: KindStructural, Message: "manifest must not be nil"}
	}

	if strings.TrimSpace(m.App.Name) == "" {
		return &Error{Kind: KindStructural, Field: "app.name", Message: "must not be empty"}
	}

	switch m.Runtime.PolicyMode {
	case "", PolicyModeLocalOnly, PolicyModeDeveloper:
		// ok
	default:
		return &Error{
			Kind:    KindBadPolicyMode,
			Field:   "runtime.policy_mode",
			Message: fmt.Sprintf("unrecognized policy_mode %q (want %q or %q)", m.Runtime.PolicyMode, PolicyModeLocalOnly, PolicyModeDeveloper),
		}
	}

	switch m.Policy.Network.Outbound {
	case "", OutboundDeny, OutboundAllow:
		// ok
	default:
		return &Error{
			Kind:    KindStructural,
			Field:   "policy.network.outbound",
			Message: fmt.Sprintf("unrecognized outbound %q (want %q or %q)", m.Policy.Network.Outbound, OutboundDeny, OutboundAllow),
		}
	}

	for i, p := range m.Policy.Data.SQLite.Allow {
		if strings.ContainsAny(p, "*?[") {
			return &Error{
				Kind:    KindBadGlob,
				Field:   fmt.Sprintf("policy.data.sqlite.allow[%d]", i),
				Message: fmt.Sprintf("sqlite allow-list entries must be exact paths, got glob character in %q", p),
			}
		}
		if !strings.HasPrefix(p, "/") {
			return &Error{
				Kind:    KindStructural,
				Field:   fmt.Sprintf("policy.data.sqlite.allow[%d]", i),
				Message: fmt.Sprintf("sqlite allow-list entries must be absolute paths, got %q", p),
			}
		}
	}

	for name, spec := range m.Tools {
		if spec.MaxRows < 0 || spec.MaxBytes < 0 {
			return &Error{
				Kind:    KindStructural,
				Field:   fmt.Sprintf("tools.%s", name),
				Message: "max_rows and max_bytes must be >= 0",
			}
		}
	}

	if m.VectorDB.DefaultTopK < 0 || m.VectorDB.DefaultTopKUpper < 0 {
		return &Error{Kind: KindStructural, Field: "vector_db", Message: "top_k bounds must be >= 0"}
	}

	return nil
}
