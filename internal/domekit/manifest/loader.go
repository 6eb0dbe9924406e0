// Package manifest loads the declarative Manifest document, canonicalizes
// every allow-list path it carries, and exposes the result as an atomically
// swapped in-memory snapshot that the Policy Engine reads on every check.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/pathsafe"
)

// Loader holds the current live Manifest and allows atomic reloads. The zero
// value is ready to use but returns a nil Manifest until LoadFile or Apply
// succeeds.
type Loader struct {
	mu       sync.RWMutex
	manifest *manifestspec.Manifest
	hash     string
	raw      string
}

// New creates an empty Loader with no manifest loaded yet.
func New() *Loader {
	return &Loader{}
}

// LoadFile reads a YAML manifest from disk, validates it, canonicalizes its
// allow-lists, and applies it.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest file: %w", err)
	}
	return l.Apply(data)
}

// Apply parses and validates a raw YAML payload, canonicalizes every
// allow-list entry, and atomically replaces the current manifest. On
// failure the live manifest is left untouched (safe hot-reload).
func (l *Loader) Apply(data []byte) error {
	m, err := manifestspec.Parse(data, yaml.Unmarshal)
	if err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	if err := canonicalizeAllowLists(m); err != nil {
		return fmt.Errorf("canonicalize manifest paths: %w", err)
	}

	h := sha256.Sum256(data)
	hash := hex.EncodeToString(h[:])

	l.mu.Lock()
	defer l.mu.Unlock()

	l.manifest = m
	l.hash = hash
	l.raw = string(data)

	slog.Info("manifest applied",
		"app", m.App.Name,
		"policy_mode", m.Runtime.PolicyMode,
		"hash", hash[:12],
	)
	return nil
}

// canonicalizeAllowLists rewrites every path-shaped allow-list entry in place
// to its canonical form, so that the Policy Engine never has to re-derive it
// on the hot path. Entries whose canonicalization target does not exist on
// disk are kept (a database or directory may be created later) but logged as
// a warning, per the "warn, not fail" rule for manifest loading.
func canonicalizeAllowLists(m *manifestspec.Manifest) error {
	sqlite := m.Policy.Data.SQLite.Allow
	for i, p := range sqlite {
		canon, err := pathsafe.Canonicalize(p)
		if err != nil {
			return fmt.Errorf("policy.data.sqlite.allow[%d]: %w", i, err)
		}
		warnIfMissing(canon, "policy.data.sqlite.allow", p)
		sqlite[i] = canon
	}

	read := m.Policy.Data.Filesystem.AllowRead
	for i, p := range read {
		canon, err := pathsafe.CanonicalizePrefix(p)
		if err != nil {
			return fmt.Errorf("policy.data.filesystem.allow_read[%d]: %w", i, err)
		}
		warnIfMissing(canon, "policy.data.filesystem.allow_read", p)
		read[i] = canon
	}

	write := m.Policy.Data.Filesystem.AllowWrite
	for i, p := range write {
		canon, err := pathsafe.CanonicalizePrefix(p)
		if err != nil {
			return fmt.Errorf("policy.data.filesystem.allow_write[%d]: %w", i, err)
		}
		warnIfMissing(canon, "policy.data.filesystem.allow_write", p)
		write[i] = canon
	}

	return nil
}

// warnIfMissing logs (but does not fail on) an allow-list entry whose
// canonical literal prefix does not currently exist. Glob-suffixed entries
// are skipped since their literal prefix alone is frequently a parent
// directory that is expected to exist.
func warnIfMissing(canon, field, original string) {
	literal := canon
	for i := 0; i < len(literal); i++ {
		if literal[i] == '*' || literal[i] == '?' || literal[i] == '[' {
			return
		}
	}
	if _, err := os.Stat(literal); err != nil {
		slog.Warn("manifest allow-list entry does not exist on disk",
			"field", field,
			"entry", original,
			"canonical", canon,
			"error", err,
		)
	}
}

// Manifest returns the current live manifest, or nil if none has been
// loaded yet.
func (l *Loader) Manifest() *manifestspec.Manifest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.manifest
}

// Hash returns the SHA-256 hex digest of the current applied YAML, or "" if
// no manifest has been loaded.
func (l *Loader) Hash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}

// YAML returns the raw YAML text of the current applied manifest.
func (l *Loader) YAML() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.raw
}
