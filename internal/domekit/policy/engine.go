// Package policy implements the Policy Engine: a pure, stateless evaluator
// that decides whether a proposed tool call, file access, SQLite query,
// outbound connection, or vector-collection access is permitted by the
// currently loaded Manifest.
//
// Evaluation never touches the network. Its only filesystem access is the
// symlink resolution pathsafe.Canonicalize performs on each candidate path
// (allow-list entries were already canonicalized at manifest-load time);
// given the same Manifest, the same arguments, and the same filesystem
// state, the Check methods always return the same Decision.
package policy

import (
	"fmt"
	"net"
	"path"
	"strings"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/pathsafe"
)

// Verdict is the binary outcome of a policy check. Unlike the three-way
// allow/require-approval/deny decisions some tool-calling systems use, a
// local-first gateway has no human in the loop: every check resolves to
// either ALLOW or DENY.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
)

// Decision is the full output of a single policy check, suitable for
// recording verbatim into an audit entry.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
	Rule    string  `json:"rule"`
}

func (d Decision) Allowed() bool { return d.Verdict == VerdictAllow }

func (d Decision) String() string {
	return fmt.Sprintf("%s (%s): %s", d.Verdict, d.Rule, d.Reason)
}

func allow(rule, reason string) Decision {
	return Decision{Verdict: VerdictAllow, Rule: rule, Reason: reason}
}

func deny(rule, reason string) Decision {
	return Decision{Verdict: VerdictDeny, Rule: rule, Reason: reason}
}

// ManifestProvider is any type that can return the currently loaded
// Manifest. *manifest.Loader satisfies this.
type ManifestProvider interface {
	Manifest() *manifestspec.Manifest
}

// Engine evaluates policy against the currently loaded Manifest. It holds no
// mutable state of its own; all state lives behind the ManifestProvider.
type Engine struct {
	manifests ManifestProvider
}

// New returns a new Engine backed by the provided manifest provider.
func New(provider ManifestProvider) *Engine {
	return &Engine{manifests: provider}
}

func (e *Engine) developerModeDecision(m *manifestspec.Manifest) (Decision, bool) {
	if m == nil {
		return deny("<no manifest>", "no manifest loaded"), true
	}
	if m.IsDeveloperMode() {
		return allow("developer_mode", "runtime.policy_mode=developer short-circuits all checks"), true
	}
	return Decision{}, false
}

// CheckTool evaluates whether tool name is permitted to run at all, per
// policy.tools.allow. This is the first gate in the Tool Router's
// evaluation order; a tool denied here never reaches its resource-specific
// check.
func (e *Engine) CheckTool(name string) Decision {
	m := e.manifests.Manifest()
	if d, short := e.developerModeDecision(m); short {
		return d
	}

	for _, pattern := range m.Policy.Tools.Allow {
		if matchesGlob(pattern, name) {
			return allow("policy.tools.allow", fmt.Sprintf("tool %q matches allow entry %q", name, pattern))
		}
	}
	return deny("policy.tools.allow", fmt.Sprintf("tool %q matches no allow entry; default deny", name))
}

// CheckSQLite evaluates whether the sqlite database at path (already
// canonicalized by the caller, typically the sql_query sandbox) is in the
// exact-match allow-list. SQLite allow-list entries never support globs: a
// database file is either explicitly enumerated or denied.
func (e *Engine) CheckSQLite(path string) Decision {
	m := e.manifests.Manifest()
	if d, short := e.developerModeDecision(m); short {
		return d
	}

	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return deny("policy.data.sqlite.allow", fmt.Sprintf("cannot canonicalize path %q: %v", path, err))
	}
	if pathsafe.ExactMatch(m.Policy.Data.SQLite.Allow, canon) {
		return allow("policy.data.sqlite.allow", fmt.Sprintf("database %q is in the allow-list", canon))
	}
	return deny("policy.data.sqlite.allow", fmt.Sprintf("database %q is not in the allow-list; default deny", canon))
}

// CheckRead evaluates whether reading path is permitted by
// policy.data.filesystem.allow_read.
func (e *Engine) CheckRead(path string) Decision {
	return e.checkFilesystem(path, "policy.data.filesystem.allow_read", func(m *manifestspec.Manifest) []string {
		return m.Policy.Data.Filesystem.AllowRead
	})
}

// CheckWrite evaluates whether writing path is permitted by
// policy.data.filesystem.allow_write. Write access is never implied by read
// access: a path present only in allow_read is denied for write.
func (e *Engine) CheckWrite(path string) Decision {
	return e.checkFilesystem(path, "policy.data.filesystem.allow_write", func(m *manifestspec.Manifest) []string {
		return m.Policy.Data.Filesystem.AllowWrite
	})
}

func (e *Engine) checkFilesystem(path, field string, list func(*manifestspec.Manifest) []string) Decision {
	m := e.manifests.Manifest()
	if d, short := e.developerModeDecision(m); short {
		return d
	}

	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return deny(field, fmt.Sprintf("cannot canonicalize path %q: %v", path, err))
	}
	for _, pattern := range list(m) {
		if pathsafe.MatchPrefix(pattern, canon) {
			return allow(field, fmt.Sprintf("path %q matches allow entry %q", canon, pattern))
		}
	}
	return deny(field, fmt.Sprintf("path %q matches no allow entry; default deny", canon))
}

// CheckNetwork evaluates whether an outbound connection to host is
// permitted. The three conditions are independent disjuncts, not a
// restriction chain: outbound=allow permits every host regardless of
// allow_domains; a host present in allow_domains is permitted regardless of
// outbound; and loopback is permitted only as the fallback under
// outbound=deny, since under outbound=allow the first disjunct already
// covers it.
func (e *Engine) CheckNetwork(host string) Decision {
	m := e.manifests.Manifest()
	if d, short := e.developerModeDecision(m); short {
		return d
	}

	if m.Policy.Network.Outbound == manifestspec.OutboundAllow {
		return allow("policy.network.outbound", "outbound=allow permits all hosts")
	}

	for _, domain := range m.Policy.Network.AllowDomains {
		if matchesGlob(domain, host) {
			return allow("policy.network.allow_domains", fmt.Sprintf("host %q matches allow entry %q", host, domain))
		}
	}

	if isLoopback(host) {
		return allow("policy.network.loopback", fmt.Sprintf("host %q is loopback", host))
	}

	return deny("policy.network.outbound", fmt.Sprintf("outbound policy is deny and host %q matches no allow_domains entry", host))
}

// CheckVector evaluates whether a vector collection operation is permitted.
// Read access is governed by policy.data.vector.allow and write access (used
// by vector_manage) by policy.data.vector.allow_write. Entries are glob
// patterns in path.Match syntax (e.g. "docs-*").
func (e *Engine) CheckVector(collection string, write bool) Decision {
	m := e.manifests.Manifest()
	if d, short := e.developerModeDecision(m); short {
		return d
	}

	field := "policy.data.vector.allow"
	list := m.Policy.Data.Vector.Allow
	if write {
		field = "policy.data.vector.allow_write"
		list = m.Policy.Data.Vector.AllowWrite
	}

	for _, pattern := range list {
		if ok, err := path.Match(pattern, collection); err == nil && ok {
			return allow(field, fmt.Sprintf("collection %q matches allow entry %q", collection, pattern))
		}
	}
	return deny(field, fmt.Sprintf("collection %q matches no allow entry; default deny", collection))
}

// matchesGlob returns true when pattern is "*" or equals value exactly.
// Tool-name and network-domain allow-lists use this single-segment glob
// form rather than pathsafe's path-segment globbing, since neither tool
// names nor domains are slash-delimited.
func matchesGlob(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

func isLoopback(host string) bool {
	h := host
	if i := strings.LastIndexByte(h, ':'); i >= 0 {
		if _, _, err := net.SplitHostPort(host); err == nil {
			h = host[:i]
		}
	}
	h = strings.Trim(h, "[]")
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
