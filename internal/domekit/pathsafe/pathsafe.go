// Package pathsafe implements the canonicalization and glob-matching rules
// that the Manifest Loader and Policy Engine share.
//
// Both callers must use the same normalization so that an allow-list entry
// canonicalized once at load time compares correctly against an attacker-
// controlled path canonicalized on every check.
package pathsafe

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Canonicalize resolves p to a canonical absolute path without requiring that
// p exist. Symlinks are resolved when the longest existing ancestor of p can
// be statted; the remaining (possibly nonexistent) suffix is appended
// lexically. Returns an error only when p contains a NUL byte or an
// unresolvable "../" escape past an absolute root.
func Canonicalize(p string) (string, error) {
	if strings.IndexByte(p, 0) >= 0 {
		return "", fmt.Errorf("pathsafe: NUL byte in path")
	}

	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join("/", abs)
	}
	clean := filepath.Clean(abs)

	resolved, err := resolveSymlinks(clean)
	if err != nil {
		// Existence is not required; fall back to the lexical form.
		resolved = clean
	}

	if hasEscapingDotDot(resolved) {
		return "", fmt.Errorf("pathsafe: path traversal escapes root: %q", p)
	}
	return resolved, nil
}

// resolveSymlinks walks up from the full path to the longest existing
// ancestor, resolves symlinks on that ancestor via filepath.EvalSymlinks, and
// re-appends the nonexistent suffix unchanged.
func resolveSymlinks(clean string) (string, error) {
	real, err := filepath.EvalSymlinks(clean)
	if err == nil {
		return real, nil
	}

	dir, base := filepath.Split(clean)
	dir = filepath.Clean(dir)
	if dir == clean || dir == "." || dir == "/" {
		return clean, nil
	}
	resolvedDir, err := resolveSymlinks(dir)
	if err != nil {
		return clean, err
	}
	return filepath.Join(resolvedDir, base), nil
}

// hasEscapingDotDot reports whether a cleaned absolute path still contains a
// ".." component, which can only happen when the input tried to walk above
// the filesystem root.
func hasEscapingDotDot(clean string) bool {
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// CanonicalizePrefix canonicalizes the literal (non-glob) portion of an
// allow-list entry. Entries containing glob metacharacters ("*") have only
// the path segments before the first such segment canonicalized; the glob
// suffix is preserved verbatim and matched by MatchPrefix at check time.
func CanonicalizePrefix(pattern string) (string, error) {
	segs := strings.Split(pattern, "/")
	literalEnd := len(segs)
	for i, s := range segs {
		if strings.ContainsAny(s, "*?[") {
			literalEnd = i
			break
		}
	}
	literal := strings.Join(segs[:literalEnd], "/")
	if literal == "" {
		literal = "/"
	}
	canonLiteral, err := Canonicalize(literal)
	if err != nil {
		return "", err
	}
	if literalEnd == len(segs) {
		return canonLiteral, nil
	}
	globSuffix := strings.Join(segs[literalEnd:], "/")
	return strings.TrimSuffix(canonLiteral, "/") + "/" + globSuffix, nil
}

// MatchPrefix reports whether canonical candidate path cand is covered by
// allow-list pattern entries (already canonicalized by CanonicalizePrefix).
// A pattern matches when its segments match cand's leading segments
// (honoring "*" for one segment and "**" for zero or more) and the boundary
// after the matched segments falls exactly on a path separator or the end of
// cand — never a partial path-component match.
func MatchPrefix(pattern, cand string) bool {
	patSegs := splitPath(pattern)
	candSegs := splitPath(cand)
	return matchSegments(patSegs, candSegs)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pat, cand []string) bool {
	if len(pat) == 0 {
		// Prefix fully matched; any remainder in cand begins at a path
		// boundary because we split on "/".
		return true
	}
	head := pat[0]
	if head == "**" {
		for i := 0; i <= len(cand); i++ {
			if matchSegments(pat[1:], cand[i:]) {
				return true
			}
		}
		return false
	}
	if len(cand) == 0 {
		return false
	}
	if !matchSingleSegment(head, cand[0]) {
		return false
	}
	return matchSegments(pat[1:], cand[1:])
}

func matchSingleSegment(pat, seg string) bool {
	if pat == "*" {
		return true
	}
	ok, err := path.Match(pat, seg)
	return err == nil && ok
}

// ExactMatch reports whether cand equals one of the canonical entries exactly
// (used for the sqlite allow-list, which permits no glob semantics).
func ExactMatch(entries []string, cand string) bool {
	for _, e := range entries {
		if e == cand {
			return true
		}
	}
	return false
}
