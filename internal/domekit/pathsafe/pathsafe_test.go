package pathsafe_test

import (
	"testing"

	"github.com/domekit-run/domekit/internal/domekit/pathsafe"
)

func TestCanonicalize_Traversal(t *testing.T) {
	got, err := pathsafe.Canonicalize("/app/data/../../etc/shadow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/etc/shadow" {
		t.Errorf("got %q, want /etc/shadow", got)
	}
}

func TestCanonicalize_NulByte(t *testing.T) {
	if _, err := pathsafe.Canonicalize("/app/data\x00/evil"); err == nil {
		t.Fatal("expected error for NUL byte")
	}
}

func TestMatchPrefix_NoPartialComponentMatch(t *testing.T) {
	if pathsafe.MatchPrefix("/app/data", "/app/data2") {
		t.Error("/app/data should not match /app/data2 (partial component)")
	}
	if !pathsafe.MatchPrefix("/app/data", "/app/data/sub/file.txt") {
		t.Error("/app/data should match a path beneath it")
	}
	if !pathsafe.MatchPrefix("/app/data", "/app/data") {
		t.Error("/app/data should match itself")
	}
}

func TestMatchPrefix_Globs(t *testing.T) {
	if !pathsafe.MatchPrefix("/app/*/logs", "/app/service-a/logs/out.txt") {
		t.Error("single-segment * should match one segment")
	}
	if pathsafe.MatchPrefix("/app/*/logs", "/app/a/b/logs") {
		t.Error("single-segment * must not match multiple segments")
	}
	if !pathsafe.MatchPrefix("/app/**/logs", "/app/a/b/c/logs/out.txt") {
		t.Error("** should match zero or more segments")
	}
	if !pathsafe.MatchPrefix("/app/**/logs", "/app/logs") {
		t.Error("** should match zero segments")
	}
}

func TestCanonicalizePrefix_PreservesGlobSuffix(t *testing.T) {
	got, err := pathsafe.CanonicalizePrefix("/app/data/*.db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/app/data/*.db" {
		t.Errorf("got %q", got)
	}
}
