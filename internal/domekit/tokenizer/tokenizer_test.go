package tokenizer_test

import (
	"strings"
	"testing"

	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/tokenizer"
)

func TestCount_NonEmpty(t *testing.T) {
	if got := tokenizer.Count("hello, world"); got <= 0 {
		t.Errorf("Count returned %d, want > 0", got)
	}
}

func TestCountMessages_GrowsWithContent(t *testing.T) {
	short := []message.Message{{Role: message.RoleUser, Content: "hi"}}
	long := []message.Message{{Role: message.RoleUser, Content: strings.Repeat("word ", 500)}}

	if tokenizer.CountMessages(long) <= tokenizer.CountMessages(short) {
		t.Error("expected longer message list to produce a larger token count")
	}
}

func TestFitsContextWindow(t *testing.T) {
	messages := []message.Message{{Role: message.RoleUser, Content: "hi"}}
	if !tokenizer.FitsContextWindow(messages, 100, 10_000) {
		t.Error("expected small message list to fit a large window")
	}
	if tokenizer.FitsContextWindow(messages, 100, 1) {
		t.Error("expected request to exceed a window of 1 token")
	}
	if !tokenizer.FitsContextWindow(messages, 100, 0) {
		t.Error("a zero/unknown context window must not block the request")
	}
}
