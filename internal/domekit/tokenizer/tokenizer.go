// Package tokenizer counts tokens against a model's context_window so the
// Tool Router can reject or trim a request before sending it to the Model
// Adapter, rather than discovering the overflow from a backend error.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/domekit-run/domekit/internal/domekit/message"
)

var (
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
	encoderErr  error
)

func initEncoder() error {
	encoderOnce.Do(func() {
		// cl100k_base covers GPT-4, GPT-3.5-turbo, and is a close enough
		// approximation for non-OpenAI local models, which rarely expose
		// their own tokenizer over the wire.
		encoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// Count returns the token count of text, falling back to a character-based
// estimate if the tiktoken encoding table failed to load.
func Count(text string) int {
	if err := initEncoder(); err != nil {
		return estimate(text)
	}
	return len(encoder.Encode(text, nil, nil))
}

// CountMessages returns the token count of a full message list, including the
// per-message role/structure overhead OpenAI's documentation describes.
func CountMessages(messages []message.Message) int {
	if err := initEncoder(); err != nil {
		total := 0
		for _, m := range messages {
			total += estimate(m.Content)
		}
		return total
	}

	total := 2 // overall structure overhead
	for _, m := range messages {
		total += 4 // per-message overhead: role + content markers
		total += len(encoder.Encode(string(m.Role), nil, nil))
		total += len(encoder.Encode(m.Content, nil, nil))
		for _, tc := range m.ToolCalls {
			total += len(encoder.Encode(tc.Function.Name, nil, nil))
			total += len(encoder.Encode(tc.Function.Arguments, nil, nil))
		}
	}
	return total
}

// FitsContextWindow reports whether messages, plus a reserved completion
// budget, fit within contextWindow tokens.
func FitsContextWindow(messages []message.Message, reservedForCompletion, contextWindow int) bool {
	if contextWindow <= 0 {
		return true // unknown window: do not block the request
	}
	return CountMessages(messages)+reservedForCompletion <= contextWindow
}

// estimate is the fallback used when the tiktoken table could not be loaded:
// roughly 4 characters per token, the same rule of thumb used throughout the
// ecosystem when no real tokenizer is available.
func estimate(text string) int {
	return (len(text) + 3) / 4
}
