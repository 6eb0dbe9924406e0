package tools_test

import (
	"context"
	"testing"

	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/tools"
)

type echoTool struct{}

func (echoTool) Definition() message.ToolDefinition {
	return message.ToolDefinition{
		Type: "function",
		Function: message.FunctionDef{
			Name: "echo",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"text"},
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}

func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return args["text"].(string), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := tools.New()
	r.Register(echoTool{})

	if !r.Has("echo") {
		t.Fatal("expected echo to be registered")
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unregistered tool")
	}
	if len(r.Definitions()) != 1 {
		t.Errorf("got %d definitions, want 1", len(r.Definitions()))
	}
}

func TestRegistry_Validate_RejectsMissingRequiredField(t *testing.T) {
	r := tools.New()
	r.Register(echoTool{})

	if err := r.Validate("echo", map[string]interface{}{}); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
	if err := r.Validate("echo", map[string]interface{}{"text": "hi"}); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r := tools.New()
	r.Register(echoTool{})
	r.Register(echoTool{})
}
