package tools

import (
	"context"
	"fmt"
	"io"
	"os"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/pathsafe"
	"github.com/domekit-run/domekit/internal/domekit/policy"
)

// ReadFile is the read_file built-in tool.
type ReadFile struct {
	engine   *policy.Engine
	manifest func() *manifestspec.Manifest
}

// NewReadFile returns a read_file tool backed by engine and manifest.
func NewReadFile(engine *policy.Engine, manifest func() *manifestspec.Manifest) *ReadFile {
	return &ReadFile{engine: engine, manifest: manifest}
}

func (t *ReadFile) Definition() message.ToolDefinition {
	return message.ToolDefinition{
		Type: "function",
		Function: message.FunctionDef{
			Name:        "read_file",
			Description: "Read the contents of an allow-listed file.",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]interface{}{
					"path": map[string]interface{}{"type": "string", "description": "Absolute or relative path to read."},
				},
			},
		},
	}
}

func (t *ReadFile) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return "", fmt.Errorf("read_file: path is required")
	}

	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	decision := t.engine.CheckRead(canon)
	if !decision.Allowed() {
		return "", fmt.Errorf("read_file: denied: %s", decision.Reason)
	}

	f, err := os.Open(canon)
	if err != nil {
		return "", fmt.Errorf("read_file: open: %w", err)
	}
	defer f.Close()

	maxBytes := t.manifest().ToolConfig("read_file").MaxBytes
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read_file: read: %w", err)
	}

	truncated := int64(len(data)) > maxBytes
	if truncated {
		data = data[:maxBytes]
	}
	if truncated {
		return string(data) + "\n...[truncated]", nil
	}
	return string(data), nil
}
