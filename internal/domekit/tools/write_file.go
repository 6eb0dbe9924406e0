package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/pathsafe"
	"github.com/domekit-run/domekit/internal/domekit/policy"
)

// WriteFile is the write_file built-in tool. Writes are atomic: the content
// is written to a temp file in the target directory and renamed into place,
// so a crash mid-write never leaves a partially written file at path.
type WriteFile struct {
	engine   *policy.Engine
	manifest func() *manifestspec.Manifest
}

// NewWriteFile returns a write_file tool backed by engine and manifest.
func NewWriteFile(engine *policy.Engine, manifest func() *manifestspec.Manifest) *WriteFile {
	return &WriteFile{engine: engine, manifest: manifest}
}

func (t *WriteFile) Definition() message.ToolDefinition {
	return message.ToolDefinition{
		Type: "function",
		Function: message.FunctionDef{
			Name:        "write_file",
			Description: "Write content to an allow-listed file, replacing its contents atomically.",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"path", "content"},
				"properties": map[string]interface{}{
					"path":    map[string]interface{}{"type": "string", "description": "Absolute or relative path to write."},
					"content": map[string]interface{}{"type": "string", "description": "New file content."},
				},
			},
		},
	}
}

func (t *WriteFile) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return "", fmt.Errorf("write_file: path is required")
	}

	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}

	decision := t.engine.CheckWrite(canon)
	if !decision.Allowed() {
		return "", fmt.Errorf("write_file: denied: %s", decision.Reason)
	}

	maxBytes := t.manifest().ToolConfig("write_file").MaxBytes
	if int64(len(content)) > maxBytes {
		return "", fmt.Errorf("write_file: content size %d exceeds max_bytes %d", len(content), maxBytes)
	}

	if err := atomicWrite(canon, []byte(content)); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), canon), nil
}

// atomicWrite writes data to a temp file beside path and renames it into
// place, so readers never observe a partially written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".domekit-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
