package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/vectorstore"
)

// VectorManage is the vector_manage built-in tool: it auto-embeds and
// upserts or deletes documents in an allow-listed collection. Unlike
// vector_search, every call requires write access (policy.data.vector.allow_write).
type VectorManage struct {
	engine   *policy.Engine
	store    *vectorstore.Store
	embedder vectorstore.Embedder
}

// NewVectorManage returns a vector_manage tool.
func NewVectorManage(engine *policy.Engine, store *vectorstore.Store, embedder vectorstore.Embedder) *VectorManage {
	return &VectorManage{engine: engine, store: store, embedder: embedder}
}

func (t *VectorManage) Definition() message.ToolDefinition {
	return message.ToolDefinition{
		Type: "function",
		Function: message.FunctionDef{
			Name:        "vector_manage",
			Description: "Upsert or delete a document in an allow-listed vector collection.",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"collection", "operation"},
				"properties": map[string]interface{}{
					"collection": map[string]interface{}{"type": "string"},
					"operation":  map[string]interface{}{"type": "string", "enum": []string{"upsert", "delete"}},
					"id":         map[string]interface{}{"type": "string", "description": "Document ID; generated for upsert when omitted."},
					"text":       map[string]interface{}{"type": "string", "description": "Document text; required for upsert."},
				},
			},
		},
	}
}

func (t *VectorManage) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	collection, _ := args["collection"].(string)
	operation, _ := args["operation"].(string)
	if collection == "" || operation == "" {
		return "", fmt.Errorf("vector_manage: collection and operation are required")
	}

	decision := t.engine.CheckVector(collection, true)
	if !decision.Allowed() {
		return "", fmt.Errorf("vector_manage: denied: %s", decision.Reason)
	}

	id, _ := args["id"].(string)

	switch operation {
	case "upsert":
		text, _ := args["text"].(string)
		if text == "" {
			return "", fmt.Errorf("vector_manage: text is required for upsert")
		}
		if id == "" {
			id = uuid.NewString()
		}
		embedding, err := t.embedder.Embed(ctx, text)
		if err != nil {
			return "", fmt.Errorf("vector_manage: embed document: %w", err)
		}
		doc := vectorstore.Document{ID: id, Collection: collection, Text: text, Embedding: embedding}
		if err := t.store.Upsert(ctx, doc); err != nil {
			return "", fmt.Errorf("vector_manage: %w", err)
		}
		return fmt.Sprintf("upserted document %q in collection %q", id, collection), nil

	case "delete":
		if id == "" {
			return "", fmt.Errorf("vector_manage: id is required for delete")
		}
		if err := t.store.Delete(ctx, collection, id); err != nil {
			return "", fmt.Errorf("vector_manage: %w", err)
		}
		return fmt.Sprintf("deleted document %q from collection %q", id, collection), nil

	default:
		return "", fmt.Errorf("vector_manage: unknown operation %q", operation)
	}
}
