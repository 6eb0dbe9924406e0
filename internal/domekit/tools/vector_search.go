package tools

import (
	"context"
	"encoding/json"
	"fmt"

	manifestspec "github.com/domekit-run/domekit/common/spec/manifest"
	"github.com/domekit-run/domekit/internal/domekit/message"
	"github.com/domekit-run/domekit/internal/domekit/policy"
	"github.com/domekit-run/domekit/internal/domekit/vectorstore"
)

// VectorSearch is the vector_search built-in tool.
type VectorSearch struct {
	engine   *policy.Engine
	store    *vectorstore.Store
	embedder vectorstore.Embedder
	manifest func() *manifestspec.Manifest
}

// NewVectorSearch returns a vector_search tool.
func NewVectorSearch(engine *policy.Engine, store *vectorstore.Store, embedder vectorstore.Embedder, manifest func() *manifestspec.Manifest) *VectorSearch {
	return &VectorSearch{engine: engine, store: store, embedder: embedder, manifest: manifest}
}

func (t *VectorSearch) Definition() message.ToolDefinition {
	return message.ToolDefinition{
		Type: "function",
		Function: message.FunctionDef{
			Name:        "vector_search",
			Description: "Search an allow-listed vector collection for documents similar to a query, given either text (auto-embedded) or a pre-computed embedding.",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"collection"},
				"properties": map[string]interface{}{
					"collection": map[string]interface{}{"type": "string"},
					"query":      map[string]interface{}{"type": "string", "description": "Text to embed via the configured embedding backend."},
					"query_vector": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Pre-computed embedding; must match the collection's dimension. Alternative to query.",
					},
					"top_k": map[string]interface{}{"type": "integer"},
				},
			},
		},
	}
}

func (t *VectorSearch) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	collection, _ := args["collection"].(string)
	if collection == "" {
		return "", fmt.Errorf("vector_search: collection is required")
	}

	decision := t.engine.CheckVector(collection, false)
	if !decision.Allowed() {
		return "", fmt.Errorf("vector_search: denied: %s", decision.Reason)
	}

	embedding, err := t.resolveEmbedding(ctx, args)
	if err != nil {
		return "", err
	}

	topK := t.manifest().VectorDB.DefaultTopK
	if raw, ok := args["top_k"]; ok {
		if f, ok := raw.(float64); ok {
			topK = int(f)
		}
	}
	upper := t.manifest().VectorDB.DefaultTopKUpper
	if upper <= 0 {
		upper = manifestspec.DefaultTopKUpper
	}
	if topK > upper {
		topK = upper
	}
	if topK < 1 {
		topK = 1
	}

	matches, err := t.store.Search(ctx, collection, embedding, topK)
	if err != nil {
		return "", fmt.Errorf("vector_search: %w", err)
	}

	encoded, err := json.Marshal(map[string]interface{}{"matches": matches})
	if err != nil {
		return "", fmt.Errorf("vector_search: encode result: %w", err)
	}
	return string(encoded), nil
}

// resolveEmbedding returns the query vector to search with: a caller-supplied
// query_vector takes precedence, otherwise query text is embedded via the
// configured embedder.
func (t *VectorSearch) resolveEmbedding(ctx context.Context, args map[string]interface{}) ([]float32, error) {
	if raw, ok := args["query_vector"]; ok {
		vec, err := parseQueryVector(raw)
		if err != nil {
			return nil, fmt.Errorf("vector_search: invalid query_vector: %w", err)
		}
		return vec, nil
	}

	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("vector_search: one of query or query_vector is required")
	}
	embedding, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector_search: embed query: %w", err)
	}
	return embedding, nil
}

func parseQueryVector(raw interface{}) ([]float32, error) {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of numbers")
	}
	out := make([]float32, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = float32(f)
	}
	return out, nil
}
