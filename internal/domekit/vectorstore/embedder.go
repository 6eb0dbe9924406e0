package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/domekit-run/domekit/common/retry"
)

// OpenAIEmbedderConfig configures an OpenAI-compatible /v1/embeddings client.
type OpenAIEmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type openAIEmbedder struct {
	cfg    OpenAIEmbedderConfig
	client *http.Client
}

// NewOpenAIEmbedder returns an Embedder backed by any OpenAI-embeddings-API-
// compatible endpoint (hosted, or a local embedding server).
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) Embedder {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &openAIEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	var raw []byte
	var statusCode int
	err = retry.Do(ctx, retry.DefaultConfig, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if e.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
		}

		resp, doErr := e.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		raw, reqErr = io.ReadAll(resp.Body)
		if reqErr != nil {
			return reqErr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("embeddings backend returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings http request: %w", err)
	}

	var out embeddingsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embeddings backend error: %s", out.Error.Message)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned (status %d)", statusCode)
	}
	return out.Data[0].Embedding, nil
}
