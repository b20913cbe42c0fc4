package embedding

import (
	"context"
	"encoding/json"
	"fmt"
)

// OllamaProvider implements EmbeddingProvider for local Ollama models (e.g., nomic-embed-text)
type OllamaProvider struct {
	BaseURL   string
	Model     string
	dimension int
	http      *HTTPClient
}

func NewOllamaProvider(baseURL string, model string, dimension int, client *HTTPClient) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaProvider{
		BaseURL:   baseURL,
		Model:     model,
		dimension: dimension,
		http:      client,
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

// Embed calls /api/embeddings once per text; the endpoint takes a single prompt.
// The task type is ignored, nomic models do not distinguish it.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	endpoint := fmt.Sprintf("%s/api/embeddings", p.BaseURL)
	out := make([][]float32, 0, len(texts))

	for _, text := range texts {
		body, err := p.http.PostJSON(ctx, endpoint, nil, ollamaEmbeddingRequest{Model: p.Model, Prompt: text})
		if err != nil {
			return nil, err
		}

		var ollamaResp ollamaEmbeddingResponse
		if err := json.Unmarshal(body, &ollamaResp); err != nil {
			return nil, err
		}

		values := make([]float32, len(ollamaResp.Embedding))
		for i, v := range ollamaResp.Embedding {
			values[i] = float32(v)
		}
		out = append(out, normalizeVector(values))
	}

	if err := checkDimension(p.Name(), p.dimension, out); err != nil {
		return nil, err
	}
	return out, nil
}
