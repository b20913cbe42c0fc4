package jina

import (
	"context"

	"docrag-be/pkg/embedding"
)

type JinaProvider struct {
	apiKey  string
	baseURL string
	model   string
	http    *embedding.HTTPClient
}

func NewJinaProvider(apiKey string, client *embedding.HTTPClient) *JinaProvider {
	return &JinaProvider{
		apiKey:  apiKey,
		baseURL: "https://api.jina.ai/v1/embeddings",
		model:   "jina-embeddings-v2-base-en",
		http:    client,
	}
}

func (p *JinaProvider) Name() string {
	return "jina"
}

// Jina returns 768 dimensions for v2-base-en
func (p *JinaProvider) Dimension() int {
	return 768
}

// Embed sends the whole batch in one request; Jina's response format is OpenAI-compatible.
func (p *JinaProvider) Embed(ctx context.Context, texts []string, task embedding.TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := p.http.PostJSON(ctx, p.baseURL,
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		embedding.OpenAIEmbeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	return embedding.DecodeOpenAIEmbeddings(body, len(texts))
}
