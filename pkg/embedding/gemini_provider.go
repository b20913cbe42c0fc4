package embedding

import (
	"context"
	"encoding/json"
	"fmt"
)

const geminiEmbeddingModel = "text-embedding-004"

type EmbeddingRequestContentPart struct {
	Text string `json:"text"`
}

type EmbeddingRequestContent struct {
	Parts []EmbeddingRequestContentPart `json:"parts"`
}

type EmbeddingRequest struct {
	Model    string                  `json:"model"`
	Content  EmbeddingRequestContent `json:"content"`
	TaskType string                  `json:"task_type,omitempty"`
}

type batchEmbedRequest struct {
	Requests []EmbeddingRequest `json:"requests"`
}

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type batchEmbedResponse struct {
	Embeddings []EmbeddingResponseEmbedding `json:"embeddings"`
}

type GeminiProvider struct {
	ApiKey string
	http   *HTTPClient
}

func NewGeminiProvider(apiKey string, client *HTTPClient) *GeminiProvider {
	return &GeminiProvider{
		ApiKey: apiKey,
		http:   client,
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Dimension of text-embedding-004.
func (p *GeminiProvider) Dimension() int {
	return 768
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := batchEmbedRequest{Requests: make([]EmbeddingRequest, len(texts))}
	for i, text := range texts {
		req.Requests[i] = EmbeddingRequest{
			Model:    "models/" + geminiEmbeddingModel,
			Content:  EmbeddingRequestContent{Parts: []EmbeddingRequestContentPart{{Text: text}}},
			TaskType: string(task),
		}
	}

	endpoint := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1/models/%s:batchEmbedContents",
		geminiEmbeddingModel,
	)

	body, err := p.http.PostJSON(ctx, endpoint, map[string]string{"x-goog-api-key": p.ApiKey}, req)
	if err != nil {
		return nil, err
	}

	var resp batchEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	if err := checkDimension(p.Name(), p.Dimension(), out); err != nil {
		return nil, err
	}
	return out, nil
}
