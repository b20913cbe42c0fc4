package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type OpenAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type OpenAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DecodeOpenAIEmbeddings orders the response data by input index.
func DecodeOpenAIEmbeddings(body []byte, inputs int) ([][]float32, error) {
	var resp OpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("embedding api returned error: %s", resp.Error.Message)
	}
	if len(resp.Data) != inputs {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(resp.Data), inputs)
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// OpenAIProvider talks to any OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	apiKey    string
	baseURL   string
	model     string
	dimension int
	http      *HTTPClient
}

func NewOpenAIProvider(apiKey, baseURL, model string, dimension int, client *HTTPClient) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
		http:      client,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := p.http.PostJSON(ctx, p.baseURL+"/embeddings",
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		OpenAIEmbeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}

	out, err := DecodeOpenAIEmbeddings(body, len(texts))
	if err != nil {
		return nil, err
	}
	if err := checkDimension(p.Name(), p.dimension, out); err != nil {
		return nil, err
	}
	return out, nil
}
