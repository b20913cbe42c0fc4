package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docrag-be/pkg/apperror"
	"docrag-be/pkg/llm"
)

// Provider talks to any OpenAI-compatible /chat/completions endpoint.
type Provider struct {
	BaseURL   string
	APIKey    string
	ModelName string
	transport *llm.HTTPTransport
}

var _ llm.LLMProvider = &Provider{}

func NewProvider(baseURL, apiKey, modelName string, transport *llm.HTTPTransport) *Provider {
	if transport == nil {
		transport = llm.NewHTTPTransport(0)
	}
	return &Provider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		ModelName: modelName,
		transport: transport,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *Provider) buildRequest(history []llm.Message, stream bool, opts []llm.Option) chatRequest {
	options := llm.ApplyOptions(opts)
	model := p.ModelName
	if options.Model != "" {
		model = options.Model
	}

	messages := make([]chatMessage, len(history))
	for i, msg := range history {
		messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}
	return chatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      stream,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}
}

func (p *Provider) headers() map[string]string {
	if p.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.APIKey}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	resp, err := p.transport.PostJSON(ctx, p.BaseURL+"/chat/completions", p.headers(), p.buildRequest(history, false, opts))
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperror.Wrap(apperror.ErrGenerationFailed, fmt.Errorf("parse llm json failed: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", apperror.WithMessage(apperror.ErrGenerationFailed, "empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// Stream consumes the server-sent event stream until the [DONE] marker.
func (p *Provider) Stream(ctx context.Context, history []llm.Message, onToken llm.TokenHandler, opts ...llm.Option) (string, error) {
	resp, err := p.transport.PostJSON(ctx, p.BaseURL+"/chat/completions", p.headers(), p.buildRequest(history, true, opts))
	if err != nil {
		return "", fmt.Errorf("llm stream request failed: %w", err)
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = llm.ScanLines(ctx, resp.Body, func(line string) (bool, error) {
		if !strings.HasPrefix(line, "data:") {
			return false, nil
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return true, nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil || len(chunk.Choices) == 0 {
			return false, nil
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			return false, nil
		}
		full.WriteString(token)
		return false, onToken(token)
	})
	return full.String(), err
}
