package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docrag-be/pkg/apperror"
	"docrag-be/pkg/llm"
)

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	transport *llm.HTTPTransport
}

// Ensure OllamaProvider implements LLMProvider
var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string, transport *llm.HTTPTransport) *OllamaProvider {
	if transport == nil {
		transport = llm.NewHTTPTransport(0)
	}
	return &OllamaProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: modelName,
		transport: transport,
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (o *OllamaProvider) buildRequest(history []llm.Message, stream bool, opts []llm.Option) ollamaChatRequest {
	options := llm.ApplyOptions(opts)

	ollamaMessages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		ollamaMessages[i] = ollamaMessage{Role: role, Content: msg.Content}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	req := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options:  &ollamaOptions{Temperature: options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options.NumPredict = options.MaxTokens
	}
	return req
}

// --- Interface Implementation ---

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	resp, err := o.transport.PostJSON(ctx, o.BaseURL+"/api/chat", nil, o.buildRequest(history, false, opts))
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	var ollamaResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", apperror.Wrap(apperror.ErrGenerationFailed, fmt.Errorf("unmarshal response: %w", err))
	}
	if ollamaResp.Error != "" {
		return "", apperror.Wrap(apperror.ErrGenerationFailed, errors.New(ollamaResp.Error))
	}

	return ollamaResp.Message.Content, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	// Reuse Chat for simplicity as most new LLMs are chat-optimized
	return o.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// Stream reads Ollama's newline-delimited JSON stream.
func (o *OllamaProvider) Stream(ctx context.Context, history []llm.Message, onToken llm.TokenHandler, opts ...llm.Option) (string, error) {
	resp, err := o.transport.PostJSON(ctx, o.BaseURL+"/api/chat", nil, o.buildRequest(history, true, opts))
	if err != nil {
		return "", fmt.Errorf("ollama stream failed: %w", err)
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = llm.ScanLines(ctx, resp.Body, func(line string) (bool, error) {
		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return false, nil
		}
		if chunk.Error != "" {
			return true, apperror.Wrap(apperror.ErrGenerationFailed, errors.New(chunk.Error))
		}
		if token := chunk.Message.Content; token != "" {
			full.WriteString(token)
			if err := onToken(token); err != nil {
				return true, err
			}
		}
		return chunk.Done, nil
	})
	return full.String(), err
}
