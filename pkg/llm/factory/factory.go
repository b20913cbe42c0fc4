package factory

import (
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/llm"
	"docrag-be/pkg/llm/ollama"
	"docrag-be/pkg/llm/openai"
)

type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	RatePerSec float64
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	transport := llm.NewHTTPTransport(cfg.RatePerSec)

	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model, transport), nil
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return openai.NewProvider(baseURL, cfg.APIKey, cfg.Model, transport), nil
	default:
		return nil, apperror.WithMessage(apperror.ErrUnknownAlgorithm, "unsupported LLM provider: %s", cfg.Provider)
	}
}
