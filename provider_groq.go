package quizsolver

import (
	"context"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel = "llama-3.3-70b-versatile"
)

// GroqProvider is the tertiary adapter: low-latency inference behind an
// OpenAI-compatible endpoint, same batch interface as the others.
type GroqProvider struct {
	*providerCore
	baseURL string
	model   string
}

// NewGroqProvider builds the tertiary adapter.
func NewGroqProvider(keys []string, model string, log *Logger) *GroqProvider {
	if model == "" {
		model = defaultGroqModel
	}
	return &GroqProvider{
		providerCore: newProviderCore("Groq", 3, keys, log),
		baseURL:      groqBaseURL,
		model:        model,
	}
}

func (p *GroqProvider) SolveBatch(ctx context.Context, questions []ProviderQuestion) (*BatchResult, error) {
	return openAIChatSolve(ctx, p.providerCore, p.baseURL, p.model, questions)
}
