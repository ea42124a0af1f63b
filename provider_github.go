package quizsolver

import (
	"context"
)

const (
	githubModelsBaseURL = "https://models.github.ai/inference"
	defaultGitHubModel  = "openai/gpt-4o-mini"
)

// GitHubModelsProvider is the secondary adapter, a conversational API behind
// an OpenAI-compatible endpoint. The short system message keeps input tokens
// down on the free tier.
type GitHubModelsProvider struct {
	*providerCore
	baseURL string
	model   string
}

// NewGitHubModelsProvider builds the secondary adapter from GitHub tokens.
func NewGitHubModelsProvider(tokens []string, model string, log *Logger) *GitHubModelsProvider {
	if model == "" {
		model = defaultGitHubModel
	}
	return &GitHubModelsProvider{
		providerCore: newProviderCore("GitHub", 2, tokens, log),
		baseURL:      githubModelsBaseURL,
		model:        model,
	}
}

func (p *GitHubModelsProvider) SolveBatch(ctx context.Context, questions []ProviderQuestion) (*BatchResult, error) {
	return openAIChatSolve(ctx, p.providerCore, p.baseURL, p.model, questions)
}
