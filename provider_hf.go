package quizsolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	hfBaseURL      = "https://router.huggingface.co/v1"
	defaultHFModel = "meta-llama/Llama-3.1-8B-Instruct"

	// HF quota windows are long; back off harder than the others.
	hfRetryAfter = 120 * time.Second
	hfBatchSize  = 10
)

// HuggingFaceProvider is the last-resort adapter over the generic inference
// router. It splits work into smaller sub-batches than the other adapters.
type HuggingFaceProvider struct {
	*providerCore
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewHuggingFaceProvider builds the last-resort adapter.
func NewHuggingFaceProvider(tokens []string, model string, log *Logger) *HuggingFaceProvider {
	if model == "" {
		model = defaultHFModel
	}
	core := newProviderCore("HuggingFace", 4, tokens, log)
	core.defaultRetryAfter = hfRetryAfter
	return &HuggingFaceProvider{
		providerCore: core,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      hfBaseURL,
		model:        model,
	}
}

type hfChatRequest struct {
	Model    string          `json:"model"`
	Messages []hfChatMessage `json:"messages"`
}

type hfChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type hfChatResponse struct {
	Choices []struct {
		Message hfChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *HuggingFaceProvider) SolveBatch(ctx context.Context, questions []ProviderQuestion) (*BatchResult, error) {
	started := time.Now()
	merged := &BatchResult{Provider: p.name}

	for start := 0; start < len(questions); start += hfBatchSize {
		end := minInt(start+hfBatchSize, len(questions))
		sub, err := p.solveSub(ctx, questions[start:end])
		if sub != nil {
			merged.Responses = append(merged.Responses, sub.Responses...)
			merged.TokensUsed += sub.TokensUsed
		}
		if err != nil {
			// remaining sub-batches would hit the same wall
			merged.QuestionsAnswered = len(merged.Responses)
			merged.QuestionsFailed = len(questions) - merged.QuestionsAnswered
			merged.Duration = time.Since(started)
			return merged, err
		}
	}

	merged.QuestionsAnswered = len(merged.Responses)
	merged.QuestionsFailed = len(questions) - merged.QuestionsAnswered
	merged.Duration = time.Since(started)
	return merged, nil
}

func (p *HuggingFaceProvider) solveSub(ctx context.Context, questions []ProviderQuestion) (*BatchResult, error) {
	started := time.Now()
	prompt := p.buildPrompt(questions)
	LLMLogFrom(ctx).LogRequest(p.name, prompt)

	payload, err := json.Marshal(hfChatRequest{
		Model: p.model,
		Messages: []hfChatMessage{
			{Role: "system", Content: solveSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return p.failBatch(questions, started), fmt.Errorf("hf marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return p.failBatch(questions, started), fmt.Errorf("hf request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.nextKey())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.failBatch(questions, started), fmt.Errorf("hf call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.recordRateLimit(retryAfterFrom(resp))
		return p.failBatch(questions, started), NewRateLimitError(p.name, nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return p.failBatch(questions, started), fmt.Errorf("hf status %d: %s", resp.StatusCode, string(body))
	}

	var hr hfChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return p.failBatch(questions, started), fmt.Errorf("hf decode: %w", err)
	}
	if len(hr.Choices) == 0 {
		return p.failBatch(questions, started), fmt.Errorf("hf: empty response")
	}

	content := hr.Choices[0].Message.Content
	LLMLogFrom(ctx).LogResponse(p.name, content)
	answers := parseAnswerMap(content)
	if answers == nil {
		return p.failBatch(questions, started), fmt.Errorf("hf: unparseable answer map")
	}
	p.clearRateLimit()
	return p.batchFrom(questions, answers, hr.Usage.TotalTokens, started), nil
}
