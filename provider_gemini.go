package quizsolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiProvider is the primary, high-throughput adapter. It asks for an
// explicit JSON response MIME type so the answer map comes back unfenced.
type GeminiProvider struct {
	*providerCore
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewGeminiProvider builds the primary adapter over a list of rotated keys.
func NewGeminiProvider(keys []string, model string, log *Logger) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		providerCore: newProviderCore("Gemini", 1, keys, log),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      geminiBaseURL,
		model:        model,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		ResponseMIMEType string `json:"responseMimeType,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// SolveBatch sends one batched prompt and maps the JSON reply back onto the
// questions by index.
func (p *GeminiProvider) SolveBatch(ctx context.Context, questions []ProviderQuestion) (*BatchResult, error) {
	started := time.Now()
	prompt := p.buildPrompt(questions)
	LLMLogFrom(ctx).LogRequest(p.name, prompt)

	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: solveSystemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	reqBody.GenerationConfig.ResponseMIMEType = "application/json"
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return p.failBatch(questions, started), fmt.Errorf("gemini marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return p.failBatch(questions, started), fmt.Errorf("gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.nextKey())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return p.failBatch(questions, started), fmt.Errorf("gemini call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.recordRateLimit(retryAfterFrom(resp))
		return p.failBatch(questions, started), NewRateLimitError(p.name, nil)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return p.failBatch(questions, started), fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(body))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return p.failBatch(questions, started), fmt.Errorf("gemini decode: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return p.failBatch(questions, started), fmt.Errorf("gemini: empty candidates")
	}

	content := gr.Candidates[0].Content.Parts[0].Text
	LLMLogFrom(ctx).LogResponse(p.name, content)
	answers := parseAnswerMap(content)
	if answers == nil {
		return p.failBatch(questions, started), fmt.Errorf("gemini: unparseable answer map")
	}
	p.clearRateLimit()
	return p.batchFrom(questions, answers, gr.UsageMetadata.TotalTokenCount, started), nil
}

// retryAfterFrom honors a Retry-After header when present.
func retryAfterFrom(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
