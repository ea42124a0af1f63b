package quizsolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
)

// ProviderQuestion is a question as forwarded to a language-model provider.
type ProviderQuestion struct {
	Index   int // 1-based parser index, stable end-to-end
	Stem    string
	Choices []Choice
	Section string
}

// AnswerResponse is a single resolved answer from the cache or a provider.
type AnswerResponse struct {
	Index       int
	Answer      string
	Explanation string
}

// BatchResult is the outcome of one provider batch call.
type BatchResult struct {
	Responses         []AnswerResponse
	Provider          string
	TokensUsed        int
	Duration          time.Duration
	QuestionsAnswered int
	QuestionsFailed   int
}

// RateLimitStatus reports a provider's last observed quota state. Remaining
// is -1 when unknown, 0 when the provider reported exhaustion.
type RateLimitStatus struct {
	Remaining int
	ResetAt   time.Time
}

// Provider is a uniform interface over language-model backends.
type Provider interface {
	Name() string
	Priority() int // lower = earlier in the fallback order
	IsAvailable() bool
	SolveBatch(ctx context.Context, questions []ProviderQuestion) (*BatchResult, error)
	RateLimitStatus() RateLimitStatus
}

// DefaultMaxPromptLength caps the total prompt size sent to any provider.
const DefaultMaxPromptLength = 50000

const solveSystemPrompt = "You are an expert exam solver. For each numbered multiple-choice question, " +
	"choose the single best answer. Return ONLY a JSON object mapping the question " +
	`number to the answer letter, e.g. {"1":"A","2":"C"}. No explanations, no markdown.`

// providerCore holds the state and helpers shared by all adapters: key
// rotation, rate-limit bookkeeping, prompt construction and response mapping.
// Counters are mutex-guarded because the worker may run batches in parallel.
type providerCore struct {
	name     string
	priority int
	keys     []string

	mu          sync.Mutex
	keyIndex    int
	rlRemaining int
	rlResetAt   time.Time

	maxPromptLen      int
	defaultRetryAfter time.Duration
	log               *Logger
}

func newProviderCore(name string, priority int, keys []string, log *Logger) *providerCore {
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &providerCore{
		name:              name,
		priority:          priority,
		keys:              clean,
		rlRemaining:       -1,
		maxPromptLen:      DefaultMaxPromptLength,
		defaultRetryAfter: time.Minute,
		log:               log.With("provider", name),
	}
}

func (c *providerCore) Name() string      { return c.name }
func (c *providerCore) Priority() int     { return c.priority }
func (c *providerCore) IsAvailable() bool { return len(c.keys) > 0 }

// nextKey returns API keys round-robin. A racing increment may skip or repeat
// a key but never loses one.
func (c *providerCore) nextKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return ""
	}
	k := c.keys[c.keyIndex%len(c.keys)]
	c.keyIndex++
	return k
}

// recordRateLimit marks the provider as exhausted until now+retryAfter.
func (c *providerCore) recordRateLimit(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = c.defaultRetryAfter
	}
	c.mu.Lock()
	c.rlRemaining = 0
	c.rlResetAt = time.Now().Add(retryAfter)
	c.mu.Unlock()
	c.log.Warn("rate limited", "retry_after", retryAfter)
}

func (c *providerCore) clearRateLimit() {
	c.mu.Lock()
	c.rlRemaining = -1
	c.rlResetAt = time.Time{}
	c.mu.Unlock()
}

// RateLimitStatus self-heals once the recorded reset time has passed.
func (c *providerCore) RateLimitStatus() RateLimitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rlRemaining == 0 && !c.rlResetAt.IsZero() && time.Now().After(c.rlResetAt) {
		c.rlRemaining = -1
		c.rlResetAt = time.Time{}
	}
	return RateLimitStatus{Remaining: c.rlRemaining, ResetAt: c.rlResetAt}
}

// buildPrompt renders the numbered question blocks, filtering document text
// for prompt-injection phrases and capping the total length.
func (c *providerCore) buildPrompt(questions []ProviderQuestion) string {
	var sb strings.Builder
	for _, q := range questions {
		if q.Section != "" && q.Section != DefaultSection {
			sb.WriteString("(" + FilterPromptText(q.Section) + ") ")
		}
		fmt.Fprintf(&sb, "[%d] %s\n", q.Index, FilterPromptText(q.Stem))
		for _, ch := range q.Choices {
			fmt.Fprintf(&sb, "  %s. %s\n", ch.Key, FilterPromptText(ch.Text))
		}
		sb.WriteString("\n")
	}
	s := sb.String()
	if len(s) > c.maxPromptLen {
		s = strings.ToValidUTF8(s[:c.maxPromptLen], "")
	}
	return s
}

// batchFrom maps parsed answers back onto the questions, dropping answers
// that do not name one of the question's choice keys.
func (c *providerCore) batchFrom(questions []ProviderQuestion, answers map[int]string, tokens int, started time.Time) *BatchResult {
	res := &BatchResult{Provider: c.name, TokensUsed: tokens, Duration: time.Since(started)}
	for _, q := range questions {
		key, ok := answers[q.Index]
		if !ok || !questionHasChoice(q, key) {
			continue
		}
		res.Responses = append(res.Responses, AnswerResponse{Index: q.Index, Answer: key})
	}
	res.QuestionsAnswered = len(res.Responses)
	res.QuestionsFailed = len(questions) - res.QuestionsAnswered
	return res
}

// failBatch is the uniform zero-answer result used on any network or parse
// error, signaling the orchestrator to fall through.
func (c *providerCore) failBatch(questions []ProviderQuestion, started time.Time) *BatchResult {
	return &BatchResult{
		Provider:        c.name,
		Duration:        time.Since(started),
		QuestionsFailed: len(questions),
	}
}

func questionHasChoice(q ProviderQuestion, key string) bool {
	for _, c := range q.Choices {
		if c.Key == key {
			return true
		}
	}
	return false
}

// parseAnswerMap extracts the {"<index>": "<letter>"} object from model
// output, stripping code fences and repairing truncated JSON. Returns nil
// when no valid index mapping can be obtained.
func parseAnswerMap(content string) map[int]string {
	content = StripCodeFences(content)
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		repaired, ok := RepairJSON(content)
		if !ok {
			return nil
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil
		}
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if key := answerLetter(s); key != "" {
			out[idx] = key
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// answerLetter pulls the answer key out of a model value. Models wrap the
// letter in verbiage ("Answer: c", "d)"), so only a standalone single-letter
// word counts, never the first letter of a longer word.
func answerLetter(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if len(w) != 1 {
			continue
		}
		r := unicode.ToUpper(rune(w[0]))
		if r >= 'A' && r <= 'Z' {
			return string(r)
		}
	}
	return ""
}

// openAIChatSolve runs one chat-completion batch against an OpenAI-compatible
// endpoint. Shared by the GitHub Models and Groq adapters.
func openAIChatSolve(ctx context.Context, core *providerCore, baseURL, model string, questions []ProviderQuestion) (*BatchResult, error) {
	started := time.Now()
	prompt := core.buildPrompt(questions)
	LLMLogFrom(ctx).LogRequest(core.name, prompt)

	cfg := openai.DefaultConfig(core.nextKey())
	cfg.BaseURL = baseURL
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: solveSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			core.recordRateLimit(0)
			return core.failBatch(questions, started), NewRateLimitError(core.name, err)
		}
		return core.failBatch(questions, started), fmt.Errorf("%s chat completion: %w", core.name, err)
	}
	if len(resp.Choices) == 0 {
		return core.failBatch(questions, started), fmt.Errorf("%s: empty response", core.name)
	}

	content := resp.Choices[0].Message.Content
	LLMLogFrom(ctx).LogResponse(core.name, content)
	answers := parseAnswerMap(content)
	if answers == nil {
		return core.failBatch(questions, started), fmt.Errorf("%s: unparseable answer map", core.name)
	}
	core.clearRateLimit()
	return core.batchFrom(questions, answers, resp.Usage.TotalTokens, started), nil
}
