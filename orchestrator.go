package quizsolver

import (
	"context"
	"sort"
	"time"
)

// AnswerCache is the semantic cache consulted before any provider call.
// Implementations are best-effort: a lookup failure degrades to a miss.
type AnswerCache interface {
	Lookup(ctx context.Context, q ProviderQuestion) (*CachedAnswer, bool)
	Write(ctx context.Context, questions []ProviderQuestion, responses []AnswerResponse, provider string)
}

// OrchestratorOptions tune the fallback engine.
type OrchestratorOptions struct {
	ChunkSize  int           // questions per provider batch (default 30)
	MaxRetries int           // attempts within one provider (default 2)
	RetryDelay time.Duration // base for linear backoff between retries (default 1s)
}

func (o OrchestratorOptions) withDefaults() OrchestratorOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 30
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 2
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// OrchestratorResult aggregates the outcome of solving one question set.
type OrchestratorResult struct {
	Responses       []AnswerResponse // sorted by question index
	ProvidersUsed   []string         // de-duplicated, insertion-ordered
	CacheHits       int
	CacheMisses     int
	TotalTokens     int
	FailedQuestions int
}

// Orchestrator resolves answers cache-first, then falls back across the
// providers in priority order.
type Orchestrator struct {
	cache     AnswerCache
	providers []Provider
	opts      OrchestratorOptions
	log       *Logger
	sleep     func(time.Duration) // replaced in tests
}

// NewOrchestrator wires the fallback engine. Providers are sorted by
// ascending priority.
func NewOrchestrator(cache AnswerCache, providers []Provider, opts OrchestratorOptions, log *Logger) *Orchestrator {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Orchestrator{
		cache:     cache,
		providers: sorted,
		opts:      opts.withDefaults(),
		log:       log.With("component", "Orchestrator"),
		sleep:     time.Sleep,
	}
}

// SolveQuestions resolves every question it can: cache phase, then per-chunk
// provider fallback with cache writeback. Provider errors are handled by
// fallback and never surface as an error here.
func (o *Orchestrator) SolveQuestions(ctx context.Context, questions []ProviderQuestion) *OrchestratorResult {
	res := &OrchestratorResult{}
	if len(questions) == 0 {
		return res
	}

	// cache phase
	var uncached []ProviderQuestion
	for _, q := range questions {
		if hit, ok := o.cache.Lookup(ctx, q); ok {
			res.Responses = append(res.Responses, AnswerResponse{
				Index:       q.Index,
				Answer:      hit.CorrectKey,
				Explanation: hit.Explanation,
			})
			res.CacheHits++
			continue
		}
		res.CacheMisses++
		uncached = append(uncached, q)
	}
	if res.CacheHits > 0 {
		res.ProvidersUsed = append(res.ProvidersUsed, "Cache")
	}
	o.log.Info("cache phase done", "hits", res.CacheHits, "misses", res.CacheMisses)

	for _, chunk := range chunkQuestions(uncached, o.opts.ChunkSize) {
		answered := o.solveChunk(ctx, chunk, res)
		res.Responses = append(res.Responses, answered...)
	}

	sort.Slice(res.Responses, func(i, j int) bool { return res.Responses[i].Index < res.Responses[j].Index })
	res.FailedQuestions = len(questions) - len(res.Responses)
	return res
}

// solveChunk walks the provider cascade for one chunk, accumulating answers
// until the chunk is exhausted or every provider has been tried.
func (o *Orchestrator) solveChunk(ctx context.Context, chunk []ProviderQuestion, res *OrchestratorResult) []AnswerResponse {
	remaining := chunk
	var collected []AnswerResponse

	for _, provider := range o.providers {
		if len(remaining) == 0 {
			break
		}
		if !provider.IsAvailable() {
			continue
		}
		if provider.RateLimitStatus().Remaining == 0 {
			o.log.Debug("skipping rate-limited provider", "provider", provider.Name())
			continue
		}
		// every provider actually queried is recorded, answers or not
		res.ProvidersUsed = appendUnique(res.ProvidersUsed, provider.Name())

		for retry := 1; retry <= o.opts.MaxRetries; retry++ {
			batch, err := provider.SolveBatch(ctx, remaining)
			if err != nil {
				o.log.Warn("provider batch failed",
					"provider", provider.Name(), "retry", retry, "error", err)
			}
			if batch != nil {
				LLMLogFrom(ctx).LogBatch(batch.Provider, batch.QuestionsAnswered, batch.QuestionsFailed, batch.TokensUsed, batch.Duration)
			}

			if batch != nil && batch.QuestionsAnswered > 0 {
				collected = append(collected, batch.Responses...)
				res.TotalTokens += batch.TokensUsed
				remaining = removeAnswered(remaining, batch.Responses)
				// writeback is asynchronous; order is not observable
				go o.cache.Write(context.WithoutCancel(ctx), chunk, batch.Responses, provider.Name())
				break
			}
			if provider.RateLimitStatus().Remaining == 0 {
				// quota gone; retrying the same provider is pointless
				break
			}
			if retry < o.opts.MaxRetries {
				o.sleep(o.opts.RetryDelay * time.Duration(retry))
			}
		}
	}

	if len(remaining) > 0 {
		o.log.Warn("questions unanswered after provider cascade", "count", len(remaining))
	}
	return collected
}

func chunkQuestions(questions []ProviderQuestion, size int) [][]ProviderQuestion {
	var chunks [][]ProviderQuestion
	for start := 0; start < len(questions); start += size {
		end := minInt(start+size, len(questions))
		chunks = append(chunks, questions[start:end])
	}
	return chunks
}

func removeAnswered(questions []ProviderQuestion, responses []AnswerResponse) []ProviderQuestion {
	answered := make(map[int]bool, len(responses))
	for _, r := range responses {
		answered[r.Index] = true
	}
	var rest []ProviderQuestion
	for _, q := range questions {
		if !answered[q.Index] {
			rest = append(rest, q)
		}
	}
	return rest
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
