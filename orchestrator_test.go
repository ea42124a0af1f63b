package quizsolver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeCache struct {
	mu      sync.Mutex
	answers map[string]CachedAnswer // keyed by stemHash
	writes  chan int                // responses written per call
	lookups int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		answers: make(map[string]CachedAnswer),
		writes:  make(chan int, 16),
	}
}

func (c *fakeCache) put(stem, key string) {
	stemHash := HashString(NormalizeStem(stem))
	c.answers[stemHash] = CachedAnswer{StemHash: stemHash, CorrectKey: key}
}

func (c *fakeCache) Lookup(ctx context.Context, q ProviderQuestion) (*CachedAnswer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	stemHash, _ := CacheKeys(q.Stem, q.Choices)
	if a, ok := c.answers[stemHash]; ok {
		return &a, true
	}
	return nil, false
}

func (c *fakeCache) Write(ctx context.Context, questions []ProviderQuestion, responses []AnswerResponse, provider string) {
	c.writes <- len(responses)
}

type fakeProvider struct {
	mu        sync.Mutex
	name      string
	priority  int
	available bool
	remaining int // -1 unknown, 0 exhausted
	calls     int
	// solve is invoked per SolveBatch call with the attempt number
	solve func(call int, qs []ProviderQuestion) (*BatchResult, error)
}

func (p *fakeProvider) Name() string      { return p.name }
func (p *fakeProvider) Priority() int     { return p.priority }
func (p *fakeProvider) IsAvailable() bool { return p.available }

func (p *fakeProvider) RateLimitStatus() RateLimitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return RateLimitStatus{Remaining: p.remaining}
}

func (p *fakeProvider) SolveBatch(ctx context.Context, qs []ProviderQuestion) (*BatchResult, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()
	return p.solve(call, qs)
}

func answerAll(name string) func(int, []ProviderQuestion) (*BatchResult, error) {
	return func(_ int, qs []ProviderQuestion) (*BatchResult, error) {
		batch := &BatchResult{Provider: name}
		for _, q := range qs {
			batch.Responses = append(batch.Responses, AnswerResponse{Index: q.Index, Answer: "A"})
		}
		batch.QuestionsAnswered = len(batch.Responses)
		return batch, nil
	}
}

func testQuestions(n int) []ProviderQuestion {
	qs := make([]ProviderQuestion, n)
	for i := range qs {
		qs[i] = ProviderQuestion{
			Index:   i + 1,
			Stem:    fmt.Sprintf("question number %d?", i+1),
			Choices: []Choice{{Key: "A", Text: "yes"}, {Key: "B", Text: "no"}},
		}
	}
	return qs
}

func newTestOrchestrator(cache AnswerCache, providers ...Provider) *Orchestrator {
	o := NewOrchestrator(cache, providers, OrchestratorOptions{RetryDelay: time.Millisecond}, NopLogger())
	o.sleep = func(time.Duration) {}
	return o
}

func TestSolveQuestionsAllCached(t *testing.T) {
	cache := newFakeCache()
	questions := testQuestions(3)
	for _, q := range questions {
		cache.put(q.Stem, "B")
	}
	provider := &fakeProvider{name: "Primary", priority: 1, available: true, remaining: -1,
		solve: answerAll("Primary")}

	res := newTestOrchestrator(cache, provider).SolveQuestions(context.Background(), questions)

	if provider.calls != 0 {
		t.Errorf("fully cached set must not call providers, got %d calls", provider.calls)
	}
	if res.CacheHits != 3 || res.CacheMisses != 0 {
		t.Errorf("hits=%d misses=%d", res.CacheHits, res.CacheMisses)
	}
	if len(res.ProvidersUsed) != 1 || res.ProvidersUsed[0] != "Cache" {
		t.Errorf("ProvidersUsed = %v", res.ProvidersUsed)
	}
	if len(res.Responses) != 3 || res.FailedQuestions != 0 {
		t.Errorf("responses=%d failed=%d", len(res.Responses), res.FailedQuestions)
	}
	for i, r := range res.Responses {
		if r.Index != i+1 || r.Answer != "B" {
			t.Errorf("response %d = %+v", i, r)
		}
	}
}

func TestSolveQuestionsAccounting(t *testing.T) {
	cache := newFakeCache()
	questions := testQuestions(5)
	cache.put(questions[0].Stem, "A")
	cache.put(questions[3].Stem, "C")

	provider := &fakeProvider{name: "Primary", priority: 1, available: true, remaining: -1,
		solve: answerAll("Primary")}

	res := newTestOrchestrator(cache, provider).SolveQuestions(context.Background(), questions)

	if res.CacheHits+res.CacheMisses != len(questions) {
		t.Errorf("hits+misses = %d, want %d", res.CacheHits+res.CacheMisses, len(questions))
	}
	if len(res.Responses)+res.FailedQuestions != len(questions) {
		t.Errorf("responses+failed = %d, want %d", len(res.Responses)+res.FailedQuestions, len(questions))
	}
	if res.FailedQuestions != 0 {
		t.Errorf("failed = %d", res.FailedQuestions)
	}
	for i := 1; i < len(res.Responses); i++ {
		if res.Responses[i-1].Index >= res.Responses[i].Index {
			t.Fatal("responses must be sorted by question index")
		}
	}

	// solved misses are written back
	select {
	case n := <-cache.writes:
		if n != 3 {
			t.Errorf("writeback carried %d responses, want 3", n)
		}
	case <-time.After(time.Second):
		t.Error("no cache writeback observed")
	}
}

func TestSolveQuestionsFallbackOnRateLimit(t *testing.T) {
	cache := newFakeCache()
	questions := testQuestions(2)

	primary := &fakeProvider{name: "Primary", priority: 1, available: true, remaining: -1}
	primary.solve = func(call int, qs []ProviderQuestion) (*BatchResult, error) {
		primary.mu.Lock()
		primary.remaining = 0
		primary.mu.Unlock()
		return &BatchResult{Provider: "Primary", QuestionsFailed: len(qs)}, NewRateLimitError("Primary", nil)
	}
	secondary := &fakeProvider{name: "Secondary", priority: 2, available: true, remaining: -1,
		solve: answerAll("Secondary")}

	res := newTestOrchestrator(cache, primary, secondary).SolveQuestions(context.Background(), questions)

	if primary.calls != 1 {
		t.Errorf("rate-limited primary must not be retried, got %d calls", primary.calls)
	}
	if secondary.calls != 1 {
		t.Errorf("secondary calls = %d", secondary.calls)
	}
	if len(res.Responses) != 2 || res.FailedQuestions != 0 {
		t.Errorf("responses=%d failed=%d", len(res.Responses), res.FailedQuestions)
	}
	// the rate-limited primary was still queried and must show up first
	if len(res.ProvidersUsed) != 2 || res.ProvidersUsed[0] != "Primary" || res.ProvidersUsed[1] != "Secondary" {
		t.Errorf("ProvidersUsed = %v, want [Primary Secondary]", res.ProvidersUsed)
	}
}

func TestSolveQuestionsPartialAnswersNotRequeried(t *testing.T) {
	cache := newFakeCache()
	questions := testQuestions(4)

	var secondCall []ProviderQuestion
	primary := &fakeProvider{name: "Primary", priority: 1, available: true, remaining: -1}
	primary.solve = func(call int, qs []ProviderQuestion) (*BatchResult, error) {
		// answers only the odd-indexed questions
		batch := &BatchResult{Provider: "Primary"}
		for _, q := range qs {
			if q.Index%2 == 1 {
				batch.Responses = append(batch.Responses, AnswerResponse{Index: q.Index, Answer: "A"})
			}
		}
		batch.QuestionsAnswered = len(batch.Responses)
		batch.QuestionsFailed = len(qs) - len(batch.Responses)
		return batch, nil
	}
	secondary := &fakeProvider{name: "Secondary", priority: 2, available: true, remaining: -1}
	secondary.solve = func(call int, qs []ProviderQuestion) (*BatchResult, error) {
		secondCall = append([]ProviderQuestion(nil), qs...)
		return answerAll("Secondary")(call, qs)
	}

	res := newTestOrchestrator(cache, primary, secondary).SolveQuestions(context.Background(), questions)

	if len(res.Responses) != 4 {
		t.Fatalf("responses = %d, want 4", len(res.Responses))
	}
	if len(secondCall) != 2 {
		t.Fatalf("secondary saw %d questions, want only the 2 unanswered", len(secondCall))
	}
	for _, q := range secondCall {
		if q.Index%2 == 1 {
			t.Errorf("already answered question %d re-sent to fallback", q.Index)
		}
	}
	if len(res.ProvidersUsed) != 2 {
		t.Errorf("ProvidersUsed = %v", res.ProvidersUsed)
	}
}

func TestSolveQuestionsSkipsUnavailableProvider(t *testing.T) {
	cache := newFakeCache()
	questions := testQuestions(1)

	keyless := &fakeProvider{name: "Keyless", priority: 1, available: false, remaining: -1,
		solve: answerAll("Keyless")}
	backup := &fakeProvider{name: "Backup", priority: 2, available: true, remaining: -1,
		solve: answerAll("Backup")}

	res := newTestOrchestrator(cache, keyless, backup).SolveQuestions(context.Background(), questions)

	if keyless.calls != 0 {
		t.Errorf("unavailable provider was called %d times", keyless.calls)
	}
	if len(res.Responses) != 1 || res.ProvidersUsed[0] != "Backup" {
		t.Errorf("responses=%d used=%v", len(res.Responses), res.ProvidersUsed)
	}
}

func TestSolveQuestionsRetriesThenGivesUp(t *testing.T) {
	cache := newFakeCache()
	questions := testQuestions(1)

	flaky := &fakeProvider{name: "Flaky", priority: 1, available: true, remaining: -1}
	flaky.solve = func(call int, qs []ProviderQuestion) (*BatchResult, error) {
		return nil, fmt.Errorf("transient upstream error")
	}

	res := newTestOrchestrator(cache, flaky).SolveQuestions(context.Background(), questions)

	if flaky.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", flaky.calls)
	}
	if len(res.Responses) != 0 || res.FailedQuestions != 1 {
		t.Errorf("responses=%d failed=%d", len(res.Responses), res.FailedQuestions)
	}
	if len(res.ProvidersUsed) != 1 || res.ProvidersUsed[0] != "Flaky" {
		t.Errorf("ProvidersUsed = %v, want the attempted provider recorded", res.ProvidersUsed)
	}
}

func TestChunkQuestions(t *testing.T) {
	chunks := chunkQuestions(testQuestions(65), 30)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if len(chunks[0]) != 30 || len(chunks[1]) != 30 || len(chunks[2]) != 5 {
		t.Errorf("chunk sizes = %d,%d,%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
