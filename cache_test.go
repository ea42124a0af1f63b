package quizsolver

import (
	"context"
	"testing"
)

func newTestCache(t *testing.T) *SemanticCache {
	t.Helper()
	return NewSemanticCache(openTestDB(t), NopLogger())
}

func cacheQuestion(index int, stem string) ProviderQuestion {
	return ProviderQuestion{
		Index:   index,
		Stem:    stem,
		Choices: []Choice{{Key: "A", Text: "yes"}, {Key: "B", Text: "no"}},
	}
}

func TestSemanticCacheMissThenHit(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	q := cacheQuestion(1, "Câu 1. Is water wet?")

	if _, ok := cache.Lookup(ctx, q); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	cache.Write(ctx, []ProviderQuestion{q},
		[]AnswerResponse{{Index: 1, Answer: "A", Explanation: "it is"}}, "Gemini")

	hit, ok := cache.Lookup(ctx, q)
	if !ok {
		t.Fatal("expected hit after write")
	}
	if hit.CorrectKey != "A" || hit.Provider != "Gemini" {
		t.Errorf("hit = %+v", hit)
	}
	if hit.HitCount != 1 {
		t.Errorf("hit count = %d, want 1", hit.HitCount)
	}
}

func TestSemanticCacheHitsRewordedQuestion(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	original := cacheQuestion(7, "Câu 7: What   is 2+2?")
	cache.Write(ctx, []ProviderQuestion{original},
		[]AnswerResponse{{Index: 7, Answer: "B"}}, "Groq")

	// renumbered and re-spaced copy of the same question
	reworded := cacheQuestion(12, "12) what is 2+2")
	hit, ok := cache.Lookup(ctx, reworded)
	if !ok {
		t.Fatal("equivalent question missed the cache")
	}
	if hit.CorrectKey != "B" {
		t.Errorf("hit key = %q", hit.CorrectKey)
	}
}

func TestSemanticCacheFirstWriteWins(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	q := cacheQuestion(1, "first write wins?")

	cache.Write(ctx, []ProviderQuestion{q}, []AnswerResponse{{Index: 1, Answer: "A"}}, "Gemini")
	cache.Write(ctx, []ProviderQuestion{q}, []AnswerResponse{{Index: 1, Answer: "C"}}, "Groq")

	hit, ok := cache.Lookup(ctx, q)
	if !ok {
		t.Fatal("expected hit")
	}
	if hit.CorrectKey != "A" || hit.Provider != "Gemini" {
		t.Errorf("later write overwrote the entry: %+v", hit)
	}
}

func TestSemanticCacheHitCounter(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	q := cacheQuestion(1, "counting hits?")

	cache.Write(ctx, []ProviderQuestion{q}, []AnswerResponse{{Index: 1, Answer: "B"}}, "Gemini")
	for i := 0; i < 3; i++ {
		if _, ok := cache.Lookup(ctx, q); !ok {
			t.Fatal("expected hit")
		}
	}
	hit, _ := cache.Lookup(ctx, q)
	if hit.HitCount != 4 {
		t.Errorf("hit count = %d, want 4", hit.HitCount)
	}
}

func TestSemanticCacheSkipsEmptyAnswers(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	q := cacheQuestion(1, "empty answers are not cached?")

	cache.Write(ctx, []ProviderQuestion{q}, []AnswerResponse{{Index: 1, Answer: ""}}, "Gemini")
	if _, ok := cache.Lookup(ctx, q); ok {
		t.Error("empty answer must not create a cache entry")
	}
}
