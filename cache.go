package quizsolver

import (
	"context"
	"database/sql"
	"time"
)

// SemanticCache stores resolved answers keyed by normalized content hashes,
// so reworded or renumbered copies of a question resolve without a provider
// call. It shares the sqlite handle with the quiz store.
type SemanticCache struct {
	db  *sql.DB
	log *Logger
}

// NewSemanticCache wraps the quiz database's answer_cache table.
func NewSemanticCache(db *DB, log *Logger) *SemanticCache {
	return &SemanticCache{db: db.db, log: log.With("component", "SemanticCache")}
}

// Lookup returns the cached answer for a question, if any. Every failure
// degrades to a miss; the cache must never block solving.
func (c *SemanticCache) Lookup(ctx context.Context, q ProviderQuestion) (*CachedAnswer, bool) {
	stemHash, choicesHash := CacheKeys(q.Stem, q.Choices)

	var cached CachedAnswer
	err := c.db.QueryRowContext(ctx,
		`SELECT stem_hash, choices_hash, correct_key, explanation, confidence, provider, hit_count, last_hit_at
		 FROM answer_cache WHERE stem_hash = ? AND choices_hash = ?`,
		stemHash, choicesHash,
	).Scan(&cached.StemHash, &cached.ChoicesHash, &cached.CorrectKey, &cached.Explanation,
		&cached.Confidence, &cached.Provider, &cached.HitCount, &cached.LastHitAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.log.Warn("cache lookup failed, treating as miss", "error", err)
		return nil, false
	}

	if _, err := c.db.ExecContext(ctx,
		`UPDATE answer_cache SET hit_count = hit_count + 1, last_hit_at = ? WHERE stem_hash = ? AND choices_hash = ?`,
		time.Now(), stemHash, choicesHash,
	); err != nil {
		c.log.Warn("cache hit bookkeeping failed", "error", err)
	}
	cached.HitCount++
	return &cached, true
}

// Write stores freshly solved answers. Insert-only: an existing entry for the
// same content keys is never overwritten. Failures are logged and dropped.
func (c *SemanticCache) Write(ctx context.Context, questions []ProviderQuestion, responses []AnswerResponse, provider string) {
	byIndex := make(map[int]ProviderQuestion, len(questions))
	for _, q := range questions {
		byIndex[q.Index] = q
	}

	now := time.Now()
	for _, r := range responses {
		q, ok := byIndex[r.Index]
		if !ok || r.Answer == "" {
			continue
		}
		stemHash, choicesHash := CacheKeys(q.Stem, q.Choices)
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO answer_cache (stem_hash, choices_hash, correct_key, explanation, confidence, provider, hit_count, last_hit_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			 ON CONFLICT(stem_hash, choices_hash) DO NOTHING`,
			stemHash, choicesHash, r.Answer, r.Explanation, 1.0, provider, now,
		); err != nil {
			c.log.Warn("cache write failed", "error", err, "index", r.Index)
		}
	}
}
