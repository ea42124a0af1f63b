package quizsolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLog records every provider interaction for one quiz to a trace file
// under log/. It is diagnostic only; failures to trace never fail a job.
// All methods are safe on a nil receiver, so code paths without a trace
// attached need no guard.
type LLMLog struct {
	file   *os.File
	mu     sync.Mutex
	quizID string
}

type llmLogCtxKey struct{}

// WithLLMLog attaches a per-quiz trace to the context. Each job carries its
// own trace, so concurrent jobs never interleave writes.
func WithLLMLog(ctx context.Context, l *LLMLog) context.Context {
	return context.WithValue(ctx, llmLogCtxKey{}, l)
}

// LLMLogFrom returns the trace attached to the context, or nil.
func LLMLogFrom(ctx context.Context) *LLMLog {
	l, _ := ctx.Value(llmLogCtxKey{}).(*LLMLog)
	return l
}

// NewLLMLog creates a trace file for a quiz.
func NewLLMLog(quizID string) (*LLMLog, error) {
	if err := os.MkdirAll("log", 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.Create(filepath.Join("log", fmt.Sprintf("%s.log", quizID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	l := &LLMLog{file: file, quizID: quizID}
	l.Logf("=== Quiz Solve Trace ===\n")
	l.Logf("Quiz ID: %s\n", quizID)
	l.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	l.Logf("========================\n\n")
	return l, nil
}

// Logf writes a formatted entry with a timestamp.
func (l *LLMLog) Logf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	l.file.Sync()
}

// LogRequest records an outgoing provider prompt.
func (l *LLMLog) LogRequest(provider, prompt string) {
	l.Logf("=== REQUEST (%s) ===\n%s\n====================\n\n", provider, prompt)
}

// LogResponse records a raw provider reply.
func (l *LLMLog) LogResponse(provider, response string) {
	l.Logf("=== RESPONSE (%s) ===\n%s\n=====================\n\n", provider, response)
}

// LogBatch records the outcome of one provider batch.
func (l *LLMLog) LogBatch(provider string, answered, failed, tokens int, d time.Duration) {
	l.Logf("BATCH %s: answered=%d failed=%d tokens=%d duration=%s\n", provider, answered, failed, tokens, d)
}

// Close finalizes the trace file.
func (l *LLMLog) Close() error {
	if l == nil {
		return nil
	}
	l.Logf("Trace closed: %s\n", time.Now().Format(time.RFC3339))
	return l.file.Close()
}
