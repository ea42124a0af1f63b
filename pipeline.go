package quizsolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Solver resolves answers for a batch of parsed questions.
type Solver interface {
	SolveQuestions(ctx context.Context, questions []ProviderQuestion) *OrchestratorResult
}

// Pipeline runs one quiz document end to end: parse, solve, merge, persist,
// archive.
type Pipeline struct {
	store   QuizStore
	parser  *DocumentParser
	solver  Solver
	storage FileStorage
	log     *Logger
}

// NewPipeline wires the processing stages together.
func NewPipeline(store QuizStore, parser *DocumentParser, solver Solver, storage FileStorage, log *Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		parser:  parser,
		solver:  solver,
		storage: storage,
		log:     log.With("component", "Pipeline"),
	}
}

// ProcessJob executes one queued job. A parser failure is terminal: the quiz
// and its file are removed so the user can re-upload. A provider-exhausted
// outcome is returned for the worker to reschedule.
func (p *Pipeline) ProcessJob(ctx context.Context, job JobPayload) error {
	log := p.log.With("quizID", job.QuizID, "jobID", job.JobID)
	log.Info("processing job", "attempt", job.Attempts)

	if err := p.store.UpdateQuizStatus(ctx, job.QuizID, StatusProcessing); err != nil {
		return fmt.Errorf("failed to mark quiz processing: %w", err)
	}

	trace, err := NewLLMLog(job.QuizID)
	if err != nil {
		log.Warn("failed to open solve trace", "error", err)
	}
	ctx = WithLLMLog(ctx, trace)
	defer trace.Close()

	localPath := strings.TrimPrefix(job.DocumentURL, "file://")
	doc, err := p.parser.ParseFile(localPath, job.DocumentType)
	if err != nil {
		log.Error("parse failed, cleaning up quiz", "error", err)
		p.cleanupFailed(ctx, job.QuizID, localPath)
		return err
	}

	quiz, err := p.store.GetQuiz(ctx, job.QuizID)
	if err != nil {
		return fmt.Errorf("failed to load quiz: %w", err)
	}
	if doc.Title != "" {
		quiz.Title = doc.Title
	}

	questions := make([]Question, len(doc.Questions))
	var unsolved []ProviderQuestion
	for i, pq := range doc.Questions {
		choices := make([]Choice, len(pq.Choices))
		texts := make([]string, len(pq.Choices))
		for j, c := range pq.Choices {
			choices[j] = Choice{Key: c.Key, Text: c.Text, IsVisuallyMarked: c.IsVisuallyMarked}
			texts[j] = c.Text
		}
		questions[i] = Question{
			ID:               uuid.New().String(),
			QuizID:           quiz.ID,
			Index:            pq.Index,
			Stem:             pq.Stem,
			Choices:          choices,
			CorrectAnswerKey: pq.CorrectAnswerKey,
			Source:           pq.Source,
			Section:          pq.Section,
		}
		if pq.CorrectAnswerKey == "" {
			unsolved = append(unsolved, ProviderQuestion{
				Index:   pq.Index,
				Stem:    pq.Stem,
				Choices: choices,
				Section: pq.Section,
			})
		}
	}
	log.Info("document parsed",
		"questions", len(questions), "visuallyMarked", len(questions)-len(unsolved))

	var result *OrchestratorResult
	if len(unsolved) > 0 {
		result = p.solver.SolveQuestions(ctx, unsolved)
		if len(result.Responses) == 0 {
			// nothing answered anywhere; keep the quiz intact for a retry
			return NewProviderExhaustedError(
				fmt.Sprintf("no provider could answer any of %d questions", len(unsolved)))
		}
		p.mergeAnswers(questions, result, log)
	}

	quiz.Questions = questions
	quiz.TotalQuestions = len(questions)
	quiz.ProcessedQuestions = len(questions)
	quiz.Sections, quiz.SectionCounts = deriveSections(questions)
	quiz.Status = StatusCompleted

	// persist before touching the source file: until the results are saved
	// the local document is the only thing a retry can work from
	if err := p.store.SaveQuizResults(ctx, quiz); err != nil {
		return fmt.Errorf("failed to save quiz results: %w", err)
	}

	p.archiveDocument(ctx, quiz, localPath, log)

	if result != nil {
		log.Info("quiz completed",
			"cacheHits", result.CacheHits,
			"cacheMisses", result.CacheMisses,
			"providers", result.ProvidersUsed,
			"tokens", result.TotalTokens,
			"fallbacks", result.FailedQuestions)
	} else {
		log.Info("quiz completed", "providers", "none needed")
	}
	return nil
}

// mergeAnswers applies provider responses to the unanswered questions. Visual
// marks always win; a question nobody answered defaults to "A" so the quiz is
// usable and reviewable.
func (p *Pipeline) mergeAnswers(questions []Question, result *OrchestratorResult, log *Logger) {
	byIndex := make(map[int]AnswerResponse, len(result.Responses))
	for _, r := range result.Responses {
		byIndex[r.Index] = r
	}
	for i := range questions {
		if questions[i].CorrectAnswerKey != "" {
			continue
		}
		if r, ok := byIndex[questions[i].Index]; ok {
			questions[i].CorrectAnswerKey = r.Answer
			questions[i].Explanation = r.Explanation
			questions[i].Source = SourceAIGenerated
			continue
		}
		log.Warn("question unanswered by all providers, defaulting",
			"index", questions[i].Index)
		questions[i].CorrectAnswerKey = "A"
		questions[i].Source = SourceAIGenerated
	}
}

// archiveDocument moves the local file into long-term storage after the quiz
// is saved. The local copy is removed only once the stored file URL points at
// the archived blob; on any failure the local copy stays and the URL keeps
// pointing at it.
func (p *Pipeline) archiveDocument(ctx context.Context, quiz *Quiz, localPath string, log *Logger) {
	name := quiz.ID + filepath.Ext(localPath)
	url, fileID, err := p.storage.UploadFile(localPath, name, mimeTypeFor(quiz.DocumentType))
	if err != nil {
		log.Warn("archive upload failed, keeping local file", "error", err)
		return
	}
	if err := p.store.UpdateQuizFileURL(ctx, quiz.ID, url); err != nil {
		log.Warn("failed to record archived file url, keeping local file", "error", err)
		p.storage.DeleteFile(fileID)
		return
	}
	quiz.FileURL = url
	if err := os.Remove(localPath); err != nil {
		log.Warn("failed to remove local file after archive", "error", err)
	}
	log.Debug("document archived", "fileID", fileID)
}

// cleanupFailed marks the quiz failed, then removes the file and the record.
func (p *Pipeline) cleanupFailed(ctx context.Context, quizID, localPath string) {
	if err := p.store.UpdateQuizStatus(ctx, quizID, StatusFailed); err != nil {
		p.log.Warn("failed to mark quiz failed", "quizID", quizID, "error", err)
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("failed to remove document", "path", localPath, "error", err)
	}
	if err := p.store.DeleteQuiz(ctx, quizID); err != nil {
		p.log.Warn("failed to delete quiz record", "quizID", quizID, "error", err)
	}
}

func mimeTypeFor(docType DocumentType) string {
	switch docType {
	case DocumentPDF:
		return "application/pdf"
	case DocumentDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/plain"
	}
}
