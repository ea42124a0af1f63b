package quizsolver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadSize caps accepted documents at 50 MiB.
const MaxUploadSize = 50 << 20

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".txt":  true,
	".rtf":  true,
	".odt":  true,
}

// UploadService validates incoming documents, deduplicates by content hash
// and hands accepted work to the queue.
type UploadService struct {
	store     QuizStore
	queue     JobQueue
	uploadDir string
	log       *Logger
}

// NewUploadService creates the intake stage, ensuring the staging directory
// exists.
func NewUploadService(store QuizStore, queue JobQueue, uploadDir string, log *Logger) (*UploadService, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadService{
		store:     store,
		queue:     queue,
		uploadDir: uploadDir,
		log:       log.With("component", "UploadService"),
	}, nil
}

// Intake validates the uploaded file, stages a copy, and either returns the
// existing quiz for duplicate content or creates a pending quiz and enqueues
// a job for it.
func (s *UploadService) Intake(ctx context.Context, r io.Reader, originalName, createdBy string) (*UploadOutcome, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return nil, NewBadRequestError(fmt.Sprintf("unsupported file type: %s", ext))
	}

	quizID := uuid.New().String()
	stagedPath := filepath.Join(s.uploadDir, quizID+ext)
	size, err := copyCapped(stagedPath, r, MaxUploadSize)
	if err != nil {
		os.Remove(stagedPath)
		return nil, err
	}
	if size == 0 {
		os.Remove(stagedPath)
		return nil, NewBadRequestError("empty file")
	}

	docType, err := s.detectDocumentType(stagedPath, ext)
	if err != nil {
		os.Remove(stagedPath)
		return nil, err
	}

	hash, err := HashFile(stagedPath)
	if err != nil {
		os.Remove(stagedPath)
		return nil, fmt.Errorf("failed to hash upload: %w", err)
	}

	if existing, err := s.store.GetQuizByFileHash(ctx, hash); err != nil {
		os.Remove(stagedPath)
		return nil, err
	} else if existing != nil {
		os.Remove(stagedPath)
		s.log.Info("duplicate upload detected", "hash", hash, "existing", existing.ID)
		return &UploadOutcome{Quiz: existing, DuplicateOf: existing.ID}, nil
	}

	quiz := &Quiz{
		ID:           quizID,
		Title:        titleFromFilename(originalName),
		SourceFile:   originalName,
		FileURL:      "file://" + stagedPath,
		FileHash:     hash,
		DocumentType: docType,
		Status:       StatusPending,
		CreatedBy:    createdBy,
	}
	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		os.Remove(stagedPath)
		return nil, err
	}

	job := &JobPayload{
		JobID:        uuid.New().String(),
		QuizID:       quiz.ID,
		DocumentURL:  quiz.FileURL,
		DocumentType: docType,
		Attempts:     1,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	s.log.Info("upload accepted",
		"quizID", quiz.ID, "type", docType, "size", size, "hash", hash)
	return &UploadOutcome{Quiz: quiz}, nil
}

// detectDocumentType sniffs the staged file's leading bytes, falling back to
// the extension only for text-like content.
func (s *UploadService) detectDocumentType(path, ext string) (DocumentType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open staged file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file header: %w", err)
	}
	header = header[:n]

	switch {
	case isPDF(header):
		return DocumentPDF, nil
	case isZip(header):
		return DocumentDOCX, nil
	case isOLE(header):
		// legacy binary office file; the parser will reject it if the text
		// fallback finds nothing usable
		return DocumentText, nil
	case isProbablyText(header):
		return DocumentText, nil
	default:
		return "", NewBadRequestError(fmt.Sprintf("file content does not match a supported format (%s)", ext))
	}
}

// copyCapped writes the reader to destPath, refusing streams over limit.
func copyCapped(destPath string, r io.Reader, limit int64) (int64, error) {
	dest, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stage upload: %w", err)
	}
	defer dest.Close()

	n, err := io.Copy(dest, io.LimitReader(r, limit+1))
	if err != nil {
		return 0, fmt.Errorf("failed to write upload: %w", err)
	}
	if n > limit {
		return 0, NewBadRequestError("file exceeds the 50 MiB limit")
	}
	return n, nil
}

func titleFromFilename(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}
