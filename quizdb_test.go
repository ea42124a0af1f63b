package quizsolver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"), NopLogger())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	if err := db.CreateTables(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func sampleQuiz() *Quiz {
	return &Quiz{
		ID:           uuid.New().String(),
		Title:        "Đề thi thử",
		SourceFile:   "exam.docx",
		FileHash:     HashString("exam-bytes"),
		DocumentType: DocumentDOCX,
		Status:       StatusPending,
	}
}

func TestQuizRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	quiz := sampleQuiz()
	if err := db.CreateQuiz(ctx, quiz); err != nil {
		t.Fatalf("CreateQuiz failed: %v", err)
	}

	quiz.Status = StatusCompleted
	quiz.TotalQuestions = 2
	quiz.ProcessedQuestions = 2
	quiz.Questions = []Question{
		{
			ID:               uuid.New().String(),
			QuizID:           quiz.ID,
			Index:            1,
			Stem:             "2+2?",
			Choices:          []Choice{{Key: "A", Text: "3"}, {Key: "B", Text: "4"}},
			CorrectAnswerKey: "B",
			Source:           SourceAIGenerated,
			Section:          "CHƯƠNG 1",
		},
		{
			ID:               uuid.New().String(),
			QuizID:           quiz.ID,
			Index:            2,
			Stem:             "3+3?",
			Choices:          []Choice{{Key: "A", Text: "6"}, {Key: "B", Text: "9"}},
			CorrectAnswerKey: "A",
			Source:           SourceStyleDetected,
			Section:          "CHƯƠNG 2",
		},
	}
	if err := db.SaveQuizResults(ctx, quiz); err != nil {
		t.Fatalf("SaveQuizResults failed: %v", err)
	}

	got, err := db.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("GetQuiz failed: %v", err)
	}
	if got.Status != StatusCompleted || got.TotalQuestions != 2 {
		t.Errorf("status=%s total=%d", got.Status, got.TotalQuestions)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("got %d questions", len(got.Questions))
	}
	if got.Questions[0].CorrectAnswerKey != "B" || got.Questions[0].Choices[1].Text != "4" {
		t.Errorf("question 1 = %+v", got.Questions[0])
	}
	if got.Questions[1].Source != SourceStyleDetected {
		t.Errorf("question 2 source = %q", got.Questions[1].Source)
	}

	if len(got.Sections) != 2 || got.Sections[0] != "CHƯƠNG 1" || got.Sections[1] != "CHƯƠNG 2" {
		t.Errorf("sections = %v", got.Sections)
	}
	if len(got.SectionCounts) != 2 || got.SectionCounts[0].Count != 1 {
		t.Errorf("section counts = %v", got.SectionCounts)
	}
}

func TestGetQuizByFileHash(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	quiz := sampleQuiz()
	if err := db.CreateQuiz(ctx, quiz); err != nil {
		t.Fatalf("CreateQuiz failed: %v", err)
	}

	found, err := db.GetQuizByFileHash(ctx, quiz.FileHash)
	if err != nil {
		t.Fatalf("GetQuizByFileHash failed: %v", err)
	}
	if found == nil || found.ID != quiz.ID {
		t.Errorf("found = %+v", found)
	}

	missing, err := db.GetQuizByFileHash(ctx, HashString("other-bytes"))
	if err != nil {
		t.Fatalf("GetQuizByFileHash failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected no match, got %+v", missing)
	}
}

func TestDeleteQuizRemovesQuestions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	quiz := sampleQuiz()
	if err := db.CreateQuiz(ctx, quiz); err != nil {
		t.Fatalf("CreateQuiz failed: %v", err)
	}
	quiz.Questions = []Question{{
		ID:      uuid.New().String(),
		QuizID:  quiz.ID,
		Index:   1,
		Stem:    "q?",
		Choices: []Choice{{Key: "A", Text: "x"}, {Key: "B", Text: "y"}},
		Source:  SourceAIGenerated,
		Section: DefaultSection,
	}}
	if err := db.SaveQuizResults(ctx, quiz); err != nil {
		t.Fatalf("SaveQuizResults failed: %v", err)
	}

	if err := db.DeleteQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("DeleteQuiz failed: %v", err)
	}
	if _, err := db.GetQuiz(ctx, quiz.ID); err == nil {
		t.Error("deleted quiz still readable")
	}
	var count int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM questions WHERE quiz_id = ?`, quiz.ID).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("%d orphan questions left behind", count)
	}
}

func TestGetQuizzesOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q := sampleQuiz()
		q.FileHash = HashString(uuid.New().String())
		if err := db.CreateQuiz(ctx, q); err != nil {
			t.Fatalf("CreateQuiz failed: %v", err)
		}
	}
	quizzes, err := db.GetQuizzes(ctx, 2)
	if err != nil {
		t.Fatalf("GetQuizzes failed: %v", err)
	}
	if len(quizzes) != 2 {
		t.Errorf("got %d quizzes, want 2", len(quizzes))
	}
}

func TestUpdateQuizStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	quiz := sampleQuiz()
	if err := db.CreateQuiz(ctx, quiz); err != nil {
		t.Fatalf("CreateQuiz failed: %v", err)
	}
	if err := db.UpdateQuizStatus(ctx, quiz.ID, StatusWaitingAI); err != nil {
		t.Fatalf("UpdateQuizStatus failed: %v", err)
	}
	got, err := db.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("GetQuiz failed: %v", err)
	}
	if got.Status != StatusWaitingAI {
		t.Errorf("status = %s", got.Status)
	}
}
