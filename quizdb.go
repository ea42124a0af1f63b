package quizsolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// QuizStore is the persistence surface the pipeline and worker depend on.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz *Quiz) error
	GetQuiz(ctx context.Context, id string) (*Quiz, error)
	GetQuizByFileHash(ctx context.Context, hash string) (*Quiz, error)
	GetQuizzes(ctx context.Context, limit int) ([]Quiz, error)
	UpdateQuizStatus(ctx context.Context, id string, status QuizStatus) error
	UpdateQuizFileURL(ctx context.Context, id, fileURL string) error
	SaveQuizResults(ctx context.Context, quiz *Quiz) error
	DeleteQuiz(ctx context.Context, id string) error
}

// DB is a sqlite-backed quiz store. It also hosts the answer cache tables
// (cache.go).
type DB struct {
	db  *sql.DB
	log *Logger
}

// OpenDB opens the database and verifies the connection.
func OpenDB(dbPath string, log *Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{db: db, log: log.With("component", "DB")}, nil
}

// CloseDB closes the database connection.
func (d *DB) CloseDB() error {
	return d.db.Close()
}

// CreateTables creates the schema if it does not exist.
func (d *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_file TEXT NOT NULL,
			file_url TEXT NOT NULL DEFAULT '',
			file_hash TEXT NOT NULL,
			document_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			total_questions INTEGER NOT NULL DEFAULT 0,
			processed_questions INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_file_hash ON quizzes(file_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_status ON quizzes(status)`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_owner ON quizzes(created_by, created_at)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			question_num INTEGER NOT NULL,
			stem TEXT NOT NULL,
			choices TEXT NOT NULL,
			correct_answer_key TEXT NOT NULL DEFAULT '',
			explanation TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			section TEXT NOT NULL,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions(quiz_id, question_num)`,
		`CREATE TABLE IF NOT EXISTS answer_cache (
			stem_hash TEXT NOT NULL,
			choices_hash TEXT NOT NULL,
			correct_key TEXT NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			provider TEXT NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0,
			last_hit_at DATETIME NOT NULL,
			PRIMARY KEY (stem_hash, choices_hash)
		)`,
	}
	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateQuiz inserts a new quiz record.
func (d *DB) CreateQuiz(ctx context.Context, quiz *Quiz) error {
	now := time.Now()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, title, source_file, file_url, file_hash, document_type, status,
			total_questions, processed_questions, created_by, created_at, updated_at, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		quiz.ID, quiz.Title, quiz.SourceFile, quiz.FileURL, quiz.FileHash, quiz.DocumentType, quiz.Status,
		quiz.TotalQuestions, quiz.ProcessedQuestions, quiz.CreatedBy, quiz.CreatedAt, quiz.UpdatedAt, boolToInt(quiz.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

const quizColumns = `id, title, source_file, file_url, file_hash, document_type, status,
	total_questions, processed_questions, created_by, created_at, updated_at, deleted`

// GetQuiz retrieves a quiz with its questions and derived section lists.
func (d *DB) GetQuiz(ctx context.Context, id string) (*Quiz, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE id = ?`, id)
	quiz, err := scanQuiz(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("quiz not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if err := d.loadQuestions(ctx, quiz); err != nil {
		return nil, err
	}
	return quiz, nil
}

// GetQuizByFileHash finds a live quiz with identical uploaded content.
func (d *DB) GetQuizByFileHash(ctx context.Context, hash string) (*Quiz, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE file_hash = ? AND deleted = 0 LIMIT 1`, hash)
	quiz, err := scanQuiz(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up quiz by hash: %w", err)
	}
	return quiz, nil
}

// GetQuizzes lists quizzes most recent first, optionally limited.
func (d *DB) GetQuizzes(ctx context.Context, limit int) ([]Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE deleted = 0 ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, *quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}
	return quizzes, nil
}

// UpdateQuizStatus transitions a quiz's state.
func (d *DB) UpdateQuizStatus(ctx context.Context, id string, status QuizStatus) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE quizzes SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update quiz status: %w", err)
	}
	return nil
}

// UpdateQuizFileURL records the long-term storage location of the document.
func (d *DB) UpdateQuizFileURL(ctx context.Context, id, fileURL string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE quizzes SET file_url = ?, updated_at = ? WHERE id = ?`, fileURL, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update quiz file url: %w", err)
	}
	return nil
}

// SaveQuizResults persists the whole quiz in one transaction, replacing its
// questions. Load-mutate-save keeps question identities stable.
func (d *DB) SaveQuizResults(ctx context.Context, quiz *Quiz) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	quiz.UpdatedAt = time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE quizzes SET title = ?, file_url = ?, status = ?, total_questions = ?,
			processed_questions = ?, updated_at = ? WHERE id = ?`,
		quiz.Title, quiz.FileURL, quiz.Status, quiz.TotalQuestions,
		quiz.ProcessedQuestions, quiz.UpdatedAt, quiz.ID,
	); err != nil {
		return fmt.Errorf("failed to update quiz: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id = ?`, quiz.ID); err != nil {
		return fmt.Errorf("failed to clear questions: %w", err)
	}
	for _, q := range quiz.Questions {
		choicesJSON, err := ChoicesToJSON(q.Choices)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, quiz_id, question_num, stem, choices, correct_answer_key, explanation, source, section)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, quiz.ID, q.Index, q.Stem, choicesJSON, q.CorrectAnswerKey, q.Explanation, q.Source, q.Section,
		); err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	return nil
}

// DeleteQuiz removes a quiz and its questions. Used by terminal-failure
// cleanup so the user can re-upload.
func (d *DB) DeleteQuiz(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete questions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (d *DB) loadQuestions(ctx context.Context, quiz *Quiz) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, quiz_id, question_num, stem, choices, correct_answer_key, explanation, source, section
		 FROM questions WHERE quiz_id = ? ORDER BY question_num`, quiz.ID)
	if err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}
	defer rows.Close()

	quiz.Questions = nil
	for rows.Next() {
		var q Question
		var choicesJSON string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Index, &q.Stem, &choicesJSON,
			&q.CorrectAnswerKey, &q.Explanation, &q.Source, &q.Section); err != nil {
			return fmt.Errorf("failed to scan question: %w", err)
		}
		q.Choices, err = JSONToChoices(choicesJSON)
		if err != nil {
			return err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating questions: %w", err)
	}

	quiz.Sections, quiz.SectionCounts = deriveSections(quiz.Questions)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuiz(row rowScanner) (*Quiz, error) {
	var quiz Quiz
	var deleted int
	err := row.Scan(&quiz.ID, &quiz.Title, &quiz.SourceFile, &quiz.FileURL, &quiz.FileHash,
		&quiz.DocumentType, &quiz.Status, &quiz.TotalQuestions, &quiz.ProcessedQuestions,
		&quiz.CreatedBy, &quiz.CreatedAt, &quiz.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	quiz.Deleted = deleted != 0
	return &quiz, nil
}

// deriveSections builds the insertion-ordered section list and the pair-list
// counts from the ordered questions.
func deriveSections(questions []Question) ([]string, []SectionCount) {
	var sections []string
	counts := make(map[string]int)
	for _, q := range questions {
		if _, seen := counts[q.Section]; !seen {
			sections = append(sections, q.Section)
		}
		counts[q.Section]++
	}
	pairs := make([]SectionCount, 0, len(sections))
	for _, name := range sections {
		pairs = append(pairs, SectionCount{Name: name, Count: counts[name]})
	}
	return sections, pairs
}

// ChoicesToJSON serializes a choice list for storage.
func ChoicesToJSON(choices []Choice) (string, error) {
	data, err := json.Marshal(choices)
	if err != nil {
		return "", fmt.Errorf("failed to marshal choices: %w", err)
	}
	return string(data), nil
}

// JSONToChoices deserializes a stored choice list.
func JSONToChoices(choicesJSON string) ([]Choice, error) {
	var choices []Choice
	if err := json.Unmarshal([]byte(choicesJSON), &choices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal choices: %w", err)
	}
	return choices, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
