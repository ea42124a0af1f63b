package quizsolver

import "time"

// DocumentType identifies the source document format of a quiz upload.
type DocumentType string

const (
	DocumentPDF  DocumentType = "pdf"
	DocumentDOCX DocumentType = "docx"
	DocumentText DocumentType = "text"
)

// QuizStatus represents the state of a quiz in the processing pipeline.
type QuizStatus string

const (
	StatusPending    QuizStatus = "pending"
	StatusProcessing QuizStatus = "processing"
	StatusCompleted  QuizStatus = "completed"
	// StatusNeedsReview is declared for future policy; nothing emits it today.
	StatusNeedsReview QuizStatus = "needs_review"
	StatusWaitingAI   QuizStatus = "waiting_ai"
	StatusFailed      QuizStatus = "failed"
)

// AnswerSource records where a question's correct answer came from.
type AnswerSource string

const (
	SourceStyleDetected AnswerSource = "style_detected"
	SourceAIGenerated   AnswerSource = "ai_generated"
	SourceManual        AnswerSource = "manual"
)

// DefaultSection is assigned to questions that appear before any section heading.
const DefaultSection = "Nội dung chung"

// Choice is a single answer option of a multiple-choice question.
type Choice struct {
	Key              string `json:"key"` // single uppercase letter A..F
	Text             string `json:"text"`
	IsVisuallyMarked bool   `json:"is_visually_marked"`
}

// Question represents a single multiple-choice question with resolved answer.
type Question struct {
	ID               string       `json:"id"`
	QuizID           string       `json:"quiz_id"`
	Index            int          `json:"index"` // 1-based position in the document
	Stem             string       `json:"stem"`
	Choices          []Choice     `json:"choices"`
	CorrectAnswerKey string       `json:"correct_answer_key"` // empty or one of the choice keys
	Explanation      string       `json:"explanation,omitempty"`
	Source           AnswerSource `json:"source"`
	Section          string       `json:"section"`
}

// SectionCount is a per-section question tally. It is a pair list rather than
// a map because discovered section names may contain dots.
type SectionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Quiz represents an uploaded quiz document and its processing state.
type Quiz struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	SourceFile         string         `json:"source_file"`
	FileURL            string         `json:"file_url"`
	FileHash           string         `json:"file_hash"` // hex-encoded MD5 of the uploaded bytes
	DocumentType       DocumentType   `json:"document_type"`
	Status             QuizStatus     `json:"status"`
	TotalQuestions     int            `json:"total_questions"`
	ProcessedQuestions int            `json:"processed_questions"`
	Questions          []Question     `json:"questions"`
	Sections           []string       `json:"sections"` // unique, insertion-ordered
	SectionCounts      []SectionCount `json:"section_counts"`
	CreatedBy          string         `json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Deleted            bool           `json:"deleted"`
}

// CachedAnswer is a previously resolved answer keyed by normalized content
// hashes. The first authoritative answer is never overwritten; only the hit
// counters update on subsequent lookups.
type CachedAnswer struct {
	StemHash    string    `json:"stem_hash"`
	ChoicesHash string    `json:"choices_hash"`
	CorrectKey  string    `json:"correct_key"`
	Explanation string    `json:"explanation,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"` // 0..1, 0 when unknown
	Provider    string    `json:"provider"`
	HitCount    int       `json:"hit_count"`
	LastHitAt   time.Time `json:"last_hit_at"`
}

// JobPayload is the queue message driving the processing pipeline.
type JobPayload struct {
	JobID        string       `json:"job_id"`
	QuizID       string       `json:"quiz_id"`
	DocumentURL  string       `json:"document_url"`
	DocumentType DocumentType `json:"document_type"`
	Attempts     int          `json:"attempts"`
}

// UploadOutcome is the result of an upload: either a newly created quiz or a
// pointer to an existing quiz with identical content.
type UploadOutcome struct {
	Quiz        *Quiz  `json:"quiz,omitempty"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// IsDuplicate reports whether the upload matched an existing quiz.
func (o *UploadOutcome) IsDuplicate() bool { return o.DuplicateOf != "" }
