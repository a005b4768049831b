package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// UserRole distinguishes the three account types.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStaff   UserRole = "STAFF"
	RoleStudent UserRole = "STUDENT"
)

// User is an account row. For STAFF rows the Batch field carries the
// assignment encoding "RANGE:<start>:<end>|extra1,extra2" rather than an
// actual batch label; students carry their cohort there.
type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Role               UserRole  `json:"role"`
	Email              string    `json:"email,omitempty"`
	RegistrationNumber string    `json:"registrationNumber,omitempty"`
	Department         string    `json:"department,omitempty"`
	Batch              string    `json:"batch,omitempty"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
}

// AccessPolicy controls who can see an exam. Restricted exams are scoped to
// the creator's assigned registration-number range; open exams are visible
// to every student.
type AccessPolicy string

const (
	AccessOpen       AccessPolicy = "OPEN"
	AccessRestricted AccessPolicy = "RESTRICTED"
)

// Exam is an assessment authored by staff. Questions are attached at
// creation time and treated as frozen during the active window.
type Exam struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Duration  int          `json:"duration"` // minutes
	StartTime time.Time    `json:"startTime"`
	EndTime   time.Time    `json:"endTime"`
	CreatedBy string       `json:"createdBy"`
	Access    AccessPolicy `json:"access"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ActiveAt reports whether t falls inside the exam window.
func (e Exam) ActiveAt(t time.Time) bool {
	return !t.Before(e.StartTime) && !t.After(e.EndTime)
}

// QuestionType discriminates the question variants.
type QuestionType string

const (
	QuestionMCQ    QuestionType = "MCQ"
	QuestionCoding QuestionType = "CODING"
	QuestionText   QuestionType = "TEXT"
)

// TestCase is one stdin/stdout pair for a coding question. Hidden cases are
// withheld from students but still graded.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Hidden         bool   `json:"hidden"`
}

// MCQPayload carries the fields only MCQ questions have.
type MCQPayload struct {
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// CodingPayload carries the fields only coding questions have.
type CodingPayload struct {
	Template     string     `json:"template,omitempty"`
	InputFormat  string     `json:"inputFormat,omitempty"`
	OutputFormat string     `json:"outputFormat,omitempty"`
	Constraints  string     `json:"constraints,omitempty"`
	TestCases    []TestCase `json:"testCases"`
}

// Question is a tagged variant: exactly one of MCQ/Coding is set according
// to Type, TEXT questions carry neither.
type Question struct {
	ID     string         `json:"id"`
	ExamID string         `json:"examId"`
	Type   QuestionType   `json:"type"`
	Text   string         `json:"text"`
	Marks  float64        `json:"marks"`
	MCQ    *MCQPayload    `json:"mcq,omitempty"`
	Coding *CodingPayload `json:"coding,omitempty"`
}

// EffectiveMarks applies the per-type defaults when marks were left unset.
func (q Question) EffectiveMarks() float64 {
	if q.Marks > 0 {
		return q.Marks
	}
	if q.Type == QuestionCoding {
		return 5
	}
	return 1
}

// Answer is a student's raw answer: plain text for MCQ/TEXT, code plus
// language for CODING. On the wire it is either a bare JSON string or a
// {"code":..., "language":...} object, matching the stored answers map.
type Answer struct {
	Text     string `json:"-"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

// IsEmpty reports whether the answer counts as unanswered.
func (a Answer) IsEmpty() bool {
	return strings.TrimSpace(a.Text) == "" && strings.TrimSpace(a.Code) == ""
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Code != "" || a.Language != "" {
		type coded struct {
			Code     string `json:"code"`
			Language string `json:"language"`
		}
		return json.Marshal(coded{Code: a.Code, Language: a.Language})
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Answer{Text: s}
		return nil
	}
	type coded struct {
		Code     string `json:"code"`
		Language string `json:"language"`
	}
	var c coded
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*a = Answer{Code: c.Code, Language: c.Language}
	return nil
}

// GradedAnswer is the per-question outcome attached at finalize time.
type GradedAnswer struct {
	QuestionID string       `json:"questionId"`
	Type       QuestionType `json:"type"`
	Score      float64      `json:"score"`
	MaxScore   float64      `json:"maxScore"`
	Correct    bool         `json:"correct,omitempty"` // MCQ only
	Passed     int          `json:"passed,omitempty"`  // CODING only
	Total      int          `json:"total,omitempty"`   // CODING only
	Pending    bool         `json:"pending,omitempty"` // TEXT awaits manual review
}

// GradingResult is the full outcome of grading one submission.
type GradingResult struct {
	PerQuestion map[string]GradedAnswer `json:"perQuestion"`
	TotalScore  float64                 `json:"totalScore"`
	MaxScore    float64                 `json:"maxScore"`
}

// Submission is the at-most-one-per-(student, exam, attempt) record. It is
// mutable while SubmittedAt is nil (draft) and immutable afterwards.
type Submission struct {
	ID          string                  `json:"id"`
	StudentID   string                  `json:"studentId"`
	ExamID      string                  `json:"examId"`
	AttemptNo   int                     `json:"attemptNo"`
	Answers     map[string]Answer       `json:"answers"`
	Results     map[string]GradedAnswer `json:"results,omitempty"`
	Score       float64                 `json:"score"`
	MaxScore    float64                 `json:"maxScore"`
	Terminated  bool                    `json:"terminated,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	SubmittedAt *time.Time              `json:"submittedAt,omitempty"`
}

// Finalized reports whether the submission has been graded and locked.
func (s *Submission) Finalized() bool { return s.SubmittedAt != nil }

// RankedEntry is one leaderboard row. Derived on demand, never persisted.
type RankedEntry struct {
	StudentID string  `json:"studentId"`
	Name      string  `json:"name"`
	Batch     string  `json:"batch"`
	Score     float64 `json:"score"`
	Tests     int     `json:"tests"`
	Streak    int     `json:"streak"`
	Rank      int     `json:"rank"`
	Avatar    string  `json:"avatar"`
}
