package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/grading"
	"placement-prep-service/internal/leaderboard"
	"placement-prep-service/internal/sandbox"
)

// DefaultAttemptLimit caps how many submission rows a student may
// accumulate for one exam.
const DefaultAttemptLimit = 2

// Config tunes the assessment service.
type Config struct {
	// AttemptLimit defaults to DefaultAttemptLimit when zero.
	AttemptLimit int
	// FailOpenVisibility makes restricted exams with an absent or
	// unparseable creator assignment visible to everyone.
	FailOpenVisibility bool
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Service wires the submission, grading, visibility and ranking use cases
// together. Handlers are request scoped; all coordination goes through the
// store.
type Service struct {
	store     Store
	questions QuestionSource
	grader    *grading.Engine
	runner    sandbox.Runner
	evaluator *sandbox.Evaluator
	ranking   *leaderboard.Engine
	hub       *Hub
	snapshots SnapshotCache

	attemptLimit int
	failOpen     bool
	now          func() time.Time
	sf           singleflight.Group
}

func NewService(store Store, questions QuestionSource, grader *grading.Engine, runner sandbox.Runner, evaluator *sandbox.Evaluator, ranking *leaderboard.Engine, cfg Config) *Service {
	if cfg.AttemptLimit <= 0 {
		cfg.AttemptLimit = DefaultAttemptLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:        store,
		questions:    questions,
		grader:       grader,
		runner:       runner,
		evaluator:    evaluator,
		ranking:      ranking,
		hub:          NewHub(),
		attemptLimit: cfg.AttemptLimit,
		failOpen:     cfg.FailOpenVisibility,
		now:          cfg.Clock,
	}
}

// ExamForStudent returns the exam and its questions with answer keys and
// hidden test data stripped. It is the gate where the time window, the
// attempt cap and the termination bar are enforced before a student can
// start (or resume) an attempt.
func (s *Service) ExamForStudent(ctx context.Context, examID, studentID string) (domain.Exam, []domain.Question, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return domain.Exam{}, nil, err
	}
	if !exam.ActiveAt(s.now()) {
		return domain.Exam{}, nil, &domain.WindowError{Reason: "exam is not currently active"}
	}

	student, err := s.store.GetUser(ctx, studentID)
	if err != nil {
		return domain.Exam{}, nil, err
	}
	assigned, err := s.IsAssigned(ctx, exam, student)
	if err != nil {
		return domain.Exam{}, nil, err
	}
	if !assigned {
		return domain.Exam{}, nil, &domain.WindowError{Reason: "exam is not assigned to you"}
	}

	rows, err := s.store.ListSubmissions(ctx, studentID, examID)
	if err != nil {
		return domain.Exam{}, nil, err
	}
	if err := s.checkAttemptAccess(rows, false); err != nil {
		return domain.Exam{}, nil, err
	}

	questions, err := s.questions.QuestionsForExam(ctx, examID)
	if err != nil {
		return domain.Exam{}, nil, err
	}
	return exam, sanitizeQuestions(questions), nil
}

// Autosave records one answer into the student's open draft, creating the
// draft (and the next attempt) if necessary. Finalized attempts are never
// touched.
func (s *Service) Autosave(ctx context.Context, studentID, examID, questionID string, answer domain.Answer) error {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	now := s.now()
	if !exam.ActiveAt(now) {
		return &domain.WindowError{Reason: "exam is not currently active"}
	}

	rows, err := s.store.ListSubmissions(ctx, studentID, examID)
	if err != nil {
		return err
	}
	draft := activeDraft(rows)
	if draft == nil {
		if err := s.checkAttemptAccess(rows, true); err != nil {
			return err
		}
		draft = &domain.Submission{
			ID:        uuid.NewString(),
			StudentID: studentID,
			ExamID:    examID,
			AttemptNo: len(rows) + 1,
			Answers:   map[string]domain.Answer{},
			CreatedAt: now,
		}
	}
	if draft.Answers == nil {
		draft.Answers = map[string]domain.Answer{}
	}
	draft.Answers[questionID] = answer
	return s.store.UpsertDraft(ctx, *draft)
}

// Finalize grades the open attempt exactly once and locks it. A duplicate
// call (double click, proctoring forced submit racing a normal submit)
// returns the already-stored result without re-grading.
func (s *Service) Finalize(ctx context.Context, studentID, examID string, answers map[string]domain.Answer, terminated bool) (domain.GradingResult, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return domain.GradingResult{}, err
	}
	now := s.now()
	if !exam.ActiveAt(now) {
		return domain.GradingResult{}, &domain.WindowError{Reason: "exam is not currently active"}
	}

	rows, err := s.store.ListSubmissions(ctx, studentID, examID)
	if err != nil {
		return domain.GradingResult{}, err
	}
	for _, r := range rows {
		if r.Terminated {
			return domain.GradingResult{}, &domain.WindowError{Reason: "exam access revoked after termination"}
		}
	}

	draft := activeDraft(rows)
	if draft == nil {
		if latest := latestFinalized(rows); latest != nil {
			// Already finalized and no new attempt was started: idempotent
			// replay of the stored outcome.
			return storedResult(*latest), nil
		}
		if len(rows) >= s.attemptLimit {
			return domain.GradingResult{}, &domain.WindowError{Reason: "maximum attempts reached"}
		}
		draft = &domain.Submission{
			ID:        uuid.NewString(),
			StudentID: studentID,
			ExamID:    examID,
			AttemptNo: len(rows) + 1,
			CreatedAt: now,
		}
		if err := s.store.UpsertDraft(ctx, *draft); err != nil {
			return domain.GradingResult{}, err
		}
	}

	questions, err := s.questions.QuestionsForExam(ctx, examID)
	if err != nil {
		return domain.GradingResult{}, err
	}

	merged := mergeAnswers(draft.Answers, answers, questions)
	result := s.grader.Grade(ctx, questions, merged)

	locked := *draft
	locked.Answers = merged
	locked.Results = result.PerQuestion
	locked.Score = result.TotalScore
	locked.MaxScore = result.MaxScore
	locked.Terminated = terminated
	locked.SubmittedAt = &now

	won, err := s.store.FinalizeSubmission(ctx, locked)
	if err != nil {
		return domain.GradingResult{}, err
	}
	if !won {
		// A concurrent finalize beat us; hand back what it stored.
		rows, err := s.store.ListSubmissions(ctx, studentID, examID)
		if err != nil {
			return domain.GradingResult{}, err
		}
		for _, r := range rows {
			if r.AttemptNo == locked.AttemptNo && r.Finalized() {
				return storedResult(r), nil
			}
		}
		return domain.GradingResult{}, domain.ErrSubmissionNotFound
	}

	go s.refreshLeaderboard()
	return result, nil
}

// RunCustom executes code once with student-provided stdin (the "run"
// button in the coding environment).
func (s *Service) RunCustom(ctx context.Context, language, code, stdin string) (sandbox.RunResult, error) {
	return s.runner.Run(ctx, language, code, stdin)
}

// RunCases executes code against the visible test cases of a question
// without persisting anything.
func (s *Service) RunCases(ctx context.Context, language, code string, cases []domain.TestCase) sandbox.Evaluation {
	return s.evaluator.Evaluate(ctx, language, code, cases)
}

func (s *Service) checkAttemptAccess(rows []domain.Submission, startingFresh bool) error {
	for _, r := range rows {
		if r.Terminated {
			return &domain.WindowError{Reason: "exam access revoked after termination"}
		}
	}
	finalizedAll := activeDraft(rows) == nil
	if len(rows) >= s.attemptLimit && (startingFresh || finalizedAll) {
		return &domain.WindowError{Reason: "maximum attempts reached"}
	}
	return nil
}

func (s *Service) refreshLeaderboard() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	entries, err := s.Leaderboard(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("leaderboard refresh failed: %v", err)
		}
		return
	}
	s.hub.Broadcast(entries)
}

func activeDraft(rows []domain.Submission) *domain.Submission {
	for i := range rows {
		if !rows[i].Finalized() {
			return &rows[i]
		}
	}
	return nil
}

func latestFinalized(rows []domain.Submission) *domain.Submission {
	var latest *domain.Submission
	for i := range rows {
		r := &rows[i]
		if !r.Finalized() {
			continue
		}
		if latest == nil || r.SubmittedAt.After(*latest.SubmittedAt) {
			latest = r
		}
	}
	return latest
}

func storedResult(sub domain.Submission) domain.GradingResult {
	return domain.GradingResult{
		PerQuestion: sub.Results,
		TotalScore:  sub.Score,
		MaxScore:    sub.MaxScore,
	}
}

// mergeAnswers overlays the final payload on top of autosaved answers and
// drops keys that don't belong to the exam's question set.
func mergeAnswers(saved, final map[string]domain.Answer, questions []domain.Question) map[string]domain.Answer {
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}

	merged := make(map[string]domain.Answer, len(saved)+len(final))
	for id, a := range saved {
		if _, ok := known[id]; ok {
			merged[id] = a
		}
	}
	for id, a := range final {
		if _, ok := known[id]; ok {
			merged[id] = a
		}
	}
	return merged
}

// sanitizeQuestions strips answer keys, explanations and hidden test data
// before questions are handed to a student.
func sanitizeQuestions(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.MCQ != nil {
			mcq := *q.MCQ
			mcq.CorrectAnswer = ""
			mcq.Explanation = ""
			q.MCQ = &mcq
		}
		if q.Coding != nil {
			coding := *q.Coding
			var visible []domain.TestCase
			for _, tc := range coding.TestCases {
				if !tc.Hidden {
					visible = append(visible, tc)
				}
			}
			coding.TestCases = visible
			q.Coding = &coding
		}
		out = append(out, q)
	}
	return out
}
