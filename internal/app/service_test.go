package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"placement-prep-service/internal/app"
	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/grading"
	"placement-prep-service/internal/infra/memory"
	"placement-prep-service/internal/leaderboard"
	"placement-prep-service/internal/sandbox"
)

var now = time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

// passFirstRunner passes a test case when the code mentions its expected
// output, mimicking a deterministic sandbox.
type passFirstRunner struct{}

func (passFirstRunner) Run(_ context.Context, _, code, stdin string) (sandbox.RunResult, error) {
	if strings.Contains(code, "pass:"+stdin) {
		return sandbox.RunResult{Stdout: "ok\n"}, nil
	}
	return sandbox.RunResult{Stdout: "nope\n"}, nil
}

type fixture struct {
	service *app.Service
	store   *memory.Store
	examID  string
}

func newFixture(t *testing.T, failOpen bool) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	users := []domain.User{
		{ID: "staff-1", Name: "Prof Rao", Role: domain.RoleStaff, Batch: "RANGE:IT001:IT010|IT042"},
		{ID: "staff-2", Name: "Prof Iyer", Role: domain.RoleStaff},
		{ID: "s1", Name: "Alice Kumar", Role: domain.RoleStudent, RegistrationNumber: "IT001", Batch: "2023"},
		{ID: "s2", Name: "Bob Singh", Role: domain.RoleStudent, RegistrationNumber: "IT050", Batch: "2023"},
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	exam := domain.Exam{
		ID: "e1", Title: "Weekly Assessment", Duration: 120,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
		CreatedBy: "staff-1", Access: domain.AccessOpen,
	}
	questions := []domain.Question{
		{ID: "q1", ExamID: "e1", Type: domain.QuestionMCQ, Marks: 1,
			MCQ: &domain.MCQPayload{Options: []string{"3", "4"}, CorrectAnswer: "4"}},
		{ID: "q2", ExamID: "e1", Type: domain.QuestionMCQ, Marks: 1,
			MCQ: &domain.MCQPayload{Options: []string{"yes", "no"}, CorrectAnswer: "yes"}},
		{ID: "q3", ExamID: "e1", Type: domain.QuestionCoding, Marks: 5,
			Coding: &domain.CodingPayload{TestCases: []domain.TestCase{
				{Input: "one", ExpectedOutput: "ok"},
				{Input: "two", ExpectedOutput: "ok", Hidden: true},
			}}},
	}
	if err := store.CreateExam(ctx, exam, questions); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	runner := passFirstRunner{}
	evaluator := sandbox.NewEvaluator(runner, time.Second, 2)
	service := app.NewService(
		store,
		memory.NewQuestionCache(store, time.Minute),
		grading.NewEngine(evaluator),
		runner,
		evaluator,
		leaderboard.NewEngineWithClock(leaderboard.DefaultWeights(), func() time.Time { return now }),
		app.Config{FailOpenVisibility: failOpen, Clock: func() time.Time { return now }},
	)
	return &fixture{service: service, store: store, examID: "e1"}
}

func workedAnswers() map[string]domain.Answer {
	return map[string]domain.Answer{
		"q1": {Text: "4"},
		"q2": {Text: "no"},
		"q3": {Code: "pass:one", Language: "python"},
	}
}

func TestFinalizeGradesWorkedExample(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	result, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.TotalScore != 3.5 || result.MaxScore != 7 {
		t.Fatalf("expected 3.5/7, got %v/%v", result.TotalScore, result.MaxScore)
	}
	if result.PerQuestion["q3"].Passed != 1 || result.PerQuestion["q3"].Total != 2 {
		t.Fatalf("unexpected coding breakdown %+v", result.PerQuestion["q3"])
	}

	rows, _ := f.store.ListSubmissions(ctx, "s1", f.examID)
	if len(rows) != 1 || !rows[0].Finalized() || rows[0].Score != 3.5 {
		t.Fatalf("expected one finalized row with score 3.5, got %+v", rows)
	}
}

func TestFinalizeTwiceDoesNotRegrade(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// Forced submit arriving after the normal submit completed.
	second, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if second.TotalScore != first.TotalScore {
		t.Fatalf("stored score changed: %v -> %v", first.TotalScore, second.TotalScore)
	}

	rows, _ := f.store.ListSubmissions(ctx, "s1", f.examID)
	if len(rows) != 1 {
		t.Fatalf("duplicate finalize created a new attempt: %d rows", len(rows))
	}
}

func TestFinalizeOutsideWindowRejected(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	late := domain.Exam{
		ID: "e2", Title: "Closed", Duration: 60,
		StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-2 * time.Hour),
		CreatedBy: "staff-1", Access: domain.AccessOpen,
	}
	_ = f.store.CreateExam(ctx, late, nil)

	_, err := f.service.Finalize(ctx, "s1", "e2", nil, false)
	var werr *domain.WindowError
	if !errors.As(err, &werr) {
		t.Fatalf("expected window error, got %v", err)
	}

	rows, _ := f.store.ListSubmissions(ctx, "s1", "e2")
	if len(rows) != 0 {
		t.Fatalf("rejection wrote rows: %+v", rows)
	}
}

func TestAttemptCapEnforced(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false); err != nil {
		t.Fatalf("attempt 1: %v", err)
	}

	// Second attempt starts by autosaving, then submits.
	if err := f.service.Autosave(ctx, "s1", f.examID, "q1", domain.Answer{Text: "4"}); err != nil {
		t.Fatalf("autosave attempt 2: %v", err)
	}
	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false); err != nil {
		t.Fatalf("attempt 2: %v", err)
	}

	// The cap is 2: a third attempt cannot start.
	var werr *domain.WindowError
	if err := f.service.Autosave(ctx, "s1", f.examID, "q1", domain.Answer{Text: "4"}); !errors.As(err, &werr) {
		t.Fatalf("expected attempt cap on autosave, got %v", err)
	}
	if _, _, err := f.service.ExamForStudent(ctx, f.examID, "s1"); !errors.As(err, &werr) {
		t.Fatalf("expected attempt cap on load, got %v", err)
	}
}

func TestTerminationBarsRetake(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), true); err != nil {
		t.Fatalf("terminated finalize: %v", err)
	}

	var werr *domain.WindowError
	if _, _, err := f.service.ExamForStudent(ctx, f.examID, "s1"); !errors.As(err, &werr) {
		t.Fatalf("expected termination bar on load, got %v", err)
	}
	if err := f.service.Autosave(ctx, "s1", f.examID, "q1", domain.Answer{Text: "4"}); !errors.As(err, &werr) {
		t.Fatalf("expected termination bar on autosave, got %v", err)
	}
	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false); !errors.As(err, &werr) {
		t.Fatalf("expected termination bar on finalize, got %v", err)
	}
}

func TestAutosavedAnswersMergeIntoFinalize(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.service.Autosave(ctx, "s1", f.examID, "q1", domain.Answer{Text: "4"}); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if err := f.service.Autosave(ctx, "s1", f.examID, "unknown-question", domain.Answer{Text: "x"}); err != nil {
		t.Fatalf("autosave unknown: %v", err)
	}

	result, err := f.service.Finalize(ctx, "s1", f.examID, map[string]domain.Answer{
		"q3": {Code: "pass:one pass:two", Language: "python"},
	}, false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// Autosaved q1 still counts; the unknown key was dropped.
	if result.TotalScore != 6 {
		t.Fatalf("expected 1 + 5 = 6, got %v", result.TotalScore)
	}
	rows, _ := f.store.ListSubmissions(ctx, "s1", f.examID)
	if _, ok := rows[0].Answers["unknown-question"]; ok {
		t.Fatalf("unknown question id persisted")
	}
}

func TestExamForStudentHidesAnswerKeys(t *testing.T) {
	f := newFixture(t, true)

	_, questions, err := f.service.ExamForStudent(context.Background(), f.examID, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, q := range questions {
		if q.MCQ != nil && (q.MCQ.CorrectAnswer != "" || q.MCQ.Explanation != "") {
			t.Fatalf("answer key leaked: %+v", q.MCQ)
		}
		if q.Coding != nil {
			for _, tc := range q.Coding.TestCases {
				if tc.Hidden {
					t.Fatalf("hidden test case leaked: %+v", tc)
				}
			}
		}
	}
}

func TestAssignStaffRangeRejectsOverlap(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// staff-1 already holds RANGE:IT001:IT010|IT042.
	err := f.service.AssignStaffRange(ctx, "staff-2", "IT005", "IT020", nil)
	var cerr *domain.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if cerr.Entity != "Prof Rao" {
		t.Fatalf("conflict should cite the holding staff, got %+v", cerr)
	}

	// Extras collide with the existing extras too.
	err = f.service.AssignStaffRange(ctx, "staff-2", "", "", []string{"IT042"})
	if !errors.As(err, &cerr) {
		t.Fatalf("expected extras conflict, got %v", err)
	}

	// A disjoint claim goes through and lands on the profile.
	if err := f.service.AssignStaffRange(ctx, "staff-2", "IT011", "IT020", []string{"IT050"}); err != nil {
		t.Fatalf("disjoint assign: %v", err)
	}
	staff, _ := f.store.GetUser(ctx, "staff-2")
	if staff.Batch != "RANGE:IT011:IT020|IT050" {
		t.Fatalf("unexpected stored encoding %q", staff.Batch)
	}
}

func TestAssignStaffRangeValidation(t *testing.T) {
	f := newFixture(t, true)

	err := f.service.AssignStaffRange(context.Background(), "staff-2", "IT030", "IT011", nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
}

func TestRestrictedExamVisibility(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	restricted := domain.Exam{
		ID: "e3", Title: "Batch Only", Duration: 60,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
		CreatedBy: "staff-1", Access: domain.AccessRestricted,
	}
	_ = f.store.CreateExam(ctx, restricted, nil)

	// s1 (IT001) is inside staff-1's range, s2 (IT050) is not.
	visible, err := f.service.AvailableExams(ctx, "s1")
	if err != nil {
		t.Fatalf("list s1: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected both exams for s1, got %d", len(visible))
	}

	visible, err = f.service.AvailableExams(ctx, "s2")
	if err != nil {
		t.Fatalf("list s2: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != "e1" {
		t.Fatalf("expected only the open exam for s2, got %+v", visible)
	}

	var werr *domain.WindowError
	if _, _, err := f.service.ExamForStudent(ctx, "e3", "s2"); !errors.As(err, &werr) {
		t.Fatalf("expected access rejection for s2, got %v", err)
	}
}

func TestRestrictedExamFailOpenPolicy(t *testing.T) {
	ctx := context.Background()

	// Creator staff-2 has no parseable assignment; the configured default decides.
	addExam := func(f *fixture) {
		exam := domain.Exam{
			ID: "e4", Title: "Orphaned", Duration: 60,
			StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
			CreatedBy: "staff-2", Access: domain.AccessRestricted,
		}
		_ = f.store.CreateExam(ctx, exam, nil)
	}

	open := newFixture(t, true)
	addExam(open)
	visible, _ := open.service.AvailableExams(ctx, "s2")
	if len(visible) != 2 {
		t.Fatalf("fail-open should show the orphaned exam, got %d", len(visible))
	}

	closed := newFixture(t, false)
	addExam(closed)
	visible, _ = closed.service.AvailableExams(ctx, "s2")
	if len(visible) != 1 {
		t.Fatalf("fail-closed should hide the orphaned exam, got %d", len(visible))
	}
}

func TestLeaderboardReflectsFinalizedSubmissions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	entries, err := f.service.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both students ranked, got %d", len(entries))
	}
	if entries[0].StudentID != "s1" || entries[0].Rank != 1 {
		t.Fatalf("expected s1 leading, got %+v", entries[0])
	}
	if entries[0].Score <= 0 {
		t.Fatalf("expected positive score, got %v", entries[0].Score)
	}
	if entries[1].Score != 0 || entries[1].Rank != 2 {
		t.Fatalf("expected idle student at rank 2 with 0, got %+v", entries[1])
	}
}

func TestLeaderboardBroadcastAfterFinalize(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	ch, cancel := f.service.SubscribeLeaderboard()
	defer cancel()

	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	select {
	case entries := <-ch:
		if len(entries) == 0 {
			t.Fatalf("empty broadcast")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no leaderboard broadcast after finalize")
	}
}

func TestClassReportForStaff(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if _, err := f.service.Finalize(ctx, "s1", f.examID, workedAnswers(), false); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	report, err := f.service.ClassReportForStaff(ctx, "staff-1")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	// Only s1 (IT001) falls in staff-1's range.
	if report.StudentCount != 1 || len(report.Students) != 1 {
		t.Fatalf("expected one assigned student, got %+v", report)
	}
	if report.Students[0].AverageScore != 3.5 {
		t.Fatalf("expected avg 3.5, got %+v", report.Students[0])
	}
	if report.Students[0].SubmissionCount != 1 {
		t.Fatalf("expected one submission, got %+v", report.Students[0])
	}
}

func TestImportExamText(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	text := `===== EXAM =====
Title: Imported Drill
Start: 2025-03-09 09:00
End: 2025-03-09 11:00
Duration: 60

===== MCQ =====
Question: Pick the answer.
Options: right; wrong
Answer: right
`
	exam, err := f.service.ImportExamText(ctx, "staff-1", text, domain.AccessRestricted)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if exam.Title != "Imported Drill" || exam.Access != domain.AccessRestricted {
		t.Fatalf("unexpected exam %+v", exam)
	}

	stored, err := f.store.ListQuestions(ctx, exam.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected stored question, got %v err=%v", stored, err)
	}
	if stored[0].ExamID != exam.ID || stored[0].ID == "" {
		t.Fatalf("question not linked to exam: %+v", stored[0])
	}
}

func TestRunCustomAndRunCases(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	out, err := f.service.RunCustom(ctx, "python", "pass:custom", "custom")
	if err != nil {
		t.Fatalf("run custom: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "ok" {
		t.Fatalf("unexpected stdout %q", out.Stdout)
	}

	eval := f.service.RunCases(ctx, "python", "pass:one", []domain.TestCase{
		{Input: "one", ExpectedOutput: "ok"},
		{Input: "two", ExpectedOutput: "ok"},
	})
	if eval.Passed != 1 || eval.Total != 2 {
		t.Fatalf("unexpected evaluation %+v", eval)
	}
}
