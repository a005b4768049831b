package app

import (
	"context"

	"placement-prep-service/internal/domain"
)

// Store abstracts the relational persistence layer (Postgres in production,
// in-memory for tests and demo mode).
type Store interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListStudents(ctx context.Context) ([]domain.User, error)
	ListStaff(ctx context.Context) ([]domain.User, error)
	// UpdateStaffAssignment writes the encoded range onto the staff profile.
	UpdateStaffAssignment(ctx context.Context, staffID, encoded string) error

	CreateExam(ctx context.Context, exam domain.Exam, questions []domain.Question) error
	GetExam(ctx context.Context, id string) (domain.Exam, error)
	ListExams(ctx context.Context) ([]domain.Exam, error)
	ListQuestions(ctx context.Context, examID string) ([]domain.Question, error)
	ListAllQuestions(ctx context.Context) ([]domain.Question, error)

	// ListSubmissions returns every attempt row for the (student, exam) pair.
	ListSubmissions(ctx context.Context, studentID, examID string) ([]domain.Submission, error)
	ListAllSubmissions(ctx context.Context) ([]domain.Submission, error)
	// UpsertDraft inserts or updates the row keyed (student, exam, attempt).
	UpsertDraft(ctx context.Context, sub domain.Submission) error
	// FinalizeSubmission is a conditional update on the row keyed
	// (student, exam, attempt): it locks the row only if submitted_at is
	// still unset and reports whether it won the write.
	FinalizeSubmission(ctx context.Context, sub domain.Submission) (bool, error)
}

// QuestionSource serves an exam's question set, usually through a cache in
// front of the store.
type QuestionSource interface {
	QuestionsForExam(ctx context.Context, examID string) ([]domain.Question, error)
}
