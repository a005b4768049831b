package app

import (
	"context"

	"github.com/google/uuid"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/examtext"
)

// CreateExam validates and stores an exam with its question set. The
// question shape is frozen from here on; grading assumes it never changes
// during the active window.
func (s *Service) CreateExam(ctx context.Context, creatorID string, exam domain.Exam, questions []domain.Question) (domain.Exam, error) {
	if exam.Title == "" {
		return domain.Exam{}, &domain.ValidationError{Field: "title", Reason: "title is required"}
	}
	if !exam.EndTime.After(exam.StartTime) {
		return domain.Exam{}, &domain.ValidationError{Field: "endTime", Reason: "end time must be after start time"}
	}
	if exam.Duration <= 0 {
		return domain.Exam{}, &domain.ValidationError{Field: "duration", Reason: "duration must be positive"}
	}

	exam.ID = uuid.NewString()
	exam.CreatedBy = creatorID
	exam.CreatedAt = s.now()
	if exam.Access == "" {
		exam.Access = domain.AccessOpen
	}

	for i := range questions {
		q := &questions[i]
		if q.Marks < 0 {
			return domain.Exam{}, &domain.ValidationError{Field: "marks", Reason: "marks must not be negative"}
		}
		if q.Type == domain.QuestionMCQ {
			if q.MCQ == nil || len(q.MCQ.Options) < 2 {
				return domain.Exam{}, &domain.ValidationError{Field: "options", Reason: "MCQ questions need at least two options"}
			}
			if !containsString(q.MCQ.Options, q.MCQ.CorrectAnswer) {
				return domain.Exam{}, &domain.ValidationError{Field: "correctAnswer", Reason: "correct answer must be one of the options"}
			}
		}
		q.ID = uuid.NewString()
		q.ExamID = exam.ID
	}

	if err := s.store.CreateExam(ctx, exam, questions); err != nil {
		return domain.Exam{}, err
	}
	return exam, nil
}

// ImportExamText creates an exam from the extracted-PDF text payload.
func (s *Service) ImportExamText(ctx context.Context, creatorID, text string, access domain.AccessPolicy) (domain.Exam, error) {
	parsed, err := examtext.Parse(text)
	if err != nil {
		return domain.Exam{}, err
	}
	exam := domain.Exam{
		Title:     parsed.Title,
		Duration:  parsed.Duration,
		StartTime: parsed.StartTime,
		EndTime:   parsed.EndTime,
		Access:    access,
	}
	return s.CreateExam(ctx, creatorID, exam, parsed.Questions)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
