package app

import (
	"context"
	"errors"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/leaderboard"
	"placement-prep-service/internal/regnum"
)

// IsAssigned resolves whether a student should see an exam. Open exams are
// visible to everyone. Restricted exams delegate to the creator's range
// assignment; an absent or unparseable assignment falls back to the
// configured default policy.
func (s *Service) IsAssigned(ctx context.Context, exam domain.Exam, student domain.User) (bool, error) {
	if exam.Access != domain.AccessRestricted {
		return true, nil
	}

	creator, err := s.store.GetUser(ctx, exam.CreatedBy)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return s.failOpen, nil
		}
		return false, err
	}
	return s.assignmentCovers(creator, student), nil
}

// AvailableExams lists the exams assigned to a student, ordered as stored.
func (s *Service) AvailableExams(ctx context.Context, studentID string) ([]domain.Exam, error) {
	student, err := s.store.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	exams, err := s.store.ListExams(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, err
	}

	visible := s.visibilityFunc(staff)
	out := make([]domain.Exam, 0, len(exams))
	for _, exam := range exams {
		if visible(exam, student) {
			out = append(out, exam)
		}
	}
	return out, nil
}

// visibilityFunc builds the pure membership test the ranking engine uses,
// from a pre-fetched staff snapshot so the replay never hits the store.
func (s *Service) visibilityFunc(staff []domain.User) leaderboard.VisibilityFunc {
	byID := make(map[string]domain.User, len(staff))
	for _, u := range staff {
		byID[u.ID] = u
	}
	return func(exam domain.Exam, student domain.User) bool {
		if exam.Access != domain.AccessRestricted {
			return true
		}
		creator, ok := byID[exam.CreatedBy]
		if !ok {
			return s.failOpen
		}
		return s.assignmentCovers(creator, student)
	}
}

func (s *Service) assignmentCovers(creator, student domain.User) bool {
	assignment, ok := regnum.Parse(creator.Batch)
	if !ok {
		return s.failOpen
	}
	return assignment.Contains(student.RegistrationNumber)
}
