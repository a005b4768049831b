// Package memory provides in-memory implementations of the persistence
// interfaces, used in tests and in demo mode when no Postgres is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"placement-prep-service/internal/domain"
)

// Store keeps all rows in process. Mutations copy values in and out, so
// callers never share memory with the store.
type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	exams       map[string]domain.Exam
	examOrder   []string
	questions   map[string][]domain.Question // by exam id
	submissions []domain.Submission
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]domain.User),
		exams:     make(map[string]domain.Exam),
		questions: make(map[string][]domain.Question),
	}
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) ListStudents(ctx context.Context) ([]domain.User, error) {
	return s.listByRole(domain.RoleStudent), nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.User, error) {
	return s.listByRole(domain.RoleStaff), nil
}

func (s *Store) listByRole(role domain.UserRole) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UpdateStaffAssignment(_ context.Context, staffID, encoded string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[staffID]
	if !ok || user.Role != domain.RoleStaff {
		return domain.ErrUserNotFound
	}
	user.Batch = encoded
	s.users[staffID] = user
	return nil
}

func (s *Store) CreateExam(_ context.Context, exam domain.Exam, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[exam.ID]; !ok {
		s.examOrder = append(s.examOrder, exam.ID)
	}
	s.exams[exam.ID] = exam
	s.questions[exam.ID] = append([]domain.Question(nil), questions...)
	return nil
}

func (s *Store) GetExam(_ context.Context, id string) (domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[id]
	if !ok {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return exam, nil
}

func (s *Store) ListExams(_ context.Context) ([]domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Exam, 0, len(s.examOrder))
	for _, id := range s.examOrder {
		out = append(out, s.exams[id])
	}
	return out, nil
}

func (s *Store) ListQuestions(_ context.Context, examID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Question(nil), s.questions[examID]...), nil
}

func (s *Store) ListAllQuestions(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, id := range s.examOrder {
		out = append(out, s.questions[id]...)
	}
	return out, nil
}

func (s *Store) ListSubmissions(_ context.Context, studentID, examID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, sub := range s.submissions {
		if sub.StudentID == studentID && sub.ExamID == examID {
			out = append(out, cloneSubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNo < out[j].AttemptNo })
	return out, nil
}

func (s *Store) ListAllSubmissions(_ context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, cloneSubmission(sub))
	}
	return out, nil
}

func (s *Store) UpsertDraft(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.submissions {
		if existing.StudentID == sub.StudentID && existing.ExamID == sub.ExamID && existing.AttemptNo == sub.AttemptNo {
			if existing.Finalized() {
				// Autosave racing a finalize loses; the locked row stands.
				return nil
			}
			s.submissions[i] = cloneSubmission(sub)
			return nil
		}
	}
	s.submissions = append(s.submissions, cloneSubmission(sub))
	return nil
}

// FinalizeSubmission matches the row by its (student, exam, attempt) key:
// two racing first submits mint different generated ids but collapse to
// one draft row, and the loser must still land on it.
func (s *Store) FinalizeSubmission(_ context.Context, sub domain.Submission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.submissions {
		if existing.StudentID != sub.StudentID || existing.ExamID != sub.ExamID || existing.AttemptNo != sub.AttemptNo {
			continue
		}
		if existing.Finalized() {
			return false, nil
		}
		locked := cloneSubmission(sub)
		// The stored row keeps its identity.
		locked.ID = existing.ID
		s.submissions[i] = locked
		return true, nil
	}
	return false, domain.ErrSubmissionNotFound
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	out := sub
	if sub.Answers != nil {
		out.Answers = make(map[string]domain.Answer, len(sub.Answers))
		for k, v := range sub.Answers {
			out.Answers[k] = v
		}
	}
	if sub.Results != nil {
		out.Results = make(map[string]domain.GradedAnswer, len(sub.Results))
		for k, v := range sub.Results {
			out.Results[k] = v
		}
	}
	if sub.SubmittedAt != nil {
		t := *sub.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}
