package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"placement-prep-service/internal/domain"
)

// Store persists users, exams, questions and submissions in Postgres.
// Question payloads and answer maps are kept as JSONB; the variant shape
// lives in the domain types, the database only sees opaque documents.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, role, email, registration_number, department, batch, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Name, user.Role, user.Email, user.RegistrationNumber,
		user.Department, user.Batch, user.IsActive, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, role, email, registration_number, department, batch, is_active, created_at
		FROM users WHERE id=$1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListStudents(ctx context.Context) ([]domain.User, error) {
	return s.listByRole(ctx, domain.RoleStudent)
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.User, error) {
	return s.listByRole(ctx, domain.RoleStaff)
}

func (s *Store) listByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, role, email, registration_number, department, batch, is_active, created_at
		FROM users WHERE role=$1 ORDER BY id`, role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateStaffAssignment(ctx context.Context, staffID, encoded string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET batch=$2 WHERE id=$1 AND role=$3`,
		staffID, encoded, domain.RoleStaff)
	if err != nil {
		return fmt.Errorf("update staff assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateExam(ctx context.Context, exam domain.Exam, questions []domain.Question) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO exams (id, title, duration, start_time, end_time, created_by, access, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exam.ID, exam.Title, exam.Duration, exam.StartTime, exam.EndTime,
		exam.CreatedBy, exam.Access, exam.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	for i, q := range questions {
		payload, err := questionPayload(q)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO questions (id, exam_id, type, text, marks, payload, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			q.ID, exam.ID, q.Type, q.Text, q.Marks, payload, i)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	var exam domain.Exam
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, duration, start_time, end_time, created_by, access, created_at
		FROM exams WHERE id=$1`, id).
		Scan(&exam.ID, &exam.Title, &exam.Duration, &exam.StartTime, &exam.EndTime,
			&exam.CreatedBy, &exam.Access, &exam.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *Store) ListExams(ctx context.Context) ([]domain.Exam, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, duration, start_time, end_time, created_by, access, created_at
		FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	var exams []domain.Exam
	for rows.Next() {
		var exam domain.Exam
		if err := rows.Scan(&exam.ID, &exam.Title, &exam.Duration, &exam.StartTime, &exam.EndTime,
			&exam.CreatedBy, &exam.Access, &exam.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, exam)
	}
	return exams, rows.Err()
}

func (s *Store) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	return s.queryQuestions(ctx, `
		SELECT id, exam_id, type, text, marks, payload
		FROM questions WHERE exam_id=$1 ORDER BY position`, examID)
}

func (s *Store) ListAllQuestions(ctx context.Context) ([]domain.Question, error) {
	return s.queryQuestions(ctx, `
		SELECT id, exam_id, type, text, marks, payload
		FROM questions ORDER BY exam_id, position`)
}

func (s *Store) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var payload []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Marks, &payload); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := applyQuestionPayload(&q, payload); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) ListSubmissions(ctx context.Context, studentID, examID string) ([]domain.Submission, error) {
	return s.querySubmissions(ctx, `
		SELECT id, student_id, exam_id, attempt_no, answers, results, score, max_score, terminated, created_at, submitted_at
		FROM submissions WHERE student_id=$1 AND exam_id=$2 ORDER BY attempt_no`, studentID, examID)
}

func (s *Store) ListAllSubmissions(ctx context.Context) ([]domain.Submission, error) {
	return s.querySubmissions(ctx, `
		SELECT id, student_id, exam_id, attempt_no, answers, results, score, max_score, terminated, created_at, submitted_at
		FROM submissions ORDER BY created_at, id`)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...interface{}) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpsertDraft inserts or replaces the draft row keyed by
// (student_id, exam_id, attempt_no). Finalized rows are never touched: the
// update clause is guarded on submitted_at still being unset.
func (s *Store) UpsertDraft(ctx context.Context, sub domain.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (id, student_id, exam_id, attempt_no, answers, score, max_score, terminated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id, exam_id, attempt_no) DO UPDATE
		SET answers = EXCLUDED.answers
		WHERE submissions.submitted_at IS NULL`,
		sub.ID, sub.StudentID, sub.ExamID, sub.AttemptNo, answers,
		sub.Score, sub.MaxScore, sub.Terminated, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// FinalizeSubmission locks the attempt with a compare-and-set on
// submitted_at. The row is matched by its (student, exam, attempt) key
// rather than id: racing first submits mint different generated ids but
// the upsert collapses them to one row. The first writer wins; everyone
// else gets won=false and reads back the stored row.
func (s *Store) FinalizeSubmission(ctx context.Context, sub domain.Submission) (bool, error) {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return false, fmt.Errorf("marshal answers: %w", err)
	}
	results, err := json.Marshal(sub.Results)
	if err != nil {
		return false, fmt.Errorf("marshal results: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET answers=$4, results=$5, score=$6, max_score=$7, terminated=$8, submitted_at=$9
		WHERE student_id=$1 AND exam_id=$2 AND attempt_no=$3 AND submitted_at IS NULL`,
		sub.StudentID, sub.ExamID, sub.AttemptNo,
		answers, results, sub.Score, sub.MaxScore, sub.Terminated, sub.SubmittedAt)
	if err != nil {
		return false, fmt.Errorf("finalize submission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Name, &user.Role, &user.Email, &user.RegistrationNumber,
		&user.Department, &user.Batch, &user.IsActive, &user.CreatedAt)
	return user, err
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var sub domain.Submission
	var answers, results []byte
	err := row.Scan(&sub.ID, &sub.StudentID, &sub.ExamID, &sub.AttemptNo, &answers, &results,
		&sub.Score, &sub.MaxScore, &sub.Terminated, &sub.CreatedAt, &sub.SubmittedAt)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("scan submission: %w", err)
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &sub.Answers); err != nil {
			return domain.Submission{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &sub.Results); err != nil {
			return domain.Submission{}, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return sub, nil
}

// questionPayload serializes the variant-specific part of a question.
func questionPayload(q domain.Question) ([]byte, error) {
	switch q.Type {
	case domain.QuestionMCQ:
		payload, err := json.Marshal(q.MCQ)
		if err != nil {
			return nil, fmt.Errorf("marshal mcq payload: %w", err)
		}
		return payload, nil
	case domain.QuestionCoding:
		payload, err := json.Marshal(q.Coding)
		if err != nil {
			return nil, fmt.Errorf("marshal coding payload: %w", err)
		}
		return payload, nil
	default:
		return []byte("null"), nil
	}
}

func applyQuestionPayload(q *domain.Question, payload []byte) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	switch q.Type {
	case domain.QuestionMCQ:
		q.MCQ = &domain.MCQPayload{}
		if err := json.Unmarshal(payload, q.MCQ); err != nil {
			return fmt.Errorf("unmarshal mcq payload: %w", err)
		}
	case domain.QuestionCoding:
		q.Coding = &domain.CodingPayload{}
		if err := json.Unmarshal(payload, q.Coding); err != nil {
			return fmt.Errorf("unmarshal coding payload: %w", err)
		}
	}
	return nil
}
