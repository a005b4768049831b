package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/infra/memory"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	store := memory.NewStore()
	if err := store.CreateExam(context.Background(), domain.Exam{ID: "e1"}, sampleQuestions()); err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	loader := &countingLoader{QuestionLoader: store}
	cache := NewQuestionCache(client, loader, time.Minute)

	questions, err := cache.QuestionsForExam(context.Background(), "e1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	questions, err = cache.QuestionsForExam(context.Background(), "e1")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	// The tagged payloads must survive the round trip intact.
	if questions[0].MCQ == nil || questions[0].MCQ.CorrectAnswer != "4" {
		t.Fatalf("MCQ payload lost in cache: %+v", questions[0])
	}
	if questions[1].Coding == nil || len(questions[1].Coding.TestCases) != 2 {
		t.Fatalf("coding payload lost in cache: %+v", questions[1])
	}
}

func TestQuestionCacheInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	_ = store.CreateExam(context.Background(), domain.Exam{ID: "e1"}, sampleQuestions())
	loader := &countingLoader{QuestionLoader: store}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	_, _ = cache.QuestionsForExam(context.Background(), "e1")
	if err := cache.Invalidate(context.Background(), "e1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cache.QuestionsForExam(context.Background(), "e1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.ListQuestions(ctx, examID)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "q1", ExamID: "e1", Type: domain.QuestionMCQ, Marks: 1,
			MCQ: &domain.MCQPayload{Options: []string{"3", "4"}, CorrectAnswer: "4"},
		},
		{
			ID: "q2", ExamID: "e1", Type: domain.QuestionCoding, Marks: 5,
			Coding: &domain.CodingPayload{TestCases: []domain.TestCase{
				{Input: "1", ExpectedOutput: "1"},
				{Input: "2", ExpectedOutput: "2", Hidden: true},
			}},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
