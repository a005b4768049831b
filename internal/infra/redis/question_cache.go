package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"placement-prep-service/internal/domain"
)

// QuestionLoader fetches an exam's question set from a backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, examID string) ([]domain.Question, error)
}

// QuestionCache caches full question sets in Redis and falls back to a
// loader on cache miss. The set is stored as one JSON blob:
// SET exam:{examID}:questions {json}
// Cached entries carry the answer keys; they are stripped at the service
// layer, never here.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) QuestionsForExam(ctx context.Context, examID string) ([]domain.Question, error) {
	key := c.questionsKey(examID)

	if cached, err := c.client.Get(ctx, key).Result(); err == nil {
		if questions, ok := decodeQuestions(cached); ok {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.Get(ctx, key).Result(); err == nil {
			if questions, ok := decodeQuestions(cached); ok {
				return questions, nil
			}
		}

		questions, err := c.loader.ListQuestions(ctx, examID)
		if err != nil {
			return nil, err
		}

		if encoded, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, key, encoded, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached set, e.g. after an exam is re-imported.
func (c *QuestionCache) Invalidate(ctx context.Context, examID string) error {
	return c.client.Del(ctx, c.questionsKey(examID)).Err()
}

func (c *QuestionCache) questionsKey(examID string) string {
	return "exam:" + examID + ":questions"
}

func decodeQuestions(payload string) ([]domain.Question, bool) {
	var questions []domain.Question
	if err := json.Unmarshal([]byte(payload), &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
