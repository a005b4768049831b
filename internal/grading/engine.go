// Package grading scores a student's raw answers against an exam's
// question set. Grading is pure: persistence happens in the caller.
package grading

import (
	"context"
	"math"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/sandbox"
)

// CodeEvaluator runs a coding answer against test cases. Implementations
// must fail closed per case instead of returning an error for the batch.
type CodeEvaluator interface {
	Evaluate(ctx context.Context, language, code string, cases []domain.TestCase) sandbox.Evaluation
}

// Engine grades submissions.
type Engine struct {
	evaluator CodeEvaluator
}

func NewEngine(evaluator CodeEvaluator) *Engine {
	return &Engine{evaluator: evaluator}
}

// Grade computes per-question and total scores. MaxScore counts every
// question's marks whether answered or not. TEXT questions are recorded as
// pending and contribute zero; they are reviewed outside this pipeline.
func (e *Engine) Grade(ctx context.Context, questions []domain.Question, answers map[string]domain.Answer) domain.GradingResult {
	result := domain.GradingResult{
		PerQuestion: make(map[string]domain.GradedAnswer, len(questions)),
	}

	for _, q := range questions {
		marks := q.EffectiveMarks()
		result.MaxScore += marks

		graded := domain.GradedAnswer{
			QuestionID: q.ID,
			Type:       q.Type,
			MaxScore:   marks,
		}
		answer, answered := answers[q.ID]

		switch q.Type {
		case domain.QuestionMCQ:
			if answered && q.MCQ != nil && answer.Text == q.MCQ.CorrectAnswer {
				graded.Correct = true
				graded.Score = marks
			}
		case domain.QuestionText:
			if answered && !answer.IsEmpty() {
				graded.Pending = true
			}
		case domain.QuestionCoding:
			graded = e.gradeCoding(ctx, q, answer, answered, graded)
		}

		result.PerQuestion[q.ID] = graded
		result.TotalScore += graded.Score
	}

	result.TotalScore = math.Round(result.TotalScore*100) / 100
	return result
}

func (e *Engine) gradeCoding(ctx context.Context, q domain.Question, answer domain.Answer, answered bool, graded domain.GradedAnswer) domain.GradedAnswer {
	if !answered || answer.IsEmpty() {
		return graded
	}
	if q.Coding == nil || len(q.Coding.TestCases) == 0 {
		// No test cases defined: any non-empty submission earns full marks.
		graded.Score = graded.MaxScore
		return graded
	}
	if e.evaluator == nil {
		// Sandbox not wired: fail closed, keep grading the rest.
		graded.Total = len(q.Coding.TestCases)
		return graded
	}

	eval := e.evaluator.Evaluate(ctx, answer.Language, answer.Code, q.Coding.TestCases)
	graded.Passed = eval.Passed
	graded.Total = eval.Total
	graded.Score = eval.Score(graded.MaxScore)
	return graded
}
