package sandbox

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"placement-prep-service/internal/domain"
)

// CaseResult is the outcome of one test case. A remote failure or timeout
// marks the case failed rather than erroring the batch.
type CaseResult struct {
	Passed   bool   `json:"passed"`
	Hidden   bool   `json:"hidden"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

// Evaluation aggregates per-case results for one coding answer.
type Evaluation struct {
	Passed int          `json:"passed"`
	Total  int          `json:"total"`
	Cases  []CaseResult `json:"cases"`
}

// Score converts the pass ratio into awarded marks, rounded to 2 decimals.
func (e Evaluation) Score(marks float64) float64 {
	if e.Total == 0 {
		return 0
	}
	return math.Round(float64(e.Passed)/float64(e.Total)*marks*100) / 100
}

// Evaluator runs a code answer against every test case of a question.
type Evaluator struct {
	runner      Runner
	caseTimeout time.Duration
	concurrency int
}

// NewEvaluator bounds each case by caseTimeout and runs at most
// concurrency cases in flight at once.
func NewEvaluator(runner Runner, caseTimeout time.Duration, concurrency int) *Evaluator {
	if caseTimeout <= 0 {
		caseTimeout = 5 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Evaluator{runner: runner, caseTimeout: caseTimeout, concurrency: concurrency}
}

// Evaluate runs code against all cases and always returns exactly
// len(cases) results. Individual remote failures fail that case closed;
// the batch never aborts partway.
func (e *Evaluator) Evaluate(ctx context.Context, language, code string, cases []domain.TestCase) Evaluation {
	results := make([]CaseResult, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, tc := range cases {
		i, tc := i, tc
		g.Go(func() error {
			results[i] = e.runCase(ctx, language, code, tc)
			return nil
		})
	}
	// Workers never return errors; failures land in their result slot.
	_ = g.Wait()

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return Evaluation{Passed: passed, Total: len(cases), Cases: results}
}

func (e *Evaluator) runCase(ctx context.Context, language, code string, tc domain.TestCase) CaseResult {
	caseCtx, cancel := context.WithTimeout(ctx, e.caseTimeout)
	defer cancel()

	run, err := e.runner.Run(caseCtx, language, code, tc.Input)
	if err != nil {
		return CaseResult{Passed: false, Hidden: tc.Hidden, Error: err.Error()}
	}

	result := CaseResult{
		Hidden:   tc.Hidden,
		Stdout:   run.Stdout,
		Stderr:   run.Stderr,
		ExitCode: run.ExitCode,
	}
	if run.ExitCode != 0 {
		return result
	}
	// Exact match after trimming; whitespace-sensitive outputs are a known limitation.
	result.Passed = strings.TrimSpace(run.Stdout) == strings.TrimSpace(tc.ExpectedOutput)
	return result
}
