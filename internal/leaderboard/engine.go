// Package leaderboard replays every finalized submission through the
// ranking formula and derives the standings. Nothing here is persisted;
// each call recomputes from the snapshots it is given.
package leaderboard

import (
	"math"
	"sort"
	"strings"
	"time"

	"placement-prep-service/internal/domain"
)

// Weights parameterizes the ranking formula. Defaults reproduce the
// production constants exactly.
type Weights struct {
	MarkWeight               float64 `yaml:"markWeight"`
	NegativeMarkWeight       float64 `yaml:"negativeMarkWeight"`
	ScoreWeight              float64 `yaml:"scoreWeight"`
	AccuracyWeight           float64 `yaml:"accuracyWeight"`
	ViolationPenalty         float64 `yaml:"violationPenalty"`
	ViolationAccuracyPenalty float64 `yaml:"violationAccuracyPenalty"`
}

// DefaultWeights returns the current formula constants: 1 mark per correct
// answer, no negative marking, 70/30 score-accuracy blend.
func DefaultWeights() Weights {
	return Weights{
		MarkWeight:               1,
		NegativeMarkWeight:       0,
		ScoreWeight:              0.7,
		AccuracyWeight:           0.3,
		ViolationPenalty:         5,
		ViolationAccuracyPenalty: 2,
	}
}

// Snapshot is the full dataset a ranking pass replays.
type Snapshot struct {
	Students    []domain.User
	Submissions []domain.Submission
	Questions   []domain.Question
	Exams       []domain.Exam
}

// VisibilityFunc reports whether an exam is assigned to a student. The
// streak walk only counts exams the student was expected to take.
type VisibilityFunc func(exam domain.Exam, student domain.User) bool

// Engine computes leaderboards. Safe for concurrent use.
type Engine struct {
	weights Weights
	today   func() time.Time
}

func NewEngine(weights Weights) *Engine {
	return &Engine{weights: weights, today: time.Now}
}

// NewEngineWithClock fixes "today" for deterministic streak tests.
func NewEngineWithClock(weights Weights, today func() time.Time) *Engine {
	return &Engine{weights: weights, today: today}
}

// Compute ranks every student. Missing joins (deleted exams, absent answer
// keys) degrade that submission's contribution instead of aborting the
// pass; ties keep the input order of the students slice.
func (e *Engine) Compute(snap Snapshot, visible VisibilityFunc) []domain.RankedEntry {
	keyMap := buildKeyMap(snap.Questions)

	subsByStudent := make(map[string][]domain.Submission)
	for _, sub := range snap.Submissions {
		if !sub.Finalized() {
			continue
		}
		subsByStudent[sub.StudentID] = append(subsByStudent[sub.StudentID], sub)
	}

	entries := make([]domain.RankedEntry, 0, len(snap.Students))
	for _, student := range snap.Students {
		best := e.bestAttempts(subsByStudent[student.ID], keyMap)

		total := 0.0
		submittedDates := make(map[string]struct{}, len(best))
		for _, attempt := range best {
			total += attempt.score
			if attempt.submittedAt != nil {
				submittedDates[dayKey(*attempt.submittedAt)] = struct{}{}
			}
		}

		entries = append(entries, domain.RankedEntry{
			StudentID: student.ID,
			Name:      displayName(student.Name),
			Batch:     displayBatch(student.Batch),
			Score:     math.Round(total*100) / 100,
			Tests:     len(best),
			Streak:    e.streak(student, snap.Exams, visible, submittedDates),
			Avatar:    initials(student.Name),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

type bestAttempt struct {
	score       float64
	submittedAt *time.Time
}

// bestAttempts keeps, per exam, the attempt with the highest leaderboard
// score.
func (e *Engine) bestAttempts(subs []domain.Submission, keyMap map[string]map[string]string) map[string]bestAttempt {
	best := make(map[string]bestAttempt)
	for _, sub := range subs {
		score := e.submissionScore(sub, keyMap[sub.ExamID])
		if current, ok := best[sub.ExamID]; !ok || score > current.score {
			best[sub.ExamID] = bestAttempt{score: score, submittedAt: sub.SubmittedAt}
		}
	}
	return best
}

// submissionScore applies the ranking formula to a single submission.
func (e *Engine) submissionScore(sub domain.Submission, examKeys map[string]string) float64 {
	var correct, wrong, attempted float64
	for qID, ans := range sub.Answers {
		if ans.IsEmpty() {
			continue
		}
		attempted++
		if key, ok := examKeys[qID]; ok && ans.Text == key {
			correct++
		} else {
			wrong++
		}
	}

	// Violation counts are not persisted yet; reserved for proctoring integration.
	violations := 0.0

	finalScore := correct*e.weights.MarkWeight - wrong*e.weights.NegativeMarkWeight

	accuracy := 0.0
	if attempted > 0 {
		accuracy = correct / attempted * 100
	}
	adjustedAccuracy := math.Max(0, accuracy-violations*e.weights.ViolationAccuracyPenalty)

	score := finalScore*e.weights.ScoreWeight + adjustedAccuracy*e.weights.AccuracyWeight - violations*e.weights.ViolationPenalty
	return math.Max(0, score)
}

// streak walks day by day from the earliest assigned date to today. A
// submitted day extends the streak, an assigned-but-missed day resets it,
// and days with no assignment leave it unchanged.
func (e *Engine) streak(student domain.User, exams []domain.Exam, visible VisibilityFunc, submittedDates map[string]struct{}) int {
	if visible == nil {
		return 0
	}

	assignedDates := make(map[string]struct{})
	var earliest time.Time
	for _, exam := range exams {
		if !visible(exam, student) {
			continue
		}
		day := exam.EndTime.UTC().Truncate(24 * time.Hour)
		assignedDates[dayKey(exam.EndTime)] = struct{}{}
		if earliest.IsZero() || day.Before(earliest) {
			earliest = day
		}
	}
	if len(assignedDates) == 0 {
		return 0
	}

	today := e.today().UTC().Truncate(24 * time.Hour)
	streak := 0
	for day := earliest; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if _, ok := submittedDates[key]; ok {
			streak++
		} else if _, ok := assignedDates[key]; ok {
			streak = 0
		}
	}
	return streak
}

func buildKeyMap(questions []domain.Question) map[string]map[string]string {
	keyMap := make(map[string]map[string]string)
	for _, q := range questions {
		if q.MCQ == nil {
			continue
		}
		if keyMap[q.ExamID] == nil {
			keyMap[q.ExamID] = make(map[string]string)
		}
		keyMap[q.ExamID][q.ID] = q.MCQ.CorrectAnswer
	}
	return keyMap
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func displayName(name string) string {
	if name == "" {
		return "Student"
	}
	return name
}

func displayBatch(batch string) string {
	if batch == "" {
		return "N/A"
	}
	return batch
}

func initials(name string) string {
	if name == "" {
		return "??"
	}
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		b.WriteString(strings.ToUpper(string([]rune(word)[0])))
		if b.Len() >= 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "??"
	}
	return b.String()
}
