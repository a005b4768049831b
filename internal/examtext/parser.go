// Package examtext parses the delimited plain-text payload produced by the
// PDF extraction step into the exam + question shape the grading pipeline
// consumes. Blocks are separated by "===== EXAM =====", "===== MCQ ====="
// and "===== CODING =====" headers, each holding "Key: value" lines.
package examtext

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"placement-prep-service/internal/domain"
)

// Parsed is the structured result of one extracted document.
type Parsed struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
	Duration  int
	Questions []domain.Question
}

var (
	sectionPattern = regexp.MustCompile(`^=====\s*(EXAM|MCQ|CODING)\s*=====$`)
	keyPattern     = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*):\s*(.*)$`)
)

type block struct {
	section string
	fields  map[string]string
	order   []string
	lastKey string
}

// Parse converts the delimited text into a Parsed exam. A missing required
// field produces a ValidationError naming the field and its section.
func Parse(text string) (Parsed, error) {
	blocks, err := splitBlocks(text)
	if err != nil {
		return Parsed{}, err
	}

	var parsed Parsed
	sawExam := false
	for _, b := range blocks {
		switch b.section {
		case "EXAM":
			if err := parseExamBlock(b, &parsed); err != nil {
				return Parsed{}, err
			}
			sawExam = true
		case "MCQ":
			q, err := parseMCQBlock(b)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Questions = append(parsed.Questions, q)
		case "CODING":
			q, err := parseCodingBlock(b)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Questions = append(parsed.Questions, q)
		}
	}

	if !sawExam {
		return Parsed{}, &domain.ValidationError{Field: "EXAM", Reason: "missing EXAM section"}
	}
	return parsed, nil
}

func splitBlocks(text string) ([]block, error) {
	var blocks []block
	var current *block

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := sectionPattern.FindStringSubmatch(line); m != nil {
			blocks = append(blocks, block{section: m[1], fields: map[string]string{}})
			current = &blocks[len(blocks)-1]
			continue
		}
		if current == nil {
			// Preamble before the first section header is ignored.
			continue
		}

		if m := keyPattern.FindStringSubmatch(line); m != nil {
			key := strings.TrimSpace(m[1])
			if _, seen := current.fields[key]; !seen {
				current.order = append(current.order, key)
			}
			current.fields[key] = m[2]
			current.lastKey = key
			continue
		}
		// Continuation of the previous value (multi-line question text etc).
		if current.lastKey != "" {
			current.fields[current.lastKey] += " " + line
		}
	}
	return blocks, nil
}

func missing(section, field string) error {
	return &domain.ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("missing required field in %s section", section),
	}
}

func parseExamBlock(b block, parsed *Parsed) error {
	title := strings.TrimSpace(b.fields["Title"])
	if title == "" {
		return missing("EXAM", "Title")
	}
	parsed.Title = title

	start, err := parseTime(b.fields["Start"])
	if err != nil {
		return missing("EXAM", "Start")
	}
	end, err := parseTime(b.fields["End"])
	if err != nil {
		return missing("EXAM", "End")
	}
	if !end.After(start) {
		return &domain.ValidationError{Field: "End", Reason: "end time must be after start time"}
	}
	parsed.StartTime = start
	parsed.EndTime = end

	parsed.Duration = 60
	if raw := strings.TrimSpace(b.fields["Duration"]); raw != "" {
		d, err := strconv.Atoi(strings.TrimSuffix(raw, " mins"))
		if err != nil || d <= 0 {
			return &domain.ValidationError{Field: "Duration", Reason: "duration must be a positive number of minutes"}
		}
		parsed.Duration = d
	}
	return nil
}

func parseMCQBlock(b block) (domain.Question, error) {
	text := strings.TrimSpace(b.fields["Question"])
	if text == "" {
		return domain.Question{}, missing("MCQ", "Question")
	}

	var options []string
	for _, opt := range strings.Split(b.fields["Options"], ";") {
		if t := strings.TrimSpace(opt); t != "" {
			options = append(options, t)
		}
	}
	if len(options) < 2 {
		return domain.Question{}, missing("MCQ", "Options")
	}

	answer := strings.TrimSpace(b.fields["Answer"])
	if answer == "" {
		return domain.Question{}, missing("MCQ", "Answer")
	}
	if !contains(options, answer) {
		return domain.Question{}, &domain.ValidationError{
			Field:  "Answer",
			Reason: "answer must be one of the listed options",
		}
	}

	return domain.Question{
		Type:  domain.QuestionMCQ,
		Text:  text,
		Marks: 1,
		MCQ: &domain.MCQPayload{
			Options:       options,
			CorrectAnswer: answer,
			Explanation:   strings.TrimSpace(b.fields["Explanation"]),
		},
	}, nil
}

func parseCodingBlock(b block) (domain.Question, error) {
	text := strings.TrimSpace(b.fields["Question"])
	if text == "" {
		return domain.Question{}, missing("CODING", "Question")
	}

	marks := 5.0
	if raw := strings.TrimSpace(b.fields["Marks"]); raw != "" {
		m, err := strconv.ParseFloat(raw, 64)
		if err != nil || m <= 0 {
			return domain.Question{}, &domain.ValidationError{Field: "Marks", Reason: "marks must be a positive number"}
		}
		marks = m
	}

	var cases []domain.TestCase
	if raw := strings.TrimSpace(b.fields["Testcases"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cases); err != nil {
			return domain.Question{}, &domain.ValidationError{
				Field:  "Testcases",
				Reason: "testcases must be a JSON array of {input, expectedOutput, hidden}",
			}
		}
	}

	return domain.Question{
		Type:  domain.QuestionCoding,
		Text:  text,
		Marks: marks,
		Coding: &domain.CodingPayload{
			InputFormat:  strings.TrimSpace(b.fields["Input Format"]),
			OutputFormat: strings.TrimSpace(b.fields["Output Format"]),
			Constraints:  strings.TrimSpace(b.fields["Constraints"]),
			TestCases:    cases,
		},
	}, nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
