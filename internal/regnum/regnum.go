// Package regnum compares and groups human-entered registration numbers of
// the form <prefix><numericSuffix> (e.g. 8115U23IT001) and parses the staff
// assignment encoding stored on staff profiles.
package regnum

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"placement-prep-service/internal/domain"
)

var suffixPattern = regexp.MustCompile(`^(.*?)(\d+)$`)

// Compare orders two registration numbers. When both share an identical
// non-numeric prefix the numeric suffixes are compared as integers, so
// IT009 sorts before IT010. Mismatched prefixes fall back to plain string
// comparison; cross-department ranges therefore always use string order.
func Compare(a, b string) int {
	ta, tb := strings.TrimSpace(a), strings.TrimSpace(b)

	ma := suffixPattern.FindStringSubmatch(ta)
	mb := suffixPattern.FindStringSubmatch(tb)
	if ma != nil && mb != nil && ma[1] == mb[1] {
		na, errA := strconv.Atoi(ma[2])
		nb, errB := strconv.Atoi(mb[2])
		if errA == nil && errB == nil {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(ta, tb)
}

// InRange reports whether id falls inside [start, end] inclusive.
func InRange(id, start, end string) bool {
	return Compare(id, start) >= 0 && Compare(id, end) <= 0
}

// InSet reports whether id matches one of the ad hoc extras.
func InSet(id string, extras []string) bool {
	trimmed := strings.TrimSpace(id)
	for _, e := range extras {
		if strings.TrimSpace(e) == trimmed {
			return true
		}
	}
	return false
}

// Assignment is a parsed staff range assignment: an inclusive registration
// number range plus ad hoc extra identifiers.
type Assignment struct {
	Start  string
	End    string
	Extras []string
}

// New validates and builds an assignment. At least a full range or one
// extra is required, and a provided range must be ordered.
func New(start, end string, extras []string) (Assignment, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	cleaned := make([]string, 0, len(extras))
	for _, e := range extras {
		if t := strings.TrimSpace(e); t != "" {
			cleaned = append(cleaned, t)
		}
	}

	if (start == "" || end == "") && len(cleaned) == 0 {
		return Assignment{}, &domain.ValidationError{
			Field:  "range",
			Reason: "either a registration number range or additional reg nos must be provided",
		}
	}
	if start != "" && end != "" && Compare(start, end) > 0 {
		return Assignment{}, &domain.ValidationError{
			Field:  "startRegNo",
			Reason: "start reg no must be less than or equal to end reg no",
		}
	}
	return Assignment{Start: start, End: end, Extras: cleaned}, nil
}

// Parse decodes the "RANGE:<start>:<end>|extra1,extra2" encoding. The
// second return is false when the string is absent or not in range form.
func Parse(encoded string) (Assignment, bool) {
	if !strings.HasPrefix(encoded, "RANGE:") {
		return Assignment{}, false
	}

	rangePart, extrasPart, _ := strings.Cut(encoded, "|")
	parts := strings.Split(rangePart, ":")
	if len(parts) != 3 {
		return Assignment{}, false
	}

	var extras []string
	if extrasPart != "" {
		for _, e := range strings.Split(extrasPart, ",") {
			if t := strings.TrimSpace(e); t != "" {
				extras = append(extras, t)
			}
		}
	}
	return Assignment{Start: parts[1], End: parts[2], Extras: extras}, true
}

// Encode renders the assignment back into its stored string form.
func (a Assignment) Encode() string {
	encoded := fmt.Sprintf("RANGE:%s:%s", a.Start, a.End)
	if len(a.Extras) > 0 {
		encoded += "|" + strings.Join(a.Extras, ",")
	}
	return encoded
}

// HasRange reports whether the assignment carries a usable range.
func (a Assignment) HasRange() bool { return a.Start != "" && a.End != "" }

// Contains reports whether id belongs to this assignment.
func (a Assignment) Contains(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	if a.HasRange() && InRange(id, a.Start, a.End) {
		return true
	}
	return InSet(id, a.Extras)
}

// Overlaps runs the four-way overlap check between a new assignment and an
// existing one: range vs range, existing range vs new extras, new range vs
// existing extras, and extras vs extras. It returns a description of the
// first collision found.
func (a Assignment) Overlaps(existing Assignment) (string, bool) {
	if a.HasRange() && existing.HasRange() {
		if Compare(a.Start, existing.End) <= 0 && Compare(a.End, existing.Start) >= 0 {
			return fmt.Sprintf("range %s-%s overlaps range %s-%s", a.Start, a.End, existing.Start, existing.End), true
		}
	}
	if existing.HasRange() {
		for _, e := range a.Extras {
			if InRange(e, existing.Start, existing.End) {
				return fmt.Sprintf("student %s falls in range %s-%s", e, existing.Start, existing.End), true
			}
		}
	}
	if a.HasRange() {
		for _, e := range existing.Extras {
			if InRange(e, a.Start, a.End) {
				return fmt.Sprintf("range %s-%s includes already assigned student %s", a.Start, a.End, e), true
			}
		}
	}
	for _, e := range a.Extras {
		if InSet(e, existing.Extras) {
			return fmt.Sprintf("student %s is already assigned", e), true
		}
	}
	return "", false
}
