package app

import (
	"context"
	"math"
	"sort"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/regnum"
)

// AssignStaffRange claims a registration-number range (plus ad hoc extras)
// for one staff member. The new claim is checked against every other
// staff's existing assignment; any collision rejects the whole write and
// names the conflicting staff member.
func (s *Service) AssignStaffRange(ctx context.Context, staffID, startRegNo, endRegNo string, extras []string) error {
	if staffID == "" {
		return &domain.ValidationError{Field: "staffId", Reason: "staff id is required"}
	}

	assignment, err := regnum.New(startRegNo, endRegNo, extras)
	if err != nil {
		return err
	}

	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return err
	}
	for _, other := range staff {
		if other.ID == staffID {
			continue
		}
		existing, ok := regnum.Parse(other.Batch)
		if !ok {
			continue
		}
		if detail, hit := assignment.Overlaps(existing); hit {
			return &domain.ConflictError{Entity: other.Name, Detail: detail}
		}
	}

	return s.store.UpdateStaffAssignment(ctx, staffID, assignment.Encode())
}

// StudentSummary is one row of a staff member's class report.
type StudentSummary struct {
	StudentID          string  `json:"studentId"`
	Name               string  `json:"name"`
	RegistrationNumber string  `json:"registrationNumber"`
	AverageScore       float64 `json:"averageScore"`
	Participation      float64 `json:"participation"`
	SubmissionCount    int     `json:"submissionCount"`
}

// ClassReport aggregates performance of the students a staff member is
// responsible for.
type ClassReport struct {
	StaffID       string           `json:"staffId"`
	StaffName     string           `json:"staffName"`
	StudentCount  int              `json:"studentCount"`
	AverageScore  float64          `json:"averageScore"`
	Participation float64          `json:"participation"`
	Students      []StudentSummary `json:"students"`
}

// ClassReportForStaff resolves the staff member's assigned students via the
// range matcher and summarizes their submissions. Staff without a parsed
// range assignment get an empty report.
func (s *Service) ClassReportForStaff(ctx context.Context, staffID string) (ClassReport, error) {
	staff, err := s.store.GetUser(ctx, staffID)
	if err != nil {
		return ClassReport{}, err
	}
	report := ClassReport{StaffID: staff.ID, StaffName: staff.Name}

	assignment, ok := regnum.Parse(staff.Batch)
	if !ok {
		return report, nil
	}

	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return ClassReport{}, err
	}
	var assigned []domain.User
	for _, student := range students {
		if assignment.Contains(student.RegistrationNumber) {
			assigned = append(assigned, student)
		}
	}
	sort.Slice(assigned, func(i, j int) bool {
		return regnum.Compare(assigned[i].RegistrationNumber, assigned[j].RegistrationNumber) < 0
	})

	exams, err := s.store.ListExams(ctx)
	if err != nil {
		return ClassReport{}, err
	}
	submissions, err := s.store.ListAllSubmissions(ctx)
	if err != nil {
		return ClassReport{}, err
	}
	subsByStudent := make(map[string][]domain.Submission)
	for _, sub := range submissions {
		if sub.Finalized() {
			subsByStudent[sub.StudentID] = append(subsByStudent[sub.StudentID], sub)
		}
	}

	examCount := len(exams)
	if examCount == 0 {
		examCount = 1
	}

	var totalAvg, totalPart float64
	for _, student := range assigned {
		subs := subsByStudent[student.ID]

		var scoreSum float64
		for _, sub := range subs {
			scoreSum += sub.Score
		}
		avg := 0.0
		if len(subs) > 0 {
			avg = round1(scoreSum / float64(len(subs)))
		}
		part := math.Min(100, round1(float64(len(subs))/float64(examCount)*100))

		report.Students = append(report.Students, StudentSummary{
			StudentID:          student.ID,
			Name:               student.Name,
			RegistrationNumber: student.RegistrationNumber,
			AverageScore:       avg,
			Participation:      part,
			SubmissionCount:    len(subs),
		})
		totalAvg += avg
		totalPart += part
	}

	report.StudentCount = len(assigned)
	if len(assigned) > 0 {
		report.AverageScore = round1(totalAvg / float64(len(assigned)))
		report.Participation = round1(totalPart / float64(len(assigned)))
	}
	return report, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
