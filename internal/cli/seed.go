package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"placement-prep-service/internal/config"
	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/infra/postgres"
)

// NewSeedCmd loads a small demo dataset: two staff with disjoint ranges,
// a handful of students and one open exam ending later today.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo users and a sample exam",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	now := time.Now()
	users := []domain.User{
		{ID: uuid.NewString(), Name: "Priya Raman", Role: domain.RoleStaff,
			Email: "priya@example.edu", Batch: "RANGE:IT001:IT030", IsActive: true, CreatedAt: now},
		{ID: uuid.NewString(), Name: "Suresh Nair", Role: domain.RoleStaff,
			Email: "suresh@example.edu", Batch: "RANGE:IT031:IT060", IsActive: true, CreatedAt: now},
	}
	for i := 1; i <= 10; i++ {
		users = append(users, domain.User{
			ID:                 uuid.NewString(),
			Name:               fmt.Sprintf("Student %02d", i),
			Role:               domain.RoleStudent,
			RegistrationNumber: fmt.Sprintf("IT%03d", i),
			Department:         "IT",
			Batch:              "2023",
			IsActive:           true,
			CreatedAt:          now,
		})
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u); err != nil {
			return err
		}
	}

	examID := uuid.NewString()
	exam := domain.Exam{
		ID:        examID,
		Title:     "Aptitude Warm-up",
		Duration:  60,
		StartTime: now,
		EndTime:   now.Add(6 * time.Hour),
		CreatedBy: users[0].ID,
		Access:    domain.AccessOpen,
		CreatedAt: now,
	}
	questions := []domain.Question{
		{
			ID: uuid.NewString(), ExamID: examID, Type: domain.QuestionMCQ,
			Text: "A train travels 120 km in 2 hours. What is its average speed?", Marks: 1,
			MCQ: &domain.MCQPayload{
				Options:       []string{"40 km/h", "60 km/h", "80 km/h", "100 km/h"},
				CorrectAnswer: "60 km/h",
			},
		},
		{
			ID: uuid.NewString(), ExamID: examID, Type: domain.QuestionCoding,
			Text: "Read an integer n and print the sum 1 + 2 + ... + n.", Marks: 5,
			Coding: &domain.CodingPayload{
				InputFormat:  "A single integer n",
				OutputFormat: "The sum as a single integer",
				TestCases: []domain.TestCase{
					{Input: "3", ExpectedOutput: "6"},
					{Input: "10", ExpectedOutput: "55", Hidden: true},
				},
			},
		},
	}
	if err := store.CreateExam(ctx, exam, questions); err != nil {
		return err
	}

	log.Printf("seeded %d users and exam %s", len(users), examID)
	return nil
}
