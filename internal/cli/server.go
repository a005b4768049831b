package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"placement-prep-service/internal/app"
	"placement-prep-service/internal/config"
	"placement-prep-service/internal/grading"
	"placement-prep-service/internal/infra/memory"
	"placement-prep-service/internal/infra/postgres"
	redisinfra "placement-prep-service/internal/infra/redis"
	"placement-prep-service/internal/leaderboard"
	"placement-prep-service/internal/sandbox"
	transport "placement-prep-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, store, questionTTL)
	} else {
		questions = memory.NewQuestionCache(store, questionTTL)
	}

	sandboxURL := cfg.Sandbox.URL
	if sandboxURL == "" {
		sandboxURL = "http://localhost:2000"
	}
	runner := sandbox.NewClient(sandboxURL,
		config.TTLDuration(cfg.Sandbox.RunTimeout, 3*time.Second),
		config.TTLDuration(cfg.Sandbox.CompileTimeout, 10*time.Second))
	evaluator := sandbox.NewEvaluator(runner,
		config.TTLDuration(cfg.Sandbox.CaseTimeout, 20*time.Second),
		cfg.Sandbox.Concurrency)

	service := app.NewService(
		store,
		questions,
		grading.NewEngine(evaluator),
		runner,
		evaluator,
		leaderboard.NewEngine(cfg.RankingWeights()),
		app.Config{
			AttemptLimit:       cfg.Grading.AttemptLimit,
			FailOpenVisibility: cfg.FailOpenVisibility(),
		},
	)
	if redisClient != nil {
		redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		service.WithSnapshotCache(redisinfra.NewLeaderboardCache(redisClient, redisTTL))
	}

	handler := transport.NewHandler(service)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting placement prep service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
