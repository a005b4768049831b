package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"placement-prep-service/internal/leaderboard"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Sandbox struct {
		URL            string `yaml:"url"`
		RunTimeout     string `yaml:"runTimeout"`
		CompileTimeout string `yaml:"compileTimeout"`
		CaseTimeout    string `yaml:"caseTimeout"`
		Concurrency    int    `yaml:"concurrency"`
	} `yaml:"sandbox"`
	Grading struct {
		AttemptLimit int `yaml:"attemptLimit"`
	} `yaml:"grading"`
	// Ranking overrides the formula constants; leave unset to keep the
	// production defaults.
	Ranking    *leaderboard.Weights `yaml:"ranking"`
	Visibility struct {
		// FailOpen shows restricted exams to everyone when the creator's
		// assignment is missing or unparseable.
		FailOpen *bool `yaml:"failOpen"`
	} `yaml:"visibility"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// RankingWeights returns the configured formula constants or the defaults.
func (c Config) RankingWeights() leaderboard.Weights {
	if c.Ranking != nil {
		return *c.Ranking
	}
	return leaderboard.DefaultWeights()
}

// FailOpenVisibility defaults to true: an orphaned restricted exam stays
// visible rather than silently disappearing for every student.
func (c Config) FailOpenVisibility() bool {
	if c.Visibility.FailOpen != nil {
		return *c.Visibility.FailOpen
	}
	return true
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
