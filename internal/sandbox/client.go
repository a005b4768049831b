// Package sandbox talks to the remote code-execution service and evaluates
// code submissions against test cases.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RunResult is the outcome of one remote execution.
type RunResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Runner executes one piece of code with the given stdin.
type Runner interface {
	Run(ctx context.Context, language, code, stdin string) (RunResult, error)
}

// Client is an HTTP client for the execution service. The wire format is
// the piston execute API: {language, version, files, stdin, run_timeout,
// compile_timeout} in, {run: {stdout, stderr, code}} out.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	runTimeout     time.Duration
	compileTimeout time.Duration
}

// NewClient builds a sandbox client. Timeouts bound the remote run and
// compile phases; they also cap the HTTP round trip so one hung call
// cannot stall a whole grading pass.
func NewClient(baseURL string, runTimeout, compileTimeout time.Duration) *Client {
	if runTimeout <= 0 {
		runTimeout = 3 * time.Second
	}
	if compileTimeout <= 0 {
		compileTimeout = 10 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		runTimeout:     runTimeout,
		compileTimeout: compileTimeout,
		httpClient: &http.Client{
			Timeout: runTimeout + compileTimeout + 5*time.Second,
		},
	}
}

type executeRequest struct {
	Language       string        `json:"language"`
	Version        string        `json:"version"`
	Files          []executeFile `json:"files"`
	Stdin          string        `json:"stdin"`
	RunTimeout     int64         `json:"run_timeout"`
	CompileTimeout int64         `json:"compile_timeout"`
}

type executeFile struct {
	Content string `json:"content"`
}

type executeResponse struct {
	Run struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Code   int    `json:"code"`
	} `json:"run"`
}

// Run executes code once against the remote service.
func (c *Client) Run(ctx context.Context, language, code, stdin string) (RunResult, error) {
	payload := executeRequest{
		Language:       language,
		Version:        "*",
		Files:          []executeFile{{Content: code}},
		Stdin:          stdin,
		RunTimeout:     c.runTimeout.Milliseconds(),
		CompileTimeout: c.compileTimeout.Milliseconds(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return RunResult{}, fmt.Errorf("marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/execute", bytes.NewReader(body))
	if err != nil {
		return RunResult{}, fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RunResult{}, fmt.Errorf("execute call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RunResult{}, fmt.Errorf("execute call: unexpected status %d", resp.StatusCode)
	}

	var decoded executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return RunResult{}, fmt.Errorf("decode execute response: %w", err)
	}
	return RunResult{
		Stdout:   decoded.Run.Stdout,
		Stderr:   decoded.Run.Stderr,
		ExitCode: decoded.Run.Code,
	}, nil
}
