package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"placement-prep-service/internal/app"
	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/grading"
	"placement-prep-service/internal/infra/memory"
	"placement-prep-service/internal/leaderboard"
	"placement-prep-service/internal/sandbox"
)

var now = time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, _, code, stdin string) (sandbox.RunResult, error) {
	if strings.Contains(code, "pass:"+stdin) {
		return sandbox.RunResult{Stdout: "ok\n"}, nil
	}
	return sandbox.RunResult{Stdout: "nope\n"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	users := []domain.User{
		{ID: "staff-1", Name: "Prof Rao", Role: domain.RoleStaff, Batch: "RANGE:IT001:IT010"},
		{ID: "staff-2", Name: "Prof Iyer", Role: domain.RoleStaff},
		{ID: "s1", Name: "Alice Kumar", Role: domain.RoleStudent, RegistrationNumber: "IT001"},
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	exam := domain.Exam{
		ID: "e1", Title: "Weekly Assessment", Duration: 120,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
		CreatedBy: "staff-1", Access: domain.AccessOpen,
	}
	questions := []domain.Question{
		{ID: "q1", ExamID: "e1", Type: domain.QuestionMCQ, Marks: 1,
			MCQ: &domain.MCQPayload{Options: []string{"3", "4"}, CorrectAnswer: "4"}},
		{ID: "q2", ExamID: "e1", Type: domain.QuestionCoding, Marks: 5,
			Coding: &domain.CodingPayload{TestCases: []domain.TestCase{
				{Input: "one", ExpectedOutput: "ok"},
				{Input: "two", ExpectedOutput: "ok", Hidden: true},
			}}},
	}
	if err := store.CreateExam(ctx, exam, questions); err != nil {
		t.Fatalf("create exam: %v", err)
	}

	runner := echoRunner{}
	evaluator := sandbox.NewEvaluator(runner, time.Second, 2)
	service := app.NewService(
		store,
		memory.NewQuestionCache(store, time.Minute),
		grading.NewEngine(evaluator),
		runner,
		evaluator,
		leaderboard.NewEngineWithClock(leaderboard.DefaultWeights(), func() time.Time { return now }),
		app.Config{Clock: func() time.Time { return now }},
	)

	server := httptest.NewServer(NewHandler(service).Routes())
	t.Cleanup(server.Close)
	return server, service
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestSubmitFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	// Leaderboard stream first, so the post-submit refresh is observable.
	wsURL := "ws" + server.URL[len("http"):] + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	typ, _ := readNext(conn, t)
	if typ != "leaderboard" {
		t.Fatalf("expected initial leaderboard, got %s", typ)
	}

	resp := postJSON(t, server.URL+"/api/exams/e1/submit", map[string]interface{}{
		"studentId": "s1",
		"answers": map[string]interface{}{
			"q1": "4",
			"q2": map[string]string{"code": "pass:one", "language": "python"},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	var result domain.GradingResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.TotalScore != 3.5 || result.MaxScore != 6 {
		t.Fatalf("expected 3.5/6, got %v/%v", result.TotalScore, result.MaxScore)
	}

	typ, payload := readNext(conn, t)
	if typ != "leaderboard" {
		t.Fatalf("expected leaderboard push, got %s", typ)
	}
	if len(payload) == 0 {
		t.Fatalf("empty leaderboard push")
	}

	lbResp, err := http.Get(server.URL + "/api/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer lbResp.Body.Close()
	var entries []domain.RankedEntry
	if err := json.NewDecoder(lbResp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].StudentID != "s1" || entries[0].Rank != 1 {
		t.Fatalf("unexpected standings %+v", entries)
	}
}

func TestExamLoadHidesKeys(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/exams/e1?studentId=s1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body struct {
		Exam      domain.Exam       `json:"exam"`
		Questions []domain.Question `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(body.Questions))
	}
	for _, q := range body.Questions {
		if q.MCQ != nil && q.MCQ.CorrectAnswer != "" {
			t.Fatalf("answer key leaked: %+v", q.MCQ)
		}
		if q.Coding != nil && len(q.Coding.TestCases) != 1 {
			t.Fatalf("hidden case leaked: %+v", q.Coding)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	server, _ := newTestServer(t)

	// Missing studentId -> 400.
	resp, err := http.Get(server.URL + "/api/exams/e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// Unknown exam -> 404.
	resp, err = http.Get(server.URL + "/api/exams/missing?studentId=s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	// Overlapping range claim -> 409.
	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/staff/staff-2/assignment",
		bytes.NewReader([]byte(`{"startRegNo":"IT005","endRegNo":"IT020"}`)))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	assignResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	assignResp.Body.Close()
	if assignResp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", assignResp.StatusCode)
	}
}

func TestCodeRunEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/code/run", map[string]string{
		"language": "python", "code": "pass:x", "stdin": "x",
	})
	defer resp.Body.Close()
	var result sandbox.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "ok" {
		t.Fatalf("unexpected stdout %q", result.Stdout)
	}
}

func readNext(conn *websocket.Conn, t *testing.T) (string, []map[string]interface{}) {
	t.Helper()
	var msg struct {
		Type    string                   `json:"type"`
		Payload []map[string]interface{} `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}
