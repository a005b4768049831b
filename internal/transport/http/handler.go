package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"placement-prep-service/internal/app"
	"placement-prep-service/internal/domain"
)

// Handler exposes the assessment service over REST plus a websocket stream
// for live leaderboard updates.
type Handler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts every endpoint on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/exams", h.listExams)
	mux.HandleFunc("POST /api/exams", h.createExam)
	mux.HandleFunc("POST /api/exams/import", h.importExam)
	mux.HandleFunc("GET /api/exams/{id}", h.getExam)
	mux.HandleFunc("POST /api/exams/{id}/autosave", h.autosave)
	mux.HandleFunc("POST /api/exams/{id}/submit", h.submit)

	mux.HandleFunc("POST /api/code/run", h.runCode)
	mux.HandleFunc("POST /api/code/test", h.testCode)

	mux.HandleFunc("PUT /api/staff/{id}/assignment", h.assignRange)
	mux.HandleFunc("GET /api/staff/{id}/report", h.classReport)

	mux.HandleFunc("GET /api/leaderboard", h.leaderboard)
	mux.HandleFunc("/ws/leaderboard", h.serveLeaderboardWS)
	return mux
}

func (h *Handler) listExams(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("studentId")
	if studentID == "" {
		writeError(w, &domain.ValidationError{Field: "studentId", Reason: "query parameter is required"})
		return
	}
	exams, err := h.service.AvailableExams(r.Context(), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

type createExamRequest struct {
	CreatorID string            `json:"creatorId"`
	Exam      domain.Exam       `json:"exam"`
	Questions []domain.Question `json:"questions"`
}

func (h *Handler) createExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	exam, err := h.service.CreateExam(r.Context(), req.CreatorID, req.Exam, req.Questions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

type importExamRequest struct {
	CreatorID string              `json:"creatorId"`
	Text      string              `json:"text"`
	Access    domain.AccessPolicy `json:"access"`
}

func (h *Handler) importExam(w http.ResponseWriter, r *http.Request) {
	var req importExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	exam, err := h.service.ImportExamText(r.Context(), req.CreatorID, req.Text, req.Access)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

type examResponse struct {
	Exam      domain.Exam       `json:"exam"`
	Questions []domain.Question `json:"questions"`
}

func (h *Handler) getExam(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("studentId")
	if studentID == "" {
		writeError(w, &domain.ValidationError{Field: "studentId", Reason: "query parameter is required"})
		return
	}
	exam, questions, err := h.service.ExamForStudent(r.Context(), r.PathValue("id"), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, examResponse{Exam: exam, Questions: questions})
}

type autosaveRequest struct {
	StudentID  string        `json:"studentId"`
	QuestionID string        `json:"questionId"`
	Answer     domain.Answer `json:"answer"`
}

func (h *Handler) autosave(w http.ResponseWriter, r *http.Request) {
	var req autosaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	if err := h.service.Autosave(r.Context(), req.StudentID, r.PathValue("id"), req.QuestionID, req.Answer); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	StudentID  string                   `json:"studentId"`
	Answers    map[string]domain.Answer `json:"answers"`
	Terminated bool                     `json:"terminated"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	result, err := h.service.Finalize(r.Context(), req.StudentID, r.PathValue("id"), req.Answers, req.Terminated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type runCodeRequest struct {
	Language string            `json:"language"`
	Code     string            `json:"code"`
	Stdin    string            `json:"stdin"`
	Cases    []domain.TestCase `json:"cases"`
}

func (h *Handler) runCode(w http.ResponseWriter, r *http.Request) {
	var req runCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	result, err := h.service.RunCustom(r.Context(), req.Language, req.Code, req.Stdin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) testCode(w http.ResponseWriter, r *http.Request) {
	var req runCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	writeJSON(w, http.StatusOK, h.service.RunCases(r.Context(), req.Language, req.Code, req.Cases))
}

type assignRangeRequest struct {
	StartRegNo string   `json:"startRegNo"`
	EndRegNo   string   `json:"endRegNo"`
	Extras     []string `json:"extras"`
}

func (h *Handler) assignRange(w http.ResponseWriter, r *http.Request) {
	var req assignRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	if err := h.service.AssignStaffRange(r.Context(), r.PathValue("id"), req.StartRegNo, req.EndRegNo, req.Extras); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) classReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ClassReportForStaff(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.CachedLeaderboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var verr *domain.ValidationError
	var cerr *domain.ConflictError
	var werr *domain.WindowError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &cerr):
		status = http.StatusConflict
	case errors.As(err, &werr):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrExamNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSubmissionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
