package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/dailyjudge/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// ProblemHandler provides HTTP handlers for problems.
type ProblemHandler struct {
	problemService    *services.ProblemService
	userService       *services.UserService
	submissionService *services.SubmissionService
}

// NewProblemHandler constructs a handler with the provided services.
func NewProblemHandler(
	problemService *services.ProblemService,
	userService *services.UserService,
	submissionService *services.SubmissionService,
) *ProblemHandler {
	return &ProblemHandler{
		problemService:    problemService,
		userService:       userService,
		submissionService: submissionService,
	}
}

// ProblemRouter registers problem routes on the given router.
func ProblemRouter(
	r chi.Router,
	problemService *services.ProblemService,
	userService *services.UserService,
	submissionService *services.SubmissionService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProblemHandler(problemService, userService, submissionService)
	admin := requireAdmin(userService)

	r.Get("/", handler.ListProblems)
	r.With(authMiddleware, admin).Post("/", handler.CreateProblem)
	r.Route("/{problemID}", func(r chi.Router) {
		r.Get("/", handler.GetProblem)
		r.With(authMiddleware, admin).Put("/", handler.UpdateProblem)
		r.With(authMiddleware, admin).Delete("/", handler.DeleteProblem)
		r.With(authMiddleware).Get("/submissions", handler.ListSubmissions)
	})
}

func (h *ProblemHandler) ListProblems(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.problemService.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list problems")
		return
	}

	writeJSON(w, http.StatusOK, ProblemListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to fetch problem")
		return
	}

	writeJSON(w, http.StatusOK, problem)
}

func (h *ProblemHandler) CreateProblem(w http.ResponseWriter, r *http.Request) {
	var req ProblemUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.problemService.Create(r.Context(), req.toProblem(0))
	if err != nil {
		writeServiceError(w, err, "failed to create problem")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ProblemHandler) UpdateProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ProblemUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.problemService.Update(r.Context(), req.toProblem(id))
	if err != nil {
		writeServiceError(w, err, "failed to update problem")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProblemHandler) DeleteProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.problemService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "failed to delete problem")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubmissions returns the caller's submissions for the problem, newest first.
func (h *ProblemHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := h.submissionService.GetProblemSubmissions(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err, "failed to list submissions")
		return
	}

	writeJSON(w, http.StatusOK, newSubmissionResponses(items))
}

// ProblemUpsertRequest is the JSON payload for creating or replacing a problem.
type ProblemUpsertRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Difficulty   string   `json:"difficulty"`
	SampleInput  string   `json:"sample_input"`
	SampleOutput string   `json:"sample_output"`
	TimeLimit    int64    `json:"time_limit"`
	MemoryLimit  int64    `json:"memory_limit"`
	Tags         []string `json:"tags"`
}

func (req ProblemUpsertRequest) toProblem(id int) types.Problem {
	return types.Problem{
		ID:           id,
		Title:        req.Title,
		Description:  strings.TrimSpace(req.Description),
		Difficulty:   types.Difficulty(req.Difficulty),
		SampleInput:  req.SampleInput,
		SampleOutput: req.SampleOutput,
		TimeLimit:    req.TimeLimit,
		MemoryLimit:  req.MemoryLimit,
		Tags:         parseTags(req.Tags),
	}
}

// ProblemListResponse is the paginated list response payload.
type ProblemListResponse struct {
	Items []types.Problem `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func parseProblemID(r *http.Request) (int, error) {
	id, err := parseID(chi.URLParam(r, "problemID"), "problem id")
	return int(id), err
}

func parseTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, part := range raw {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
