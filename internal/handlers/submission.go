package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/dailyjudge/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SubmissionHandler serves evaluation and submission query endpoints.
type SubmissionHandler struct {
	evaluationService *services.EvaluationService
	submissionService *services.SubmissionService
	userService       *services.UserService
	logger            *zap.Logger
}

func NewSubmissionHandler(
	evaluationService *services.EvaluationService,
	submissionService *services.SubmissionService,
	userService *services.UserService,
	logger *zap.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		evaluationService: evaluationService,
		submissionService: submissionService,
		userService:       userService,
		logger:            logger,
	}
}

// SubmissionRouter registers submission routes. Every route requires authentication.
func SubmissionRouter(
	r chi.Router,
	evaluationService *services.EvaluationService,
	submissionService *services.SubmissionService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
	logger *zap.Logger,
) {
	handler := NewSubmissionHandler(evaluationService, submissionService, userService, logger)

	r.Use(authMiddleware)
	r.Post("/", handler.Submit)
	r.Post("/run", handler.Run)
	r.Get("/draft", handler.GetDraft)
	r.Put("/draft", handler.SaveDraft)
	r.Get("/history", handler.History)
	r.Get("/accepted", handler.AcceptedProblems)
	r.Get("/{submissionID}", handler.GetSubmission)
	r.Delete("/{submissionID}", handler.DeleteSubmission)
}

// SubmitRequest is the payload for submit, run and draft requests.
type SubmitRequest struct {
	ProblemID int    `json:"problem_id"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

// SubmissionResponse is a submission with its user-facing verdict label.
type SubmissionResponse struct {
	types.Submission
	DisplayVerdict string `json:"display_verdict"`
}

// EvaluationErrorResponse carries the System Error submission alongside the
// failure so clients can offer a retry.
type EvaluationErrorResponse struct {
	Error      string              `json:"error"`
	Retryable  bool                `json:"retryable"`
	Submission *SubmissionResponse `json:"submission,omitempty"`
}

// SubmissionHistoryResponse is a page of the caller's submissions.
type SubmissionHistoryResponse struct {
	Items []SubmissionResponse `json:"items"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
	Total int                  `json:"total"`
}

func newSubmissionResponse(submission types.Submission) SubmissionResponse {
	return SubmissionResponse{Submission: submission, DisplayVerdict: submission.DisplayVerdict()}
}

func newSubmissionResponses(items []types.Submission) []SubmissionResponse {
	out := make([]SubmissionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, newSubmissionResponse(item))
	}
	return out
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.evaluationService.Evaluate)
}

func (h *SubmissionHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.evaluationService.Run)
}

func (h *SubmissionHandler) evaluate(
	w http.ResponseWriter,
	r *http.Request,
	run func(ctx context.Context, req services.EvaluationRequest) (types.Submission, error),
) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	submission, err := run(r.Context(), req)
	if err != nil {
		status, message := statusForError(err, "evaluation failed")
		if submission.Verdict == types.VerdictSystemError {
			resp := newSubmissionResponse(submission)
			h.logger.Warn("evaluation ended in system error",
				zap.Int64("submission_id", submission.ID),
				zap.Int("user_id", req.UserID),
				zap.Error(err),
			)
			writeJSON(w, status, EvaluationErrorResponse{
				Error:      message,
				Retryable:  services.IsRetryable(err),
				Submission: &resp,
			})
			return
		}
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, newSubmissionResponse(submission))
}

// SaveDraft autosaves code for a problem.
func (h *SubmissionHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	draft, err := h.evaluationService.SaveDraft(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "failed to save draft")
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponse(draft))
}

// GetDraft returns the caller's draft for ?problem_id=.
func (h *SubmissionHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	problemID, err := parseID(r.URL.Query().Get("problem_id"), "problem id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err := h.submissionService.GetDraft(r.Context(), userID, int(problemID))
	if err != nil {
		writeServiceError(w, err, "failed to load draft")
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponse(draft))
}

func (h *SubmissionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.submissionService.GetSubmissionHistory(r.Context(), userID, offset, limit)
	if err != nil {
		writeServiceError(w, err, "failed to list submissions")
		return
	}
	writeJSON(w, http.StatusOK, SubmissionHistoryResponse{
		Items: newSubmissionResponses(items),
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// AcceptedProblems returns the ids of problems the caller has solved.
func (h *SubmissionHandler) AcceptedProblems(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ids, err := h.submissionService.GetUserAcceptedProblems(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to list accepted problems")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int{"problem_ids": ids})
}

func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "submissionID"), "submission id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	viewer, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	submission, err := h.submissionService.Get(r.Context(), id, viewer)
	if err != nil {
		writeServiceError(w, err, "failed to fetch submission")
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponse(submission))
}

func (h *SubmissionHandler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "submissionID"), "submission id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	viewer, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	if err := h.submissionService.Delete(r.Context(), id, viewer); err != nil {
		writeServiceError(w, err, "failed to delete submission")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubmissionHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (services.EvaluationRequest, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return services.EvaluationRequest{}, false
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return services.EvaluationRequest{}, false
	}
	if req.ProblemID < 1 {
		writeError(w, http.StatusBadRequest, "invalid problem id")
		return services.EvaluationRequest{}, false
	}

	return services.EvaluationRequest{
		UserID:    userID,
		ProblemID: req.ProblemID,
		Code:      req.Code,
		Language:  types.NormalizeLanguage(req.Language),
	}, true
}
