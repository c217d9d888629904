package handlers

import (
	"net/http"

	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// DailyChallengeHandler serves the featured problem of the day.
type DailyChallengeHandler struct {
	dailyChallengeService *services.DailyChallengeService
}

func NewDailyChallengeHandler(dailyChallengeService *services.DailyChallengeService) *DailyChallengeHandler {
	return &DailyChallengeHandler{dailyChallengeService: dailyChallengeService}
}

// DailyChallengeRouter registers daily challenge routes.
func DailyChallengeRouter(
	r chi.Router,
	dailyChallengeService *services.DailyChallengeService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewDailyChallengeHandler(dailyChallengeService)
	r.With(authMiddleware).Get("/today", handler.Today)
}

// Today returns today's challenge with the caller's completion state.
func (h *DailyChallengeHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	today, err := h.dailyChallengeService.GetToday(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to load daily challenge")
		return
	}
	writeJSON(w, http.StatusOK, today)
}
