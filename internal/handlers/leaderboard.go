package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dailyjudge/apiserver/internal/leaderboard"
	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// RankReader reads the cached global ranking.
type RankReader interface {
	Top(ctx context.Context, n int) ([]leaderboard.Standing, error)
}

// LeaderboardHandler serves the global rank-points leaderboard. The cache is
// optional; the database is used when it is absent, failing or short.
type LeaderboardHandler struct {
	cache       RankReader
	userService *services.UserService
	logger      *zap.Logger
}

func NewLeaderboardHandler(cache RankReader, userService *services.UserService, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{cache: cache, userService: userService, logger: logger}
}

func LeaderboardRouter(r chi.Router, cache RankReader, userService *services.UserService, logger *zap.Logger) {
	handler := NewLeaderboardHandler(cache, userService, logger)
	r.Get("/", handler.Top)
}

// LeaderboardResponse lists the top standings and where they were read from.
type LeaderboardResponse struct {
	Items  []leaderboard.Standing `json:"items"`
	Source string                 `json:"source"`
}

func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxLeaderboardSize)
	}

	if h.cache != nil {
		// A short page may mean the set is still missing users, so only a
		// full page is trusted.
		standings, err := h.cache.Top(r.Context(), limit)
		if err == nil && len(standings) >= limit {
			writeJSON(w, http.StatusOK, LeaderboardResponse{Items: standings, Source: "cache"})
			return
		}
		if err != nil {
			h.logger.Warn("leaderboard cache read failed", zap.Error(err))
		}
	}

	users, err := h.userService.TopByRankPoints(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err, "failed to load leaderboard")
		return
	}
	standings := make([]leaderboard.Standing, 0, len(users))
	for i, user := range users {
		standings = append(standings, leaderboard.Standing{
			Rank:       i + 1,
			UserID:     user.ID,
			RankPoints: user.Stats.RankPoints,
		})
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Items: standings, Source: "database"})
}
