package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
	"go.uber.org/zap"
)

// RankCache mirrors rank points into a fast global leaderboard.
type RankCache interface {
	Update(ctx context.Context, userID, points int) error
	Remove(ctx context.Context, userID int) error
	Replace(ctx context.Context, points map[int]int) error
}

// UserStatsService keeps the statistics embedded in a user current.
type UserStatsService struct {
	users    UserRepository
	problems ProblemRepository
	cache    RankCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewUserStatsService(users UserRepository, problems ProblemRepository, cache RankCache, logger *zap.Logger) *UserStatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserStatsService{
		users:    users,
		problems: problems,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// OnTerminalVerdict applies one terminal submission to the user's counters.
//
// Every call counts a submission and advances the activity streak. An accepted
// submission also counts as accepted, and the first accepted submission for a
// (user, problem) pair credits the solve to the problem's difficulty tier.
func (s *UserStatsService) OnTerminalVerdict(ctx context.Context, userID, problemID int, accepted bool, submissionID int64) error {
	problem, err := s.problems.Get(ctx, problemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProblemNotFound
		}
		return fmt.Errorf("load problem %d: %w", problemID, err)
	}

	now := s.now()
	stats, err := s.users.ApplyVerdict(ctx, userID, problemID, submissionID, accepted,
		func(stats *types.UserStats, firstAcceptance bool) error {
			stats.TotalSubmissionsCount++
			if accepted {
				stats.AcceptedSubmissionsCount++
				if firstAcceptance {
					stats.CreditFirstSolve(problem.Difficulty)
				}
			}
			stats.RecomputeRankPoints()
			stats.RecordActivity(now)
			return nil
		})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update stats for user %d: %w", userID, err)
	}

	if s.cache != nil {
		if err := s.cache.Update(ctx, userID, stats.RankPoints); err != nil {
			s.logger.Warn("failed to sync leaderboard cache",
				zap.Int("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// WarmCache rebuilds the leaderboard cache from the n best users in the
// database and reports how many were loaded. Without a cache it does nothing.
func (s *UserStatsService) WarmCache(ctx context.Context, n int) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	users, err := s.users.TopByRankPoints(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("load ranking: %w", err)
	}
	points := make(map[int]int, len(users))
	for _, user := range users {
		points[user.ID] = user.Stats.RankPoints
	}
	if err := s.cache.Replace(ctx, points); err != nil {
		return 0, fmt.Errorf("replace leaderboard cache: %w", err)
	}
	return len(points), nil
}

// ProblemStatsService keeps per-problem submission counters current.
type ProblemStatsService struct {
	problems ProblemRepository
	logger   *zap.Logger
}

func NewProblemStatsService(problems ProblemRepository, logger *zap.Logger) *ProblemStatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProblemStatsService{problems: problems, logger: logger}
}

// OnTerminalVerdict counts a terminal submission against the problem.
// A missing problem is ignored.
func (s *ProblemStatsService) OnTerminalVerdict(ctx context.Context, problemID int, accepted bool) error {
	err := s.problems.UpdateStats(ctx, problemID, func(stats *types.ProblemStats) error {
		stats.Record(accepted)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("skipping stats for missing problem", zap.Int("problem_id", problemID))
		return nil
	}
	return err
}
