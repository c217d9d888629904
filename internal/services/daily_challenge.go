package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dailyjudge/apiserver/internal/metrics"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
	"go.uber.org/zap"
)

const (
	challengeLifetime    = 24 * time.Hour
	challengeReuseWindow = 30
)

// DailyChallengeRepository defines persistence operations for daily challenges.
type DailyChallengeRepository interface {
	GetByDate(ctx context.Context, date time.Time) (types.DailyChallenge, error)
	Create(ctx context.Context, challenge types.DailyChallenge) (types.DailyChallenge, bool, error)
	Update(
		ctx context.Context,
		date time.Time,
		fn func(challenge *types.DailyChallenge) (bool, error),
	) (types.DailyChallenge, error)
	RecentProblemIDs(ctx context.Context, since time.Time) ([]int, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// AcceptedSubmission is the slice of an accepted submission the daily
// challenge cares about.
type AcceptedSubmission struct {
	UserID        int
	SubmissionID  int64
	ProblemID     int
	ExecutionTime int64
	Language      types.Language
}

// CompletionResult describes the challenge state after an accepted submission
// for the featured problem.
type CompletionResult struct {
	Challenge     types.DailyChallenge      `json:"challenge"`
	Completion    types.ChallengeCompletion `json:"completion"`
	NewCompletion bool                      `json:"new_completion"`
	Rank          int                       `json:"rank"`
}

// ChallengeSummary is the public view of a challenge. Completion records,
// which name other users' submissions, are left out.
type ChallengeSummary struct {
	ID               int                      `json:"id"`
	Date             time.Time                `json:"date"`
	ProblemID        int                      `json:"problem_id"`
	Difficulty       types.Difficulty         `json:"difficulty"`
	TotalAttempts    int                      `json:"total_attempts"`
	TotalCompletions int                      `json:"total_completions"`
	CompletionRate   float64                  `json:"completion_rate"`
	IsActive         bool                     `json:"is_active"`
	ExpiresAt        time.Time                `json:"expires_at"`
	Leaderboard      []types.LeaderboardEntry `json:"leaderboard"`
}

func summarize(c types.DailyChallenge) ChallengeSummary {
	leaderboard := c.Leaderboard
	if leaderboard == nil {
		leaderboard = []types.LeaderboardEntry{}
	}
	return ChallengeSummary{
		ID:               c.ID,
		Date:             c.Date,
		ProblemID:        c.ProblemID,
		Difficulty:       c.Difficulty,
		TotalAttempts:    c.TotalAttempts,
		TotalCompletions: c.TotalCompletions,
		CompletionRate:   c.CompletionRate,
		IsActive:         c.IsActive,
		ExpiresAt:        c.ExpiresAt,
		Leaderboard:      leaderboard,
	}
}

// TodayChallenge is the read model returned for today's challenge.
type TodayChallenge struct {
	Challenge ChallengeSummary `json:"challenge"`
	Problem   types.Problem    `json:"problem"`
	Completed bool             `json:"completed"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	Rank        int        `json:"rank,omitempty"`
}

// DailyChallengeService owns the daily challenge aggregate.
type DailyChallengeService struct {
	challenges DailyChallengeRepository
	problems   ProblemRepository
	logger     *zap.Logger
	now        func() time.Time
	pick       func(n int) int
}

func NewDailyChallengeService(challenges DailyChallengeRepository, problems ProblemRepository, logger *zap.Logger) *DailyChallengeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyChallengeService{
		challenges: challenges,
		problems:   problems,
		logger:     logger,
		now:        time.Now,
		pick:       rand.IntN,
	}
}

// OnAccepted reconciles an accepted submission with today's challenge.
//
// It returns nil without touching the challenge when the submission is for a
// different problem. The completion append and the leaderboard re-rank are
// written together in one compare-and-swap.
func (s *DailyChallengeService) OnAccepted(ctx context.Context, sub AcceptedSubmission) (*CompletionResult, error) {
	now := s.now().UTC()
	challenge, err := s.GenerateIfAbsent(ctx, now)
	if err != nil {
		return nil, err
	}
	if challenge.ProblemID != sub.ProblemID {
		return nil, nil
	}

	var created bool
	updated, err := s.challenges.Update(ctx, challenge.Date, func(c *types.DailyChallenge) (bool, error) {
		created = c.RecordAccepted(sub.UserID, sub.SubmissionID, sub.ExecutionTime, sub.Language, now)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("record daily challenge completion: %w", err)
	}

	if created {
		metrics.DailyChallengeCompletions.Inc()
		s.logger.Info("daily challenge completed",
			zap.Int("user_id", sub.UserID),
			zap.Int64("submission_id", sub.SubmissionID),
			zap.Time("date", updated.Date),
		)
	}

	completion, _ := updated.CompletionFor(sub.UserID)
	return &CompletionResult{
		Challenge:     updated,
		Completion:    completion,
		NewCompletion: created,
		Rank:          rankOf(updated, sub.UserID),
	}, nil
}

// GetToday returns today's challenge, generating it when absent, together
// with the user's completion state.
func (s *DailyChallengeService) GetToday(ctx context.Context, userID int) (TodayChallenge, error) {
	challenge, err := s.GenerateIfAbsent(ctx, s.now())
	if err != nil {
		return TodayChallenge{}, err
	}

	problem, err := s.problems.Get(ctx, challenge.ProblemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TodayChallenge{}, ErrProblemNotFound
		}
		return TodayChallenge{}, err
	}

	today := TodayChallenge{Challenge: summarize(challenge), Problem: problem}
	if completion, ok := challenge.CompletionFor(userID); ok {
		completedAt := completion.CompletedAt
		today.Completed = true
		today.CompletedAt = &completedAt
		today.Attempts = completion.Attempts
		today.Rank = rankOf(challenge, userID)
	}
	return today, nil
}

// GenerateIfAbsent returns the challenge for date's UTC day, creating it when
// none exists. The difficulty follows the day-of-year rotation and problems
// featured in the trailing 30 days are skipped while alternatives exist.
func (s *DailyChallengeService) GenerateIfAbsent(ctx context.Context, date time.Time) (types.DailyChallenge, error) {
	day := types.StartOfDayUTC(date)
	existing, err := s.challenges.GetByDate(ctx, day)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.DailyChallenge{}, err
	}

	difficulty := types.RotationDifficulty(day)
	recent, err := s.challenges.RecentProblemIDs(ctx, day.AddDate(0, 0, -challengeReuseWindow))
	if err != nil {
		return types.DailyChallenge{}, err
	}

	problemID, err := s.pickProblem(ctx, difficulty, recent)
	if err != nil {
		return types.DailyChallenge{}, err
	}
	problem, err := s.problems.Get(ctx, problemID)
	if err != nil {
		return types.DailyChallenge{}, err
	}

	challenge, created, err := s.challenges.Create(ctx, types.DailyChallenge{
		Date:        day,
		ProblemID:   problem.ID,
		Difficulty:  problem.Difficulty,
		IsActive:    true,
		ExpiresAt:   day.Add(challengeLifetime),
		Completions: []types.ChallengeCompletion{},
		Leaderboard: []types.LeaderboardEntry{},
	})
	if err != nil {
		return types.DailyChallenge{}, err
	}
	if created {
		s.logger.Info("daily challenge generated",
			zap.Time("date", day),
			zap.Int("problem_id", challenge.ProblemID),
			zap.String("difficulty", string(challenge.Difficulty)),
		)
	}
	return challenge, nil
}

// pickProblem chooses a random problem, relaxing the filters in order: the
// rotation difficulty without recent problems, the rotation difficulty, any
// problem.
func (s *DailyChallengeService) pickProblem(ctx context.Context, difficulty types.Difficulty, recent []int) (int, error) {
	attempts := []struct {
		difficulty types.Difficulty
		exclude    []int
	}{
		{difficulty, recent},
		{difficulty, nil},
		{"", nil},
	}
	for _, attempt := range attempts {
		ids, err := s.problems.ListIDsByDifficulty(ctx, attempt.difficulty, attempt.exclude)
		if err != nil {
			return 0, err
		}
		if len(ids) > 0 {
			return ids[s.pick(len(ids))], nil
		}
	}
	return 0, ErrNoProblemsAvailable
}

// DeactivateExpired marks every challenge past its expiry as inactive.
func (s *DailyChallengeService) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.challenges.DeactivateExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("deactivated expired daily challenges", zap.Int64("count", count))
	}
	return count, nil
}

func rankOf(challenge types.DailyChallenge, userID int) int {
	for _, entry := range challenge.Leaderboard {
		if entry.UserID == userID {
			return entry.Rank
		}
	}
	return 0
}
