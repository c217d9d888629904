package types

import (
	"sort"
	"time"
)

// DailyChallenge is the featured problem for one UTC calendar date.
type DailyChallenge struct {
	// ID is the unique identifier of the challenge.
	ID int `json:"id" db:"id"`

	// Date is midnight UTC of the day the challenge is featured. Unique.
	Date time.Time `json:"date" db:"date"`

	// ProblemID references the featured problem.
	ProblemID int `json:"problem_id" db:"problem_id"`

	// Difficulty is the difficulty tier picked by the rotation.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// TotalAttempts counts every accepted submission against the featured
	// problem on this day, including repeat solves by the same user.
	TotalAttempts int `json:"total_attempts" db:"total_attempts"`

	// TotalCompletions counts distinct users who completed the challenge.
	TotalCompletions int `json:"total_completions" db:"total_completions"`

	// CompletionRate is TotalCompletions/TotalAttempts*100, two decimals.
	CompletionRate float64 `json:"completion_rate" db:"completion_rate"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// Completions holds at most one entry per user.
	Completions []ChallengeCompletion `json:"completions" db:"completions"`

	// Leaderboard is ordered by CompletedAt ascending with dense ranks 1..N.
	Leaderboard []LeaderboardEntry `json:"leaderboard" db:"leaderboard"`

	// Version is bumped on every write.
	Version int `json:"-" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChallengeCompletion records a user's completion of a daily challenge.
type ChallengeCompletion struct {
	UserID       int       `json:"user_id"`
	CompletedAt  time.Time `json:"completed_at"`
	SubmissionID int64     `json:"submission_id"`
	Attempts     int       `json:"attempts"`
}

// LeaderboardEntry is one row of the per-challenge leaderboard.
type LeaderboardEntry struct {
	UserID        int       `json:"user_id"`
	CompletedAt   time.Time `json:"completed_at"`
	ExecutionTime int64     `json:"execution_time"`
	Language      Language  `json:"language"`
	Rank          int       `json:"rank"`
}

// CompletionFor returns the user's completion entry, if any.
func (c *DailyChallenge) CompletionFor(userID int) (ChallengeCompletion, bool) {
	for _, completion := range c.Completions {
		if completion.UserID == userID {
			return completion, true
		}
	}
	return ChallengeCompletion{}, false
}

// RecordAccepted applies an accepted submission against the featured problem.
// It reports whether a new completion was created. A repeat solve only bumps
// the user's attempts counter and leaves the leaderboard untouched.
func (c *DailyChallenge) RecordAccepted(userID int, submissionID int64, executionTime int64, language Language, now time.Time) bool {
	c.TotalAttempts++
	defer c.recomputeRate()

	for i := range c.Completions {
		if c.Completions[i].UserID == userID {
			c.Completions[i].Attempts++
			return false
		}
	}

	at := now.UTC()
	c.Completions = append(c.Completions, ChallengeCompletion{
		UserID:       userID,
		CompletedAt:  at,
		SubmissionID: submissionID,
		Attempts:     1,
	})
	c.TotalCompletions++
	c.Leaderboard = append(c.Leaderboard, LeaderboardEntry{
		UserID:        userID,
		CompletedAt:   at,
		ExecutionTime: executionTime,
		Language:      language,
	})
	c.Rerank()
	return true
}

// Rerank sorts the whole leaderboard by completion time and reassigns ranks.
func (c *DailyChallenge) Rerank() {
	sort.SliceStable(c.Leaderboard, func(i, j int) bool {
		return c.Leaderboard[i].CompletedAt.Before(c.Leaderboard[j].CompletedAt)
	})
	for i := range c.Leaderboard {
		c.Leaderboard[i].Rank = i + 1
	}
}

// Expired reports whether the challenge is past its expiry at now.
func (c *DailyChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *DailyChallenge) recomputeRate() {
	c.CompletionRate = percent(c.TotalCompletions, c.TotalAttempts)
}

// RotationDifficulty returns the difficulty featured on the given date:
// Easy, Medium, Hard, Medium indexed by day of year modulo 4.
func RotationDifficulty(date time.Time) Difficulty {
	rotation := [...]Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMedium}
	return rotation[date.UTC().YearDay()%len(rotation)]
}
