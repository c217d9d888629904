package types

import (
	"strings"
	"time"
)

// Roles recognised by the platform.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role indicates the user's authorization level or role
	// within the system (e.g., "admin", "user").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Stats holds the user's solving statistics.
	Stats UserStats `json:"stats" db:"-"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsPrivileged reports whether the user evaluates code as a test run.
func (u User) IsPrivileged() bool {
	role := strings.ToLower(strings.TrimSpace(u.Role))
	return role == RoleAdmin || role == RoleSuperAdmin
}

// UserStats are the aggregate counters embedded in a user.
type UserStats struct {
	SolvedProblemsCount      int `json:"solved_problems_count" db:"solved_problems_count"`
	TotalSubmissionsCount    int `json:"total_submissions_count" db:"total_submissions_count"`
	AcceptedSubmissionsCount int `json:"accepted_submissions_count" db:"accepted_submissions_count"`
	EasyProblemsSolved       int `json:"easy_problems_solved" db:"easy_problems_solved"`
	MediumProblemsSolved     int `json:"medium_problems_solved" db:"medium_problems_solved"`
	HardProblemsSolved       int `json:"hard_problems_solved" db:"hard_problems_solved"`

	// RankPoints is derived from the per-difficulty counts; see RecomputeRankPoints.
	RankPoints int `json:"rank_points" db:"rank_points"`

	CurrentStreak int `json:"current_streak" db:"current_streak"`
	LongestStreak int `json:"longest_streak" db:"longest_streak"`

	LastSubmissionDate *time.Time `json:"last_submission_date,omitempty" db:"last_submission_date"`
	LastActiveDate     *time.Time `json:"last_active_date,omitempty" db:"last_active_date"`
}

// CreditFirstSolve counts a first acceptance for a problem of the given difficulty.
func (s *UserStats) CreditFirstSolve(d Difficulty) {
	s.SolvedProblemsCount++
	switch d {
	case DifficultyEasy:
		s.EasyProblemsSolved++
	case DifficultyMedium:
		s.MediumProblemsSolved++
	case DifficultyHard:
		s.HardProblemsSolved++
	}
	s.RecomputeRankPoints()
}

// RecomputeRankPoints derives rank points from the per-difficulty counts.
func (s *UserStats) RecomputeRankPoints() {
	s.RankPoints = s.EasyProblemsSolved*DifficultyEasy.Weight() +
		s.MediumProblemsSolved*DifficultyMedium.Weight() +
		s.HardProblemsSolved*DifficultyHard.Weight()
}

// RecordActivity applies the streak law for a submission made at now and
// moves the last submission and activity dates forward.
//
// Days are UTC calendar days: a one day gap extends the streak, a larger gap
// restarts it at 1, and a second submission on the same day changes nothing.
func (s *UserStats) RecordActivity(now time.Time) {
	today := StartOfDayUTC(now)
	switch {
	case s.LastSubmissionDate == nil:
		s.CurrentStreak = 1
	default:
		gap := int(today.Sub(StartOfDayUTC(*s.LastSubmissionDate)).Hours() / 24)
		switch {
		case gap == 1:
			s.CurrentStreak++
		case gap > 1:
			s.CurrentStreak = 1
		case s.CurrentStreak == 0:
			s.CurrentStreak = 1
		}
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}

	at := now.UTC()
	if s.LastSubmissionDate == nil || at.After(*s.LastSubmissionDate) {
		s.LastSubmissionDate = &at
	}
	s.LastActiveDate = &at
}

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
