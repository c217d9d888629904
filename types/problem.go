package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Difficulty is the coarse difficulty tier of a problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Weight returns the rank points awarded for the first solve of a problem
// with this difficulty.
func (d Difficulty) Weight() int {
	switch d {
	case DifficultyEasy:
		return 10
	case DifficultyMedium:
		return 25
	case DifficultyHard:
		return 50
	default:
		return 0
	}
}

// ParseDifficulty accepts a difficulty name in any letter case.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", raw)
	}
}

// Problem represents a coding problem in the catalog.
// It contains metadata, the sample data sent to the judge, and
// aggregate submission statistics.
type Problem struct {
	// ID is the unique identifier of the problem.
	ID int `json:"id" db:"id"`

	// Title is the human-readable name of the problem.
	Title string `json:"title" db:"title"`

	// Description contains the full problem statement, including
	// input/output specifications and examples.
	Description string `json:"description" db:"description"`

	// Difficulty is the difficulty tier used for rank points and
	// daily challenge rotation.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// SampleInput is the stdin sent to the judge for every evaluation.
	SampleInput string `json:"sample_input" db:"sample_input"`

	// SampleOutput is the expected stdout the judge compares against.
	SampleOutput string `json:"sample_output" db:"sample_output"`

	// TimeLimit is the maximum allowed execution time, in milliseconds.
	TimeLimit int64 `json:"time_limit" db:"time_limit"`

	// MemoryLimit is the maximum allowed memory usage, in kilobytes.
	MemoryLimit int64 `json:"memory_limit" db:"memory_limit"`

	// Tags are free-form labels associated with the problem, used for
	// categorization, filtering, and search.
	Tags []string `json:"tags" db:"tags"`

	// Stats holds aggregate submission counters.
	Stats ProblemStats `json:"stats" db:"-"`

	// CreatedAt is the timestamp at which the problem was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the problem.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProblemStats is the monotonic counter pair maintained per problem.
type ProblemStats struct {
	TotalSubmissions    int     `json:"total_submissions" db:"total_submissions"`
	AcceptedSubmissions int     `json:"accepted_submissions" db:"accepted_submissions"`
	AcceptanceRate      float64 `json:"acceptance_rate" db:"acceptance_rate"`
}

// Record counts one terminal evaluation and refreshes the acceptance rate.
func (s *ProblemStats) Record(accepted bool) {
	s.TotalSubmissions++
	if accepted {
		s.AcceptedSubmissions++
	}
	s.AcceptanceRate = percent(s.AcceptedSubmissions, s.TotalSubmissions)
}

// percent returns part/total*100 rounded to two decimals.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
