package services

import (
	"errors"

	"github.com/dailyjudge/apiserver/internal/judge"
)

var (
	ErrProblemNotFound     = errors.New("problem not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoProblemsAvailable = errors.New("no problems available for a daily challenge")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrInvalidProblem      = errors.New("invalid problem")

	// ErrSubmissionNotFound is returned when a submission does not exist or
	// is not visible to the caller.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// IsRetryable reports whether err came from the judge side of an evaluation.
// Callers show these as a failure the user may retry rather than as a verdict.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var upstream *judge.UpstreamError
	return errors.As(err, &upstream) ||
		errors.Is(err, judge.ErrConfiguration) ||
		errors.Is(err, judge.ErrExecutionTimeout)
}
