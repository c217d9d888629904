package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionKind is the audit label recorded for how a submission entered the system.
type SubmissionKind string

const (
	// SubmissionKindSubmit marks a graded submission ("Submission evaluated").
	SubmissionKindSubmit SubmissionKind = "submit"

	// SubmissionKindRun marks a code run ("Code run").
	SubmissionKindRun SubmissionKind = "run"
)

// AuditLabel returns the human-readable audit label for the kind.
func (k SubmissionKind) AuditLabel() string {
	if k == SubmissionKindRun {
		return "Code run"
	}
	return "Submission evaluated"
}

// Submission represents a user's submission to a problem.
// It contains source code, execution metadata, and the final judging outcome.
type Submission struct {
	// ID is the unique identifier of the submission.
	ID int64 `json:"id" db:"id"`

	// ProblemID identifies the problem this submission is for.
	ProblemID int `json:"problem_id" db:"problem_id"`

	// UserID identifies the user who made the submission.
	UserID int `json:"user_id" db:"user_id"`

	// Code is the source code submitted by the user.
	Code string `json:"code" db:"code"`

	// Language is the identifier of the programming language used.
	Language Language `json:"language" db:"language"`

	// Kind records whether the submission came from a submit or a run request.
	Kind SubmissionKind `json:"kind" db:"kind"`

	// Verdict is the outcome of judging the submission. It starts at Pending
	// (or Draft for autosaved code) and moves to a terminal value exactly once.
	Verdict Verdict `json:"verdict" db:"verdict"`

	// StatusID is the numeric status reported by the judge service.
	StatusID int `json:"status_id" db:"status_id"`

	// Stdout is the standard output produced by the program.
	Stdout string `json:"stdout" db:"stdout"`

	// Stderr is the standard error produced by the program.
	Stderr string `json:"stderr" db:"stderr"`

	// CompileOutput holds compiler diagnostics, or the failure message when
	// the submission ended in a system error.
	CompileOutput string `json:"compile_output" db:"compile_output"`

	// ExecutionTime is the execution time reported by the judge, in milliseconds.
	ExecutionTime int64 `json:"execution_time" db:"execution_time"`

	// Memory is the peak memory usage reported by the judge, in kilobytes.
	Memory int64 `json:"memory" db:"memory"`

	// Accepted is true only when the final verdict is Accepted.
	Accepted bool `json:"accepted" db:"accepted"`

	// JudgeToken is the opaque token returned by the judge on dispatch.
	JudgeToken string `json:"judge_token,omitempty" db:"judge_token"`

	// TestRun marks a privileged evaluation against sample data only.
	// Test runs are never persisted and never touch statistics.
	TestRun bool `json:"test_run" db:"-"`

	// CreatedAt is the timestamp when the submission was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp when the submission was last updated.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayVerdict returns the verdict label shown to users. Test runs are
// prefixed so they are never confused with graded results.
func (s Submission) DisplayVerdict() string {
	if s.TestRun {
		return "Test - " + s.Verdict.String()
	}
	return s.Verdict.String()
}

// Verdict represents the outcome of judging a submission.
type Verdict int

// Supported verdict values.
const (
	// VerdictPending indicates the submission has been received
	// but has not reached a terminal state yet.
	VerdictPending Verdict = iota

	// VerdictAccepted indicates the submission produced the expected output.
	VerdictAccepted

	// VerdictWrongAnswer indicates the submission produced incorrect output.
	VerdictWrongAnswer

	// VerdictTimeLimitExceeded indicates the submission exceeded the time limit.
	VerdictTimeLimitExceeded

	// VerdictRuntimeError indicates a runtime error occurred during execution.
	VerdictRuntimeError

	// VerdictCompilationError indicates the submission failed to compile.
	VerdictCompilationError

	// VerdictSystemError indicates the judge could not be reached or failed.
	VerdictSystemError

	// VerdictInternalError indicates the judge reported an internal failure.
	VerdictInternalError

	// VerdictDraft indicates autosaved code that has not been submitted.
	VerdictDraft
)

var verdictNames = map[Verdict]string{
	VerdictPending:           "Pending",
	VerdictAccepted:          "Accepted",
	VerdictWrongAnswer:       "Wrong Answer",
	VerdictTimeLimitExceeded: "Time Limit Exceeded",
	VerdictRuntimeError:      "Runtime Error",
	VerdictCompilationError:  "Compilation Error",
	VerdictSystemError:       "System Error",
	VerdictInternalError:     "Internal Error",
	VerdictDraft:             "Draft",
}

// String returns the human-readable verdict used in API responses and logs.
func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	_, ok := verdictNames[v]
	return ok
}

// IsTerminal reports whether the verdict is final.
func (v Verdict) IsTerminal() bool {
	return v.Valid() && v != VerdictPending && v != VerdictDraft
}

// ParseVerdict converts a human-readable verdict back into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	for v, name := range verdictNames {
		if name == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown verdict %q", s)
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
