package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dailyjudge/apiserver/internal/judge"
	"github.com/dailyjudge/apiserver/internal/metrics"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
	"go.uber.org/zap"
)

// Judge is the code-execution service used by evaluations.
type Judge interface {
	Submit(ctx context.Context, sub judge.Submission) (string, error)
	Await(ctx context.Context, token string) (judge.Result, error)
	Execute(ctx context.Context, sub judge.Submission) (string, judge.Result, error)
}

// UserStatsUpdater receives every terminal verdict for a user.
type UserStatsUpdater interface {
	OnTerminalVerdict(ctx context.Context, userID, problemID int, accepted bool, submissionID int64) error
}

// ProblemStatsUpdater receives every terminal verdict for a problem.
type ProblemStatsUpdater interface {
	OnTerminalVerdict(ctx context.Context, problemID int, accepted bool) error
}

// ChallengeReconciler receives accepted submissions.
type ChallengeReconciler interface {
	OnAccepted(ctx context.Context, sub AcceptedSubmission) (*CompletionResult, error)
}

// EvaluationRequest is a piece of code to judge against a problem.
type EvaluationRequest struct {
	UserID    int
	ProblemID int
	Code      string
	Language  types.Language
}

// EvaluationDeps are the collaborators of an EvaluationService. Events is optional.
type EvaluationDeps struct {
	Problems     ProblemRepository
	Users        UserRepository
	Submissions  SubmissionRepository
	Judge        Judge
	UserStats    UserStatsUpdater
	ProblemStats ProblemStatsUpdater
	Challenges   ChallengeReconciler
	Events       EventPublisher
	Logger       *zap.Logger
}

// EvaluationService drives a submission from Pending to its terminal verdict
// and fans the verdict out to the dependent aggregates.
type EvaluationService struct {
	problems     ProblemRepository
	users        UserRepository
	submissions  SubmissionRepository
	judge        Judge
	userStats    UserStatsUpdater
	problemStats ProblemStatsUpdater
	challenges   ChallengeReconciler
	events       EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

func NewEvaluationService(deps EvaluationDeps) *EvaluationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		problems:     deps.Problems,
		users:        deps.Users,
		submissions:  deps.Submissions,
		judge:        deps.Judge,
		userStats:    deps.UserStats,
		problemStats: deps.ProblemStats,
		challenges:   deps.Challenges,
		events:       deps.Events,
		logger:       logger,
		now:          time.Now,
	}
}

// Evaluate judges a graded submission.
func (s *EvaluationService) Evaluate(ctx context.Context, req EvaluationRequest) (types.Submission, error) {
	return s.evaluate(ctx, req, types.SubmissionKindSubmit)
}

// Run judges code exactly like Evaluate but records it as a code run.
func (s *EvaluationService) Run(ctx context.Context, req EvaluationRequest) (types.Submission, error) {
	return s.evaluate(ctx, req, types.SubmissionKindRun)
}

// SaveDraft stores autosaved code as the user's single draft for the problem.
// The draft stays mutable until the next Evaluate or Run promotes it.
func (s *EvaluationService) SaveDraft(ctx context.Context, req EvaluationRequest) (types.Submission, error) {
	problem, user, language, err := s.prepare(ctx, req)
	if err != nil {
		return types.Submission{}, err
	}

	draft, err := s.submissions.GetDraft(ctx, user.ID, problem.ID)
	if err == nil {
		draft, err = s.submissions.SaveDraftCode(ctx, draft.ID, req.Code, language)
		if err == nil {
			return draft, nil
		}
	}
	// ErrNotFound here also covers a draft promoted since it was read.
	if !errors.Is(err, store.ErrNotFound) {
		return types.Submission{}, err
	}

	return s.submissions.Create(ctx, types.Submission{
		ProblemID: problem.ID,
		UserID:    user.ID,
		Code:      req.Code,
		Language:  language,
		Kind:      types.SubmissionKindSubmit,
		Verdict:   types.VerdictDraft,
	})
}

func (s *EvaluationService) evaluate(ctx context.Context, req EvaluationRequest, kind types.SubmissionKind) (types.Submission, error) {
	problem, user, language, err := s.prepare(ctx, req)
	if err != nil {
		return types.Submission{}, err
	}

	// The evaluation outlives the request so its final state is always persisted.
	ctx = context.WithoutCancel(ctx)

	if user.IsPrivileged() {
		return s.testRun(ctx, problem, user, req.Code, language, kind)
	}

	submission, err := s.openSubmission(ctx, user.ID, problem.ID, req.Code, language, kind)
	if err != nil {
		return types.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	log := s.logger.With(
		zap.Int64("submission_id", submission.ID),
		zap.Int("user_id", user.ID),
		zap.Int("problem_id", problem.ID),
		zap.String("kind", string(kind)),
	)

	token, err := s.judge.Submit(ctx, judgeSubmission(problem, req.Code, language))
	if err != nil {
		return s.fail(ctx, log, submission, err)
	}
	submission.JudgeToken = token
	if updated, err := s.submissions.Update(ctx, submission); err != nil {
		log.Warn("failed to record judge token", zap.Error(err))
	} else {
		submission = updated
	}

	result, err := s.judge.Await(ctx, token)
	if err != nil {
		return s.fail(ctx, log, submission, err)
	}
	verdict, err := verdictFor(result)
	if err != nil {
		return s.fail(ctx, log, submission, err)
	}
	applyResult(&submission, result, verdict)

	saved, err := s.submissions.Update(ctx, submission)
	if err != nil {
		log.Error("failed to persist verdict", zap.Error(err))
		return submission, fmt.Errorf("persist verdict for submission %d: %w", submission.ID, err)
	}
	submission = saved

	metrics.EvaluationsTotal.WithLabelValues(string(kind), verdict.String()).Inc()
	log.Info(kind.AuditLabel(),
		zap.String("verdict", verdict.String()),
		zap.Int("status_id", submission.StatusID),
		zap.Int64("execution_time_ms", submission.ExecutionTime),
	)

	s.fanOut(ctx, log, submission)
	return submission, nil
}

func (s *EvaluationService) prepare(ctx context.Context, req EvaluationRequest) (types.Problem, types.User, types.Language, error) {
	if strings.TrimSpace(req.Code) == "" {
		return types.Problem{}, types.User{}, "", fmt.Errorf("%w: code is required", ErrInvalidSubmission)
	}

	problem, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Problem{}, types.User{}, "", ErrProblemNotFound
		}
		return types.Problem{}, types.User{}, "", err
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Problem{}, types.User{}, "", ErrUserNotFound
		}
		return types.Problem{}, types.User{}, "", err
	}

	language := types.NormalizeLanguage(string(req.Language))
	if !judge.Supported(language) {
		return types.Problem{}, types.User{}, "", fmt.Errorf("%w: %q", judge.ErrUnsupportedLanguage, req.Language)
	}
	return problem, user, language, nil
}

// openSubmission creates the Pending row, promoting the user's draft if one
// exists. When a concurrent request promotes the same draft first, this one
// records a fresh Pending row instead.
func (s *EvaluationService) openSubmission(
	ctx context.Context,
	userID, problemID int,
	code string,
	language types.Language,
	kind types.SubmissionKind,
) (types.Submission, error) {
	draft, err := s.submissions.GetDraft(ctx, userID, problemID)
	if err == nil {
		draft, err = s.submissions.PromoteDraft(ctx, draft.ID, code, language, kind)
		if err == nil {
			return draft, nil
		}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Submission{}, err
	}

	return s.submissions.Create(ctx, types.Submission{
		ProblemID: problemID,
		UserID:    userID,
		Code:      code,
		Language:  language,
		Kind:      kind,
		Verdict:   types.VerdictPending,
	})
}

// testRun judges a privileged user's code against the sample data. Nothing
// is persisted and no aggregate is touched.
func (s *EvaluationService) testRun(
	ctx context.Context,
	problem types.Problem,
	user types.User,
	code string,
	language types.Language,
	kind types.SubmissionKind,
) (types.Submission, error) {
	now := s.now()
	submission := types.Submission{
		ProblemID: problem.ID,
		UserID:    user.ID,
		Code:      code,
		Language:  language,
		Kind:      kind,
		Verdict:   types.VerdictPending,
		TestRun:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	log := s.logger.With(
		zap.Int("user_id", user.ID),
		zap.Int("problem_id", problem.ID),
		zap.Bool("test_run", true),
	)

	result, err := s.execute(ctx, &submission, problem)
	if err != nil {
		submission.Verdict = types.VerdictSystemError
		submission.CompileOutput = err.Error()
		log.Warn("test run failed", zap.Error(err))
		return submission, fmt.Errorf("test run: %w", err)
	}

	verdict, err := verdictFor(result)
	if err != nil {
		submission.Verdict = types.VerdictSystemError
		submission.CompileOutput = err.Error()
		return submission, fmt.Errorf("test run: %w", err)
	}
	applyResult(&submission, result, verdict)
	submission.UpdatedAt = s.now()

	metrics.EvaluationsTotal.WithLabelValues("test", verdict.String()).Inc()
	log.Info(kind.AuditLabel(), zap.String("verdict", submission.DisplayVerdict()))
	return submission, nil
}

func (s *EvaluationService) execute(ctx context.Context, submission *types.Submission, problem types.Problem) (judge.Result, error) {
	token, result, err := s.judge.Execute(ctx, judgeSubmission(problem, submission.Code, submission.Language))
	submission.JudgeToken = token
	return result, err
}

// fail moves the submission to System Error, keeps the failure text for the
// audit trail and returns the original error to the caller.
func (s *EvaluationService) fail(ctx context.Context, log *zap.Logger, submission types.Submission, cause error) (types.Submission, error) {
	submission.Verdict = types.VerdictSystemError
	submission.Accepted = false
	submission.CompileOutput = cause.Error()

	if saved, err := s.submissions.Update(ctx, submission); err != nil {
		log.Error("failed to persist system error", zap.Error(err))
	} else {
		submission = saved
	}

	metrics.EvaluationsTotal.WithLabelValues(string(submission.Kind), types.VerdictSystemError.String()).Inc()
	log.Error("evaluation failed", zap.Error(cause))
	return submission, fmt.Errorf("evaluate submission %d: %w", submission.ID, cause)
}

// fanOut notifies the aggregates in order. A failing step is logged and
// counted; it never stops the remaining steps.
func (s *EvaluationService) fanOut(ctx context.Context, log *zap.Logger, submission types.Submission) {
	step := func(updater string, fn func() error) {
		if err := fn(); err != nil {
			metrics.AggregateUpdateFailures.WithLabelValues(updater).Inc()
			log.Error("aggregate update failed", zap.String("updater", updater), zap.Error(err))
		}
	}

	step("user_stats", func() error {
		return s.userStats.OnTerminalVerdict(ctx, submission.UserID, submission.ProblemID, submission.Accepted, submission.ID)
	})
	step("problem_stats", func() error {
		return s.problemStats.OnTerminalVerdict(ctx, submission.ProblemID, submission.Accepted)
	})
	if submission.Accepted {
		step("daily_challenge", func() error {
			_, err := s.challenges.OnAccepted(ctx, AcceptedSubmission{
				UserID:        submission.UserID,
				SubmissionID:  submission.ID,
				ProblemID:     submission.ProblemID,
				ExecutionTime: submission.ExecutionTime,
				Language:      submission.Language,
			})
			return err
		})
	}
	if s.events != nil {
		step("events", func() error {
			return s.events.PublishEvaluated(ctx, newEvaluatedEvent(submission))
		})
	}
}

func judgeSubmission(problem types.Problem, code string, language types.Language) judge.Submission {
	return judge.Submission{
		Language:       language,
		SourceCode:     code,
		Stdin:          problem.SampleInput,
		ExpectedOutput: problem.SampleOutput,
	}
}

// verdictFor maps a terminal judge result to a verdict. An Accepted status
// the judge did not also flag as correct is downgraded to Wrong Answer.
func verdictFor(result judge.Result) (types.Verdict, error) {
	verdict, ok := judge.VerdictFor(result.Status.ID)
	if !ok {
		return types.VerdictSystemError, &judge.UpstreamError{
			Op:  "poll",
			Err: fmt.Errorf("%w %d", judge.ErrUnknownStatus, result.Status.ID),
		}
	}
	if verdict == types.VerdictAccepted && !result.Accepted {
		return types.VerdictWrongAnswer, nil
	}
	return verdict, nil
}

func applyResult(submission *types.Submission, result judge.Result, verdict types.Verdict) {
	submission.Verdict = verdict
	submission.Accepted = verdict == types.VerdictAccepted
	submission.StatusID = result.Status.ID
	submission.Stdout = result.Stdout
	submission.Stderr = result.Stderr
	submission.CompileOutput = result.CompileOutput
	submission.ExecutionTime = result.TimeMs
	submission.Memory = result.MemoryKb
}
