package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dailyjudge/apiserver/types"
)

const submissionColumns = `id, problem_id, user_id, code, language, kind, verdict, status_id,
		stdout, stderr, compile_output, execution_time, memory, accepted, judge_token,
		created_at, updated_at`

// SubmissionRepository handles persistence for submissions.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func scanSubmission(row rowScanner) (types.Submission, error) {
	var submission types.Submission
	err := row.Scan(
		&submission.ID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.Code,
		&submission.Language,
		&submission.Kind,
		&submission.Verdict,
		&submission.StatusID,
		&submission.Stdout,
		&submission.Stderr,
		&submission.CompileOutput,
		&submission.ExecutionTime,
		&submission.Memory,
		&submission.Accepted,
		&submission.JudgeToken,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)
	if err != nil {
		return types.Submission{}, err
	}
	return submission, nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id int64) (types.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}
	return submission, nil
}

// GetDraft returns the user's draft for a problem.
func (r *SubmissionRepository) GetDraft(ctx context.Context, userID, problemID int) (types.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND problem_id = $2 AND verdict = $3`
	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, userID, problemID, types.VerdictDraft))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}
	return submission, nil
}

func (r *SubmissionRepository) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	now := time.Now()
	submission.CreatedAt = now
	submission.UpdatedAt = now
	if submission.Kind == "" {
		submission.Kind = types.SubmissionKindSubmit
	}

	const query = `
		INSERT INTO submissions (
			problem_id, user_id, code, language, kind, verdict, status_id,
			stdout, stderr, compile_output, execution_time, memory, accepted, judge_token,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		submission.ProblemID,
		submission.UserID,
		submission.Code,
		submission.Language,
		submission.Kind,
		submission.Verdict,
		submission.StatusID,
		submission.Stdout,
		submission.Stderr,
		submission.CompileOutput,
		submission.ExecutionTime,
		submission.Memory,
		submission.Accepted,
		submission.JudgeToken,
		submission.CreatedAt,
		submission.UpdatedAt,
	).Scan(&submission.ID); err != nil {
		return types.Submission{}, err
	}

	return submission, nil
}

// Update overwrites a submission that is still Pending. Drafts change only
// through SaveDraftCode and PromoteDraft. Any other row is left untouched and
// ErrImmutable is returned.
func (r *SubmissionRepository) Update(ctx context.Context, submission types.Submission) (types.Submission, error) {
	submission.UpdatedAt = time.Now()

	const query = `
		UPDATE submissions
		SET code = $1,
			language = $2,
			kind = $3,
			verdict = $4,
			status_id = $5,
			stdout = $6,
			stderr = $7,
			compile_output = $8,
			execution_time = $9,
			memory = $10,
			accepted = $11,
			judge_token = $12,
			updated_at = $13
		WHERE id = $14 AND verdict = $15
		RETURNING created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		submission.Code,
		submission.Language,
		submission.Kind,
		submission.Verdict,
		submission.StatusID,
		submission.Stdout,
		submission.Stderr,
		submission.CompileOutput,
		submission.ExecutionTime,
		submission.Memory,
		submission.Accepted,
		submission.JudgeToken,
		submission.UpdatedAt,
		submission.ID,
		types.VerdictPending,
	).Scan(&submission.CreatedAt)
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Submission{}, err
	}

	var exists bool
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM submissions WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, existsQuery, submission.ID).Scan(&exists); err != nil {
		return types.Submission{}, err
	}
	if exists {
		return types.Submission{}, ErrImmutable
	}
	return types.Submission{}, ErrNotFound
}

// SaveDraftCode replaces the code of a row that is still a Draft.
// ErrNotFound is returned once the draft is gone or has been promoted.
func (r *SubmissionRepository) SaveDraftCode(ctx context.Context, id int64, code string, language types.Language) (types.Submission, error) {
	return r.rewriteDraft(ctx, id, code, language, types.SubmissionKindSubmit, types.VerdictDraft)
}

// PromoteDraft turns a Draft into a Pending submission of the given kind.
// The verdict guard lets exactly one caller win; the rest get ErrNotFound.
func (r *SubmissionRepository) PromoteDraft(
	ctx context.Context,
	id int64,
	code string,
	language types.Language,
	kind types.SubmissionKind,
) (types.Submission, error) {
	return r.rewriteDraft(ctx, id, code, language, kind, types.VerdictPending)
}

func (r *SubmissionRepository) rewriteDraft(
	ctx context.Context,
	id int64,
	code string,
	language types.Language,
	kind types.SubmissionKind,
	verdict types.Verdict,
) (types.Submission, error) {
	query := `
		UPDATE submissions
		SET code = $1,
			language = $2,
			kind = $3,
			verdict = $4,
			updated_at = $5
		WHERE id = $6 AND verdict = $7
		RETURNING ` + submissionColumns
	submission, err := scanSubmission(r.db.QueryRowContext(
		ctx, query, code, language, kind, verdict, time.Now(), id, types.VerdictDraft,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}
	return submission, nil
}

func (r *SubmissionRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM submissions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubmissionRepository) querySubmissions(ctx context.Context, query string, args ...any) ([]types.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]types.Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

// ListByUserProblem returns a user's non-draft submissions for one problem, newest first.
func (r *SubmissionRepository) ListByUserProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND problem_id = $2 AND verdict <> $3
		ORDER BY created_at DESC, id DESC`
	return r.querySubmissions(ctx, query, userID, problemID, types.VerdictDraft)
}

// ListByUser pages through a user's non-draft submissions, newest first.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Submission, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM submissions WHERE user_id = $1 AND verdict <> $2`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID, types.VerdictDraft).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND verdict <> $2
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4`
	submissions, err := r.querySubmissions(ctx, query, userID, types.VerdictDraft, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return submissions, total, nil
}

// AcceptedProblemIDs returns the distinct problems the user has an accepted submission for.
func (r *SubmissionRepository) AcceptedProblemIDs(ctx context.Context, userID int) ([]int, error) {
	const query = `
		SELECT DISTINCT problem_id
		FROM submissions
		WHERE user_id = $1 AND accepted
		ORDER BY problem_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
