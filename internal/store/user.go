package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dailyjudge/apiserver/types"
)

const userColumns = `id, username, email, name, role, password_hash,
		solved_problems_count, total_submissions_count, accepted_submissions_count,
		easy_problems_solved, medium_problems_solved, hard_problems_solved, rank_points,
		current_streak, longest_streak, last_submission_date, last_active_date,
		created_at, updated_at`

const userStatsColumns = `solved_problems_count, total_submissions_count, accepted_submissions_count,
		easy_problems_solved, medium_problems_solved, hard_problems_solved, rank_points,
		current_streak, longest_streak, last_submission_date, last_active_date`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func statsDest(stats *types.UserStats, lastSubmission, lastActive *sql.NullTime) []any {
	return []any{
		&stats.SolvedProblemsCount,
		&stats.TotalSubmissionsCount,
		&stats.AcceptedSubmissionsCount,
		&stats.EasyProblemsSolved,
		&stats.MediumProblemsSolved,
		&stats.HardProblemsSolved,
		&stats.RankPoints,
		&stats.CurrentStreak,
		&stats.LongestStreak,
		lastSubmission,
		lastActive,
	}
}

func applyNullTimes(stats *types.UserStats, lastSubmission, lastActive sql.NullTime) {
	stats.LastSubmissionDate = nil
	stats.LastActiveDate = nil
	if lastSubmission.Valid {
		t := lastSubmission.Time.UTC()
		stats.LastSubmissionDate = &t
	}
	if lastActive.Valid {
		t := lastActive.Time.UTC()
		stats.LastActiveDate = &t
	}
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var lastSubmission, lastActive sql.NullTime
	dest := []any{
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.PasswordHash,
	}
	dest = append(dest, statsDest(&user.Stats, &lastSubmission, &lastActive)...)
	dest = append(dest, &user.CreatedAt, &user.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return types.User{}, err
	}
	applyNullTimes(&user.Stats, lastSubmission, lastActive)
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Stats = types.UserStats{}

	const query = `
		INSERT INTO users (username, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// Update writes profile fields only; statistics go through ApplyVerdict.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			name = $3,
			role = $4,
			password_hash = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Name,
		user.Role,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
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

// ApplyVerdict updates a user's statistics for one terminal submission inside a
// single transaction holding the user row lock.
//
// For accepted submissions the (user, problem) solve is recorded in
// user_solved_problems unless it is already there or an earlier accepted
// submission for the pair exists; fn learns whether this submission earned the
// first-acceptance credit. Concurrent evaluations for the same user serialise
// on the row lock, so the credit is granted at most once.
func (r *UserRepository) ApplyVerdict(
	ctx context.Context,
	userID, problemID int,
	submissionID int64,
	accepted bool,
	fn func(stats *types.UserStats, firstAcceptance bool) error,
) (types.UserStats, error) {
	var stats types.UserStats
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var lastSubmission, lastActive sql.NullTime
		selectQuery := `SELECT ` + userStatsColumns + ` FROM users WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, selectQuery, userID).Scan(statsDest(&stats, &lastSubmission, &lastActive)...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		applyNullTimes(&stats, lastSubmission, lastActive)

		firstAcceptance := false
		if accepted {
			const creditQuery = `
				INSERT INTO user_solved_problems (user_id, problem_id, submission_id, solved_at)
				SELECT $1, $2, $3, $4
				WHERE NOT EXISTS (
					SELECT 1 FROM submissions
					WHERE user_id = $1 AND problem_id = $2 AND accepted AND id < $3
				)
				ON CONFLICT (user_id, problem_id) DO NOTHING`
			result, err := tx.ExecContext(ctx, creditQuery, userID, problemID, submissionID, time.Now())
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			firstAcceptance = affected == 1
		}

		if err := fn(&stats, firstAcceptance); err != nil {
			return err
		}

		const updateQuery = `
			UPDATE users
			SET solved_problems_count = $1,
				total_submissions_count = $2,
				accepted_submissions_count = $3,
				easy_problems_solved = $4,
				medium_problems_solved = $5,
				hard_problems_solved = $6,
				rank_points = $7,
				current_streak = $8,
				longest_streak = $9,
				last_submission_date = $10,
				last_active_date = $11,
				updated_at = $12
			WHERE id = $13`
		_, err := tx.ExecContext(ctx, updateQuery,
			stats.SolvedProblemsCount,
			stats.TotalSubmissionsCount,
			stats.AcceptedSubmissionsCount,
			stats.EasyProblemsSolved,
			stats.MediumProblemsSolved,
			stats.HardProblemsSolved,
			stats.RankPoints,
			stats.CurrentStreak,
			stats.LongestStreak,
			nullTime(stats.LastSubmissionDate),
			nullTime(stats.LastActiveDate),
			time.Now(),
			userID,
		)
		return err
	})
	if err != nil {
		return types.UserStats{}, err
	}
	return stats, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// TopByRankPoints returns the n users with the most rank points.
func (r *UserRepository) TopByRankPoints(ctx context.Context, n int) ([]types.User, error) {
	if n < 1 {
		return []types.User{}, nil
	}
	query := `SELECT ` + userColumns + `
		FROM users
		ORDER BY rank_points DESC, id
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0, n)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
