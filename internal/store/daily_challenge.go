package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dailyjudge/apiserver/types"
)

const dailyChallengeColumns = `id, date, problem_id, difficulty, total_attempts, total_completions,
		completion_rate, is_active, expires_at, completions, leaderboard, version,
		created_at, updated_at`

// DailyChallengeRepository handles persistence for daily challenges.
type DailyChallengeRepository struct {
	db *sql.DB
}

func NewDailyChallengeRepository(db *sql.DB) *DailyChallengeRepository {
	return &DailyChallengeRepository{db: db}
}

func scanDailyChallenge(row rowScanner) (types.DailyChallenge, error) {
	var challenge types.DailyChallenge
	var completionsJSON, leaderboardJSON []byte
	err := row.Scan(
		&challenge.ID,
		&challenge.Date,
		&challenge.ProblemID,
		&challenge.Difficulty,
		&challenge.TotalAttempts,
		&challenge.TotalCompletions,
		&challenge.CompletionRate,
		&challenge.IsActive,
		&challenge.ExpiresAt,
		&completionsJSON,
		&leaderboardJSON,
		&challenge.Version,
		&challenge.CreatedAt,
		&challenge.UpdatedAt,
	)
	if err != nil {
		return types.DailyChallenge{}, err
	}
	challenge.Date = types.StartOfDayUTC(challenge.Date)
	if err := json.Unmarshal(completionsJSON, &challenge.Completions); err != nil {
		return types.DailyChallenge{}, err
	}
	if err := json.Unmarshal(leaderboardJSON, &challenge.Leaderboard); err != nil {
		return types.DailyChallenge{}, err
	}
	return challenge, nil
}

// GetByDate returns the challenge featured on the UTC day containing date.
func (r *DailyChallengeRepository) GetByDate(ctx context.Context, date time.Time) (types.DailyChallenge, error) {
	query := `SELECT ` + dailyChallengeColumns + ` FROM daily_challenges WHERE date = $1`
	challenge, err := scanDailyChallenge(r.db.QueryRowContext(ctx, query, types.StartOfDayUTC(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.DailyChallenge{}, ErrNotFound
		}
		return types.DailyChallenge{}, err
	}
	return challenge, nil
}

// Create inserts the challenge for its date. When another writer created the
// date first, the stored challenge is returned and created is false.
func (r *DailyChallengeRepository) Create(ctx context.Context, challenge types.DailyChallenge) (types.DailyChallenge, bool, error) {
	now := time.Now()
	challenge.Date = types.StartOfDayUTC(challenge.Date)
	challenge.CreatedAt = now
	challenge.UpdatedAt = now
	challenge.Version = 1

	completionsJSON, leaderboardJSON, err := marshalChallengeLists(challenge)
	if err != nil {
		return types.DailyChallenge{}, false, err
	}

	const query = `
		INSERT INTO daily_challenges (
			date, problem_id, difficulty, total_attempts, total_completions,
			completion_rate, is_active, expires_at, completions, leaderboard, version,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (date) DO NOTHING
		RETURNING id`
	err = r.db.QueryRowContext(
		ctx,
		query,
		challenge.Date,
		challenge.ProblemID,
		challenge.Difficulty,
		challenge.TotalAttempts,
		challenge.TotalCompletions,
		challenge.CompletionRate,
		challenge.IsActive,
		challenge.ExpiresAt,
		completionsJSON,
		leaderboardJSON,
		challenge.Version,
		challenge.CreatedAt,
		challenge.UpdatedAt,
	).Scan(&challenge.ID)
	if err == nil {
		return challenge, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.DailyChallenge{}, false, err
	}

	existing, err := r.GetByDate(ctx, challenge.Date)
	if err != nil {
		return types.DailyChallenge{}, false, err
	}
	return existing, false, nil
}

// Update locks the challenge row for date, applies fn and writes the result
// in the same transaction, so concurrent completions queue on the row lock
// instead of overwriting each other. If fn reports changed == false nothing
// is written.
func (r *DailyChallengeRepository) Update(
	ctx context.Context,
	date time.Time,
	fn func(challenge *types.DailyChallenge) (changed bool, err error),
) (types.DailyChallenge, error) {
	var challenge types.DailyChallenge
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `SELECT ` + dailyChallengeColumns + ` FROM daily_challenges WHERE date = $1 FOR UPDATE`
		var err error
		challenge, err = scanDailyChallenge(tx.QueryRowContext(ctx, query, types.StartOfDayUTC(date)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		changed, err := fn(&challenge)
		if err != nil || !changed {
			return err
		}

		completionsJSON, leaderboardJSON, err := marshalChallengeLists(challenge)
		if err != nil {
			return err
		}
		updatedAt := time.Now()
		const updateQuery = `
			UPDATE daily_challenges
			SET total_attempts = $1,
				total_completions = $2,
				completion_rate = $3,
				is_active = $4,
				completions = $5,
				leaderboard = $6,
				version = version + 1,
				updated_at = $7
			WHERE id = $8`
		_, err = tx.ExecContext(
			ctx,
			updateQuery,
			challenge.TotalAttempts,
			challenge.TotalCompletions,
			challenge.CompletionRate,
			challenge.IsActive,
			completionsJSON,
			leaderboardJSON,
			updatedAt,
			challenge.ID,
		)
		if err != nil {
			return err
		}
		challenge.Version++
		challenge.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return types.DailyChallenge{}, err
	}
	return challenge, nil
}

// RecentProblemIDs returns the problems featured on or after since.
func (r *DailyChallengeRepository) RecentProblemIDs(ctx context.Context, since time.Time) ([]int, error) {
	const query = `SELECT DISTINCT problem_id FROM daily_challenges WHERE date >= $1`
	rows, err := r.db.QueryContext(ctx, query, types.StartOfDayUTC(since))
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

// DeactivateExpired clears is_active on every active challenge whose expiry
// is at or before now and returns how many rows changed.
func (r *DailyChallengeRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE daily_challenges
		SET is_active = FALSE,
			version = version + 1,
			updated_at = $1
		WHERE is_active AND expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func marshalChallengeLists(challenge types.DailyChallenge) ([]byte, []byte, error) {
	completions := challenge.Completions
	if completions == nil {
		completions = []types.ChallengeCompletion{}
	}
	leaderboard := challenge.Leaderboard
	if leaderboard == nil {
		leaderboard = []types.LeaderboardEntry{}
	}

	completionsJSON, err := json.Marshal(completions)
	if err != nil {
		return nil, nil, err
	}
	leaderboardJSON, err := json.Marshal(leaderboard)
	if err != nil {
		return nil, nil, err
	}
	return completionsJSON, leaderboardJSON, nil
}
