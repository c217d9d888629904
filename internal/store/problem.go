package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dailyjudge/apiserver/types"
	"github.com/lib/pq"
)

const problemColumns = `id, title, description, difficulty, sample_input, sample_output,
		time_limit, memory_limit, tags, total_submissions, accepted_submissions,
		acceptance_rate, created_at, updated_at`

// ProblemRepository handles persistence for problems.
type ProblemRepository struct {
	db *sql.DB
}

func NewProblemRepository(db *sql.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(row rowScanner) (types.Problem, error) {
	var problem types.Problem
	var tagsJSON []byte
	err := row.Scan(
		&problem.ID,
		&problem.Title,
		&problem.Description,
		&problem.Difficulty,
		&problem.SampleInput,
		&problem.SampleOutput,
		&problem.TimeLimit,
		&problem.MemoryLimit,
		&tagsJSON,
		&problem.Stats.TotalSubmissions,
		&problem.Stats.AcceptedSubmissions,
		&problem.Stats.AcceptanceRate,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	)
	if err != nil {
		return types.Problem{}, err
	}
	_ = json.Unmarshal(tagsJSON, &problem.Tags)
	return problem, nil
}

func (r *ProblemRepository) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM problems`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + problemColumns + `
		FROM problems
		ORDER BY id
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	problems := make([]types.Problem, 0, limit)
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, 0, err
		}
		problems = append(problems, problem)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return problems, total, nil
}

func (r *ProblemRepository) Get(ctx context.Context, id int) (types.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems WHERE id = $1`
	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}
	return problem, nil
}

func (r *ProblemRepository) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	now := time.Now()
	problem.CreatedAt = now
	problem.UpdatedAt = now
	problem.Stats = types.ProblemStats{}

	tagsJSON, err := marshalTags(problem.Tags)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		INSERT INTO problems (title, description, difficulty, sample_input, sample_output,
			time_limit, memory_limit, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		problem.SampleInput,
		problem.SampleOutput,
		problem.TimeLimit,
		problem.MemoryLimit,
		tagsJSON,
		problem.CreatedAt,
		problem.UpdatedAt,
	).Scan(&problem.ID); err != nil {
		return types.Problem{}, err
	}

	return problem, nil
}

// Update writes the editable problem fields. Statistics are owned by UpdateStats.
func (r *ProblemRepository) Update(ctx context.Context, problem types.Problem) (types.Problem, error) {
	problem.UpdatedAt = time.Now()

	tagsJSON, err := marshalTags(problem.Tags)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		UPDATE problems
		SET title = $1,
			description = $2,
			difficulty = $3,
			sample_input = $4,
			sample_output = $5,
			time_limit = $6,
			memory_limit = $7,
			tags = $8,
			updated_at = $9
		WHERE id = $10
		RETURNING total_submissions, accepted_submissions, acceptance_rate, created_at`
	err = r.db.QueryRowContext(
		ctx,
		query,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		problem.SampleInput,
		problem.SampleOutput,
		problem.TimeLimit,
		problem.MemoryLimit,
		tagsJSON,
		problem.UpdatedAt,
		problem.ID,
	).Scan(
		&problem.Stats.TotalSubmissions,
		&problem.Stats.AcceptedSubmissions,
		&problem.Stats.AcceptanceRate,
		&problem.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}

	return problem, nil
}

func (r *ProblemRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM problems WHERE id = $1`
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

// UpdateStats locks the problem row, lets fn mutate its counters and writes them back.
func (r *ProblemRepository) UpdateStats(ctx context.Context, id int, fn func(stats *types.ProblemStats) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		const selectQuery = `
			SELECT total_submissions, accepted_submissions, acceptance_rate
			FROM problems
			WHERE id = $1
			FOR UPDATE`
		var stats types.ProblemStats
		err := tx.QueryRowContext(ctx, selectQuery, id).Scan(
			&stats.TotalSubmissions,
			&stats.AcceptedSubmissions,
			&stats.AcceptanceRate,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if err := fn(&stats); err != nil {
			return err
		}

		const updateQuery = `
			UPDATE problems
			SET total_submissions = $1,
				accepted_submissions = $2,
				acceptance_rate = $3,
				updated_at = $4
			WHERE id = $5`
		_, err = tx.ExecContext(ctx, updateQuery,
			stats.TotalSubmissions,
			stats.AcceptedSubmissions,
			stats.AcceptanceRate,
			time.Now(),
			id,
		)
		return err
	})
}

// ListIDsByDifficulty returns problem ids with the given difficulty, skipping
// excluded ids. An empty difficulty matches every problem.
func (r *ProblemRepository) ListIDsByDifficulty(ctx context.Context, difficulty types.Difficulty, exclude []int) ([]int, error) {
	excluded := make([]int64, 0, len(exclude))
	for _, id := range exclude {
		excluded = append(excluded, int64(id))
	}

	const query = `
		SELECT id
		FROM problems
		WHERE ($1 = '' OR difficulty = $1)
		  AND NOT (id = ANY($2))
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, string(difficulty), pq.Array(excluded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}
