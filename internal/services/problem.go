package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
)

// ProblemRepository defines persistence operations for problems.
type ProblemRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Problem, int, error)
	Get(ctx context.Context, id int) (types.Problem, error)
	Create(ctx context.Context, problem types.Problem) (types.Problem, error)
	Update(ctx context.Context, problem types.Problem) (types.Problem, error)
	Delete(ctx context.Context, id int) error
	UpdateStats(ctx context.Context, id int, fn func(stats *types.ProblemStats) error) error
	ListIDsByDifficulty(ctx context.Context, difficulty types.Difficulty, exclude []int) ([]int, error)
}

// ProblemService encapsulates problem use-cases.
type ProblemService struct {
	repo ProblemRepository
}

func NewProblemService(repo ProblemRepository) *ProblemService {
	return &ProblemService{repo: repo}
}

func (s *ProblemService) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *ProblemService) Get(ctx context.Context, id int) (types.Problem, error) {
	problem, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Problem{}, ErrProblemNotFound
	}
	return problem, err
}

func (s *ProblemService) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	if err := validateProblem(&problem); err != nil {
		return types.Problem{}, err
	}
	return s.repo.Create(ctx, problem)
}

func (s *ProblemService) Update(ctx context.Context, problem types.Problem) (types.Problem, error) {
	if err := validateProblem(&problem); err != nil {
		return types.Problem{}, err
	}
	updated, err := s.repo.Update(ctx, problem)
	if errors.Is(err, store.ErrNotFound) {
		return types.Problem{}, ErrProblemNotFound
	}
	return updated, err
}

func (s *ProblemService) Delete(ctx context.Context, id int) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrProblemNotFound
	}
	return err
}

func validateProblem(problem *types.Problem) error {
	problem.Title = strings.TrimSpace(problem.Title)
	if problem.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidProblem)
	}
	difficulty, err := types.ParseDifficulty(string(problem.Difficulty))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProblem, err)
	}
	problem.Difficulty = difficulty
	if problem.TimeLimit < 0 || problem.MemoryLimit < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidProblem)
	}
	return nil
}
