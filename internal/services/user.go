package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
	ApplyVerdict(
		ctx context.Context,
		userID, problemID int,
		submissionID int64,
		accepted bool,
		fn func(stats *types.UserStats, firstAcceptance bool) error,
	) (types.UserStats, error)
	TopByRankPoints(ctx context.Context, n int) ([]types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo  UserRepository
	ranks RankCache
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// WithRankCache makes Delete drop removed users from the leaderboard cache.
func (s *UserService) WithRankCache(cache RankCache) *UserService {
	s.ranks = cache
	return s
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	updated, err := s.repo.Update(ctx, user)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return updated, err
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if s.ranks != nil {
		if err := s.ranks.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove user %d from leaderboard cache: %w", id, err)
		}
	}
	return nil
}

// TopByRankPoints returns the n users with the most rank points.
func (s *UserService) TopByRankPoints(ctx context.Context, n int) ([]types.User, error) {
	if n <= 0 {
		n = 10
	}
	return s.repo.TopByRankPoints(ctx, n)
}
