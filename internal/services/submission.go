package services

import (
	"context"
	"errors"

	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
)

// SubmissionRepository defines persistence operations for submissions.
type SubmissionRepository interface {
	Get(ctx context.Context, id int64) (types.Submission, error)
	GetDraft(ctx context.Context, userID, problemID int) (types.Submission, error)
	Create(ctx context.Context, submission types.Submission) (types.Submission, error)
	Update(ctx context.Context, submission types.Submission) (types.Submission, error)
	SaveDraftCode(ctx context.Context, id int64, code string, language types.Language) (types.Submission, error)
	PromoteDraft(ctx context.Context, id int64, code string, language types.Language, kind types.SubmissionKind) (types.Submission, error)
	Delete(ctx context.Context, id int64) error
	ListByUserProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error)
	ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Submission, int, error)
	AcceptedProblemIDs(ctx context.Context, userID int) ([]int, error)
}

// SubmissionService answers read-side submission queries.
type SubmissionService struct {
	repo SubmissionRepository
}

func NewSubmissionService(repo SubmissionRepository) *SubmissionService {
	return &SubmissionService{repo: repo}
}

// Get returns a submission owned by viewer. Privileged viewers see every submission.
func (s *SubmissionService) Get(ctx context.Context, id int64, viewer types.User) (types.Submission, error) {
	submission, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Submission{}, ErrSubmissionNotFound
		}
		return types.Submission{}, err
	}
	if submission.UserID != viewer.ID && !viewer.IsPrivileged() {
		return types.Submission{}, ErrSubmissionNotFound
	}
	return submission, nil
}

// GetDraft returns the user's autosaved draft for a problem.
func (s *SubmissionService) GetDraft(ctx context.Context, userID, problemID int) (types.Submission, error) {
	draft, err := s.repo.GetDraft(ctx, userID, problemID)
	if errors.Is(err, store.ErrNotFound) {
		return types.Submission{}, ErrSubmissionNotFound
	}
	return draft, err
}

// GetUserAcceptedProblems returns the ids of problems the user has solved.
func (s *SubmissionService) GetUserAcceptedProblems(ctx context.Context, userID int) ([]int, error) {
	return s.repo.AcceptedProblemIDs(ctx, userID)
}

// GetProblemSubmissions returns the user's submissions for one problem, newest first.
func (s *SubmissionService) GetProblemSubmissions(ctx context.Context, userID, problemID int) ([]types.Submission, error) {
	return s.repo.ListByUserProblem(ctx, userID, problemID)
}

// GetSubmissionHistory pages through all of the user's submissions, newest first.
func (s *SubmissionService) GetSubmissionHistory(ctx context.Context, userID, offset, limit int) ([]types.Submission, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListByUser(ctx, userID, offset, limit)
}

// Delete removes a submission owned by viewer, or any submission for privileged viewers.
func (s *SubmissionService) Delete(ctx context.Context, id int64, viewer types.User) error {
	if _, err := s.Get(ctx, id, viewer); err != nil {
		return err
	}
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSubmissionNotFound
	}
	return err
}
