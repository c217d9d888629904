package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dailyjudge/apiserver/internal/mq"
	"github.com/dailyjudge/apiserver/internal/storage"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
	"go.uber.org/zap"
)

// ObjectWriter stores archived objects; *storage.Storage satisfies it.
type ObjectWriter interface {
	Put(ctx context.Context, obj storage.Object) error
}

// SubmissionArchiver copies terminal submissions to object storage.
type SubmissionArchiver struct {
	objects     ObjectWriter
	submissions SubmissionRepository
	logger      *zap.Logger
}

func NewSubmissionArchiver(objects ObjectWriter, submissions SubmissionRepository, logger *zap.Logger) *SubmissionArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionArchiver{objects: objects, submissions: submissions, logger: logger}
}

// ArchiveKey is the object key of an archived submission.
func ArchiveKey(submission types.Submission) string {
	return fmt.Sprintf("submissions/%d/%d/%d.json", submission.ProblemID, submission.UserID, submission.ID)
}

// Archive writes the submission as JSON. Submissions without a terminal
// verdict are rejected.
func (a *SubmissionArchiver) Archive(ctx context.Context, submission types.Submission) error {
	if !submission.Verdict.IsTerminal() {
		return fmt.Errorf("%w: submission %d is %s", ErrInvalidSubmission, submission.ID, submission.Verdict)
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return err
	}
	return a.objects.Put(ctx, storage.Object{
		Key:         ArchiveKey(submission),
		Body:        data,
		ContentType: "application/json",
		Metadata: map[string]string{
			"submission-id": strconv.FormatInt(submission.ID, 10),
			"verdict":       submission.Verdict.String(),
			"language":      string(submission.Language),
		},
	})
}

// HandleEvaluatedEvent archives the submission named by an evaluation event.
// Malformed events and vanished submissions are dropped rather than retried.
func (a *SubmissionArchiver) HandleEvaluatedEvent(ctx context.Context, msg mq.Message) error {
	var event SubmissionEvaluatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		a.logger.Warn("dropping malformed evaluation event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}

	submission, err := a.submissions.Get(ctx, event.SubmissionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("submission vanished before archiving", zap.Int64("submission_id", event.SubmissionID))
			return nil
		}
		return err
	}

	if !submission.Verdict.IsTerminal() {
		a.logger.Warn("skipping archive of open submission", zap.Int64("submission_id", submission.ID))
		return nil
	}
	if err := a.Archive(ctx, submission); err != nil {
		return fmt.Errorf("archive submission %d: %w", submission.ID, err)
	}
	fields := []zap.Field{
		zap.Int64("submission_id", submission.ID),
		zap.String("key", ArchiveKey(submission)),
	}
	if !msg.PublishedAt.IsZero() {
		fields = append(fields, zap.Duration("lag", time.Since(msg.PublishedAt)))
	}
	a.logger.Info("submission archived", fields...)
	return nil
}
