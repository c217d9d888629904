package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dailyjudge/apiserver/internal/mq"
	"github.com/dailyjudge/apiserver/types"
)

// EventSubmissionEvaluated is the event type attribute of evaluation events.
const EventSubmissionEvaluated = "submission.evaluated"

// SubmissionEvaluatedEvent is published after a submission reaches a terminal verdict.
type SubmissionEvaluatedEvent struct {
	SubmissionID  int64                `json:"submission_id"`
	UserID        int                  `json:"user_id"`
	ProblemID     int                  `json:"problem_id"`
	Kind          types.SubmissionKind `json:"kind"`
	Language      types.Language       `json:"language"`
	Verdict       types.Verdict        `json:"verdict"`
	Accepted      bool                 `json:"accepted"`
	ExecutionTime int64                `json:"execution_time"`
	Memory        int64                `json:"memory"`
	EvaluatedAt   time.Time            `json:"evaluated_at"`
}

func newEvaluatedEvent(submission types.Submission) SubmissionEvaluatedEvent {
	return SubmissionEvaluatedEvent{
		SubmissionID:  submission.ID,
		UserID:        submission.UserID,
		ProblemID:     submission.ProblemID,
		Kind:          submission.Kind,
		Language:      submission.Language,
		Verdict:       submission.Verdict,
		Accepted:      submission.Accepted,
		ExecutionTime: submission.ExecutionTime,
		Memory:        submission.Memory,
		EvaluatedAt:   submission.UpdatedAt,
	}
}

// EventPublisher announces evaluation events.
type EventPublisher interface {
	PublishEvaluated(ctx context.Context, event SubmissionEvaluatedEvent) error
}

// MessagePublisher is the broker operation the event publisher needs; *mq.MQ satisfies it.
type MessagePublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// BrokerEventPublisher publishes evaluation events as JSON on a broker channel.
type BrokerEventPublisher struct {
	broker  MessagePublisher
	channel string
}

func NewBrokerEventPublisher(broker MessagePublisher, channel string) *BrokerEventPublisher {
	if channel == "" {
		channel = EventSubmissionEvaluated
	}
	return &BrokerEventPublisher{broker: broker, channel: channel}
}

func (p *BrokerEventPublisher) PublishEvaluated(ctx context.Context, event SubmissionEvaluatedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.broker.Publish(ctx, p.channel, data, map[string]string{
		mq.AttrEventType: EventSubmissionEvaluated,
		"verdict":        event.Verdict.String(),
	})
	return err
}
