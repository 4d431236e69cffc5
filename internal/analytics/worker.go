package analytics

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

// ConsumerName scopes the analytics worker's idempotency marks.
const ConsumerName = "analytics"

// Handler processes one decoded envelope.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// Receiver is the part of a Pub/Sub subscriber the worker needs.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type claimGuard interface {
	Claim(ctx context.Context, name string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, name string, eventID uuid.UUID) error
}

// Service consumes outbox events from one or more subscriptions and writes
// them to the warehouse at most once per event id while the guard's marks live.
type Service struct {
	receivers []Receiver
	handler   Handler
	guard     claimGuard
	logg      *logger.Logger
}

func NewService(receivers []Receiver, handler Handler, guard claimGuard, logg *logger.Logger) (*Service, error) {
	if len(receivers) == 0 {
		return nil, errors.New("at least one analytics subscription is required")
	}
	for _, r := range receivers {
		if r == nil {
			return nil, errors.New("analytics subscription is nil")
		}
	}
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if guard == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{receivers: receivers, handler: handler, guard: guard, logg: logg}, nil
}

// Run receives from every subscription until ctx is canceled or one of them
// fails, in which case the others are stopped too.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range s.receivers {
		g.Go(func() error {
			return r.Receive(gctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
				if s.process(innerCtx, msg.ID, msg.Data, msg.Attributes) {
					msg.Nack()
					return
				}
				msg.Ack()
			})
		})
	}
	return g.Wait()
}

// process reports whether the message should be redelivered.
func (s *Service) process(ctx context.Context, messageID string, data []byte, attrs map[string]string) bool {
	logCtx := s.logg.WithField(ctx, "message_id", messageID)

	env, err := DecodeEnvelope(data, attrs)
	if err != nil {
		if errors.Is(err, ErrUnsupportedEventType) {
			s.logg.Info(s.logg.WithField(logCtx, "reason", err.Error()), "skipping analytics event")
		} else {
			s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "invalid analytics envelope")
		}
		return false
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":     env.EventID.String(),
		"event_type":   string(env.EventType),
		"aggregate_id": env.AggregateID,
		"occurred_at":  env.OccurredAt.Format(time.RFC3339Nano),
	})

	claimed, err := s.guard.Claim(logCtx, ConsumerName, env.EventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency claim failed", err)
		return true
	}
	if !claimed {
		s.logg.Info(logCtx, "analytics event already handled")
		return false
	}

	if err := s.handler.Handle(logCtx, env); err != nil {
		if errors.Is(err, ErrInvalidEnvelope) || errors.Is(err, ErrUnsupportedEventType) {
			s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "dropping analytics event")
			return false
		}
		s.logg.Error(logCtx, "analytics handler failed", err)
		if relErr := s.guard.Release(context.WithoutCancel(logCtx), ConsumerName, env.EventID); relErr != nil {
			s.logg.Error(logCtx, "failed to release idempotency claim", relErr)
		}
		return true
	}

	s.logg.Info(logCtx, "analytics event written")
	return false
}
