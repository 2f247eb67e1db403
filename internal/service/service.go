package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stats-service/internal/domain"
	"stats-service/internal/projection"
	"stats-service/internal/repository"

	log "github.com/sirupsen/logrus"
)

type StatsServiceInterface interface {
	Ingest(ctx context.Context, env domain.Envelope) error
	TrendingTags(ctx context.Context, windowDays, topN int) ([]domain.TrendingTag, error)
	TopUsers(ctx context.Context, windowDays, topN int) ([]domain.TopUser, error)
	TopAis(ctx context.Context, windowDays, topN int) ([]domain.TopAi, error)
	TopAiAnswers(ctx context.Context, windowDays, topN int) ([]domain.AiAnswerSummary, error)
}

type StatsService struct {
	store   repository.Store
	answers repository.AiAnswerReader

	// now is swapped out by tests to pin the query window.
	now func() time.Time
}

func NewStatsService(store repository.Store, answers repository.AiAnswerReader) *StatsService {
	return &StatsService{
		store:   store,
		answers: answers,
		now:     time.Now,
	}
}

// Ingest records one domain event: the stream append, its rollup
// mutations and the processed-message mark commit in a single unit of
// work, so a crash or cancellation mid-way leaves no partial effect.
// The caller may acknowledge the message only after Ingest returns nil.
func (s *StatsService) Ingest(ctx context.Context, env domain.Envelope) error {
	event, err := env.Decode()
	if err != nil {
		return err
	}

	deltas, err := projection.Project(event)
	if err != nil {
		return err
	}

	err = s.store.Within(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		fresh, err := uow.MarkProcessed(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			log.WithField("event_id", env.EventID).Info("Skipping already processed event")
			return errAlreadySeen
		}

		if err := s.record(ctx, uow, env, event); err != nil {
			return err
		}

		for _, d := range deltas {
			if err := uow.UpsertRollup(ctx, d.Key, d.Value); err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, errAlreadySeen) {
		return nil
	}
	if errors.Is(err, domain.ErrDuplicateStream) {
		// Duplicate stream start is a benign redelivery signal: the event
		// is discarded and nothing was double-counted.
		log.WithFields(log.Fields{
			"event_id": env.EventID,
			"kind":     env.Kind,
		}).Info("Absorbing duplicate stream start")
		return nil
	}
	return err
}

// errAlreadySeen aborts the unit of work without surfacing an error to
// the consumer: the duplicate's rollback intentionally discards the
// MarkProcessed row along with everything else.
var errAlreadySeen = errors.New("event already processed")

func (s *StatsService) record(ctx context.Context, uow repository.UnitOfWork, env domain.Envelope, event domain.Payload) error {
	switch ev := event.(type) {
	case domain.QuestionCreated:
		// A question's stream begins with its creation event, so a second
		// delivery shows up as a duplicate stream start.
		_, err := uow.StartStream(ctx, domain.StreamQuestion, ev.QuestionID, env, ev.Occurred)
		return err

	case domain.UserReputationChanged:
		return appendOrStart(ctx, uow, domain.StreamUser, ev.UserID, env, ev.Occurred)

	case domain.AiReputationChanged:
		return appendOrStart(ctx, uow, domain.StreamAi, ev.AiID, env, ev.Occurred)
	}
	return fmt.Errorf("no handler for event type %T", event)
}

// appendOrStart appends to the entity's stream, starting it on the first
// event ever seen for that entity. If the start races a concurrent first
// event the duplicate is reported as transient so the message retries,
// at which point the plain append succeeds.
func appendOrStart(ctx context.Context, uow repository.UnitOfWork, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) error {
	_, err := uow.Append(ctx, kind, entityID, env, occurred)
	if !errors.Is(err, domain.ErrStreamNotFound) {
		return err
	}

	if _, err := uow.StartStream(ctx, kind, entityID, env, occurred); err != nil {
		if errors.Is(err, domain.ErrDuplicateStream) {
			return domain.Transient(fmt.Errorf("stream %s created concurrently", domain.StreamID(kind, entityID)))
		}
		return err
	}
	return nil
}
