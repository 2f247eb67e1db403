// Package projection maps domain events onto daily-rollup mutations.
// Projectors are pure: the store side effects happen in the caller's
// unit of work, never here.
package projection

import (
	"fmt"

	"stats-service/internal/domain"
)

// Delta is one increment to apply to a rollup row.
type Delta struct {
	Key   domain.RollupKey
	Value int
}

// Project folds an event into the rollup deltas it causes. The switch is
// exhaustive over the closed payload set; an unhandled type is a bug.
func Project(event domain.Payload) ([]Delta, error) {
	day := domain.DayOf(event.OccurredAt())

	switch ev := event.(type) {
	case domain.QuestionCreated:
		deltas := make([]Delta, 0, len(ev.Tags))
		for _, tag := range ev.Tags {
			deltas = append(deltas, Delta{
				Key:   domain.RollupKey{Kind: domain.RollupTagUsage, EntityID: tag, Day: day},
				Value: 1,
			})
		}
		return deltas, nil

	case domain.UserReputationChanged:
		return []Delta{{
			Key:   domain.RollupKey{Kind: domain.RollupUserReputation, EntityID: ev.UserID, Day: day},
			Value: ev.Delta,
		}}, nil

	case domain.AiReputationChanged:
		return []Delta{{
			Key:   domain.RollupKey{Kind: domain.RollupAiReputation, EntityID: ev.AiID, Day: day},
			Value: ev.Delta,
		}}, nil
	}

	return nil, fmt.Errorf("no projector for event type %T", event)
}
