package service

import (
	"context"
	"sort"
	"time"

	"stats-service/internal/domain"
)

// Default window and result sizes for the trending queries.
const (
	DefaultWindowDays = 7
	DefaultTopN       = 5

	AiAnswersWindowDays = 15
	AiAnswersTopN       = 8
)

type entityTotal struct {
	entityID string
	total    int
}

// topTotals reads every rollup row of a kind in the trailing window,
// sums per entity and returns the topN totals. Reads are not
// synchronized with writes: the result is a trending signal, eventually
// consistent, not a linearizable snapshot.
func (s *StatsService) topTotals(ctx context.Context, kind domain.RollupKind, windowDays, topN int) ([]entityTotal, error) {
	today := domain.DayOf(s.now())
	from := today.AddDate(0, 0, -(windowDays - 1))

	rows, err := s.store.RollupsByDayWindow(ctx, kind, from, today)
	if err != nil {
		return nil, err
	}

	sums := map[string]int{}
	for _, row := range rows {
		sums[row.EntityID] += row.Value
	}

	totals := make([]entityTotal, 0, len(sums))
	for id, total := range sums {
		totals = append(totals, entityTotal{entityID: id, total: total})
	}

	// Ties break on entity id ascending so results are deterministic.
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].total != totals[j].total {
			return totals[i].total > totals[j].total
		}
		return totals[i].entityID < totals[j].entityID
	})

	if len(totals) > topN {
		totals = totals[:topN]
	}
	return totals, nil
}

func (s *StatsService) TrendingTags(ctx context.Context, windowDays, topN int) ([]domain.TrendingTag, error) {
	totals, err := s.topTotals(ctx, domain.RollupTagUsage, windowDays, topN)
	if err != nil {
		return nil, err
	}

	tags := make([]domain.TrendingTag, 0, len(totals))
	for _, t := range totals {
		tags = append(tags, domain.TrendingTag{Tag: t.entityID, Count: t.total})
	}
	return tags, nil
}

func (s *StatsService) TopUsers(ctx context.Context, windowDays, topN int) ([]domain.TopUser, error) {
	totals, err := s.topTotals(ctx, domain.RollupUserReputation, windowDays, topN)
	if err != nil {
		return nil, err
	}

	users := make([]domain.TopUser, 0, len(totals))
	for _, t := range totals {
		users = append(users, domain.TopUser{UserID: t.entityID, Delta: t.total})
	}
	return users, nil
}

func (s *StatsService) TopAis(ctx context.Context, windowDays, topN int) ([]domain.TopAi, error) {
	totals, err := s.topTotals(ctx, domain.RollupAiReputation, windowDays, topN)
	if err != nil {
		return nil, err
	}

	ais := make([]domain.TopAi, 0, len(totals))
	for _, t := range totals {
		ais = append(ais, domain.TopAi{AiID: t.entityID, Delta: t.total})
	}
	return ais, nil
}

// TopAiAnswers ranks AI models by vote totals recorded directly on their
// answers. This reads the ai_answers table maintained by the CRUD tier,
// not the event-sourced rollups.
func (s *StatsService) TopAiAnswers(ctx context.Context, windowDays, topN int) ([]domain.AiAnswerSummary, error) {
	today := domain.DayOf(s.now())
	from := today.AddDate(0, 0, -windowDays)
	to := today.AddDate(0, 0, 1).Add(-time.Nanosecond)

	return s.answers.TopAiAnswerModels(ctx, from, to, topN)
}
