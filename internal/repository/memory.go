package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stats-service/internal/domain"
)

// MemoryStore is an in-process Store used by tests and local runs. Units
// of work mutate a copy of the state and swap it in on commit, so a
// failed unit leaves no partial effect. The store mutex serializes
// commits, which stands in for the row locks and atomic increments the
// Postgres backend relies on.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryStream struct {
	kind   domain.StreamKind
	events []domain.StoredEvent
}

type rollupMapKey struct {
	entityID string
	day      string
}

type memoryAiAnswer struct {
	aiModel   string
	votes     int
	createdAt time.Time
}

type memoryState struct {
	streams   map[string]*memoryStream
	rollups   map[domain.RollupKind]map[rollupMapKey]int
	processed map[string]bool
	answers   []memoryAiAnswer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		streams:   map[string]*memoryStream{},
		rollups:   map[domain.RollupKind]map[rollupMapKey]int{},
		processed: map[string]bool{},
	}}
}

func (s memoryState) clone() memoryState {
	next := memoryState{
		streams:   make(map[string]*memoryStream, len(s.streams)),
		rollups:   make(map[domain.RollupKind]map[rollupMapKey]int, len(s.rollups)),
		processed: make(map[string]bool, len(s.processed)),
		answers:   append([]memoryAiAnswer(nil), s.answers...),
	}
	for id, st := range s.streams {
		next.streams[id] = &memoryStream{
			kind:   st.kind,
			events: append([]domain.StoredEvent(nil), st.events...),
		}
	}
	for kind, rows := range s.rollups {
		m := make(map[rollupMapKey]int, len(rows))
		for k, v := range rows {
			m[k] = v
		}
		next.rollups[kind] = m
	}
	for id := range s.processed {
		next.processed[id] = true
	}
	return next
}

func (s *MemoryStore) Within(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(ctx, &memoryUnitOfWork{state: &next}); err != nil {
		return err
	}
	s.state = next
	return nil
}

type memoryUnitOfWork struct {
	state *memoryState
}

func (u *memoryUnitOfWork) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	if u.state.processed[eventID] {
		return false, nil
	}
	u.state.processed[eventID] = true
	return true, nil
}

func (u *memoryUnitOfWork) StartStream(ctx context.Context, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) (int64, error) {
	streamID := domain.StreamID(kind, entityID)
	if _, exists := u.state.streams[streamID]; exists {
		return 0, fmt.Errorf("stream %s: %w", streamID, domain.ErrDuplicateStream)
	}

	u.state.streams[streamID] = &memoryStream{
		kind:   kind,
		events: []domain.StoredEvent{storedEvent(streamID, 1, env, occurred)},
	}
	return 1, nil
}

func (u *memoryUnitOfWork) Append(ctx context.Context, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) (int64, error) {
	streamID := domain.StreamID(kind, entityID)
	stream, exists := u.state.streams[streamID]
	if !exists {
		return 0, fmt.Errorf("stream %s: %w", streamID, domain.ErrStreamNotFound)
	}

	seq := int64(len(stream.events)) + 1
	stream.events = append(stream.events, storedEvent(streamID, seq, env, occurred))
	return seq, nil
}

func storedEvent(streamID string, seq int64, env domain.Envelope, occurred time.Time) domain.StoredEvent {
	return domain.StoredEvent{
		StreamID:   streamID,
		Seq:        seq,
		Kind:       env.Kind,
		Payload:    append([]byte(nil), env.Payload...),
		Occurred:   occurred.UTC(),
		RecordedAt: time.Now().UTC(),
	}
}

func (u *memoryUnitOfWork) UpsertRollup(ctx context.Context, key domain.RollupKey, delta int) error {
	rows, ok := u.state.rollups[key.Kind]
	if !ok {
		rows = map[rollupMapKey]int{}
		u.state.rollups[key.Kind] = rows
	}
	mk := rollupMapKey{entityID: key.EntityID, day: domain.DayOf(key.Day).Format("2006-01-02")}
	rows[mk] += delta
	return nil
}

func (s *MemoryStore) GetRollup(ctx context.Context, key domain.RollupKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.state.rollups[key.Kind]
	if !ok {
		return 0, nil
	}
	mk := rollupMapKey{entityID: key.EntityID, day: domain.DayOf(key.Day).Format("2006-01-02")}
	return rows[mk], nil
}

func (s *MemoryStore) RollupsByDayWindow(ctx context.Context, kind domain.RollupKind, fromDay, toDay time.Time) ([]domain.RollupRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := domain.DayOf(fromDay)
	to := domain.DayOf(toDay)

	var result []domain.RollupRow
	for mk, value := range s.state.rollups[kind] {
		day, err := time.ParseInLocation("2006-01-02", mk.day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("corrupt rollup day key %q: %w", mk.day, err)
		}
		if day.Before(from) || day.After(to) {
			continue
		}
		result = append(result, domain.RollupRow{EntityID: mk.entityID, Day: day, Value: value})
	}
	return result, nil
}

func (s *MemoryStore) ReadStream(ctx context.Context, kind domain.StreamKind, entityID string) ([]domain.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, ok := s.state.streams[domain.StreamID(kind, entityID)]
	if !ok {
		return nil, nil
	}
	return append([]domain.StoredEvent(nil), stream.events...), nil
}

// SeedAiAnswer inserts a vote-total row the way the CRUD tier would.
func (s *MemoryStore) SeedAiAnswer(aiModel string, votes int, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.answers = append(s.state.answers, memoryAiAnswer{
		aiModel:   aiModel,
		votes:     votes,
		createdAt: createdAt.UTC(),
	})
}

func (s *MemoryStore) TopAiAnswerModels(ctx context.Context, from, to time.Time, topN int) ([]domain.AiAnswerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]int{}
	for _, a := range s.state.answers {
		if a.createdAt.Before(from.UTC()) || a.createdAt.After(to.UTC()) {
			continue
		}
		totals[a.aiModel] += a.votes
	}

	summaries := make([]domain.AiAnswerSummary, 0, len(totals))
	for model, votes := range totals {
		summaries = append(summaries, domain.AiAnswerSummary{AiModel: model, TotalVotes: votes})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].TotalVotes != summaries[j].TotalVotes {
			return summaries[i].TotalVotes > summaries[j].TotalVotes
		}
		return summaries[i].AiModel < summaries[j].AiModel
	})
	if len(summaries) > topN {
		summaries = summaries[:topN]
	}
	return summaries, nil
}
