package domain

import "time"

// StreamKind partitions the stream id space per entity type.
type StreamKind string

const (
	StreamQuestion StreamKind = "question"
	StreamUser     StreamKind = "user"
	StreamAi       StreamKind = "ai"
)

// StreamID builds the storage key for an entity stream.
func StreamID(kind StreamKind, entityID string) string {
	return string(kind) + ":" + entityID
}

// RollupKind selects one of the daily-rollup tables. Tag usage and the
// two reputation rollups are kept in distinct tables.
type RollupKind string

const (
	RollupTagUsage       RollupKind = "tag_daily_usage"
	RollupUserReputation RollupKind = "user_daily_reputation"
	RollupAiReputation   RollupKind = "ai_daily_reputation"
)

// RollupKey addresses a single daily aggregate: one row per (entity, day).
type RollupKey struct {
	Kind     RollupKind
	EntityID string
	Day      time.Time
}

// RollupRow is one stored daily aggregate as read back for queries.
type RollupRow struct {
	EntityID string
	Day      time.Time
	Value    int
}

// StoredEvent is an event as persisted in its stream.
type StoredEvent struct {
	StreamID   string
	Seq        int64
	Kind       EventKind
	Payload    []byte
	Occurred   time.Time
	RecordedAt time.Time
}

// Read-model DTOs served by the query endpoints.
type TrendingTag struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type TopUser struct {
	UserID string `json:"userId"`
	Delta  int    `json:"delta"`
}

type TopAi struct {
	AiID  string `json:"aiId"`
	Delta int    `json:"delta"`
}

type AiAnswerSummary struct {
	AiModel    string `json:"aiModel"`
	TotalVotes int    `json:"totalVotes"`
}
