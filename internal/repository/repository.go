package repository

import (
	"context"
	"time"

	"stats-service/internal/domain"
)

// UnitOfWork exposes the write operations that must commit atomically:
// the event append, its rollup mutations, and the processed-message mark
// either all persist or none do.
type UnitOfWork interface {
	// MarkProcessed records a message id. It returns false when the id was
	// already recorded, in which case the caller skips the whole unit.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)

	// StartStream creates a stream and appends its first event (seq 1).
	// Returns domain.ErrDuplicateStream if the stream already exists.
	StartStream(ctx context.Context, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) (int64, error)

	// Append adds an event to an existing stream and returns its sequence
	// number. Returns domain.ErrStreamNotFound if the stream was never
	// started. Appends racing on one stream serialize on the stream head,
	// so sequence numbers stay gapless.
	Append(ctx context.Context, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) (int64, error)

	// UpsertRollup atomically adds delta to the rollup row for key,
	// creating the row when absent.
	UpsertRollup(ctx context.Context, key domain.RollupKey, delta int) error
}

// Store is the persistence boundary of the stats engine.
type Store interface {
	// Within runs fn inside one atomic unit of work and commits it when
	// fn returns nil. Any error from fn rolls the whole unit back.
	Within(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// GetRollup reads a single rollup value; absent rows read as zero.
	GetRollup(ctx context.Context, key domain.RollupKey) (int, error)

	// RollupsByDayWindow returns every rollup row of the given kind whose
	// day falls in [fromDay, toDay] inclusive.
	RollupsByDayWindow(ctx context.Context, kind domain.RollupKind, fromDay, toDay time.Time) ([]domain.RollupRow, error)

	// ReadStream returns a stream's events in sequence order.
	ReadStream(ctx context.Context, kind domain.StreamKind, entityID string) ([]domain.StoredEvent, error)
}

// AiAnswerReader covers the vote-total query over the ai_answers table.
// That table is written by the CRUD tier, not by this engine.
type AiAnswerReader interface {
	TopAiAnswerModels(ctx context.Context, from, to time.Time, topN int) ([]domain.AiAnswerSummary, error)
}
