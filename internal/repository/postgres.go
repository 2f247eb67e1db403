package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stats-service/internal/domain"

	log "github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *postgresStore {
	return &postgresStore{db: db}
}

func rollupTable(kind domain.RollupKind) (table, entityCol, valueCol string, err error) {
	switch kind {
	case domain.RollupTagUsage:
		return "tag_daily_usage", "tag", "count", nil
	case domain.RollupUserReputation:
		return "user_daily_reputation", "user_id", "delta", nil
	case domain.RollupAiReputation:
		return "ai_daily_reputation", "ai_id", "delta", nil
	}
	return "", "", "", fmt.Errorf("unknown rollup kind %q", kind)
}

func (s *postgresStore) Within(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transient(fmt.Errorf("failed to begin unit of work: %w", err))
	}

	if err := fn(ctx, &postgresUnitOfWork{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.WithError(rbErr).Error("Failed to roll back unit of work")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.Transient(fmt.Errorf("failed to commit unit of work: %w", err))
	}
	return nil
}

type postgresUnitOfWork struct {
	tx *sql.Tx
}

func (u *postgresUnitOfWork) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`

	result, err := u.tx.ExecContext(ctx, query, eventID)
	if err != nil {
		log.WithError(err).WithField("event_id", eventID).Error("Failed to record processed event")
		return false, domain.Transient(fmt.Errorf("failed to record processed event: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, domain.Transient(fmt.Errorf("could not determine rows affected: %w", err))
	}

	return rowsAffected == 1, nil
}

func (u *postgresUnitOfWork) StartStream(ctx context.Context, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) (int64, error) {
	streamID := domain.StreamID(kind, entityID)

	query := `
		INSERT INTO event_streams (id, kind, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := u.tx.ExecContext(ctx, query, streamID, kind)
	if err != nil {
		log.WithError(err).WithField("stream_id", streamID).Error("Failed to start stream")
		return 0, domain.Transient(fmt.Errorf("failed to start stream: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, domain.Transient(fmt.Errorf("could not determine rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return 0, fmt.Errorf("stream %s: %w", streamID, domain.ErrDuplicateStream)
	}

	if err := u.insertEvent(ctx, streamID, 1, env, occurred); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"stream_id": streamID,
		"event_id":  env.EventID,
	}).Debug("Stream started")
	return 1, nil
}

func (u *postgresUnitOfWork) Append(ctx context.Context, kind domain.StreamKind, entityID string, env domain.Envelope, occurred time.Time) (int64, error) {
	streamID := domain.StreamID(kind, entityID)

	// The stream-head update takes a row lock, so concurrent appends to
	// one stream queue behind each other and sequence numbers come out
	// gapless and monotonic.
	query := `
		UPDATE event_streams SET version = version + 1
		WHERE id = $1
		RETURNING version
	`

	var seq int64
	err := u.tx.QueryRowContext(ctx, query, streamID).Scan(&seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("stream %s: %w", streamID, domain.ErrStreamNotFound)
		}
		log.WithError(err).WithField("stream_id", streamID).Error("Failed to advance stream version")
		return 0, domain.Transient(fmt.Errorf("failed to advance stream version: %w", err))
	}

	if err := u.insertEvent(ctx, streamID, seq, env, occurred); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"stream_id": streamID,
		"seq":       seq,
		"event_id":  env.EventID,
	}).Debug("Event appended")
	return seq, nil
}

func (u *postgresUnitOfWork) insertEvent(ctx context.Context, streamID string, seq int64, env domain.Envelope, occurred time.Time) error {
	query := `
		INSERT INTO events (stream_id, seq, kind, payload, occurred)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := u.tx.ExecContext(ctx, query, streamID, seq, env.Kind, []byte(env.Payload), occurred.UTC()); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"stream_id": streamID,
			"seq":       seq,
		}).Error("Failed to insert event")
		return domain.Transient(fmt.Errorf("failed to insert event: %w", err))
	}
	return nil
}

func (u *postgresUnitOfWork) UpsertRollup(ctx context.Context, key domain.RollupKey, delta int) error {
	table, entityCol, valueCol, err := rollupTable(key.Kind)
	if err != nil {
		return err
	}

	// Single-statement atomic increment: two units of work hitting the
	// same (entity, day) key cannot lose an update.
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, day, %s) VALUES ($1, $2, $3)
		ON CONFLICT (%s, day)
		DO UPDATE SET %s = %s.%s + EXCLUDED.%s
	`, table, entityCol, valueCol, entityCol, valueCol, table, valueCol, valueCol)

	if _, err := u.tx.ExecContext(ctx, query, key.EntityID, domain.DayOf(key.Day), delta); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"rollup": key.Kind,
			"entity": key.EntityID,
			"day":    domain.DayOf(key.Day).Format("2006-01-02"),
		}).Error("Failed to upsert rollup")
		return domain.Transient(fmt.Errorf("failed to upsert rollup: %w", err))
	}
	return nil
}

func (s *postgresStore) GetRollup(ctx context.Context, key domain.RollupKey) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	table, entityCol, valueCol, err := rollupTable(key.Kind)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND day = $2`, valueCol, table, entityCol)

	var value int
	err = s.db.QueryRowContext(ctx, query, key.EntityID, domain.DayOf(key.Day)).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		log.WithError(err).WithField("rollup", key.Kind).Error("Failed to read rollup")
		return 0, domain.Transient(fmt.Errorf("failed to read rollup: %w", err))
	}
	return value, nil
}

func (s *postgresStore) RollupsByDayWindow(ctx context.Context, kind domain.RollupKind, fromDay, toDay time.Time) ([]domain.RollupRow, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	table, entityCol, valueCol, err := rollupTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, day, %s FROM %s
		WHERE day >= $1 AND day <= $2
	`, entityCol, valueCol, table)

	rows, err := s.db.QueryContext(ctx, query, domain.DayOf(fromDay), domain.DayOf(toDay))
	if err != nil {
		log.WithError(err).WithField("rollup", kind).Error("Failed to query rollup window")
		return nil, domain.Transient(fmt.Errorf("failed to query rollup window: %w", err))
	}
	defer rows.Close()

	var result []domain.RollupRow
	for rows.Next() {
		var row domain.RollupRow
		if err := rows.Scan(&row.EntityID, &row.Day, &row.Value); err != nil {
			log.WithError(err).Error("Failed to scan rollup row")
			return nil, domain.Transient(fmt.Errorf("failed to scan rollup row: %w", err))
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.Transient(fmt.Errorf("error iterating over rollup rows: %w", err))
	}
	return result, nil
}

func (s *postgresStore) ReadStream(ctx context.Context, kind domain.StreamKind, entityID string) ([]domain.StoredEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	streamID := domain.StreamID(kind, entityID)

	query := `
		SELECT stream_id, seq, kind, payload, occurred, recorded_at
		FROM events
		WHERE stream_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, streamID)
	if err != nil {
		log.WithError(err).WithField("stream_id", streamID).Error("Failed to read stream")
		return nil, domain.Transient(fmt.Errorf("failed to read stream: %w", err))
	}
	defer rows.Close()

	var events []domain.StoredEvent
	for rows.Next() {
		var ev domain.StoredEvent
		if err := rows.Scan(&ev.StreamID, &ev.Seq, &ev.Kind, &ev.Payload, &ev.Occurred, &ev.RecordedAt); err != nil {
			return nil, domain.Transient(fmt.Errorf("failed to scan event row: %w", err))
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.Transient(fmt.Errorf("error iterating over event rows: %w", err))
	}
	return events, nil
}

type postgresAiAnswerReader struct {
	db *sql.DB
}

func NewPostgresAiAnswerReader(db *sql.DB) *postgresAiAnswerReader {
	return &postgresAiAnswerReader{db: db}
}

func (r *postgresAiAnswerReader) TopAiAnswerModels(ctx context.Context, from, to time.Time, topN int) ([]domain.AiAnswerSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT ai_model, COALESCE(SUM(votes), 0) AS total_votes
		FROM ai_answers
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY ai_model
		ORDER BY total_votes DESC, ai_model ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC(), topN)
	if err != nil {
		log.WithError(err).Error("Failed to query top AI answers")
		return nil, domain.Transient(fmt.Errorf("failed to query top ai answers: %w", err))
	}
	defer rows.Close()

	summaries := []domain.AiAnswerSummary{}
	for rows.Next() {
		var s domain.AiAnswerSummary
		if err := rows.Scan(&s.AiModel, &s.TotalVotes); err != nil {
			return nil, domain.Transient(fmt.Errorf("failed to scan ai answer row: %w", err))
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.Transient(fmt.Errorf("error iterating over ai answer rows: %w", err))
	}
	return summaries, nil
}
