package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stats-service/internal/config"
	"stats-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestor struct {
	errs  []error
	calls int
}

func (f *fakeIngestor) Ingest(ctx context.Context, env domain.Envelope) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func testConsumer(ing *fakeIngestor) *Consumer {
	return &Consumer{
		ingestor: ing,
		cfg: config.Kafka{
			MaxRetries:   2,
			RetryBackoff: time.Millisecond,
		},
	}
}

func envelopeBytes(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(domain.Envelope{
		EventID: "e1",
		Kind:    domain.KindQuestionCreated,
		Payload: json.RawMessage(`{"question_id":"q1","occurred":"2026-08-30T12:00:00Z","tags":["go"]}`),
	})
	require.NoError(t, err)
	return b
}

func TestProcessSuccessAcks(t *testing.T) {
	ing := &fakeIngestor{}
	c := testConsumer(ing)

	result, err := c.process(context.Background(), envelopeBytes(t))
	require.NoError(t, err)
	assert.Equal(t, outcomeAck, result)
	assert.Equal(t, 1, ing.calls)
}

func TestProcessInvalidJSONDeadLetters(t *testing.T) {
	ing := &fakeIngestor{}
	c := testConsumer(ing)

	result, err := c.process(context.Background(), []byte(`{"kind":`))
	assert.Equal(t, outcomeDeadLetter, result)
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
	assert.Zero(t, ing.calls, "a message that does not parse never reaches the store")
}

func TestProcessTerminalErrorDeadLetters(t *testing.T) {
	ing := &fakeIngestor{errs: []error{domain.ErrStreamNotFound}}
	c := testConsumer(ing)

	result, err := c.process(context.Background(), envelopeBytes(t))
	assert.Equal(t, outcomeDeadLetter, result)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	assert.Equal(t, 1, ing.calls, "integrity faults are not retried")
}

func TestProcessTransientErrorRetriesThenSucceeds(t *testing.T) {
	ing := &fakeIngestor{errs: []error{
		domain.Transient(errors.New("db down")),
		domain.Transient(errors.New("db down")),
	}}
	c := testConsumer(ing)

	result, err := c.process(context.Background(), envelopeBytes(t))
	require.NoError(t, err)
	assert.Equal(t, outcomeAck, result)
	assert.Equal(t, 3, ing.calls)
}

func TestProcessTransientErrorExhaustsRetries(t *testing.T) {
	dbDown := domain.Transient(errors.New("db down"))
	ing := &fakeIngestor{errs: []error{dbDown, dbDown, dbDown, dbDown}}
	c := testConsumer(ing)

	result, err := c.process(context.Background(), envelopeBytes(t))
	assert.Equal(t, outcomeRetry, result)
	assert.Error(t, err)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, ing.calls)
}

func TestProcessStopsOnCancelledContext(t *testing.T) {
	ing := &fakeIngestor{errs: []error{domain.Transient(errors.New("db down"))}}
	c := testConsumer(ing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.process(ctx, envelopeBytes(t))
	assert.Equal(t, outcomeRetry, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ing.calls)
}
