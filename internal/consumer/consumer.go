package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stats-service/internal/config"
	"stats-service/internal/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Ingestor interface {
	Ingest(ctx context.Context, env domain.Envelope) error
}

// Consumer pulls domain events off Kafka and feeds them to the ingest
// unit of work. Offsets are committed manually, only after the unit of
// work has committed, which is what makes delivery at-least-once.
type Consumer struct {
	consumer *kafka.Consumer
	producer *kafka.Producer
	ingestor Ingestor
	cfg      config.Kafka
}

func New(cfg config.Kafka, ingestor Ingestor) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": cfg.BootstrapServers})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create dead-letter producer: %w", err)
	}

	if err := c.Subscribe(cfg.EventsTopic, nil); err != nil {
		c.Close()
		p.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.EventsTopic, err)
	}

	log.WithFields(log.Fields{
		"topic":    cfg.EventsTopic,
		"group_id": cfg.GroupID,
	}).Info("Kafka consumer created for stats-service")

	return &Consumer{consumer: c, producer: p, ingestor: ingestor, cfg: cfg}, nil
}

type outcome int

const (
	// outcomeAck: the event took effect (or was a harmless duplicate);
	// commit the offset.
	outcomeAck outcome = iota
	// outcomeDeadLetter: redelivery cannot fix this message; park it on
	// the dead-letter topic, then commit.
	outcomeDeadLetter
	// outcomeRetry: transient fault after bounded retries; do not commit
	// so the message is delivered again.
	outcomeRetry
)

// process runs one message through the ingest pipeline with bounded
// retries for transient faults. It never acknowledges anything itself;
// the returned outcome tells Run what to do with the offset.
func (c *Consumer) process(ctx context.Context, value []byte) (outcome, error) {
	var env domain.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return outcomeDeadLetter, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return outcomeRetry, ctx.Err()
			}
		}

		err = c.ingestor.Ingest(ctx, env)
		if err == nil {
			return outcomeAck, nil
		}
		if domain.Terminal(err) {
			return outcomeDeadLetter, err
		}

		log.WithError(err).WithFields(log.Fields{
			"event_id": env.EventID,
			"attempt":  attempt + 1,
		}).Warn("Transient failure ingesting event, will retry")
	}

	return outcomeRetry, err
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := c.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			c.handle(ctx, e)
		case kafka.Error:
			log.WithField("code", e.Code()).WithError(e).Error("Kafka consumer error")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *kafka.Message) {
	result, err := c.process(ctx, msg.Value)

	switch result {
	case outcomeAck:
		if _, cErr := c.consumer.CommitMessage(msg); cErr != nil {
			log.WithError(cErr).Error("Failed to commit offset")
		}

	case outcomeDeadLetter:
		log.WithError(err).WithField("offset", msg.TopicPartition.Offset).
			Warn("Routing non-retriable message to dead-letter topic")
		if dErr := c.deadLetter(ctx, msg, err); dErr != nil {
			// Keep the message unacknowledged rather than lose it.
			log.WithError(dErr).Error("Failed to publish dead letter")
			c.seekBack(msg)
			return
		}
		if _, cErr := c.consumer.CommitMessage(msg); cErr != nil {
			log.WithError(cErr).Error("Failed to commit offset after dead-lettering")
		}

	case outcomeRetry:
		log.WithError(err).WithField("offset", msg.TopicPartition.Offset).
			Error("Message not processed, rewinding for redelivery")
		c.seekBack(msg)
	}
}

func (c *Consumer) seekBack(msg *kafka.Message) {
	if err := c.consumer.Seek(msg.TopicPartition, 0); err != nil {
		log.WithError(err).Error("Failed to seek back to unprocessed message")
	}
}

type deadLetterEnvelope struct {
	ID       string          `json:"id"`
	Reason   string          `json:"reason"`
	Original json.RawMessage `json:"original"`
	FailedAt time.Time       `json:"failed_at"`
}

func (c *Consumer) deadLetter(ctx context.Context, msg *kafka.Message, cause error) error {
	payload, err := json.Marshal(deadLetterEnvelope{
		ID:       uuid.NewString(),
		Reason:   cause.Error(),
		Original: json.RawMessage(msg.Value),
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	if err := c.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &c.cfg.DeadLetterTopic, Partition: kafka.PartitionAny},
		Key:            msg.Key,
		Value:          payload,
	}, deliveryChan); err != nil {
		return fmt.Errorf("failed to produce dead letter: %w", err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected event type: %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("dead letter delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("dead letter delivery timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) Close() {
	log.Info("Closing Kafka consumer for stats-service...")
	if err := c.consumer.Close(); err != nil {
		log.WithError(err).Error("Failed to close kafka consumer")
	}
	c.producer.Flush(15 * 1000)
	c.producer.Close()
}
