package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	KindQuestionCreated       EventKind = "question-created"
	KindUserReputationChanged EventKind = "user-reputation-changed"
	KindAiReputationChanged   EventKind = "ai-reputation-changed"
)

type ReputationReason string

const (
	ReasonQuestionUpvoted   ReputationReason = "question-upvoted"
	ReasonAnswerUpvoted     ReputationReason = "answer-upvoted"
	ReasonQuestionDownvoted ReputationReason = "question-downvoted"
	ReasonAnswerDownvoted   ReputationReason = "answer-downvoted"
	ReasonAnswerAccepted    ReputationReason = "answer-accepted"
)

// DeltaFor returns the reputation effect of a reason. Producers call this
// once at event construction time; the delta is never recomputed afterwards.
func DeltaFor(reason ReputationReason) int {
	switch reason {
	case ReasonQuestionUpvoted, ReasonAnswerUpvoted:
		return 5
	case ReasonQuestionDownvoted, ReasonAnswerDownvoted:
		return -2
	default:
		return 15
	}
}

func validReason(reason ReputationReason) bool {
	switch reason {
	case ReasonQuestionUpvoted, ReasonAnswerUpvoted, ReasonQuestionDownvoted,
		ReasonAnswerDownvoted, ReasonAnswerAccepted:
		return true
	}
	return false
}

// Envelope is the wire shape of an inbound domain event. EventID is the
// producer-assigned message identity used for redelivery deduplication.
type Envelope struct {
	EventID string          `json:"event_id"`
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type QuestionCreated struct {
	QuestionID string    `json:"question_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Occurred   time.Time `json:"occurred"`
	Tags       []string  `json:"tags"`
}

type UserReputationChanged struct {
	UserID      string           `json:"user_id"`
	Delta       int              `json:"delta"`
	Reason      ReputationReason `json:"reason"`
	ActorUserID string           `json:"actor_user_id"`
	Occurred    time.Time        `json:"occurred"`
}

type AiReputationChanged struct {
	AiID        string           `json:"ai_id"`
	Delta       int              `json:"delta"`
	Reason      ReputationReason `json:"reason"`
	ActorUserID string           `json:"actor_user_id"`
	Occurred    time.Time        `json:"occurred"`
}

// Payload is the closed set of domain event payloads. The projector
// switches over the concrete types exhaustively, so adding an event kind
// is a compile-time-checked change.
type Payload interface {
	OccurredAt() time.Time
	payload()
}

func (e QuestionCreated) OccurredAt() time.Time       { return e.Occurred }
func (e UserReputationChanged) OccurredAt() time.Time { return e.Occurred }
func (e AiReputationChanged) OccurredAt() time.Time   { return e.Occurred }

func (QuestionCreated) payload()       {}
func (UserReputationChanged) payload() {}
func (AiReputationChanged) payload()   {}

// Decode validates the envelope and unmarshals its payload into the typed
// event. All failures are reported as ErrMalformedEvent.
func (e Envelope) Decode() (Payload, error) {
	if e.EventID == "" {
		return nil, fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	}

	switch e.Kind {
	case KindQuestionCreated:
		var ev QuestionCreated
		if err := json.Unmarshal(e.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.QuestionID == "" {
			return nil, fmt.Errorf("%w: missing question_id", ErrMalformedEvent)
		}
		if ev.Occurred.IsZero() {
			return nil, fmt.Errorf("%w: missing occurred timestamp", ErrMalformedEvent)
		}
		return ev, nil

	case KindUserReputationChanged:
		var ev UserReputationChanged
		if err := json.Unmarshal(e.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.UserID == "" {
			return nil, fmt.Errorf("%w: missing user_id", ErrMalformedEvent)
		}
		if !validReason(ev.Reason) {
			return nil, fmt.Errorf("%w: unknown reason %q", ErrMalformedEvent, ev.Reason)
		}
		if ev.Occurred.IsZero() {
			return nil, fmt.Errorf("%w: missing occurred timestamp", ErrMalformedEvent)
		}
		return ev, nil

	case KindAiReputationChanged:
		var ev AiReputationChanged
		if err := json.Unmarshal(e.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if ev.AiID == "" {
			return nil, fmt.Errorf("%w: missing ai_id", ErrMalformedEvent)
		}
		if !validReason(ev.Reason) {
			return nil, fmt.Errorf("%w: unknown reason %q", ErrMalformedEvent, ev.Reason)
		}
		if ev.Occurred.IsZero() {
			return nil, fmt.Errorf("%w: missing occurred timestamp", ErrMalformedEvent)
		}
		return ev, nil
	}

	return nil, fmt.Errorf("%w: unknown event kind %q", ErrMalformedEvent, e.Kind)
}

// DayOf truncates a timestamp to its UTC calendar date. Rollup keys and
// query windows both use this, so day boundaries agree everywhere.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
