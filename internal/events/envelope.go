package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Event is a versioned proposal lifecycle event. Stream names the aggregate
// instance the event belongs to; consumers order by it.
type Event interface {
	EventType() string
	Stream() string
}

// Envelope is the JSON document stored in the outbox and published to the
// queue. Payload holds the event itself.
type Envelope struct {
	ID            uuid.UUID       `json:"event_id"`
	Type          string          `json:"event_type"`
	Stream        string          `json:"stream"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ProposalStream is the stream name shared by every event of one proposal.
func ProposalStream(proposalID string) string {
	return "proposal:" + proposalID
}

type EnvelopeOption func(*Envelope)

func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.ID = id
		}
	}
}

func WithOccurredAt(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.OccurredAt = ts.UTC()
		}
	}
}

var (
	ErrNilEvent      = errors.New("events: event required")
	ErrMissingStream = errors.New("events: stream required")
	ErrMissingType   = errors.New("events: event type required")

	nowFunc = time.Now
)

// NewEnvelope wraps evt with a fresh id and the current time.
func NewEnvelope(evt Event, correlationID string, opts ...EnvelopeOption) (Envelope, error) {
	if evt == nil {
		return Envelope{}, ErrNilEvent
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, ErrMissingType
	}
	stream := strings.TrimSpace(evt.Stream())
	if stream == "" {
		return Envelope{}, ErrMissingStream
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode %s: %w", eventType, err)
	}
	env := Envelope{
		ID:            uuid.New(),
		Type:          eventType,
		Stream:        stream,
		OccurredAt:    nowFunc().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// DecodeEnvelope parses an outbox payload or queue message body.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	if env.ID == uuid.Nil || env.Type == "" {
		return Envelope{}, fmt.Errorf("events: decode envelope: missing id or type")
	}
	return env, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append stores evt in the outbox through exec. Pass the pgx.Tx that writes
// the aggregate so the event commits or rolls back with it.
func Append(ctx context.Context, exec execer, correlationID string, evt Event, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, errors.New("events: exec required")
	}
	env, err := NewEnvelope(evt, correlationID, opts...)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode envelope: %w", err)
	}
	const query = `
		INSERT INTO outbox (id, aggregate, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := exec.Exec(ctx, query, env.ID, env.Stream, env.Type, data, env.OccurredAt); err != nil {
		return Envelope{}, fmt.Errorf("events: append %s: %w", env.Type, err)
	}
	return env, nil
}
