package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamless struct{}

func (streamless) EventType() string { return TypeProposalCreated }
func (streamless) Stream() string { return " " }

func TestNewEnvelopeWrapsEvent(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	evt := ProposalStatusChangedV1{ProposalID: "p-42", From: "Pending", To: "Viewed"}
	id := uuid.New()

	env, err := NewEnvelope(evt, " 123456 ", WithEventID(id), WithOccurredAt(fixed))
	require.NoError(t, err)
	assert.Equal(t, id, env.ID)
	assert.Equal(t, TypeProposalStatusChanged, env.Type)
	assert.Equal(t, "proposal:p-42", env.Stream)
	assert.Equal(t, "123456", env.CorrelationID)
	assert.Equal(t, fixed, env.OccurredAt)

	var payload ProposalStatusChangedV1
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "Viewed", payload.To)
}

func TestNewEnvelopeRejectsIncompleteEvents(t *testing.T) {
	_, err := NewEnvelope(nil, "")
	assert.ErrorIs(t, err, ErrNilEvent)

	_, err = NewEnvelope(streamless{}, "")
	assert.ErrorIs(t, err, ErrMissingStream)
}

func TestDecodeEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(ProposalCreatedV1{ProposalID: "p-1"}, "")
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, decoded.ID)
	assert.Equal(t, env.Stream, decoded.Stream)

	_, err = DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestAppendWritesOutboxRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	evt := NegotiationAddedV1{ProposalID: "p-7"}
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "proposal:p-7", TypeProposalNegotiationAdded, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	env, err := Append(context.Background(), mock, "900001", evt)
	require.NoError(t, err)
	assert.Equal(t, "900001", env.CorrelationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendWrapsExecError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("conn reset")
	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).WillReturnError(boom)

	_, err = Append(context.Background(), mock, "", ProposalCreatedV1{ProposalID: "p-1"})
	assert.ErrorIs(t, err, boom)
}
