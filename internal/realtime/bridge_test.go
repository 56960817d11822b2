package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/outbox"
)

type fakeGuard struct {
	processed map[uuid.UUID]bool
	err       error
	calls     int
}

func (f *fakeGuard) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.processed == nil {
		f.processed = make(map[uuid.UUID]bool)
	}
	already := f.processed[eventID]
	f.processed[eventID] = true
	return already, nil
}

func envelopeMessage(t *testing.T, eventID, routeID uuid.UUID, eventType enums.OutboxEventType) ([]byte, map[string]string) {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"stopId":"abc"}`),
	})
	require.NoError(t, err)
	return data, map[string]string{
		outbox.AttrEventID:   eventID.String(),
		outbox.AttrEventType: string(eventType),
		outbox.AttrRouteID:   routeID.String(),
	}
}

func TestBridgeHandleMessageBroadcasts(t *testing.T) {
	hub := NewHub(testLogger())
	routeID := uuid.New()
	client := NewClient(routeID, uuid.New(), nil, nil)
	hub.Register(client)

	bridge, err := NewBridge(hub, nil, testLogger())
	require.NoError(t, err)

	eventID := uuid.New()
	data, attrs := envelopeMessage(t, eventID, routeID, enums.EventStopCheckedIn)
	require.NoError(t, bridge.HandleMessage(context.Background(), data, attrs))

	got := drainFrame(t, client)
	require.NotNil(t, got.Event)
	assert.Equal(t, eventID, got.Event.ID)
	assert.Equal(t, enums.EventStopCheckedIn, got.Event.Type)
	assert.JSONEq(t, `{"stopId":"abc"}`, string(got.Event.Payload))
}

func TestBridgeHandleMessageSkipsProcessedEvents(t *testing.T) {
	hub := NewHub(testLogger())
	routeID := uuid.New()
	client := NewClient(routeID, uuid.New(), nil, nil)
	hub.Register(client)

	guard := &fakeGuard{}
	bridge, err := NewBridge(hub, guard, testLogger())
	require.NoError(t, err)

	data, attrs := envelopeMessage(t, uuid.New(), routeID, enums.EventRouteAdvanced)
	require.NoError(t, bridge.HandleMessage(context.Background(), data, attrs))
	require.NoError(t, bridge.HandleMessage(context.Background(), data, attrs))

	assert.Equal(t, 2, guard.calls)
	assert.Len(t, client.send, 1)
}

func TestBridgeHandleMessageRejectsMalformedAttributes(t *testing.T) {
	bridge, err := NewBridge(NewHub(testLogger()), nil, testLogger())
	require.NoError(t, err)

	data, attrs := envelopeMessage(t, uuid.New(), uuid.New(), enums.EventVoteCast)

	for name, mutate := range map[string]func(map[string]string){
		"missing event id":   func(a map[string]string) { delete(a, outbox.AttrEventID) },
		"missing route id":   func(a map[string]string) { delete(a, outbox.AttrRouteID) },
		"unknown event type": func(a map[string]string) { a[outbox.AttrEventType] = "route.exploded" },
	} {
		t.Run(name, func(t *testing.T) {
			broken := make(map[string]string, len(attrs))
			for k, v := range attrs {
				broken[k] = v
			}
			mutate(broken)

			handleErr := bridge.HandleMessage(context.Background(), data, broken)
			require.Error(t, handleErr)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(handleErr).Code())
			assert.False(t, pkgerrors.Retryable(handleErr), "malformed messages must not be redelivered")
		})
	}
}

func TestBridgeHandleMessageGuardFailureIsRetryable(t *testing.T) {
	guard := &fakeGuard{err: pkgerrors.New(pkgerrors.CodeDependency, "redis down")}
	bridge, err := NewBridge(NewHub(testLogger()), guard, testLogger())
	require.NoError(t, err)

	data, attrs := envelopeMessage(t, uuid.New(), uuid.New(), enums.EventPotSpent)
	handleErr := bridge.HandleMessage(context.Background(), data, attrs)

	require.Error(t, handleErr)
	assert.True(t, pkgerrors.Retryable(handleErr))
}

func TestBridgeHandleMessageRejectsEmptyPayload(t *testing.T) {
	bridge, err := NewBridge(NewHub(testLogger()), nil, testLogger())
	require.NoError(t, err)

	eventID := uuid.New()
	routeID := uuid.New()
	data, marshalErr := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String()})
	require.NoError(t, marshalErr)

	handleErr := bridge.HandleMessage(context.Background(), data, map[string]string{
		outbox.AttrEventID:   eventID.String(),
		outbox.AttrEventType: string(enums.EventChatMessage),
		outbox.AttrRouteID:   routeID.String(),
	})
	require.Error(t, handleErr)
	assert.False(t, pkgerrors.Retryable(handleErr))
}
