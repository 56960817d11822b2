package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/pkg/config"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names. All
// route activity goes through a single topic; consumers filter by attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.RouteEventsTopic == "" {
		return nil, fmt.Errorf("route events topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.RouteEventsTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventParticipantJoined,
			AggregateType:  enums.AggregateParticipant,
			PayloadFactory: func() interface{} { return &payloads.ParticipantJoinedEvent{} },
		},
		{
			EventType:      enums.EventParticipantLeft,
			AggregateType:  enums.AggregateParticipant,
			PayloadFactory: func() interface{} { return &payloads.ParticipantLeftEvent{} },
		},
		{
			EventType:      enums.EventParticipantLocation,
			AggregateType:  enums.AggregateParticipant,
			PayloadFactory: func() interface{} { return &payloads.ParticipantLocationEvent{} },
		},
		{
			EventType:      enums.EventStopArrived,
			AggregateType:  enums.AggregateStop,
			PayloadFactory: func() interface{} { return &payloads.StopArrivedEvent{} },
		},
		{
			EventType:      enums.EventStopCheckedIn,
			AggregateType:  enums.AggregateStop,
			PayloadFactory: func() interface{} { return &payloads.StopCheckedInEvent{} },
		},
		{
			EventType:      enums.EventStopCompleted,
			AggregateType:  enums.AggregateStop,
			PayloadFactory: func() interface{} { return &payloads.StopCompletedEvent{} },
		},
		{
			EventType:      enums.EventStopSkipped,
			AggregateType:  enums.AggregateStop,
			PayloadFactory: func() interface{} { return &payloads.StopSkippedEvent{} },
		},
		{
			EventType:      enums.EventRoundRecorded,
			AggregateType:  enums.AggregateRoundEntry,
			PayloadFactory: func() interface{} { return &payloads.RoundRecordedEvent{} },
		},
		{
			EventType:      enums.EventVoteCast,
			AggregateType:  enums.AggregateSkipVote,
			PayloadFactory: func() interface{} { return &payloads.VoteCastEvent{} },
		},
		{
			EventType:      enums.EventPotContributed,
			AggregateType:  enums.AggregatePot,
			PayloadFactory: func() interface{} { return &payloads.PotContributedEvent{} },
		},
		{
			EventType:      enums.EventPotSpent,
			AggregateType:  enums.AggregatePot,
			PayloadFactory: func() interface{} { return &payloads.PotSpentEvent{} },
		},
		{
			EventType:      enums.EventPotReconciled,
			AggregateType:  enums.AggregatePot,
			PayloadFactory: func() interface{} { return &payloads.PotReconciledEvent{} },
		},
		{
			EventType:      enums.EventRouteAdvanced,
			AggregateType:  enums.AggregateRoute,
			PayloadFactory: func() interface{} { return &payloads.RouteAdvancedEvent{} },
		},
		{
			EventType:      enums.EventRouteCompleted,
			AggregateType:  enums.AggregateRoute,
			PayloadFactory: func() interface{} { return &payloads.RouteCompletedEvent{} },
		},
		{
			EventType:      enums.EventNudgeSent,
			AggregateType:  enums.AggregateChatMessage,
			PayloadFactory: func() interface{} { return &payloads.NudgeSentEvent{} },
		},
		{
			EventType:      enums.EventChatMessage,
			AggregateType:  enums.AggregateChatMessage,
			PayloadFactory: func() interface{} { return &payloads.ChatMessageEvent{} },
		},
	} {
		desc.Topic = topic
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
