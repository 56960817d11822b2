package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRoute       OutboxAggregateType = "route"
	AggregateStop        OutboxAggregateType = "stop"
	AggregateParticipant OutboxAggregateType = "participant"
	AggregateRoundEntry  OutboxAggregateType = "round_entry"
	AggregatePot         OutboxAggregateType = "pot"
	AggregateSkipVote    OutboxAggregateType = "skip_vote"
	AggregateChatMessage OutboxAggregateType = "chat_message"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRoute,
	AggregateStop,
	AggregateParticipant,
	AggregateRoundEntry,
	AggregatePot,
	AggregateSkipVote,
	AggregateChatMessage,
}

// IsValid reports whether the value matches the canonical aggregate enum.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type_enum enum in Postgres. These are the
// committed facts fanned out to subscribed clients and consumers.
type OutboxEventType string

const (
	EventParticipantJoined   OutboxEventType = "participant.joined"
	EventParticipantLeft     OutboxEventType = "participant.left"
	EventParticipantLocation OutboxEventType = "participant.location"
	EventStopArrived         OutboxEventType = "stop.arrived"
	EventStopCheckedIn       OutboxEventType = "stop.checked_in"
	EventStopCompleted       OutboxEventType = "stop.completed"
	EventStopSkipped         OutboxEventType = "stop.skipped"
	EventRoundRecorded       OutboxEventType = "round.recorded"
	EventVoteCast            OutboxEventType = "vote.cast"
	EventPotContributed      OutboxEventType = "pot.contributed"
	EventPotSpent            OutboxEventType = "pot.spent"
	EventPotReconciled       OutboxEventType = "pot.reconciled"
	EventRouteAdvanced       OutboxEventType = "route.advanced"
	EventRouteCompleted      OutboxEventType = "route.completed"
	EventNudgeSent           OutboxEventType = "nudge.sent"
	EventChatMessage         OutboxEventType = "chat.message"
)

var validOutboxEventTypes = []OutboxEventType{
	EventParticipantJoined,
	EventParticipantLeft,
	EventParticipantLocation,
	EventStopArrived,
	EventStopCheckedIn,
	EventStopCompleted,
	EventStopSkipped,
	EventRoundRecorded,
	EventVoteCast,
	EventPotContributed,
	EventPotSpent,
	EventPotReconciled,
	EventRouteAdvanced,
	EventRouteCompleted,
	EventNudgeSent,
	EventChatMessage,
}

// IsValid reports whether the value matches the canonical event enum.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
