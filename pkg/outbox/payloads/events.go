package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hopround/hopround-backend/pkg/enums"
)

// ParticipantJoinedEvent is emitted when someone joins a route.
type ParticipantJoinedEvent struct {
	RouteID       uuid.UUID `json:"routeId"`
	ParticipantID uuid.UUID `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	IsGuest       bool      `json:"isGuest"`
	ActiveCount   int       `json:"activeCount"`
}

// ParticipantLeftEvent is emitted when a participant deactivates.
type ParticipantLeftEvent struct {
	RouteID       uuid.UUID `json:"routeId"`
	ParticipantID uuid.UUID `json:"participantId"`
	ActiveCount   int       `json:"activeCount"`
	LeftAt        time.Time `json:"leftAt"`
}

// ParticipantLocationEvent carries the latest accepted location fix.
type ParticipantLocationEvent struct {
	RouteID       uuid.UUID `json:"routeId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	AccuracyM     float64   `json:"accuracyMeters"`
	FixAt         time.Time `json:"fixAt"`
}

// StopArrivedEvent fires once per (participant, stop) when the arrival latch
// is first taken.
type StopArrivedEvent struct {
	RouteID       uuid.UUID  `json:"routeId"`
	StopID        uuid.UUID  `json:"stopId"`
	ParticipantID uuid.UUID  `json:"participantId"`
	FirstArrival  bool       `json:"firstArrival"`
	ArrivedAt     *time.Time `json:"arrivedAt,omitempty"`
	DistanceM     float64    `json:"distanceMeters"`
}

// StopCheckedInEvent reports a confirmed round counted at the stop.
type StopCheckedInEvent struct {
	RouteID       uuid.UUID `json:"routeId"`
	StopID        uuid.UUID `json:"stopId"`
	ParticipantID uuid.UUID `json:"participantId"`
	ActualRounds  int       `json:"actualRounds"`
	Auto          bool      `json:"auto"`
}

// StopCompletedEvent signals the stop has reached its planned rounds.
type StopCompletedEvent struct {
	RouteID      uuid.UUID `json:"routeId"`
	StopID       uuid.UUID `json:"stopId"`
	ActualRounds int       `json:"actualRounds"`
}

// StopSkippedEvent signals a majority skip decision.
type StopSkippedEvent struct {
	RouteID     uuid.UUID `json:"routeId"`
	StopID      uuid.UUID `json:"stopId"`
	SkipVotes   int       `json:"skipVotes"`
	ActiveCount int       `json:"activeCount"`
}

// RoundRecordedEvent reports an appended round entry.
type RoundRecordedEvent struct {
	RouteID       uuid.UUID       `json:"routeId"`
	StopID        uuid.UUID       `json:"stopId"`
	ParticipantID uuid.UUID       `json:"participantId"`
	RoundEntryID  uuid.UUID       `json:"roundEntryId"`
	Type          enums.RoundType `json:"type"`
	PayerID       *uuid.UUID      `json:"payerId,omitempty"`
}

// VoteCastEvent reports the running tally after a skip vote.
type VoteCastEvent struct {
	RouteID       uuid.UUID `json:"routeId"`
	StopID        uuid.UUID `json:"stopId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Skip          bool      `json:"skip"`
	SkipVotes     int       `json:"skipVotes"`
	ActiveCount   int       `json:"activeCount"`
}

// PotContributedEvent reports money paid into the pot.
type PotContributedEvent struct {
	RouteID        uuid.UUID       `json:"routeId"`
	ParticipantID  uuid.UUID       `json:"participantId"`
	ContributionID uuid.UUID       `json:"contributionId"`
	Amount         decimal.Decimal `json:"amount"`
}

// PotSpentEvent reports money spent from the pot.
type PotSpentEvent struct {
	RouteID       uuid.UUID       `json:"routeId"`
	TransactionID uuid.UUID       `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Overdrawn     bool            `json:"overdrawn"`
}

// PotReconciledEvent reports the recomputed pot aggregate.
type PotReconciledEvent struct {
	RouteID       uuid.UUID       `json:"routeId"`
	PotTotalSpent decimal.Decimal `json:"potTotalSpent"`
	Drifted       bool            `json:"drifted"`
}

// RouteAdvancedEvent reports a successful progression step.
type RouteAdvancedEvent struct {
	RouteID   uuid.UUID `json:"routeId"`
	FromIndex int       `json:"fromIndex"`
	ToIndex   int       `json:"toIndex"`
	StopID    uuid.UUID `json:"stopId"`
	Skipped   bool      `json:"skipped"`
}

// RouteCompletedEvent signals the route has passed its final stop.
type RouteCompletedEvent struct {
	RouteID     uuid.UUID `json:"routeId"`
	CompletedAt time.Time `json:"completedAt"`
}

// NudgeSentEvent tells notification consumers to alert lagging participants.
type NudgeSentEvent struct {
	RouteID       uuid.UUID  `json:"routeId"`
	MessageID     uuid.UUID  `json:"messageId"`
	SenderID      uuid.UUID  `json:"senderId"`
	TargetID      *uuid.UUID `json:"targetId,omitempty"`
	StopID        uuid.UUID  `json:"stopId"`
	Body          string     `json:"body"`
}

// ChatMessageEvent fans a chat message out to realtime subscribers.
type ChatMessageEvent struct {
	RouteID       uuid.UUID             `json:"routeId"`
	MessageID     uuid.UUID             `json:"messageId"`
	ParticipantID *uuid.UUID            `json:"participantId,omitempty"`
	Kind          enums.ChatMessageKind `json:"kind"`
	Body          string                `json:"body"`
	CreatedAt     time.Time             `json:"createdAt"`
}
