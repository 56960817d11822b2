package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/pkg/enums"
)

// Event is one incremental update pushed to subscribed clients. Delivery is
// at-least-once; clients dedup on ID.
type Event struct {
	ID      uuid.UUID             `json:"id"`
	Type    enums.OutboxEventType `json:"type"`
	Payload json.RawMessage       `json:"payload"`
}

// ParticipantView is the snapshot projection of a participant.
type ParticipantView struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"displayName"`
	IsGuest     bool       `json:"isGuest"`
	LastLat     *float64   `json:"lastLat,omitempty"`
	LastLng     *float64   `json:"lastLng,omitempty"`
	LastFixAt   *time.Time `json:"lastFixAt,omitempty"`
}

// MessageView is the snapshot projection of a chat message.
type MessageView struct {
	ID            uuid.UUID             `json:"id"`
	ParticipantID *uuid.UUID            `json:"participantId,omitempty"`
	Kind          enums.ChatMessageKind `json:"kind"`
	Body          string                `json:"body"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// StopView is the snapshot projection of a stop.
type StopView struct {
	ID            uuid.UUID `json:"id"`
	Position      int       `json:"position"`
	Name          string    `json:"name"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	PlannedRounds int       `json:"plannedRounds"`
	ActualRounds  int       `json:"actualRounds"`
	Arrived       bool      `json:"arrived"`
}

// ProgressionView is the snapshot projection of the route pointer.
type ProgressionView struct {
	Status           enums.RouteStatus `json:"status"`
	CurrentStopIndex int               `json:"currentStopIndex"`
	CurrentStopID    *uuid.UUID        `json:"currentStopId,omitempty"`
	Completed        bool              `json:"completed"`
}

// Snapshot is the full state a client receives on subscribe, before the
// incremental event stream starts.
type Snapshot struct {
	RouteID      uuid.UUID         `json:"routeId"`
	RouteName    string            `json:"routeName"`
	Progression  ProgressionView   `json:"progression"`
	Stops        []StopView        `json:"stops"`
	Participants []ParticipantView `json:"participants"`
	Messages     []MessageView     `json:"messages"`
}

// frame is the wire shape for both snapshots and events.
type frame struct {
	Kind     string    `json:"kind"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Event    *Event    `json:"event,omitempty"`
}

func marshalSnapshotFrame(snapshot *Snapshot) ([]byte, error) {
	return json.Marshal(frame{Kind: "snapshot", Snapshot: snapshot})
}

func marshalEventFrame(event Event) ([]byte, error) {
	return json.Marshal(frame{Kind: "event", Event: &event})
}
