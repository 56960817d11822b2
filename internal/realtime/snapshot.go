package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/pkg/db/models"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
)

const snapshotMessageLimit = 50

type progressionStates interface {
	State(ctx context.Context, routeID uuid.UUID) (*progression.State, error)
}

type participantLister interface {
	ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error)
}

type messageLister interface {
	RecentMessages(ctx context.Context, routeID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// SnapshotBuilder assembles the initial state frame for a new subscriber.
type SnapshotBuilder struct {
	progression  progressionStates
	participants participantLister
	messages     messageLister
}

// NewSnapshotBuilder wires the snapshot sources.
func NewSnapshotBuilder(states progressionStates, participants participantLister, messages messageLister) (*SnapshotBuilder, error) {
	if states == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "progression states required")
	}
	if participants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "participant lister required")
	}
	if messages == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "message lister required")
	}
	return &SnapshotBuilder{progression: states, participants: participants, messages: messages}, nil
}

// Build reads the route's current state. The snapshot and the event stream
// overlap rather than gap: anything committed after this read arrives as an
// incremental event too.
func (b *SnapshotBuilder) Build(ctx context.Context, routeID uuid.UUID) (*Snapshot, error) {
	state, err := b.progression.State(ctx, routeID)
	if err != nil {
		return nil, err
	}
	active, err := b.participants.ListActive(ctx, routeID)
	if err != nil {
		return nil, err
	}
	recent, err := b.messages.RecentMessages(ctx, routeID, snapshotMessageLimit)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		RouteID:   routeID,
		RouteName: state.Route.Name,
		Progression: ProgressionView{
			Status:           state.Route.Status,
			CurrentStopIndex: state.Route.CurrentStopIndex,
			Completed:        state.Completed,
		},
		Stops:        make([]StopView, 0, len(state.Stops)),
		Participants: make([]ParticipantView, 0, len(active)),
		Messages:     make([]MessageView, 0, len(recent)),
	}
	if state.CurrentStop != nil {
		id := state.CurrentStop.ID
		snapshot.Progression.CurrentStopID = &id
	}
	for _, stop := range state.Stops {
		snapshot.Stops = append(snapshot.Stops, StopView{
			ID:            stop.ID,
			Position:      stop.Position,
			Name:          stop.Name,
			Lat:           stop.Lat,
			Lng:           stop.Lng,
			PlannedRounds: stop.PlannedRounds,
			ActualRounds:  stop.ActualRounds,
			Arrived:       stop.ArrivedAt != nil,
		})
	}
	for _, participant := range active {
		snapshot.Participants = append(snapshot.Participants, ParticipantView{
			ID:          participant.ID,
			DisplayName: participant.DisplayName,
			IsGuest:     participant.IsGuest(),
			LastLat:     participant.LastLat,
			LastLng:     participant.LastLng,
			LastFixAt:   participant.LastFixAt,
		})
	}
	for _, message := range recent {
		snapshot.Messages = append(snapshot.Messages, MessageView{
			ID:            message.ID,
			ParticipantID: message.ParticipantID,
			Kind:          message.Kind,
			Body:          message.Body,
			CreatedAt:     message.CreatedAt,
		})
	}
	return snapshot, nil
}
