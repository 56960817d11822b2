package progression

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
)

// AdvanceTrigger names what pushed the route forward.
type AdvanceTrigger string

const (
	TriggerRoundsComplete AdvanceTrigger = "rounds_complete"
	TriggerSkipVote       AdvanceTrigger = "skip_vote"
	TriggerManual         AdvanceTrigger = "manual"
)

func (t AdvanceTrigger) valid() bool {
	switch t {
	case TriggerRoundsComplete, TriggerSkipVote, TriggerManual:
		return true
	}
	return false
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// latchClearer is the slice of pkg/redis the controller needs to drop arrival
// and auto check-in latches once a stop is behind the group.
type latchClearer interface {
	Del(ctx context.Context, keys ...string) error
	ArrivalLatchKey(participantID, stopID string) string
	AutoCheckInLatchKey(participantID, stopID string) string
}

type participantLister interface {
	ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error)
}

// AdvanceInput is a single attempt to move the route pointer. FromIndex is the
// index the caller observed; a stale value makes the attempt a no-op.
type AdvanceInput struct {
	RouteID   uuid.UUID
	FromIndex int
	Trigger   AdvanceTrigger
	Actor     *outbox.ActorRef
}

// AdvanceOutput reports what the attempt did.
type AdvanceOutput struct {
	Applied   bool
	ToIndex   int
	Completed bool
	NextStop  *models.Stop
}

// State is the progression snapshot served to clients.
type State struct {
	Route       *models.Route
	Stops       []models.Stop
	CurrentStop *models.Stop
	Completed   bool
}

// Service owns the route pointer and its lifecycle status.
type Service interface {
	Advance(ctx context.Context, input AdvanceInput) (*AdvanceOutput, error)
	State(ctx context.Context, routeID uuid.UUID) (*State, error)
	Find(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outboxPublisher
	latches      latchClearer
	participants participantLister
	logg         *logger.Logger
}

// NewService wires the progression controller. Latch clearing is optional:
// without it stale arrival latches simply expire via TTL.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, latches latchClearer, participants participantLister, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "progression repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if ob == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, latches: latches, participants: participants, logg: logg}, nil
}

func (s *service) Advance(ctx context.Context, input AdvanceInput) (*AdvanceOutput, error) {
	if input.RouteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	if input.FromIndex < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from index must be non-negative")
	}
	if !input.Trigger.valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown advance trigger")
	}

	out := &AdvanceOutput{}
	var passedStop *models.Stop
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		route, err := repo.FindRoute(ctx, input.RouteID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route")
		}
		if route.Status == enums.RouteStatusCompleted {
			// Nothing past the end to advance to.
			return nil
		}

		stops, err := repo.ListStops(ctx, input.RouteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stops")
		}
		if len(stops) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "route has no stops")
		}
		if input.FromIndex >= len(stops) {
			return pkgerrors.New(pkgerrors.CodeValidation, "from index beyond route length")
		}

		toIndex := input.FromIndex + 1
		applied, err := repo.AdvanceIndex(ctx, input.RouteID, input.FromIndex, toIndex)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance stop index")
		}
		if !applied {
			// A concurrent writer already moved the pointer.
			return nil
		}
		out.Applied = true
		out.ToIndex = toIndex
		passedStop = &stops[input.FromIndex]

		if route.Status == enums.RouteStatusPending {
			if _, err := repo.TransitionStatus(ctx, input.RouteID, enums.RouteStatusPending, enums.RouteStatusActive); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate route")
			}
		}

		if toIndex >= len(stops) {
			if _, err := repo.TransitionStatus(ctx, input.RouteID, enums.RouteStatusActive, enums.RouteStatusCompleted); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete route")
			}
			out.Completed = true
			completedAt := time.Now()
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRouteCompleted,
				AggregateType: enums.AggregateRoute,
				AggregateID:   input.RouteID,
				RouteID:       input.RouteID,
				Version:       1,
				Actor:         input.Actor,
				Data: payloads.RouteCompletedEvent{
					RouteID:     input.RouteID,
					CompletedAt: completedAt,
				},
			})
		}

		next := stops[toIndex]
		out.NextStop = &next
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteAdvanced,
			AggregateType: enums.AggregateRoute,
			AggregateID:   input.RouteID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         input.Actor,
			Data: payloads.RouteAdvancedEvent{
				RouteID:   input.RouteID,
				FromIndex: input.FromIndex,
				ToIndex:   toIndex,
				StopID:    next.ID,
				Skipped:   input.Trigger == TriggerSkipVote,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if out.Applied && passedStop != nil {
		s.clearStopLatches(ctx, input.RouteID, passedStop.ID)
	}
	return out, nil
}

// clearStopLatches drops per-participant arrival and auto check-in latches for
// a stop the group has moved past. Failures only cost a TTL wait, so they are
// logged and swallowed.
func (s *service) clearStopLatches(ctx context.Context, routeID, stopID uuid.UUID) {
	if s.latches == nil || s.participants == nil {
		return
	}
	ctx = s.logg.WithRouteID(ctx, routeID.String())
	active, err := s.participants.ListActive(ctx, routeID)
	if err != nil {
		s.logg.Error(ctx, "list participants for latch clear", err)
		return
	}
	keys := make([]string, 0, len(active)*2)
	for _, participant := range active {
		keys = append(keys,
			s.latches.ArrivalLatchKey(participant.ID.String(), stopID.String()),
			s.latches.AutoCheckInLatchKey(participant.ID.String(), stopID.String()),
		)
	}
	if len(keys) == 0 {
		return
	}
	if err := s.latches.Del(ctx, keys...); err != nil {
		s.logg.Error(ctx, "clear arrival latches", err)
	}
}

func (s *service) State(ctx context.Context, routeID uuid.UUID) (*State, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	route, err := s.Find(ctx, routeID)
	if err != nil {
		return nil, err
	}
	stops, err := s.repo.ListStops(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stops")
	}

	state := &State{
		Route:     route,
		Stops:     stops,
		Completed: route.Status == enums.RouteStatusCompleted,
	}
	if route.CurrentStopIndex >= 0 && route.CurrentStopIndex < len(stops) {
		state.CurrentStop = &stops[route.CurrentStopIndex]
	}
	return state, nil
}

func (s *service) Find(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	route, err := s.repo.FindRoute(ctx, routeID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route")
	}
	return route, nil
}
