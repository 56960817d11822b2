package progression

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
)

type fakeRepository struct {
	route *models.Route
	stops []models.Stop
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) FindRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	if f.route == nil || f.route.ID != routeID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.route
	return &copied, nil
}

func (f *fakeRepository) ListStops(ctx context.Context, routeID uuid.UUID) ([]models.Stop, error) {
	return f.stops, nil
}

func (f *fakeRepository) FindStop(ctx context.Context, stopID uuid.UUID) (*models.Stop, error) {
	for i := range f.stops {
		if f.stops[i].ID == stopID {
			return &f.stops[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindStopByPosition(ctx context.Context, routeID uuid.UUID, position int) (*models.Stop, error) {
	for i := range f.stops {
		if f.stops[i].Position == position {
			return &f.stops[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) AdvanceIndex(ctx context.Context, routeID uuid.UUID, fromIndex, toIndex int) (bool, error) {
	if f.route.CurrentStopIndex != fromIndex {
		return false, nil
	}
	f.route.CurrentStopIndex = toIndex
	return true, nil
}

func (f *fakeRepository) TransitionStatus(ctx context.Context, routeID uuid.UUID, from, to enums.RouteStatus) (bool, error) {
	if f.route.Status != from {
		return false, nil
	}
	f.route.Status = to
	return true, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeLatches struct {
	deleted []string
}

func (f *fakeLatches) Del(ctx context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeLatches) ArrivalLatchKey(participantID, stopID string) string {
	return "hr:arrival:" + participantID + ":" + stopID
}

func (f *fakeLatches) AutoCheckInLatchKey(participantID, stopID string) string {
	return "hr:checkin:" + participantID + ":" + stopID
}

type fakeParticipants struct {
	active []models.Participant
}

func (f *fakeParticipants) ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error) {
	return f.active, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func threeStopRoute() (*models.Route, []models.Stop) {
	route := &models.Route{
		ID:     uuid.New(),
		Name:   "kreuzberg classics",
		Status: enums.RouteStatusActive,
	}
	stops := []models.Stop{
		{ID: uuid.New(), RouteID: route.ID, Position: 0, Name: "Anchor"},
		{ID: uuid.New(), RouteID: route.ID, Position: 1, Name: "Golden Hop"},
		{ID: uuid.New(), RouteID: route.ID, Position: 2, Name: "Last Call"},
	}
	return route, stops
}

func newTestService(t *testing.T, repo Repository, ob outboxPublisher, latches latchClearer, participants participantLister) Service {
	t.Helper()
	svc, err := NewService(repo, fakeTxRunner{}, ob, latches, participants, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestAdvanceMovesPointerAndEmits(t *testing.T) {
	route, stops := threeStopRoute()
	repo := &fakeRepository{route: route, stops: stops}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob, nil, nil)

	out, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 0,
		Trigger:   TriggerRoundsComplete,
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !out.Applied {
		t.Fatal("expected advance to apply")
	}
	if out.ToIndex != 1 || out.Completed {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.NextStop == nil || out.NextStop.ID != stops[1].ID {
		t.Fatalf("expected next stop %s, got %+v", stops[1].ID, out.NextStop)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventRouteAdvanced {
		t.Fatalf("expected route.advanced event, got %+v", ob.events)
	}
}

func TestAdvanceStaleIndexIsNoOp(t *testing.T) {
	route, stops := threeStopRoute()
	route.CurrentStopIndex = 1
	repo := &fakeRepository{route: route, stops: stops}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob, nil, nil)

	out, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 0,
		Trigger:   TriggerSkipVote,
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if out.Applied {
		t.Fatal("stale index must not apply")
	}
	if len(ob.events) != 0 {
		t.Fatalf("no events expected, got %+v", ob.events)
	}
	if route.CurrentStopIndex != 1 {
		t.Fatalf("pointer moved: %d", route.CurrentStopIndex)
	}
}

func TestAdvancePastLastStopCompletesRoute(t *testing.T) {
	route, stops := threeStopRoute()
	route.CurrentStopIndex = 2
	repo := &fakeRepository{route: route, stops: stops}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob, nil, nil)

	out, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 2,
		Trigger:   TriggerRoundsComplete,
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !out.Applied || !out.Completed {
		t.Fatalf("expected completion, got %+v", out)
	}
	if route.Status != enums.RouteStatusCompleted {
		t.Fatalf("expected completed status, got %s", route.Status)
	}
	if len(ob.events) != 1 || ob.events[0].EventType != enums.EventRouteCompleted {
		t.Fatalf("expected route.completed event, got %+v", ob.events)
	}
}

func TestAdvanceOnCompletedRouteIsNoOp(t *testing.T) {
	route, stops := threeStopRoute()
	route.Status = enums.RouteStatusCompleted
	route.CurrentStopIndex = 3
	repo := &fakeRepository{route: route, stops: stops}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob, nil, nil)

	out, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 2,
		Trigger:   TriggerManual,
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if out.Applied {
		t.Fatal("completed route must not advance")
	}
}

func TestAdvanceActivatesPendingRoute(t *testing.T) {
	route, stops := threeStopRoute()
	route.Status = enums.RouteStatusPending
	repo := &fakeRepository{route: route, stops: stops}
	svc := newTestService(t, repo, &fakeOutbox{}, nil, nil)

	out, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 0,
		Trigger:   TriggerManual,
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !out.Applied {
		t.Fatal("expected advance to apply")
	}
	if route.Status != enums.RouteStatusActive {
		t.Fatalf("expected active status, got %s", route.Status)
	}
}

func TestAdvanceClearsStopLatches(t *testing.T) {
	route, stops := threeStopRoute()
	repo := &fakeRepository{route: route, stops: stops}
	latches := &fakeLatches{}
	participantID := uuid.New()
	lister := &fakeParticipants{active: []models.Participant{{ID: participantID, RouteID: route.ID, IsActive: true}}}
	svc := newTestService(t, repo, &fakeOutbox{}, latches, lister)

	_, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 0,
		Trigger:   TriggerSkipVote,
	})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := []string{
		"hr:arrival:" + participantID.String() + ":" + stops[0].ID.String(),
		"hr:checkin:" + participantID.String() + ":" + stops[0].ID.String(),
	}
	if len(latches.deleted) != len(want) {
		t.Fatalf("expected latches %v cleared, got %v", want, latches.deleted)
	}
	for i := range want {
		if latches.deleted[i] != want[i] {
			t.Fatalf("expected latches %v cleared, got %v", want, latches.deleted)
		}
	}
}

func TestAdvanceRejectsUnknownTrigger(t *testing.T) {
	route, stops := threeStopRoute()
	repo := &fakeRepository{route: route, stops: stops}
	svc := newTestService(t, repo, &fakeOutbox{}, nil, nil)

	_, err := svc.Advance(context.Background(), AdvanceInput{
		RouteID:   route.ID,
		FromIndex: 0,
		Trigger:   AdvanceTrigger("vibes"),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStateReturnsCurrentStop(t *testing.T) {
	route, stops := threeStopRoute()
	route.CurrentStopIndex = 1
	repo := &fakeRepository{route: route, stops: stops}
	svc := newTestService(t, repo, &fakeOutbox{}, nil, nil)

	state, err := svc.State(context.Background(), route.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.CurrentStop == nil || state.CurrentStop.ID != stops[1].ID {
		t.Fatalf("unexpected current stop: %+v", state.CurrentStop)
	}
	if state.Completed {
		t.Fatal("route is not completed")
	}
}
