package proximity

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/types"
)

// fakeLatchStore honors TTLs against a manual clock so tests can expire the
// cooldown without sleeping.
type fakeLatchStore struct {
	now     time.Time
	expires map[string]time.Time
}

func newFakeLatchStore() *fakeLatchStore {
	return &fakeLatchStore{now: time.Now(), expires: make(map[string]time.Time)}
}

func (f *fakeLatchStore) tick(d time.Duration) { f.now = f.now.Add(d) }

func (f *fakeLatchStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if expiry, ok := f.expires[key]; ok && expiry.After(f.now) {
		return false, nil
	}
	f.expires[key] = f.now.Add(ttl)
	return true, nil
}

func (f *fakeLatchStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.expires, key)
	}
	return nil
}

func (f *fakeLatchStore) ArrivalLatchKey(participantID, stopID string) string {
	return "hr:arrival:" + participantID + ":" + stopID
}

func (f *fakeLatchStore) AutoCheckInLatchKey(participantID, stopID string) string {
	return "hr:checkin:" + participantID + ":" + stopID
}

func (f *fakeLatchStore) CooldownKey(participantID string) string {
	return "hr:cooldown:" + participantID
}

type fakeArrivalMarker struct {
	stamped map[uuid.UUID]bool
}

func newFakeArrivalMarker() *fakeArrivalMarker {
	return &fakeArrivalMarker{stamped: make(map[uuid.UUID]bool)}
}

func (f *fakeArrivalMarker) SetArrivedAt(ctx context.Context, stopID uuid.UUID) (bool, error) {
	if f.stamped[stopID] {
		return false, nil
	}
	f.stamped[stopID] = true
	return true, nil
}

type fakeCheckIns struct {
	calls []ledger.CheckInInput
	out   *ledger.CheckInOutput
	err   error
}

func (f *fakeCheckIns) CheckIn(ctx context.Context, input ledger.CheckInInput) (*ledger.CheckInOutput, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &ledger.CheckInOutput{ActualRounds: 1}, nil
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

type evaluatorFixture struct {
	evaluator *Evaluator
	latches   *fakeLatchStore
	checkins  *fakeCheckIns
	outbox    *fakeOutbox
	routeID   uuid.UUID
	stop      *models.Stop
}

func newEvaluatorFixture(t *testing.T) *evaluatorFixture {
	t.Helper()

	latches := newFakeLatchStore()
	checkins := &fakeCheckIns{}
	ob := &fakeOutbox{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	evaluator, err := NewEvaluator(latches, newFakeArrivalMarker(), checkins, fakeTxRunner{}, ob, logg)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return &evaluatorFixture{
		evaluator: evaluator,
		latches:   latches,
		checkins:  checkins,
		outbox:    ob,
		routeID:   uuid.New(),
		stop:      &models.Stop{ID: uuid.New(), Lat: 52.5000, Lng: 13.4000, PlannedRounds: 2},
	}
}

func fixAt(lat, lng, accuracy float64) types.GeoFix {
	return types.GeoFix{LatLng: types.LatLng{Lat: lat, Lng: lng}, AccuracyM: accuracy}
}

func TestEvaluateUnreliableFixDoesNothing(t *testing.T) {
	fx := newEvaluatorFixture(t)

	out, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: uuid.New(),
		Stop:          fx.stop,
		Fix:           fixAt(52.5000, 13.4000, 200),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Reliable || out.Arrived || out.AutoCheckedIn {
		t.Fatalf("unreliable fix must be inert, got %+v", out)
	}
	if len(fx.outbox.events) != 0 {
		t.Fatalf("no events expected, got %+v", fx.outbox.events)
	}
}

func TestEvaluateOutsideProximityRadius(t *testing.T) {
	fx := newEvaluatorFixture(t)

	// Roughly 220m north of the stop.
	out, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: uuid.New(),
		Stop:          fx.stop,
		Fix:           fixAt(52.5020, 13.4000, 10),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Reliable || out.Arrived {
		t.Fatalf("expected reliable non-arrival, got %+v", out)
	}
	if out.DistanceM < 150 || out.DistanceM > 300 {
		t.Fatalf("unexpected distance %f", out.DistanceM)
	}
}

func TestEvaluateArrivalLatchesOnce(t *testing.T) {
	fx := newEvaluatorFixture(t)
	participantID := uuid.New()

	// Roughly 50m north: inside proximity, outside auto check-in.
	fix := fixAt(52.50045, 13.4000, 15)

	first, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: participantID,
		Stop:          fx.stop,
		Fix:           fix,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !first.Arrived || first.AutoCheckedIn {
		t.Fatalf("expected arrival without check-in, got %+v", first)
	}
	if len(fx.outbox.events) != 1 || fx.outbox.events[0].EventType != enums.EventStopArrived {
		t.Fatalf("expected stop.arrived, got %+v", fx.outbox.events)
	}

	second, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: participantID,
		Stop:          fx.stop,
		Fix:           fix,
	})
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if second.Arrived {
		t.Fatal("arrival must latch once per (participant, stop)")
	}
	if len(fx.outbox.events) != 1 {
		t.Fatalf("no duplicate arrival event expected, got %+v", fx.outbox.events)
	}
}

func TestEvaluateAutoCheckInWithCooldown(t *testing.T) {
	fx := newEvaluatorFixture(t)
	participantID := uuid.New()

	// Roughly 20m north: inside the auto check-in radius.
	fix := fixAt(52.50018, 13.4000, 5)

	out, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: participantID,
		Stop:          fx.stop,
		Fix:           fix,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Arrived || !out.AutoCheckedIn {
		t.Fatalf("expected arrival and auto check-in, got %+v", out)
	}
	if len(fx.checkins.calls) != 1 || !fx.checkins.calls[0].Auto {
		t.Fatalf("expected one auto check-in, got %+v", fx.checkins.calls)
	}

	// Cooldown holds: the next fix inside 30m does not check in again.
	again, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: participantID,
		Stop:          fx.stop,
		Fix:           fix,
	})
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if again.AutoCheckedIn {
		t.Fatal("cooldown must block the second auto check-in")
	}
	if len(fx.checkins.calls) != 1 {
		t.Fatalf("expected no extra check-in calls, got %d", len(fx.checkins.calls))
	}
}

func TestEvaluateAutoCheckInOncePerStop(t *testing.T) {
	fx := newEvaluatorFixture(t)
	participantID := uuid.New()

	// A participant lingering at the bar keeps reporting fixes well past the
	// cooldown window; only the first one may count a round.
	fix := fixAt(52.50018, 13.4000, 5)
	for i := 0; i < 5; i++ {
		if i > 0 {
			fx.latches.tick(61 * time.Second)
		}
		out, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
			RouteID:       fx.routeID,
			ParticipantID: participantID,
			Stop:          fx.stop,
			Fix:           fix,
		})
		if err != nil {
			t.Fatalf("Evaluate %d: %v", i, err)
		}
		if (i == 0) != out.AutoCheckedIn {
			t.Fatalf("fix %d: unexpected auto check-in state %+v", i, out)
		}
	}
	if len(fx.checkins.calls) != 1 {
		t.Fatalf("expected exactly one auto check-in, got %d", len(fx.checkins.calls))
	}
}

func TestEvaluateReleasesLatchOnCheckInFailure(t *testing.T) {
	fx := newEvaluatorFixture(t)
	participantID := uuid.New()
	fix := fixAt(52.50018, 13.4000, 5)

	fx.checkins.err = pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable")
	if _, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: participantID,
		Stop:          fx.stop,
		Fix:           fix,
	}); err == nil {
		t.Fatal("expected dependency error to surface")
	}

	fx.checkins.err = nil
	fx.latches.tick(61 * time.Second)
	out, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: participantID,
		Stop:          fx.stop,
		Fix:           fix,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.AutoCheckedIn {
		t.Fatal("failed check-in must not burn the latch")
	}
	if len(fx.checkins.calls) != 2 {
		t.Fatalf("expected a retry call, got %d", len(fx.checkins.calls))
	}
}

func TestEvaluateFullStopIsNotAnError(t *testing.T) {
	fx := newEvaluatorFixture(t)
	fx.checkins.err = pkgerrors.New(pkgerrors.CodeStateConflict, "stop has reached its max rounds")

	out, err := fx.evaluator.Evaluate(context.Background(), EvaluateInput{
		RouteID:       fx.routeID,
		ParticipantID: uuid.New(),
		Stop:          fx.stop,
		Fix:           fixAt(52.50018, 13.4000, 5),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.AutoCheckedIn {
		t.Fatal("full stop must not report a check-in")
	}
}
