package proximity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/geo"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
	"github.com/hopround/hopround-backend/pkg/types"
)

const (
	// Fixes with worse accuracy only update the live position.
	maxReliableAccuracyM = 150.0
	proximityRadiusM     = 100.0
	autoCheckInRadiusM   = 30.0

	// The latch normally outlives the visit and is cleared by progression;
	// the TTL is a safety net for routes that stall.
	arrivalLatchTTL = 6 * time.Hour
	// Damps GPS jitter storms so the latch store is not hammered every fix.
	checkInCooldown = 60 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// latchStore is the slice of pkg/redis the evaluator needs: one-shot arrival
// and auto check-in latches plus the check-in cooldown.
type latchStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ArrivalLatchKey(participantID, stopID string) string
	AutoCheckInLatchKey(participantID, stopID string) string
	CooldownKey(participantID string) string
}

// arrivalMarker stamps the stop's first arrival (write-once).
type arrivalMarker interface {
	SetArrivedAt(ctx context.Context, stopID uuid.UUID) (bool, error)
}

// checkInRunner performs the auto check-in through the regular ledger path.
type checkInRunner interface {
	CheckIn(ctx context.Context, input ledger.CheckInInput) (*ledger.CheckInOutput, error)
}

// EvaluateInput is one location fix measured against the group's current stop.
type EvaluateInput struct {
	RouteID       uuid.UUID
	ParticipantID uuid.UUID
	Stop          *models.Stop
	Fix           types.GeoFix
}

// Outcome reports what the fix triggered.
type Outcome struct {
	Reliable      bool
	DistanceM     float64
	Arrived       bool
	AutoCheckedIn bool
	StopCompleted bool
}

// Evaluator turns location fixes into arrival events and auto check-ins.
// Without it the manual check-in path still works, just without geofencing.
type Evaluator struct {
	latches  latchStore
	arrivals arrivalMarker
	checkins checkInRunner
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
}

// NewEvaluator wires the proximity evaluator.
func NewEvaluator(latches latchStore, arrivals arrivalMarker, checkins checkInRunner, tx txRunner, ob outboxPublisher, logg *logger.Logger) (*Evaluator, error) {
	if latches == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "latch store required")
	}
	if arrivals == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "arrival marker required")
	}
	if checkins == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "check-in runner required")
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
	return &Evaluator{latches: latches, arrivals: arrivals, checkins: checkins, tx: tx, outbox: ob, logg: logg}, nil
}

// Evaluate measures the fix against the current stop. At most one arrival and
// one auto check-in fire per (participant, stop).
func (e *Evaluator) Evaluate(ctx context.Context, input EvaluateInput) (*Outcome, error) {
	if input.RouteID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route and participant ids required")
	}
	if input.Stop == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stop required")
	}

	out := &Outcome{}
	if input.Fix.AccuracyM > maxReliableAccuracyM {
		// The fix still updated the live position upstream; it just cannot
		// drive geofence decisions.
		return out, nil
	}
	out.Reliable = true
	out.DistanceM = geo.DistanceM(
		types.LatLng{Lat: input.Fix.Lat, Lng: input.Fix.Lng},
		types.LatLng{Lat: input.Stop.Lat, Lng: input.Stop.Lng},
	)

	if out.DistanceM > proximityRadiusM {
		return out, nil
	}

	latchKey := e.latches.ArrivalLatchKey(input.ParticipantID.String(), input.Stop.ID.String())
	latched, err := e.latches.SetNX(ctx, latchKey, 1, arrivalLatchTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "take arrival latch")
	}
	if latched {
		out.Arrived = true
		if err := e.emitArrival(ctx, input, out.DistanceM); err != nil {
			return nil, err
		}
	}

	if out.DistanceM <= autoCheckInRadiusM {
		allowed, err := e.latches.SetNX(ctx, e.latches.CooldownKey(input.ParticipantID.String()), 1, checkInCooldown)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "take check-in cooldown")
		}
		if !allowed {
			return out, nil
		}
		// The cooldown only damps GPS jitter. The actual once-per-stop guard
		// is this latch, which progression clears when the route moves on.
		checkinKey := e.latches.AutoCheckInLatchKey(input.ParticipantID.String(), input.Stop.ID.String())
		taken, err := e.latches.SetNX(ctx, checkinKey, 1, arrivalLatchTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "take check-in latch")
		}
		if !taken {
			return out, nil
		}
		checkin, err := e.checkins.CheckIn(ctx, ledger.CheckInInput{
			RouteID:       input.RouteID,
			StopID:        input.Stop.ID,
			ParticipantID: input.ParticipantID,
			Auto:          true,
		})
		if err != nil {
			// A full stop is a state conflict, not an evaluator failure.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				e.logg.Warn(e.logg.WithStopID(ctx, input.Stop.ID.String()), "auto check-in skipped: "+typed.Message())
				return out, nil
			}
			// Release the latch so a later fix can retry the check-in.
			if delErr := e.latches.Del(ctx, checkinKey); delErr != nil {
				e.logg.Error(ctx, "release check-in latch", delErr)
			}
			return nil, err
		}
		out.AutoCheckedIn = true
		out.StopCompleted = checkin.StopCompleted
	}
	return out, nil
}

func (e *Evaluator) emitArrival(ctx context.Context, input EvaluateInput, distanceM float64) error {
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		first, err := e.arrivals.SetArrivedAt(ctx, input.Stop.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp arrival")
		}
		now := time.Now()
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStopArrived,
			AggregateType: enums.AggregateStop,
			AggregateID:   input.Stop.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
			Data: payloads.StopArrivedEvent{
				RouteID:       input.RouteID,
				StopID:        input.Stop.ID,
				ParticipantID: input.ParticipantID,
				FirstArrival:  first,
				ArrivedAt:     &now,
				DistanceM:     distanceM,
			},
		})
	})
}
