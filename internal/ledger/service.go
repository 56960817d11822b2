package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
)

const maxDescriptionLen = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type routeAdvancer interface {
	Advance(ctx context.Context, input progression.AdvanceInput) (*progression.AdvanceOutput, error)
}

// RouteFinder exposes the route lookups the ledger flows need.
type RouteFinder interface {
	Find(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
}

// RecordRoundInput appends one consumed round to the ledger.
type RecordRoundInput struct {
	RouteID       uuid.UUID
	StopID        uuid.UUID
	ParticipantID uuid.UUID
	Type          enums.RoundType
	PayerID       *uuid.UUID
}

// CheckInInput confirms a round at the group's current stop.
type CheckInInput struct {
	RouteID       uuid.UUID
	StopID        uuid.UUID
	ParticipantID uuid.UUID
	Auto          bool
}

// CheckInOutput reports the counter state after the check-in.
type CheckInOutput struct {
	ActualRounds  int
	StopCompleted bool
	FirstArrival  bool
	Advanced      bool
}

// PotContributionInput records money paid into the shared pot.
type PotContributionInput struct {
	RouteID       uuid.UUID
	ParticipantID uuid.UUID
	Amount        decimal.Decimal
}

// PotContributionOutput returns the stored row and the running balance.
type PotContributionOutput struct {
	Contribution *models.PotContribution
	NewBalance   decimal.Decimal
}

// PotSpendInput records money spent from the shared pot.
type PotSpendInput struct {
	RouteID     uuid.UUID
	Amount      decimal.Decimal
	Description string
	Actor       *outbox.ActorRef
}

// PotSpendOutput returns the stored row plus the overdraw warning.
type PotSpendOutput struct {
	Transaction *models.PotTransaction
	NewSpent    decimal.Decimal
	Overdrawn   bool
}

// Aggregates is the read-time rollup of the append-only tables.
type Aggregates struct {
	TotalRounds         int
	RoundsByParticipant map[uuid.UUID]int
	RoundsByStop        map[uuid.UUID]int
	RoundsByPayer       map[uuid.UUID]int
	RoundsByType        map[enums.RoundType]int
	PotContributed      decimal.Decimal
	PotSpent            decimal.Decimal
	PotBalance          decimal.Decimal
	Overdrawn           bool
}

// ReconcileOutput reports the healed cache and whether it had drifted.
type ReconcileOutput struct {
	PotTotalSpent decimal.Decimal
	Drifted       bool
}

// Service exposes the ledger operations.
type Service interface {
	RecordRound(ctx context.Context, input RecordRoundInput) (*models.RoundEntry, error)
	CheckIn(ctx context.Context, input CheckInInput) (*CheckInOutput, error)
	ContributePot(ctx context.Context, input PotContributionInput) (*PotContributionOutput, error)
	SpendPot(ctx context.Context, input PotSpendInput) (*PotSpendOutput, error)
	Aggregates(ctx context.Context, routeID uuid.UUID) (*Aggregates, error)
	Reconcile(ctx context.Context, routeID uuid.UUID) (*ReconcileOutput, error)
	ReconcileAll(ctx context.Context) error
}

type service struct {
	repo        Repository
	routes      RouteFinder
	tx          txRunner
	outbox      outboxPublisher
	progression routeAdvancer
}

// NewService wires the ledger service. The advancer is invoked once when a
// check-in fills the stop's planned rounds; compare-and-swap in progression
// absorbs repeats.
func NewService(repo Repository, routes RouteFinder, tx txRunner, ob outboxPublisher, advancer routeAdvancer) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if routes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "route finder required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if ob == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if advancer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "route advancer required")
	}
	return &service{repo: repo, routes: routes, tx: tx, outbox: ob, progression: advancer}, nil
}

func (s *service) RecordRound(ctx context.Context, input RecordRoundInput) (*models.RoundEntry, error) {
	if input.RouteID == uuid.Nil || input.StopID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route, stop and participant ids required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown round type")
	}

	var entry *models.RoundEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stop, err := repo.FindStop(ctx, input.StopID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stop not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stop")
		}
		if stop.RouteID != input.RouteID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "stop does not belong to route")
		}

		entry = &models.RoundEntry{
			RouteID:       input.RouteID,
			StopID:        input.StopID,
			ParticipantID: input.ParticipantID,
			Type:          input.Type,
			PayerID:       input.PayerID,
		}
		if err := repo.InsertRound(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert round entry")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRoundRecorded,
			AggregateType: enums.AggregateRoundEntry,
			AggregateID:   entry.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
			Data: payloads.RoundRecordedEvent{
				RouteID:       input.RouteID,
				StopID:        input.StopID,
				ParticipantID: input.ParticipantID,
				RoundEntryID:  entry.ID,
				Type:          input.Type,
				PayerID:       input.PayerID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) CheckIn(ctx context.Context, input CheckInInput) (*CheckInOutput, error) {
	if input.RouteID == uuid.Nil || input.StopID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route, stop and participant ids required")
	}

	out := &CheckInOutput{}
	var stopPosition int
	var completedNow bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stop, err := repo.FindStop(ctx, input.StopID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stop not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stop")
		}
		if stop.RouteID != input.RouteID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "stop does not belong to route")
		}
		stopPosition = stop.Position

		applied, err := repo.IncrementActualRounds(ctx, input.StopID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment actual rounds")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "stop has reached its max rounds")
		}

		firstArrival, err := repo.SetArrivedAt(ctx, input.StopID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp arrival")
		}
		out.FirstArrival = firstArrival

		updated, err := repo.FindStop(ctx, input.StopID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload stop")
		}
		out.ActualRounds = updated.ActualRounds
		out.StopCompleted = updated.ActualRounds >= updated.PlannedRounds

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStopCheckedIn,
			AggregateType: enums.AggregateStop,
			AggregateID:   input.StopID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
			Data: payloads.StopCheckedInEvent{
				RouteID:       input.RouteID,
				StopID:        input.StopID,
				ParticipantID: input.ParticipantID,
				ActualRounds:  updated.ActualRounds,
				Auto:          input.Auto,
			},
		}); err != nil {
			return err
		}

		// Completion fires once, on the increment that hits the plan.
		if updated.ActualRounds == updated.PlannedRounds {
			completedNow = true
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStopCompleted,
				AggregateType: enums.AggregateStop,
				AggregateID:   input.StopID,
				RouteID:       input.RouteID,
				Version:       1,
				Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
				Data: payloads.StopCompletedEvent{
					RouteID:      input.RouteID,
					StopID:       input.StopID,
					ActualRounds: updated.ActualRounds,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow {
		advanced, err := s.progression.Advance(ctx, progression.AdvanceInput{
			RouteID:   input.RouteID,
			FromIndex: stopPosition,
			Trigger:   progression.TriggerRoundsComplete,
			Actor:     &outbox.ActorRef{ParticipantID: input.ParticipantID},
		})
		if err != nil {
			return nil, err
		}
		out.Advanced = advanced.Applied
	}
	return out, nil
}

func (s *service) ContributePot(ctx context.Context, input PotContributionInput) (*PotContributionOutput, error) {
	if input.RouteID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route and participant ids required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	out := &PotContributionOutput{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		contribution := &models.PotContribution{
			RouteID:       input.RouteID,
			ParticipantID: input.ParticipantID,
			Amount:        input.Amount,
		}
		if err := repo.InsertContribution(ctx, contribution); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert pot contribution")
		}
		out.Contribution = contribution

		balance, err := s.potBalance(ctx, repo, input.RouteID)
		if err != nil {
			return err
		}
		out.NewBalance = balance

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPotContributed,
			AggregateType: enums.AggregatePot,
			AggregateID:   contribution.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
			Data: payloads.PotContributedEvent{
				RouteID:        input.RouteID,
				ParticipantID:  input.ParticipantID,
				ContributionID: contribution.ID,
				Amount:         input.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) SpendPot(ctx context.Context, input PotSpendInput) (*PotSpendOutput, error) {
	if input.RouteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}
	if len(description) > maxDescriptionLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description too long")
	}

	out := &PotSpendOutput{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		transaction := &models.PotTransaction{
			RouteID:     input.RouteID,
			Amount:      input.Amount,
			Description: description,
		}
		if err := repo.InsertTransaction(ctx, transaction); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert pot transaction")
		}
		out.Transaction = transaction

		contributed, err := repo.SumContributions(ctx, input.RouteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum contributions")
		}
		spent, err := repo.SumTransactions(ctx, input.RouteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum transactions")
		}
		out.NewSpent = spent
		// Overspending warns rather than rejects: the group settles up later.
		out.Overdrawn = spent.GreaterThan(contributed)

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPotSpent,
			AggregateType: enums.AggregatePot,
			AggregateID:   transaction.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         input.Actor,
			Data: payloads.PotSpentEvent{
				RouteID:       input.RouteID,
				TransactionID: transaction.ID,
				Amount:        input.Amount,
				Description:   description,
				Overdrawn:     out.Overdrawn,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) potBalance(ctx context.Context, repo Repository, routeID uuid.UUID) (decimal.Decimal, error) {
	contributed, err := repo.SumContributions(ctx, routeID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum contributions")
	}
	spent, err := repo.SumTransactions(ctx, routeID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum transactions")
	}
	return contributed.Sub(spent), nil
}

func (s *service) Aggregates(ctx context.Context, routeID uuid.UUID) (*Aggregates, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}

	byParticipant, err := s.repo.CountRoundsByParticipant(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rounds by participant")
	}
	byStop, err := s.repo.CountRoundsByStop(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rounds by stop")
	}
	byPayer, err := s.repo.CountRoundsByPayer(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rounds by payer")
	}
	byType, err := s.repo.CountRoundsByType(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rounds by type")
	}

	total := 0
	for _, count := range byParticipant {
		total += count
	}

	contributed, err := s.repo.SumContributions(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum contributions")
	}
	spent, err := s.repo.SumTransactions(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum transactions")
	}

	return &Aggregates{
		TotalRounds:         total,
		RoundsByParticipant: byParticipant,
		RoundsByStop:        byStop,
		RoundsByPayer:       byPayer,
		RoundsByType:        byType,
		PotContributed:      contributed,
		PotSpent:            spent,
		PotBalance:          contributed.Sub(spent),
		Overdrawn:           spent.GreaterThan(contributed),
	}, nil
}

func (s *service) Reconcile(ctx context.Context, routeID uuid.UUID) (*ReconcileOutput, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}

	route, err := s.routes.Find(ctx, routeID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route")
	}
	cached := route.PotTotalSpent

	out := &ReconcileOutput{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		healed, err := repo.ReconcilePotTotal(ctx, routeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile pot total")
		}
		out.PotTotalSpent = healed
		out.Drifted = !healed.Equal(cached)

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPotReconciled,
			AggregateType: enums.AggregateRoute,
			AggregateID:   routeID,
			RouteID:       routeID,
			Version:       1,
			Data: payloads.PotReconciledEvent{
				RouteID:       routeID,
				PotTotalSpent: healed,
				Drifted:       out.Drifted,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) ReconcileAll(ctx context.Context) error {
	routeIDs, err := s.repo.ListRouteIDs(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list route ids")
	}

	var errs error
	for _, routeID := range routeIDs {
		if _, err := s.Reconcile(ctx, routeID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
