package votes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stopFinder interface {
	FindStop(ctx context.Context, stopID uuid.UUID) (*models.Stop, error)
}

type participantCounter interface {
	CountActive(ctx context.Context, routeID uuid.UUID) (int, error)
}

type routeAdvancer interface {
	Advance(ctx context.Context, input progression.AdvanceInput) (*progression.AdvanceOutput, error)
}

// CastVoteInput is one participant's stance on skipping the stop.
type CastVoteInput struct {
	RouteID       uuid.UUID
	StopID        uuid.UUID
	ParticipantID uuid.UUID
	Skip          bool
}

// Summary is the running tally for a stop. Non-voters count as stays, so the
// decision reads skipVotes against the full active headcount.
type Summary struct {
	StopID      uuid.UUID
	SkipVotes   int
	StayVotes   int
	ActiveCount int
	ShouldSkip  bool
}

// CastVoteOutput is the tally after the vote plus whether this vote flipped
// the decision.
type CastVoteOutput struct {
	Summary  Summary
	Decided  bool
	Advanced bool
}

// Service tracks skip consensus per stop.
type Service interface {
	CastVote(ctx context.Context, input CastVoteInput) (*CastVoteOutput, error)
	StopSummary(ctx context.Context, routeID, stopID uuid.UUID) (*Summary, error)
}

type service struct {
	repo         Repository
	stops        stopFinder
	participants participantCounter
	tx           txRunner
	outbox       outboxPublisher
	progression  routeAdvancer
}

// NewService wires the consensus tracker. The advancer is invoked once when a
// vote flips the decision; compare-and-swap in progression absorbs repeats.
func NewService(repo Repository, stops stopFinder, participants participantCounter, tx txRunner, ob outboxPublisher, advancer routeAdvancer) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "vote repository required")
	}
	if stops == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stop finder required")
	}
	if participants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "participant counter required")
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
	return &service{repo: repo, stops: stops, participants: participants, tx: tx, outbox: ob, progression: advancer}, nil
}

func shouldSkip(skipVotes, activeCount int) bool {
	return skipVotes > activeCount/2
}

func (s *service) CastVote(ctx context.Context, input CastVoteInput) (*CastVoteOutput, error) {
	if input.RouteID == uuid.Nil || input.StopID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route, stop and participant ids required")
	}

	stop, err := s.stops.FindStop(ctx, input.StopID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stop")
	}
	if stop.RouteID != input.RouteID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "stop does not belong to route")
	}

	out := &CastVoteOutput{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// activeCount is read at evaluation time; leavers shrink the
		// denominator for every later evaluation.
		activeCount, err := s.participants.CountActive(ctx, input.RouteID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active participants")
		}

		beforeSkips, err := repo.CountSkips(ctx, input.StopID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count skip votes")
		}
		decidedBefore := shouldSkip(beforeSkips, activeCount)

		vote := &models.SkipVote{
			RouteID:       input.RouteID,
			StopID:        input.StopID,
			ParticipantID: input.ParticipantID,
			Skip:          input.Skip,
		}
		if err := repo.Upsert(ctx, vote); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert skip vote")
		}

		afterSkips, err := repo.CountSkips(ctx, input.StopID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recount skip votes")
		}

		out.Summary = Summary{
			StopID:      input.StopID,
			SkipVotes:   afterSkips,
			StayVotes:   activeCount - afterSkips,
			ActiveCount: activeCount,
			ShouldSkip:  shouldSkip(afterSkips, activeCount),
		}
		out.Decided = out.Summary.ShouldSkip && !decidedBefore

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoteCast,
			AggregateType: enums.AggregateSkipVote,
			AggregateID:   input.StopID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
			Data: payloads.VoteCastEvent{
				RouteID:       input.RouteID,
				StopID:        input.StopID,
				ParticipantID: input.ParticipantID,
				Skip:          input.Skip,
				SkipVotes:     afterSkips,
				ActiveCount:   activeCount,
			},
		}); err != nil {
			return err
		}

		if out.Decided {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStopSkipped,
				AggregateType: enums.AggregateStop,
				AggregateID:   input.StopID,
				RouteID:       input.RouteID,
				Version:       1,
				Actor:         &outbox.ActorRef{ParticipantID: input.ParticipantID},
				Data: payloads.StopSkippedEvent{
					RouteID:     input.RouteID,
					StopID:      input.StopID,
					SkipVotes:   afterSkips,
					ActiveCount: activeCount,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Decided {
		advanced, err := s.progression.Advance(ctx, progression.AdvanceInput{
			RouteID:   input.RouteID,
			FromIndex: stop.Position,
			Trigger:   progression.TriggerSkipVote,
			Actor:     &outbox.ActorRef{ParticipantID: input.ParticipantID},
		})
		if err != nil {
			return nil, err
		}
		out.Advanced = advanced.Applied
	}
	return out, nil
}

func (s *service) StopSummary(ctx context.Context, routeID, stopID uuid.UUID) (*Summary, error) {
	if routeID == uuid.Nil || stopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route and stop ids required")
	}

	stop, err := s.stops.FindStop(ctx, stopID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stop")
	}
	if stop.RouteID != routeID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "stop does not belong to route")
	}

	activeCount, err := s.participants.CountActive(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active participants")
	}
	skips, err := s.repo.CountSkips(ctx, stopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count skip votes")
	}

	return &Summary{
		StopID:      stopID,
		SkipVotes:   skips,
		StayVotes:   activeCount - skips,
		ActiveCount: activeCount,
		ShouldSkip:  shouldSkip(skips, activeCount),
	}, nil
}
