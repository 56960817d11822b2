package participants

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/auth"
	"github.com/hopround/hopround-backend/pkg/config"
	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
	"github.com/hopround/hopround-backend/pkg/security"
	"github.com/hopround/hopround-backend/pkg/types"
)

const maxDisplayNameLen = 40

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RouteFinder exposes the route lookups the participant flows need.
type RouteFinder interface {
	Find(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
}

// Service defines membership operations on a route.
type Service interface {
	Join(ctx context.Context, input JoinInput) (*JoinOutput, error)
	Leave(ctx context.Context, routeID, participantID uuid.UUID) error
	UpdateLocation(ctx context.Context, input LocationInput) (*models.Participant, error)
	ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error)
	Get(ctx context.Context, participantID uuid.UUID) (*models.Participant, error)
}

type service struct {
	repo   Repository
	routes RouteFinder
	tx     txRunner
	outbox outboxPublisher
	jwtCfg config.JWTConfig
}

// JoinInput carries everything needed to enter a route. Exactly one of UserID
// and GuestID identifies the caller; a nil GuestID for an anonymous caller is
// filled in with a fresh UUID so rejoining from the same device works.
type JoinInput struct {
	RouteID     uuid.UUID
	JoinCode    string
	DisplayName string
	UserID      *uuid.UUID
	GuestID     *uuid.UUID
}

// JoinOutput returns the participant row plus a scoped access token.
type JoinOutput struct {
	Participant *models.Participant
	Token       string
	Rejoined    bool
}

// LocationInput is a single GPS fix reported by a client.
type LocationInput struct {
	RouteID       uuid.UUID
	ParticipantID uuid.UUID
	Fix           types.GeoFix
}

// NewService wires the participant service with its dependencies.
func NewService(repo Repository, routes RouteFinder, tx txRunner, ob outboxPublisher, jwtCfg config.JWTConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "participant repository required")
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
	return &service{repo: repo, routes: routes, tx: tx, outbox: ob, jwtCfg: jwtCfg}, nil
}

func (s *service) Join(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	if input.RouteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	if strings.TrimSpace(input.JoinCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "join code required")
	}
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name required")
	}
	if len(name) > maxDisplayNameLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name too long")
	}
	if input.UserID != nil && input.GuestID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and guest identity are mutually exclusive")
	}

	route, err := s.routes.Find(ctx, input.RouteID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route")
	}
	if route.Status == enums.RouteStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "route already completed")
	}

	ok, err := security.VerifyJoinCode(strings.TrimSpace(input.JoinCode), route.JoinCodeHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify join code")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invalid join code")
	}

	guestID := input.GuestID
	if input.UserID == nil && guestID == nil {
		fresh := uuid.New()
		guestID = &fresh
	}

	out := &JoinOutput{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, findErr := repo.FindByIdentity(ctx, route.ID, input.UserID, guestID)
		if findErr != nil && findErr != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "lookup participant")
		}

		if existing != nil {
			// Rejoin reactivates the existing row so history stays attached.
			updates := map[string]any{
				"is_active":    true,
				"left_at":      nil,
				"display_name": name,
			}
			if updateErr := repo.Update(ctx, existing.ID, updates); updateErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "reactivate participant")
			}
			existing.IsActive = true
			existing.LeftAt = nil
			existing.DisplayName = name
			out.Participant = existing
			out.Rejoined = true
		} else {
			participant := &models.Participant{
				RouteID:     route.ID,
				UserID:      input.UserID,
				GuestID:     guestID,
				DisplayName: name,
				IsActive:    true,
			}
			if createErr := repo.Create(ctx, participant); createErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create participant")
			}
			out.Participant = participant
		}

		activeCount, countErr := repo.CountActive(ctx, route.ID)
		if countErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, countErr, "count active participants")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantJoined,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   out.Participant.ID,
			RouteID:       route.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: out.Participant.ID, DisplayName: name},
			Data: payloads.ParticipantJoinedEvent{
				RouteID:       route.ID,
				ParticipantID: out.Participant.ID,
				DisplayName:   name,
				IsGuest:       out.Participant.IsGuest(),
				ActiveCount:   activeCount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	token, err := auth.MintAccessToken(s.jwtCfg, time.Now(), auth.AccessTokenPayload{
		ParticipantID: out.Participant.ID,
		RouteID:       route.ID,
		DisplayName:   name,
		IsGuest:       out.Participant.IsGuest(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	out.Token = token
	return out, nil
}

func (s *service) Leave(ctx context.Context, routeID, participantID uuid.UUID) error {
	if routeID == uuid.Nil || participantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "route and participant ids required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		participant, err := repo.Find(ctx, participantID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "participant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participant")
		}
		if participant.RouteID != routeID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "participant does not belong to route")
		}
		if !participant.IsActive {
			// Leaving twice is a no-op, not an error.
			return nil
		}

		now := time.Now()
		if err := repo.Update(ctx, participant.ID, DeactivateUpdates(now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate participant")
		}

		activeCount, err := repo.CountActive(ctx, routeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active participants")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantLeft,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   participant.ID,
			RouteID:       routeID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: participant.ID},
			Data: payloads.ParticipantLeftEvent{
				RouteID:       routeID,
				ParticipantID: participant.ID,
				ActiveCount:   activeCount,
				LeftAt:        now,
			},
		})
	})
}

func (s *service) UpdateLocation(ctx context.Context, input LocationInput) (*models.Participant, error) {
	if input.RouteID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route and participant ids required")
	}
	if input.Fix.Lat < -90 || input.Fix.Lat > 90 || input.Fix.Lng < -180 || input.Fix.Lng > 180 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	if input.Fix.AccuracyM < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "accuracy must be non-negative")
	}

	var updated *models.Participant
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		participant, err := repo.Find(ctx, input.ParticipantID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "participant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participant")
		}
		if participant.RouteID != input.RouteID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "participant does not belong to route")
		}
		if !participant.IsActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "participant has left the route")
		}

		fixAt := time.UnixMilli(input.Fix.UnixMS)
		if input.Fix.UnixMS == 0 {
			fixAt = time.Now()
		}
		updates := map[string]any{
			"last_lat":    input.Fix.Lat,
			"last_lng":    input.Fix.Lng,
			"last_fix_at": fixAt,
		}
		if err := repo.Update(ctx, participant.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store location fix")
		}
		participant.LastLat = &input.Fix.Lat
		participant.LastLng = &input.Fix.Lng
		participant.LastFixAt = &fixAt
		updated = participant

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventParticipantLocation,
			AggregateType: enums.AggregateParticipant,
			AggregateID:   participant.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: participant.ID},
			Data: payloads.ParticipantLocationEvent{
				RouteID:       input.RouteID,
				ParticipantID: participant.ID,
				Lat:           input.Fix.Lat,
				Lng:           input.Fix.Lng,
				AccuracyM:     input.Fix.AccuracyM,
				FixAt:         fixAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	rows, err := s.repo.ListActive(ctx, routeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active participants")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	if participantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "participant id required")
	}
	participant, err := s.repo.Find(ctx, participantID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "participant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participant")
	}
	return participant, nil
}
