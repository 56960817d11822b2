package nudges

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/payloads"
)

const maxBodyLen = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SendNudgeInput pokes lagging participants toward the current stop. A nil
// TargetID nudges everyone who has not arrived yet.
type SendNudgeInput struct {
	RouteID  uuid.UUID
	SenderID uuid.UUID
	TargetID *uuid.UUID
	StopID   uuid.UUID
	Body     string
}

// PostMessageInput appends a plain chat or system message.
type PostMessageInput struct {
	RouteID       uuid.UUID
	ParticipantID *uuid.UUID
	Kind          enums.ChatMessageKind
	Body          string
}

// Service persists messages and fans them out through the outbox.
type Service interface {
	SendNudge(ctx context.Context, input SendNudgeInput) (*models.ChatMessage, error)
	PostMessage(ctx context.Context, input PostMessageInput) (*models.ChatMessage, error)
	RecentMessages(ctx context.Context, routeID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService wires the nudge/chat service.
func NewService(repo Repository, tx txRunner, ob outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "chat repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if ob == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: ob}, nil
}

func validateBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "body required")
	}
	if len(trimmed) > maxBodyLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "body too long")
	}
	return trimmed, nil
}

func (s *service) SendNudge(ctx context.Context, input SendNudgeInput) (*models.ChatMessage, error) {
	if input.RouteID == uuid.Nil || input.SenderID == uuid.Nil || input.StopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route, sender and stop ids required")
	}
	body, err := validateBody(input.Body)
	if err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		RouteID:       input.RouteID,
		ParticipantID: &input.SenderID,
		Kind:          enums.ChatMessageKindNudge,
		Body:          body,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert nudge message")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNudgeSent,
			AggregateType: enums.AggregateChatMessage,
			AggregateID:   message.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         &outbox.ActorRef{ParticipantID: input.SenderID},
			Data: payloads.NudgeSentEvent{
				RouteID:   input.RouteID,
				MessageID: message.ID,
				SenderID:  input.SenderID,
				TargetID:  input.TargetID,
				StopID:    input.StopID,
				Body:      body,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (s *service) PostMessage(ctx context.Context, input PostMessageInput) (*models.ChatMessage, error) {
	if input.RouteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown message kind")
	}
	if input.Kind != enums.ChatMessageKindSystem && input.ParticipantID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "participant required for non-system messages")
	}
	body, err := validateBody(input.Body)
	if err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		RouteID:       input.RouteID,
		ParticipantID: input.ParticipantID,
		Kind:          input.Kind,
		Body:          body,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert chat message")
		}
		var actor *outbox.ActorRef
		if input.ParticipantID != nil {
			actor = &outbox.ActorRef{ParticipantID: *input.ParticipantID}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventChatMessage,
			AggregateType: enums.AggregateChatMessage,
			AggregateID:   message.ID,
			RouteID:       input.RouteID,
			Version:       1,
			Actor:         actor,
			Data: payloads.ChatMessageEvent{
				RouteID:       input.RouteID,
				MessageID:     message.ID,
				ParticipantID: input.ParticipantID,
				Kind:          input.Kind,
				Body:          body,
				CreatedAt:     message.CreatedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (s *service) RecentMessages(ctx context.Context, routeID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	rows, err := s.repo.ListRecent(ctx, routeID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent messages")
	}
	return rows, nil
}
