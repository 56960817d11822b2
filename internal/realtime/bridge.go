package realtime

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
)

const bridgeConsumer = "realtime-worker"

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// Bridge consumes the route-events subscription and rebroadcasts each event
// to the route's websocket subscribers.
type Bridge struct {
	hub       *Hub
	processed processedGuard
	logg      *logger.Logger
}

// NewBridge wires the subscription-to-hub bridge. The processed guard is
// optional; without it the seen-set on each client still absorbs duplicates.
func NewBridge(hub *Hub, processed processedGuard, logg *logger.Logger) (*Bridge, error) {
	if hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "hub required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Bridge{hub: hub, processed: processed, logg: logg}, nil
}

// HandleMessage turns one Pub/Sub message into a hub broadcast. Validation
// failures are terminal; only infrastructure errors ask for redelivery.
func (b *Bridge) HandleMessage(ctx context.Context, data []byte, attrs map[string]string) error {
	eventID, err := uuid.Parse(attrs[outbox.AttrEventID])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message missing event id")
	}
	routeID, err := uuid.Parse(attrs[outbox.AttrRouteID])
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message missing route id")
	}
	eventType, err := enums.ParseOutboxEventType(attrs[outbox.AttrEventType])
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "message event type")
	}

	ctx = b.logg.WithRouteID(ctx, routeID.String())

	if b.processed != nil {
		already, err := b.processed.CheckAndMarkProcessed(ctx, bridgeConsumer, eventID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check")
		}
		if already {
			return nil
		}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode envelope")
	}
	if len(envelope.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "envelope missing payload")
	}

	b.hub.Broadcast(ctx, routeID, Event{
		ID:      eventID,
		Type:    eventType,
		Payload: envelope.Data,
	})
	return nil
}

// Run receives until the context ends, reconnecting with capped exponential
// backoff when the stream breaks.
func (b *Bridge) Run(ctx context.Context, sub subscriber) error {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			if handleErr := b.HandleMessage(ctx, msg.Data, msg.Attributes); handleErr != nil {
				if pkgerrors.Retryable(handleErr) {
					b.logg.Warn(ctx, "realtime message retried: "+handleErr.Error())
					msg.Nack()
					return
				}
				// Malformed messages never become deliverable; drop them.
				b.logg.Error(ctx, "realtime message dropped", handleErr)
			}
			msg.Ack()
		})
		if err != nil && ctx.Err() == nil {
			b.logg.Error(ctx, "realtime subscription receive", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
