package analytics

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
)

const analyticsConsumer = "analytics-worker"

// recordedTypes lists the event types worth a warehouse row. Location fixes
// and chat traffic are high-volume noise and stay out.
var recordedTypes = map[enums.OutboxEventType]struct{}{
	enums.EventParticipantJoined: {},
	enums.EventParticipantLeft:   {},
	enums.EventStopArrived:       {},
	enums.EventStopCheckedIn:     {},
	enums.EventStopCompleted:     {},
	enums.EventStopSkipped:       {},
	enums.EventRoundRecorded:     {},
	enums.EventVoteCast:          {},
	enums.EventPotContributed:    {},
	enums.EventPotSpent:          {},
	enums.EventPotReconciled:     {},
	enums.EventRouteAdvanced:     {},
	enums.EventRouteCompleted:    {},
}

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// flatFields is the superset of payload fields the warehouse row cares
// about. Each event type fills its own subset; the JSON keys do not collide.
type flatFields struct {
	ParticipantID *uuid.UUID       `json:"participantId"`
	StopID        *uuid.UUID       `json:"stopId"`
	RoundType     string           `json:"type"`
	Amount        *decimal.Decimal `json:"amount"`
	SkipVotes     *int             `json:"skipVotes"`
	ActiveCount   *int             `json:"activeCount"`
	ActualRounds  *int             `json:"actualRounds"`
	DistanceM     *float64         `json:"distanceMeters"`
	Auto          *bool            `json:"auto"`
	Overdrawn     *bool            `json:"overdrawn"`
}

// Consumer flattens route events into BigQuery rows.
type Consumer struct {
	inserter  rowInserter
	table     string
	processed processedGuard
	logg      *logger.Logger
}

// NewConsumer wires the analytics consumer. The processed guard is optional;
// without it duplicate deliveries become duplicate rows, which downstream
// queries dedup on event_id.
func NewConsumer(inserter rowInserter, table string, processed processedGuard, logg *logger.Logger) (*Consumer, error) {
	if inserter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "row inserter required")
	}
	if table == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "table name required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Consumer{inserter: inserter, table: table, processed: processed, logg: logg}, nil
}

// HandleMessage flattens one route event into a warehouse row. Events that
// are not recorded, or already processed, ack without a row.
func (c *Consumer) HandleMessage(ctx context.Context, data []byte, attrs map[string]string) error {
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
	if _, recorded := recordedTypes[eventType]; !recorded {
		return nil
	}

	ctx = c.logg.WithRouteID(ctx, routeID.String())

	if c.processed != nil {
		already, err := c.processed.CheckAndMarkProcessed(ctx, analyticsConsumer, eventID)
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
	var fields flatFields
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payload")
		}
	}

	row := buildRow(eventID, routeID, eventType, envelope, fields)
	if err := c.inserter.InsertRows(ctx, c.table, []any{row}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert crawl event row")
	}
	return nil
}

func buildRow(eventID, routeID uuid.UUID, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope, fields flatFields) *CrawlEventRow {
	row := &CrawlEventRow{
		EventID:      eventID.String(),
		EventType:    string(eventType),
		RouteID:      routeID.String(),
		RoundType:    nullString(fields.RoundType),
		SkipVotes:    nullInt(fields.SkipVotes),
		ActiveCount:  nullInt(fields.ActiveCount),
		ActualRounds: nullInt(fields.ActualRounds),
		DistanceM:    nullFloat(fields.DistanceM),
		Auto:         nullBool(fields.Auto),
		Overdrawn:    nullBool(fields.Overdrawn),
		OccurredAt:   envelope.OccurredAt,
		IngestedAt:   time.Now().UTC(),
	}
	if fields.ParticipantID != nil {
		row.ParticipantID = nullString(fields.ParticipantID.String())
	} else if envelope.Actor != nil {
		row.ParticipantID = nullString(envelope.Actor.ParticipantID.String())
	}
	if fields.StopID != nil {
		row.StopID = nullString(fields.StopID.String())
	}
	if fields.Amount != nil {
		amount := fields.Amount.InexactFloat64()
		row.Amount = nullFloat(&amount)
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = row.IngestedAt
	}
	return row
}

// Run receives until the context ends, reconnecting with capped exponential
// backoff when the stream breaks.
func (c *Consumer) Run(ctx context.Context, sub subscriber) error {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			if handleErr := c.HandleMessage(ctx, msg.Data, msg.Attributes); handleErr != nil {
				if pkgerrors.Retryable(handleErr) {
					c.logg.Warn(ctx, "analytics message retried: "+handleErr.Error())
					msg.Nack()
					return
				}
				c.logg.Error(ctx, "analytics message dropped", handleErr)
			}
			msg.Ack()
		})
		if err != nil && ctx.Err() == nil {
			c.logg.Error(ctx, "analytics subscription receive", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
