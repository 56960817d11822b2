package offline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
)

const (
	drainBackoffBase = time.Second
	drainBackoffCap  = 30 * time.Second
	idlePollInterval = 15 * time.Second
)

// Item is one pending write intent. The ID doubles as the server-side
// idempotency key, so a replayed send can never double-apply.
type Item struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	ID         uuid.UUID `gorm:"type:text;uniqueIndex;not null"`
	Kind       string    `gorm:"not null"`
	Payload    []byte    `gorm:"not null"`
	Attempts   int       `gorm:"not null;default:0"`
	EnqueuedAt time.Time `gorm:"not null"`
}

// TableName keeps the local schema explicit.
func (Item) TableName() string {
	return "queue_items"
}

// Applier mirrors each write kind into local optimistic state and knows the
// exact inverse for when the server rejects it.
type Applier interface {
	Apply(ctx context.Context, item Item) error
	Rollback(ctx context.Context, item Item) error
}

// Sender delivers one item to the server write API, passing the item ID as
// the Idempotency-Key.
type Sender interface {
	Send(ctx context.Context, item Item) error
}

// Notifier surfaces terminal rejections to the user.
type Notifier interface {
	ItemRejected(ctx context.Context, item Item, err error)
}

// Queue is the client-resident durable FIFO of pending writes. Enqueue
// succeeds regardless of connectivity; Run drains against the server when a
// connection is available.
type Queue struct {
	db       *gorm.DB
	applier  Applier
	sender   Sender
	notifier Notifier
	logg     *logger.Logger
	kick     chan struct{}
}

// Open creates or reuses the local sqlite queue file and migrates its schema.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open offline queue store")
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "migrate offline queue store")
	}
	return db, nil
}

// NewQueue wires the queue. The notifier is optional.
func NewQueue(db *gorm.DB, applier Applier, sender Sender, notifier Notifier, logg *logger.Logger) (*Queue, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "queue store required")
	}
	if applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applier required")
	}
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sender required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Queue{
		db:       db,
		applier:  applier,
		sender:   sender,
		notifier: notifier,
		logg:     logg,
		kick:     make(chan struct{}, 1),
	}, nil
}

// Enqueue persists the intent locally and applies the optimistic update.
// It never depends on connectivity; a failed optimistic apply is logged and
// the item stays queued regardless.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (*Item, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "queue item kind is required")
	}
	if _, err := enums.ParseQueueItemType(kind); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "queue item kind")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode queue item payload")
	}

	item := Item{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist queue item")
	}

	if err := q.applier.Apply(ctx, item); err != nil {
		q.logg.Warn(ctx, "optimistic apply failed: "+err.Error())
	}

	select {
	case q.kick <- struct{}{}:
	default:
	}
	return &item, nil
}

// Pending reports the number of queued items, for the UI's pending-count
// indicator.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&Item{}).Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count queue items")
	}
	return count, nil
}

// DrainOnce attempts every queued item once, in enqueue order. Terminal
// rejections roll back the optimistic update, notify, and drop the item; a
// transient failure leaves the item queued for the next cycle without
// blocking the items behind it. Returns the number of items still queued.
func (q *Queue) DrainOnce(ctx context.Context) (int64, error) {
	var items []Item
	if err := q.db.WithContext(ctx).Order("seq ASC").Find(&items).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list queue items")
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			break
		}
		sendErr := q.sender.Send(ctx, item)
		if sendErr == nil {
			if err := q.remove(ctx, item.ID); err != nil {
				return q.countOrZero(ctx), err
			}
			continue
		}

		if pkgerrors.Retryable(sendErr) {
			q.logg.Warn(ctx, "queue item "+item.ID.String()+" deferred: "+sendErr.Error())
			q.bumpAttempts(ctx, item.ID)
			continue
		}

		// Rejected for good: undo the optimistic change and drop the item.
		if rollbackErr := q.applier.Rollback(ctx, item); rollbackErr != nil {
			q.logg.Error(ctx, "rollback queue item "+item.ID.String(), rollbackErr)
		}
		if q.notifier != nil {
			q.notifier.ItemRejected(ctx, item, sendErr)
		}
		if err := q.remove(ctx, item.ID); err != nil {
			return q.countOrZero(ctx), err
		}
	}

	return q.Pending(ctx)
}

// Run drains forever: exponential backoff between cycles while items remain,
// then idle until the next enqueue or poll tick. There is no retry cap;
// abandoning the queue means leaving the route.
func (q *Queue) Run(ctx context.Context) error {
	for {
		backoff := retry.WithCappedDuration(drainBackoffCap, retry.NewExponential(drainBackoffBase))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			remaining, drainErr := q.DrainOnce(ctx)
			if drainErr != nil {
				return retry.RetryableError(drainErr)
			}
			if remaining > 0 {
				return retry.RetryableError(pkgerrors.New(pkgerrors.CodeDependency, "queue items pending"))
			}
			return nil
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			q.logg.Error(ctx, "offline queue drain", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.kick:
		case <-time.After(idlePollInterval):
		}
	}
}

func (q *Queue) remove(ctx context.Context, id uuid.UUID) error {
	if err := q.db.WithContext(ctx).Delete(&Item{}, "id = ?", id).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove queue item")
	}
	return nil
}

func (q *Queue) bumpAttempts(ctx context.Context, id uuid.UUID) {
	err := q.db.WithContext(ctx).Model(&Item{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		q.logg.Warn(ctx, "bump queue item attempts: "+err.Error())
	}
}

func (q *Queue) countOrZero(ctx context.Context) int64 {
	count, err := q.Pending(ctx)
	if err != nil {
		return 0
	}
	return count
}
