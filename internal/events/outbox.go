package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/clock"
	obsmetrics "github.com/smallbiznis/salonbook/internal/observability/metrics"
	"github.com/smallbiznis/salonbook/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidTopic     = errors.New("invalid_event_topic")
	ErrInvalidDedupeKey = errors.New("invalid_event_dedupe_key")
)

// Handler consumes one delivered event. Handlers must be idempotent: an
// event can be delivered more than once when a worker retries it.
type Handler func(ctx context.Context, evt DomainEvent) error

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Outbox stores domain events in the caller's transaction and delivers them
// to in-process subscribers after commit.
type Outbox struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewOutbox(p Params) *Outbox {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Outbox{
		db:         p.DB,
		log:        p.Log.Named("events.outbox"),
		genID:      p.GenID,
		clock:      c,
		obsMetrics: p.ObsMetrics,
		handlers:   map[string][]Handler{},
	}
}

func (o *Outbox) Subscribe(topic string, handler Handler) {
	topic = strings.TrimSpace(topic)
	if topic == "" || handler == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[topic] = append(o.handlers[topic], handler)
}

// PublishTx writes the event inside tx. A repeated dedupe key is a no-op and
// returns a zero id.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evt Event) (snowflake.ID, error) {
	topic := strings.TrimSpace(evt.Topic)
	if topic == "" {
		return 0, ErrInvalidTopic
	}
	dedupeKey := strings.TrimSpace(evt.DedupeKey)
	if dedupeKey == "" {
		return 0, ErrInvalidDedupeKey
	}

	payload := make(map[string]any, len(evt.Payload)+3)
	for key, value := range evt.Payload {
		payload[key] = value
	}
	payload = correlation.InjectIntoPayload(ctx, payload)

	row := DomainEvent{
		ID:          o.genID.Generate(),
		Topic:       topic,
		AggregateID: evt.AggregateID,
		BranchID:    evt.BranchID,
		Payload:     datatypes.JSONMap(payload),
		DedupeKey:   dedupeKey,
		CreatedAt:   o.clock.Now(),
	}

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return row.ID, nil
}

// Flush delivers the given events right away. Failures are recorded on the
// row and left for ProcessPending.
func (o *Outbox) Flush(ctx context.Context, ids ...snowflake.ID) {
	pending := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return
	}

	var rows []DomainEvent
	if err := o.db.WithContext(ctx).
		Where("id IN ? AND published = ?", pending, false).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		o.log.Warn("failed to load events for delivery", zap.Error(err))
		return
	}

	for _, row := range rows {
		if err := o.deliver(ctx, row); err != nil {
			o.log.Warn("event delivery failed, will retry",
				zap.String("event_id", row.ID.String()),
				zap.String("topic", row.Topic),
				zap.Error(err),
			)
		}
	}
}

// ProcessPending delivers up to limit unpublished events, oldest first, and
// returns how many were delivered.
func (o *Outbox) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []DomainEvent
	if err := o.db.WithContext(ctx).
		Where("published = ? AND attempts < ?", false, MaxAttempts).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return 0, err
	}

	delivered := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := o.deliver(ctx, row); err != nil {
			o.log.Warn("event delivery failed",
				zap.String("event_id", row.ID.String()),
				zap.String("topic", row.Topic),
				zap.Int("attempts", row.Attempts+1),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// PendingCount reports events still waiting for delivery.
func (o *Outbox) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := o.db.WithContext(ctx).Model(&DomainEvent{}).
		Where("published = ? AND attempts < ?", false, MaxAttempts).
		Count(&count).Error
	return count, err
}

func (o *Outbox) deliver(ctx context.Context, row DomainEvent) error {
	o.mu.RLock()
	handlers := append([]Handler(nil), o.handlers[row.Topic]...)
	o.mu.RUnlock()

	deliveryCtx := correlation.ContextFromPayload(ctx, row.Payload)
	for _, handler := range handlers {
		if err := runHandler(deliveryCtx, handler, row); err != nil {
			o.obsMetrics.RecordOutboxDelivery(ctx, row.Topic, "failed")
			if markErr := o.markFailed(ctx, row.ID, err); markErr != nil {
				o.log.Error("failed to record event failure", zap.String("event_id", row.ID.String()), zap.Error(markErr))
			}
			return err
		}
	}

	if err := o.markPublished(ctx, row.ID); err != nil {
		return err
	}
	o.obsMetrics.RecordOutboxDelivery(ctx, row.Topic, "delivered")
	return nil
}

func runHandler(ctx context.Context, handler Handler, row DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, row)
}

func (o *Outbox) markPublished(ctx context.Context, id snowflake.ID) error {
	return o.db.WithContext(ctx).Exec(
		`UPDATE domain_events SET published = ?, published_at = ?, last_error = NULL WHERE id = ?`,
		true,
		o.clock.Now(),
		id,
	).Error
}

func (o *Outbox) markFailed(ctx context.Context, id snowflake.ID, cause error) error {
	msg := cause.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return o.db.WithContext(ctx).Exec(
		`UPDATE domain_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		msg,
		id,
	).Error
}
