package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fulfillment-be/internal/db"
	"fulfillment-be/internal/events"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one outbox row and also the envelope published to the broker.
type Message struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Publisher delivers a message to the broker keyed by aggregate.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Enqueue records evt in the caller's transaction.
func Enqueue(ctx context.Context, tx db.DBTX, evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, payload
		) VALUES ($1,$2,$3,$4,$5)
	`, uuid.New(), evt.AggregateType(), evt.AggregateID(), evt.EventType(), string(payload))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", evt.EventType(), err)
	}
	return nil
}

func FetchUnpublished(ctx context.Context, tx db.DBTX, limit int) ([]Message, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var payload []byte
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = payload
		out = append(out, m)
	}
	return out, rows.Err()
}

func MarkPublished(ctx context.Context, tx db.DBTX, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE outbox_events SET published_at = NOW() WHERE id = $1
	`, id)
	return err
}

type Relay struct {
	db    *sql.DB
	pub   Publisher
	batch int
}

func NewRelay(conn *sql.DB, pub Publisher, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{db: conn, pub: pub, batch: batch}
}

// RunOnce publishes one batch in creation order. It stops at the first
// publish failure so later events never overtake an earlier one; rows
// published before the failure are still marked.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "outbox"),
		zap.String("method", "RunOnce"),
	)
	timer := metrics.StartTimer()

	published := 0
	var publishErr error
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		msgs, err := FetchUnpublished(ctx, tx, r.batch)
		if err != nil {
			return fmt.Errorf("fetch outbox: %w", err)
		}

		for _, m := range msgs {
			if err := r.pub.Publish(ctx, m.AggregateID, m); err != nil {
				metrics.OutboxFailed.Inc()
				publishErr = fmt.Errorf("publish %s %s: %w", m.EventType, m.ID, err)
				break
			}
			if err := MarkPublished(ctx, tx, m.ID); err != nil {
				return fmt.Errorf("mark published: %w", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.OutboxPublished.Add(uint64(published))
	if publishErr != nil {
		log.Warn("outbox relay stopped early",
			zap.Int("published", published),
			zap.Error(publishErr),
		)
		return published, publishErr
	}
	if published > 0 {
		log.Info("outbox relayed",
			zap.Int("published", published),
			zap.Duration("duration", timer.Duration()),
		)
	}
	return published, nil
}

// LogPublisher stands in for the broker when none is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(ctx context.Context, key string, event any) error {
	l := p.Logger
	if l == nil {
		l = logger.FromCtx(ctx)
	}
	fields := []zap.Field{zap.String("key", key)}
	if m, ok := event.(Message); ok {
		fields = append(fields,
			zap.String("event_type", m.EventType),
			zap.ByteString("payload", m.Payload),
		)
	}
	l.Info("event published", fields...)
	return nil
}
