// Package outbox persists domain events in the same transaction as the
// writes that produced them. A best-effort fast path publishes committed
// events to Redis; the poller that guarantees eventual delivery consumes
// the same table out of process.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const SchemaVersion = "v1"

// Source identifies this service in every envelope it emits.
const Source = "accounting-core"

// Event types emitted by the posting core.
const (
	EventJournalEntryCreated  = "journal.entry.created"
	EventJournalEntryReversed = "journal.entry.reversed"
	EventInventoryRecalc      = "inventory.recalc.requested"
)

// Event is the outbox envelope. Consumers deduplicate on EventID; delivery
// is at-least-once.
type Event struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	SchemaVersion string          `json:"schemaVersion"`
	OccurredAt    time.Time       `json:"occurredAt"`
	CompanyID     int             `json:"companyId"`
	PartitionKey  string          `json:"partitionKey"`
	CorrelationID string          `json:"correlationId"`
	CausationID   *string         `json:"causationId,omitempty"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// New builds an envelope for a company-scoped event. The partition key is
// the company id, so a partitioned consumer processes one tenant in order.
func New(companyID int, eventType, aggregateType, aggregateID, correlationID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		CompanyID:     companyID,
		PartitionKey:  strconv.Itoa(companyID),
		CorrelationID: correlationID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Source:        Source,
		Payload:       body,
	}, nil
}

// Caused returns a copy of e linked to the event that caused it.
func (e Event) Caused(causationID string) Event {
	e.CausationID = &causationID
	return e
}

// InsertTx appends the event inside the caller's transaction. Outbox rows
// are append-only; no locking is needed.
func InsertTx(ctx context.Context, tx pgx.Tx, e Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events
			(event_id, event_type, schema_version, occurred_at, company_id,
			 partition_key, correlation_id, causation_id, aggregate_type, aggregate_id,
			 source, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.EventID, e.EventType, e.SchemaVersion, e.OccurredAt, e.CompanyID,
		e.PartitionKey, e.CorrelationID, e.CausationID, e.AggregateType, e.AggregateID,
		e.Source, e.Payload)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", e.EventType, err)
	}
	return nil
}

// InsertAllTx appends events in order inside the caller's transaction.
func InsertAllTx(ctx context.Context, tx pgx.Tx, events []Event) error {
	for _, e := range events {
		if err := InsertTx(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

// RedisPublisher is the publish slice of the go-redis client.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher is the post-commit fast path. Failures are logged and left to
// the outbox poller; they never affect the request result.
type Publisher struct {
	pool *pgxpool.Pool
	rdb  RedisPublisher
	log  *zap.Logger
}

func NewPublisher(pool *pgxpool.Pool, rdb RedisPublisher, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{pool: pool, rdb: rdb, log: log}
}

// PublishFastPath pushes committed events to the pub/sub substrate and
// marks them published. Call only after the producing transaction commits.
func (p *Publisher) PublishFastPath(ctx context.Context, events []Event) {
	if p.rdb == nil {
		return
	}
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			p.log.Error("marshal outbox event", zap.String("event_id", e.EventID), zap.Error(err))
			continue
		}
		channel := "events." + e.PartitionKey
		if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
			p.log.Warn("fast-path publish failed, poller will retry",
				zap.String("event_id", e.EventID), zap.String("event_type", e.EventType), zap.Error(err))
			continue
		}
		if p.pool != nil {
			if _, err := p.pool.Exec(ctx,
				"UPDATE outbox_events SET published_at = NOW() WHERE event_id = $1 AND published_at IS NULL",
				e.EventID); err != nil {
				p.log.Warn("mark outbox event published", zap.String("event_id", e.EventID), zap.Error(err))
			}
		}
	}
}
