package events

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/realestate-marketplace/internal/observability/metrics"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// OutboxEntry is one leased outbox row. Payload holds the encoded Envelope.
type OutboxEntry struct {
	// Seq is the insertion order; CreatedAt can tie within one transaction.
	Seq       int64
	ID        uuid.UUID
	Aggregate string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ClaimRequest bounds one lease of pending rows.
type ClaimRequest struct {
	Limit       int32
	Lease       time.Duration
	MaxAttempts int
}

// OutboxStore leases and acknowledges rows written by Append. Leases let
// several API replicas run a Deliverer against the same table.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Claim leases up to req.Limit undelivered rows in insertion order. Rows that hit
// req.MaxAttempts failures stay parked until an operator resets them.
func (s *OutboxStore) Claim(ctx context.Context, req ClaimRequest) ([]OutboxEntry, error) {
	query := `
		UPDATE outbox
		SET claimed_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox
			WHERE delivered_at IS NULL
			  AND attempts < $3
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY seq
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING seq, id, aggregate, event_type, payload, created_at, attempts
	`
	rows, err := s.db.Query(ctx, query, req.Limit, req.Lease.Seconds(), req.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			entry   OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.ID, &entry.Aggregate, &entry.Type, &payload, &entry.CreatedAt, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	// RETURNING order is unspecified.
	slices.SortFunc(entries, func(a, b OutboxEntry) int { return cmp.Compare(a.Seq, b.Seq) })
	return entries, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET delivered_at = now(), claimed_until = NULL, last_error = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed counts a failed attempt and frees the lease.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, claimed_until = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`
	if _, err := s.db.Exec(ctx, query, id, msg); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// Release frees the lease without counting an attempt.
func (s *OutboxStore) Release(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `UPDATE outbox SET claimed_until = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("events: release: %w", err)
	}
	return nil
}

type leaseStore interface {
	Claim(ctx context.Context, req ClaimRequest) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	Release(ctx context.Context, id uuid.UUID) error
}

// Deliverer polls the outbox and hands rows to the handler. Delivery is
// at-least-once and ordered per stream: after a failure the remaining rows
// of that proposal wait for the next poll.
type Deliverer struct {
	store       leaseStore
	handler     DeliveryHandler
	logger      *logging.Logger
	metrics     *metrics.OutboxMetrics
	batchSize   int32
	interval    time.Duration
	maxAttempts int
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Deliverer{
		handler:     handler,
		logger:      logger,
		batchSize:   50,
		interval:    5 * time.Second,
		maxAttempts: 10,
	}
	if store != nil {
		d.store = store
	}
	return d
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.OutboxMetrics) *Deliverer {
	d.metrics = m
	return d
}

// lease outlives a poll so a slow batch is not handed to another replica.
func (d *Deliverer) lease() time.Duration {
	return 6 * d.interval
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.Claim(ctx, ClaimRequest{Limit: d.batchSize, Lease: d.lease(), MaxAttempts: d.maxAttempts})
	if err != nil {
		d.logger.Error("outbox claim failed", "error", err)
		return
	}
	d.metrics.ObserveBatch(len(entries))

	blocked := make(map[string]bool)
	for _, entry := range entries {
		if blocked[entry.Aggregate] {
			if err := d.store.Release(ctx, entry.ID); err != nil {
				d.logger.Warn("outbox release failed", "error", err, "event_id", entry.ID)
			}
			continue
		}
		err := d.handler.Handle(ctx, entry)
		d.metrics.ObserveDelivery(entry.Type, err)
		if err != nil {
			blocked[entry.Aggregate] = true
			d.fail(ctx, entry, err)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("outbox ack failed", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type, "stream", entry.Aggregate)
		}
	}
}

func (d *Deliverer) fail(ctx context.Context, entry OutboxEntry, cause error) {
	attempt := entry.Attempts + 1
	if attempt >= d.maxAttempts {
		d.logger.Error("outbox event parked", "error", cause, "event_id", entry.ID, "type", entry.Type, "attempts", attempt)
	} else {
		d.logger.Warn("outbox delivery failed", "error", cause, "event_id", entry.ID, "type", entry.Type, "attempt", attempt)
	}
	if err := d.store.MarkFailed(ctx, entry.ID, cause); err != nil {
		d.logger.Error("outbox failure not recorded", "error", err, "event_id", entry.ID)
	}
}
