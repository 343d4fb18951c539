package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListOptions narrows an inbox listing.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	}
	return o.Limit
}

// Store persists the inbox. Expired notifications are never returned.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, opts ListOptions, now time.Time) ([]*Notification, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID, now time.Time) (*Notification, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error)
	PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps notifications in the notifications table.
type PostgresStore struct {
	db db
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithExec(db db) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationColumns = `id, sender_id, recipient_id, title, message, type, priority, status,
	reference_id, reference_type, created_at, read_at, expires_at`

func (s *PostgresStore) Insert(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.Exec(ctx, query,
		n.ID,
		n.SenderID,
		n.RecipientID,
		n.Title,
		n.Message,
		string(n.Type),
		string(n.Priority),
		string(n.Status),
		n.ReferenceID,
		n.ReferenceType,
		n.CreatedAt,
		n.ReadAt,
		n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("notify: insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListForRecipient(ctx context.Context, recipientID uuid.UUID, opts ListOptions, now time.Time) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = $1 AND expires_at > $2 AND status <> 'Archived'`
	if opts.UnreadOnly {
		query += ` AND status = 'Unread'`
	}
	query += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := s.db.Query(ctx, query, recipientID, now, opts.limit())
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	out := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, id uuid.UUID, now time.Time) (*Notification, error) {
	query := `
		UPDATE notifications
		SET status = 'Read', read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns
	n, err := scanNotification(s.db.QueryRow(ctx, query, id, recipientID, now))
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("notify: mark read: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE notifications SET status = 'Read', read_at = $2
		WHERE recipient_id = $1 AND status = 'Unread'
	`, recipientID, now)
	if err != nil {
		return 0, fmt.Errorf("notify: mark all read: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND status = 'Unread' AND expires_at > $2
	`, recipientID, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notify: count unread: %w", err)
	}
	return count, nil
}

// PurgeExpired deletes up to limit notifications that expired before the cutoff.
func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE id IN (
			SELECT id FROM notifications
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("notify: purge expired: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var typ, priority, status string
	err := row.Scan(
		&n.ID,
		&n.SenderID,
		&n.RecipientID,
		&n.Title,
		&n.Message,
		&typ,
		&priority,
		&status,
		&n.ReferenceID,
		&n.ReferenceType,
		&n.CreatedAt,
		&n.ReadAt,
		&n.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notify: scan notification: %w", err)
	}
	n.Type = Type(typ)
	n.Priority = Priority(priority)
	n.Status = Status(status)
	return &n, nil
}

// InMemoryStore keeps notifications in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Notification
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[uuid.UUID]Notification)}
}

func (s *InMemoryStore) Insert(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = *n
	return nil
}

func (s *InMemoryStore) ListForRecipient(ctx context.Context, recipientID uuid.UUID, opts ListOptions, now time.Time) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Notification{}
	for _, n := range s.items {
		if !visible(n, recipientID, now) || (opts.UnreadOnly && n.Status != StatusUnread) {
			continue
		}
		cp := n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := opts.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkRead(ctx context.Context, recipientID, id uuid.UUID, now time.Time) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok || n.RecipientID != recipientID {
		return nil, ErrNotFound
	}
	n.Status = StatusRead
	if n.ReadAt == nil {
		n.ReadAt = &now
	}
	s.items[id] = n
	return &n, nil
}

func (s *InMemoryStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.items {
		if n.RecipientID != recipientID || n.Status != StatusUnread {
			continue
		}
		n.Status = StatusRead
		n.ReadAt = &now
		s.items[id] = n
		count++
	}
	return count, nil
}

func (s *InMemoryStore) CountUnread(ctx context.Context, recipientID uuid.UUID, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if visible(n, recipientID, now) && n.Status == StatusUnread {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.items {
		if count >= limit {
			break
		}
		if !n.ExpiresAt.After(before) {
			delete(s.items, id)
			count++
		}
	}
	return count, nil
}

func visible(n Notification, recipientID uuid.UUID, now time.Time) bool {
	return n.RecipientID == recipientID && n.Status != StatusArchived && n.ExpiresAt.After(now)
}
