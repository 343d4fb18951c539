package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownUser is returned when a recipient has no contact record.
var ErrUnknownUser = errors.New("notify: unknown user")

// Contact is where e-mail for a user goes.
type Contact struct {
	Email string
	Name  string
}

// UserDirectory resolves recipients to contacts.
type UserDirectory interface {
	Contact(ctx context.Context, userID uuid.UUID) (*Contact, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads the users table.
type PostgresDirectory struct {
	db rowQuerier
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresDirectory{db: pool}
}

func (d *PostgresDirectory) Contact(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	var c Contact
	err := d.db.QueryRow(ctx, `SELECT email, name FROM users WHERE id = $1`, userID).Scan(&c.Email, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("notify: load contact: %w", err)
	}
	return &c, nil
}

// StaticDirectory serves contacts from a map.
type StaticDirectory struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]Contact
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{contacts: make(map[uuid.UUID]Contact)}
}

func (d *StaticDirectory) Put(userID uuid.UUID, c Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[userID] = c
}

func (d *StaticDirectory) Contact(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.contacts[userID]
	if !ok {
		return nil, ErrUnknownUser
	}
	return &c, nil
}
