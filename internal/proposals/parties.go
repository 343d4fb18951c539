package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Listing statuses of a property.
const (
	PropertyAvailable     = "Available"
	PropertyReserved      = "Reserved"
	PropertyUnderContract = "UnderContract"
	PropertySold          = "Sold"
	PropertyRented        = "Rented"
)

// PropertyInfo is the slice of a listing the workflow reads.
type PropertyInfo struct {
	ID          uuid.UUID
	Title       string
	Status      string
	AgentID     *uuid.UUID
	AgentUserID *uuid.UUID
}

func (p *PropertyInfo) Available() bool {
	return strings.EqualFold(p.Status, PropertyAvailable)
}

// Closed reports a listing that has already been sold or rented out.
func (p *PropertyInfo) Closed() bool {
	return strings.EqualFold(p.Status, PropertySold) || strings.EqualFold(p.Status, PropertyRented)
}

// ClientInfo links a client record to its user account.
type ClientInfo struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Name   string
}

// Parties resolves the property and people around a proposal. Users,
// clients, agents and properties are owned by other services.
type Parties interface {
	Property(ctx context.Context, id uuid.UUID) (*PropertyInfo, error)
	Client(ctx context.Context, id uuid.UUID) (*ClientInfo, error)
	SetPropertyStatus(ctx context.Context, id uuid.UUID, status string) error
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresParties reads the marketplace tables shared with the catalog.
type PostgresParties struct {
	db rowQuerier
}

func NewPostgresParties(pool *pgxpool.Pool) *PostgresParties {
	if pool == nil {
		panic("proposals: pgx pool required")
	}
	return &PostgresParties{db: pool}
}

func newPostgresPartiesWithExec(db rowQuerier) *PostgresParties {
	return &PostgresParties{db: db}
}

func (p *PostgresParties) Property(ctx context.Context, id uuid.UUID) (*PropertyInfo, error) {
	query := `
		SELECT p.id, p.title, p.status, p.agent_id, a.user_id
		FROM properties p
		LEFT JOIN agents a ON a.id = p.agent_id
		WHERE p.id = $1
	`
	var info PropertyInfo
	err := p.db.QueryRow(ctx, query, id).Scan(&info.ID, &info.Title, &info.Status, &info.AgentID, &info.AgentUserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proposals: load property: %w", err)
	}
	return &info, nil
}

func (p *PostgresParties) Client(ctx context.Context, id uuid.UUID) (*ClientInfo, error) {
	query := `
		SELECT c.id, c.user_id, u.name
		FROM clients c
		JOIN users u ON u.id = c.user_id
		WHERE c.id = $1
	`
	var info ClientInfo
	err := p.db.QueryRow(ctx, query, id).Scan(&info.ID, &info.UserID, &info.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proposals: load client: %w", err)
	}
	return &info, nil
}

func (p *PostgresParties) SetPropertyStatus(ctx context.Context, id uuid.UUID, status string) error {
	ct, err := p.db.Exec(ctx, `UPDATE properties SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("proposals: update property status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPropertyNotFound
	}
	return nil
}

// InMemoryParties serves registered parties from maps. With AllowUnknown set,
// unregistered properties resolve as available listings without an agent and
// unregistered clients resolve to a user with the client's id.
type InMemoryParties struct {
	mu           sync.RWMutex
	properties   map[uuid.UUID]PropertyInfo
	clients      map[uuid.UUID]ClientInfo
	AllowUnknown bool
}

func NewInMemoryParties() *InMemoryParties {
	return &InMemoryParties{
		properties: make(map[uuid.UUID]PropertyInfo),
		clients:    make(map[uuid.UUID]ClientInfo),
	}
}

func (p *InMemoryParties) PutProperty(info PropertyInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info.Status == "" {
		info.Status = PropertyAvailable
	}
	p.properties[info.ID] = info
}

func (p *InMemoryParties) PutClient(info ClientInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[info.ID] = info
}

func (p *InMemoryParties) Property(ctx context.Context, id uuid.UUID) (*PropertyInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.properties[id]
	if !ok {
		if !p.AllowUnknown {
			return nil, ErrPropertyNotFound
		}
		info = PropertyInfo{ID: id, Status: PropertyAvailable}
	}
	return &info, nil
}

func (p *InMemoryParties) Client(ctx context.Context, id uuid.UUID) (*ClientInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.clients[id]
	if !ok {
		if !p.AllowUnknown {
			return nil, ErrClientNotFound
		}
		info = ClientInfo{ID: id, UserID: id}
	}
	return &info, nil
}

func (p *InMemoryParties) SetPropertyStatus(ctx context.Context, id uuid.UUID, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.properties[id]
	if !ok {
		if !p.AllowUnknown {
			return ErrPropertyNotFound
		}
		info = PropertyInfo{ID: id}
	}
	info.Status = status
	p.properties[id] = info
	return nil
}
