package contracts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists drafted contracts.
type Store interface {
	Create(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore writes contracts with pgx.
type PostgresStore struct {
	db rowQuerier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("contracts: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithExec(db rowQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

const contractColumns = `id, proposal_id, property_id, client_id, agent_id, kind, status, value, start_date,
	end_date, monthly_rent, security_deposit, payment_day, payment_frequency, auto_renew,
	commission_rate, commission_value, payment_method, terms, created_at`

func (s *PostgresStore) Create(ctx context.Context, c *Contract) error {
	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	if _, err := s.db.Exec(ctx, query,
		c.ID,
		c.ProposalID,
		c.PropertyID,
		c.ClientID,
		c.AgentID,
		string(c.Kind),
		string(c.Status),
		c.Value,
		c.StartDate,
		c.EndDate,
		c.MonthlyRent,
		c.SecurityDeposit,
		c.PaymentDay,
		c.PaymentFrequency,
		c.AutoRenew,
		c.CommissionRate,
		c.CommissionValue,
		c.PaymentMethod,
		c.Terms,
		c.CreatedAt,
	); err != nil {
		return fmt.Errorf("contracts: insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	var c Contract
	var kind, status string
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.ProposalID,
		&c.PropertyID,
		&c.ClientID,
		&c.AgentID,
		&kind,
		&status,
		&c.Value,
		&c.StartDate,
		&c.EndDate,
		&c.MonthlyRent,
		&c.SecurityDeposit,
		&c.PaymentDay,
		&c.PaymentFrequency,
		&c.AutoRenew,
		&c.CommissionRate,
		&c.CommissionValue,
		&c.PaymentMethod,
		&c.Terms,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contracts: get failed: %w", err)
	}
	c.Kind = Kind(kind)
	c.Status = Status(status)
	return &c, nil
}

// InMemoryStore keeps contracts in a map.
type InMemoryStore struct {
	mu        sync.RWMutex
	contracts map[uuid.UUID]Contract
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contracts: make(map[uuid.UUID]Contract)}
}

func (s *InMemoryStore) Create(ctx context.Context, c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ID] = *c
	return nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}
