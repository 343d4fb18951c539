package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/realestate-marketplace/internal/events"
)

// PgxPool is the subset of pgxpool.Pool the repository needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores proposals in the relational database.
type PostgresRepository struct {
	db PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("proposals: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db PgxPool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const proposalColumns = `id, proposal_number, property_id, client_id, agent_id, proposed_value, type, status,
	payment_method, intended_move_date, additional_notes, rejection_reason, response_date,
	contract_id, version, created_at, updated_at`

const negotiationColumns = `id, proposal_id, sender_id, message, counter_offer, status, sent_at, viewed_at, responded_at`

const proposalNumberConstraint = "proposals_proposal_number_key"

// Create inserts the proposal and its creation events in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, p *Proposal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("proposals: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if _, err := tx.Exec(ctx, query,
		p.ID,
		p.Number,
		p.PropertyID,
		p.ClientID,
		p.AgentID,
		p.ProposedValue,
		string(p.Type),
		string(p.Status),
		p.PaymentMethod,
		p.IntendedMoveDate,
		p.AdditionalNotes,
		p.RejectionReason,
		p.ResponseDate,
		p.ContractID,
		1,
		p.CreatedAt,
		p.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == proposalNumberConstraint {
			return errDuplicateNumber
		}
		return fmt.Errorf("proposals: insert failed: %w", err)
	}
	if err := r.appendEvents(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("proposals: commit create: %w", err)
	}
	p.Version = 1
	p.clearEvents()
	return nil
}

// Update writes status fields and the negotiation thread when the stored
// version still matches p.Version.
func (r *PostgresRepository) Update(ctx context.Context, p *Proposal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("proposals: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE proposals
		SET status = $3, rejection_reason = $4, response_date = $5, contract_id = $6,
			updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $2
	`
	ct, err := tx.Exec(ctx, query,
		p.ID,
		p.Version,
		string(p.Status),
		p.RejectionReason,
		p.ResponseDate,
		p.ContractID,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("proposals: update failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}

	upsert := `
		INSERT INTO proposal_negotiations (` + negotiationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			viewed_at = EXCLUDED.viewed_at,
			responded_at = EXCLUDED.responded_at
	`
	for _, n := range p.Negotiations {
		if _, err := tx.Exec(ctx, upsert,
			n.ID,
			p.ID,
			n.SenderID,
			n.Message,
			n.CounterOffer,
			string(n.Status),
			n.SentAt,
			n.ViewedAt,
			n.RespondedAt,
		); err != nil {
			return fmt.Errorf("proposals: upsert negotiation: %w", err)
		}
	}
	if err := r.appendEvents(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("proposals: commit update: %w", err)
	}
	p.Version++
	p.clearEvents()
	return nil
}

func (r *PostgresRepository) appendEvents(ctx context.Context, tx pgx.Tx, p *Proposal) error {
	for _, evt := range p.PendingEvents() {
		if _, err := events.Append(ctx, tx, p.Number, evt); err != nil {
			return fmt.Errorf("proposals: write outbox: %w", err)
		}
	}
	return nil
}

// GetByID loads the aggregate with its negotiation thread.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	p, err := scanProposal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadNegotiations(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (*Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE proposal_number = $1`
	p, err := scanProposal(r.db.QueryRow(ctx, query, number))
	if err != nil {
		return nil, err
	}
	if err := r.loadNegotiations(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) FindByNegotiationID(ctx context.Context, negotiationID uuid.UUID) (*Proposal, error) {
	var proposalID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT proposal_id FROM proposal_negotiations WHERE id = $1`, negotiationID).Scan(&proposalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNegotiationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proposals: find negotiation: %w", err)
	}
	return r.GetByID(ctx, proposalID)
}

func (r *PostgresRepository) loadNegotiations(ctx context.Context, p *Proposal) error {
	query := `SELECT ` + negotiationColumns + ` FROM proposal_negotiations WHERE proposal_id = $1 ORDER BY sent_at, id`
	rows, err := r.db.Query(ctx, query, p.ID)
	if err != nil {
		return fmt.Errorf("proposals: query negotiations: %w", err)
	}
	defer rows.Close()

	p.Negotiations = []*Negotiation{}
	for rows.Next() {
		var n Negotiation
		var status string
		if err := rows.Scan(
			&n.ID,
			&n.ProposalID,
			&n.SenderID,
			&n.Message,
			&n.CounterOffer,
			&status,
			&n.SentAt,
			&n.ViewedAt,
			&n.RespondedAt,
		); err != nil {
			return fmt.Errorf("proposals: scan negotiation: %w", err)
		}
		n.Status = NegotiationStatus(status)
		p.Negotiations = append(p.Negotiations, &n)
	}
	return rows.Err()
}

// List returns one page of proposals (without threads) and the total match count.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Proposal, int, error) {
	filter = filter.normalized()
	where, args := buildListWhere(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM proposals`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("proposals: count failed: %w", err)
	}

	args = append(args, filter.PageSize, filter.offset())
	query := fmt.Sprintf(`SELECT %s FROM proposals%s ORDER BY created_at DESC, proposal_number DESC LIMIT $%d OFFSET $%d`,
		proposalColumns, where, len(args)-1, len(args))
	items, err := r.queryProposals(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildListWhere(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.ClientID != uuid.Nil {
		add("client_id", filter.ClientID)
	}
	if filter.AgentID != uuid.Nil {
		add("agent_id", filter.AgentID)
	}
	if filter.PropertyID != uuid.Nil {
		add("property_id", filter.PropertyID)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *PostgresRepository) ListOpenByProperty(ctx context.Context, propertyID uuid.UUID) ([]*Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals
		WHERE property_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC`
	return r.queryProposals(ctx, query, propertyID, statusStrings(openStatuses))
}

func (r *PostgresRepository) HasOpenProposal(ctx context.Context, clientID, propertyID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM proposals
			WHERE client_id = $1 AND property_id = $2 AND status = ANY($3)
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, clientID, propertyID, statusStrings(openStatuses)).Scan(&exists); err != nil {
		return false, fmt.Errorf("proposals: open proposal check: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) queryProposals(ctx context.Context, query string, args ...any) ([]*Proposal, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("proposals: query failed: %w", err)
	}
	defer rows.Close()

	items := []*Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func scanProposal(row pgx.Row) (*Proposal, error) {
	var p Proposal
	var typ, status string
	err := row.Scan(
		&p.ID,
		&p.Number,
		&p.PropertyID,
		&p.ClientID,
		&p.AgentID,
		&p.ProposedValue,
		&typ,
		&status,
		&p.PaymentMethod,
		&p.IntendedMoveDate,
		&p.AdditionalNotes,
		&p.RejectionReason,
		&p.ResponseDate,
		&p.ContractID,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proposals: scan failed: %w", err)
	}
	p.Type = Type(typ)
	p.Status = Status(status)
	p.Negotiations = []*Negotiation{}
	return &p, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
