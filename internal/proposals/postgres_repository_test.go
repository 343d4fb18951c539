package proposals

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var proposalColumnNames = []string{
	"id", "proposal_number", "property_id", "client_id", "agent_id", "proposed_value", "type", "status",
	"payment_method", "intended_move_date", "additional_notes", "rejection_reason", "response_date",
	"contract_id", "version", "created_at", "updated_at",
}

var negotiationColumnNames = []string{
	"id", "proposal_id", "sender_id", "message", "counter_offer", "status", "sent_at", "viewed_at", "responded_at",
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func proposalRow(rows *pgxmock.Rows, id uuid.UUID, status Status, version int) *pgxmock.Rows {
	agent := uuid.New()
	return rows.AddRow(
		id, "PROP-2026-101-ABC", uuid.New(), uuid.New(), &agent, 320000.0, string(TypePurchase), string(status),
		"financing", nil, "", "", nil,
		nil, version, testNow, testNow,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, newPostgresRepositoryWithDB(mock)
}

func TestPostgresRepositoryCreateWritesOutbox(t *testing.T) {
	mock, repo := newMockRepo(t)
	p := NewProposal(CreateProposalRequest{PropertyID: uuid.New(), ClientID: uuid.New(), ProposedValue: 10, Type: TypeRent}, "PROP-2026-555-AAA", nil, testNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO proposals").WithArgs(anyArgs(17)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox").WithArgs(anyArgs(5)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if p.Version != 1 || len(p.PendingEvents()) != 0 {
		t.Fatalf("expected version 1 and drained events, got %d/%d", p.Version, len(p.PendingEvents()))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryCreateDuplicateNumber(t *testing.T) {
	mock, repo := newMockRepo(t)
	p := NewProposal(CreateProposalRequest{PropertyID: uuid.New(), ClientID: uuid.New(), ProposedValue: 10, Type: TypeRent}, "PROP-2026-555-AAA", nil, testNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO proposals").WithArgs(anyArgs(17)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: proposalNumberConstraint})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), p)
	if !errors.Is(err, errDuplicateNumber) {
		t.Fatalf("expected errDuplicateNumber, got %v", err)
	}
	if len(p.PendingEvents()) != 1 {
		t.Fatalf("events must stay pending on failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryUpdateSavesThreadAndEvents(t *testing.T) {
	mock, repo := newMockRepo(t)
	p := newPending(t)
	p.Version = 3
	if _, err := p.AddNegotiation(uuid.New(), "first message", nil, testNow); err != nil {
		t.Fatalf("negotiate: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE proposals").
		WithArgs(append([]any{p.ID, 3}, anyArgs(5)...)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO proposal_negotiations").WithArgs(anyArgs(9)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for range p.PendingEvents() {
		mock.ExpectExec("INSERT INTO outbox").WithArgs(anyArgs(5)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	if err := repo.Update(context.Background(), p); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if p.Version != 4 {
		t.Fatalf("expected version bump, got %d", p.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryUpdateStaleVersion(t *testing.T) {
	mock, repo := newMockRepo(t)
	p := newPending(t)
	p.Version = 2
	if err := p.Cancel(testNow); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE proposals").WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	if err := repo.Update(context.Background(), p); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if p.Version != 2 {
		t.Fatalf("version must not change on conflict")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryGetByIDLoadsThread(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	negID := uuid.New()
	counter := 300000.0

	mock.ExpectQuery("SELECT id, proposal_number").WithArgs(id).
		WillReturnRows(proposalRow(pgxmock.NewRows(proposalColumnNames), id, StatusInNegotiation, 5))
	mock.ExpectQuery("FROM proposal_negotiations").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(negotiationColumnNames).
			AddRow(negID, id, uuid.New(), "Would you take 300k?", &counter, "Sent", testNow, nil, nil))

	p, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.Status != StatusInNegotiation || p.Version != 5 || p.AgentID == nil {
		t.Fatalf("unexpected proposal: %#v", p)
	}
	if len(p.Negotiations) != 1 || p.Negotiations[0].ID != negID || *p.Negotiations[0].CounterOffer != counter {
		t.Fatalf("unexpected thread: %#v", p.Negotiations)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryGetByIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, proposal_number").WithArgs(id).WillReturnRows(pgxmock.NewRows(proposalColumnNames))

	if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
}

func TestPostgresRepositoryFindByNegotiationIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	negID := uuid.New()
	mock.ExpectQuery("SELECT proposal_id FROM proposal_negotiations").WithArgs(negID).
		WillReturnRows(pgxmock.NewRows([]string{"proposal_id"}))

	if _, err := repo.FindByNegotiationID(context.Background(), negID); !errors.Is(err, ErrNegotiationNotFound) {
		t.Fatalf("expected ErrNegotiationNotFound, got %v", err)
	}
}

func TestPostgresRepositoryListPaginates(t *testing.T) {
	mock, repo := newMockRepo(t)
	clientID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM proposals WHERE status = \$1 AND client_id = \$2`).
		WithArgs("Pending", clientID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`LIMIT \$3 OFFSET \$4`).
		WithArgs("Pending", clientID, 10, 20).
		WillReturnRows(proposalRow(pgxmock.NewRows(proposalColumnNames), uuid.New(), StatusPending, 1))

	items, total, err := repo.List(context.Background(), ListFilter{Status: StatusPending, ClientID: clientID, Page: 3, PageSize: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 21 || len(items) != 1 {
		t.Fatalf("unexpected page: total=%d items=%d", total, len(items))
	}
	if len(items[0].Negotiations) != 0 {
		t.Fatalf("list items must not carry threads")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryHasOpenProposal(t *testing.T) {
	mock, repo := newMockRepo(t)
	clientID, propertyID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(clientID, propertyID, []string{"Pending", "UnderAnalysis", "InNegotiation"}).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	open, err := repo.HasOpenProposal(context.Background(), clientID, propertyID)
	if err != nil {
		t.Fatalf("open check failed: %v", err)
	}
	if !open {
		t.Fatal("expected open proposal")
	}
}

func TestPostgresRepositoryListOpenByProperty(t *testing.T) {
	mock, repo := newMockRepo(t)
	propertyID := uuid.New()
	rows := pgxmock.NewRows(proposalColumnNames)
	proposalRow(rows, uuid.New(), StatusPending, 1)
	proposalRow(rows, uuid.New(), StatusUnderAnalysis, 2)

	mock.ExpectQuery("status = ANY").
		WithArgs(propertyID, []string{"Pending", "UnderAnalysis", "InNegotiation"}).
		WillReturnRows(rows)

	open, err := repo.ListOpenByProperty(context.Background(), propertyID)
	if err != nil {
		t.Fatalf("list open failed: %v", err)
	}
	if len(open) != 2 || open[1].Status != StatusUnderAnalysis {
		t.Fatalf("unexpected open proposals: %#v", open)
	}
}
