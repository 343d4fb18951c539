package proposals

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
	"github.com/wolfman30/realestate-marketplace/internal/contracts"
	"github.com/wolfman30/realestate-marketplace/internal/events"
	"github.com/wolfman30/realestate-marketplace/internal/notify"
	"github.com/wolfman30/realestate-marketplace/internal/observability/metrics"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Request
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, req notify.Request) (*notify.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	if n.err != nil {
		return nil, n.err
	}
	return &notify.Notification{ID: uuid.New(), RecipientID: req.RecipientID}, nil
}

func (n *recordingNotifier) byRef(ref string) []notify.Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Request
	for _, req := range n.sent {
		if req.ReferenceType == ref {
			out = append(out, req)
		}
	}
	return out
}

type failingDrafter struct{}

func (failingDrafter) Create(ctx context.Context, c *contracts.Contract) error {
	return errors.New("contracts table unavailable")
}

type fixture struct {
	svc        *Service
	repo       *InMemoryRepository
	parties    *InMemoryParties
	notifier   *recordingNotifier
	contracts  *contracts.InMemoryStore
	propertyID uuid.UUID
	clientID   uuid.UUID
	clientUser uuid.UUID
	agentID    uuid.UUID
	agentUser  uuid.UUID
}

func testLogger() *logging.Logger {
	return logging.NewWithOptions(logging.Options{Level: "error", Writer: io.Discard})
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		repo:       NewInMemoryRepository(),
		parties:    NewInMemoryParties(),
		notifier:   &recordingNotifier{},
		contracts:  contracts.NewInMemoryStore(),
		propertyID: uuid.New(),
		clientID:   uuid.New(),
		clientUser: uuid.New(),
		agentID:    uuid.New(),
		agentUser:  uuid.New(),
	}
	f.parties.PutProperty(PropertyInfo{ID: f.propertyID, Title: "Ocean View Loft", AgentID: &f.agentID, AgentUserID: &f.agentUser})
	f.parties.PutClient(ClientInfo{ID: f.clientID, UserID: f.clientUser, Name: "Ana"})

	base := []ServiceOption{
		WithNotifier(f.notifier),
		WithContracts(f.contracts),
		WithMetrics(metrics.NewProposalMetrics(prometheus.NewRegistry())),
		WithClock(func() time.Time { return testNow }),
	}
	f.svc = NewService(f.repo, f.parties, testLogger(), append(base, opts...)...)
	return f
}

func (f *fixture) addClient(t *testing.T) (uuid.UUID, uuid.UUID) {
	t.Helper()
	id, user := uuid.New(), uuid.New()
	f.parties.PutClient(ClientInfo{ID: id, UserID: user})
	return id, user
}

func (f *fixture) create(t *testing.T, clientID uuid.UUID, typ Type) *Proposal {
	t.Helper()
	p, err := f.svc.Create(context.Background(), CreateProposalRequest{
		PropertyID:    f.propertyID,
		ClientID:      clientID,
		ProposedValue: 2500,
		Type:          typ,
	})
	require.NoError(t, err)
	return p
}

func asUser(id uuid.UUID, role string) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{UserID: id, Role: role})
}

func TestServiceCreateNotifiesAgent(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)

	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, 1, p.Version)
	require.NotNil(t, p.AgentID)
	assert.Equal(t, f.agentID, *p.AgentID)
	assert.Regexp(t, `^PROP-2026-\d{3}-[0-9A-F]{3}$`, p.Number)

	sent := f.notifier.byRef(notify.RefProposalCreated)
	require.Len(t, sent, 1)
	assert.Equal(t, f.agentUser, sent[0].RecipientID)
	assert.Equal(t, notify.PriorityHigh, sent[0].Priority)
	assert.Equal(t, notify.TypeProposal, sent[0].Type)
	require.NotNil(t, sent[0].ReferenceID)
	assert.Equal(t, p.ID, *sent[0].ReferenceID)
}

func TestServiceCreateGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateProposalRequest{PropertyID: uuid.New(), ClientID: f.clientID, ProposedValue: 10, Type: TypeRent})
	assert.ErrorIs(t, err, ErrPropertyNotFound)

	_, err = f.svc.Create(ctx, CreateProposalRequest{PropertyID: f.propertyID, ClientID: uuid.New(), ProposedValue: 10, Type: TypeRent})
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = f.svc.Create(ctx, CreateProposalRequest{PropertyID: f.propertyID, ClientID: f.clientID, ProposedValue: 0, Type: TypeRent})
	assert.ErrorIs(t, err, ErrValidation)

	f.create(t, f.clientID, TypeRent)
	_, err = f.svc.Create(ctx, CreateProposalRequest{PropertyID: f.propertyID, ClientID: f.clientID, ProposedValue: 10, Type: TypeRent})
	assert.ErrorIs(t, err, ErrOpenProposalExists)

	require.NoError(t, f.parties.SetPropertyStatus(ctx, f.propertyID, PropertySold))
	other, _ := f.addClient(t)
	_, err = f.svc.Create(ctx, CreateProposalRequest{PropertyID: f.propertyID, ClientID: other, ProposedValue: 10, Type: TypeRent})
	assert.ErrorIs(t, err, ErrPropertyUnavailable)
}

func TestServiceCreateRetriesDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	numbers := []string{"PROP-2026-001-AAA", "PROP-2026-001-AAA", "PROP-2026-002-BBB"}
	f.svc.newNumber = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}
	first := f.create(t, f.clientID, TypePurchase)
	other, _ := f.addClient(t)
	second := f.create(t, other, TypePurchase)

	assert.Equal(t, "PROP-2026-001-AAA", first.Number)
	assert.Equal(t, "PROP-2026-002-BBB", second.Number)
}

func TestServiceLifecycleExample(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)

	p, err := f.svc.StartAnalysis(asUser(f.agentUser, auth.RoleAgent), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderAnalysis, p.Status)

	n, err := f.svc.AddNegotiation(asUser(f.agentUser, auth.RoleAgent), p.ID, AddNegotiationRequest{
		SenderID: f.agentUser,
		Message:  "Would you consider 2700?",
	})
	require.NoError(t, err)
	assert.Equal(t, NegotiationSent, n.Status)

	p, err = f.svc.Reject(asUser(f.agentUser, auth.RoleAgent), p.ID, RejectRequest{Reason: "too low"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, p.Status)
	assert.Equal(t, "too low", p.RejectionReason)
	require.NotNil(t, p.ResponseDate)

	_, err = f.svc.AddNegotiation(context.Background(), p.ID, AddNegotiationRequest{SenderID: f.clientUser, Message: "What about now?"})
	assert.ErrorIs(t, err, ErrAlreadyRejected)

	stored, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, stored.Status)
	assert.Len(t, stored.Negotiations, 1)

	require.Len(t, f.notifier.byRef(notify.RefProposalUnderAnalysis), 1)
	assert.Equal(t, f.clientUser, f.notifier.byRef(notify.RefProposalUnderAnalysis)[0].RecipientID)
	rejected := f.notifier.byRef(notify.RefProposalRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, f.clientUser, rejected[0].RecipientID)
	require.NotNil(t, rejected[0].SenderID)
	assert.Equal(t, f.agentUser, *rejected[0].SenderID)
}

func TestServiceNegotiationNotifiesCounterparty(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)

	_, err := f.svc.AddNegotiation(asUser(f.clientUser, auth.RoleClient), p.ID, AddNegotiationRequest{SenderID: f.clientUser, Message: "Is the price flexible?"})
	require.NoError(t, err)
	counter := 2400.0
	_, err = f.svc.AddNegotiation(asUser(f.agentUser, auth.RoleAgent), p.ID, AddNegotiationRequest{SenderID: f.agentUser, Message: "Meet in the middle", CounterOffer: &counter})
	require.NoError(t, err)

	sent := f.notifier.byRef(notify.RefNegotiationAdded)
	require.Len(t, sent, 2)
	assert.Equal(t, f.agentUser, sent[0].RecipientID)
	assert.Equal(t, f.clientUser, sent[1].RecipientID)
	assert.Contains(t, sent[1].Message, "2400.00")
}

func TestServiceApproveDraftsContractAndClosesCompetitors(t *testing.T) {
	f := newFixture(t)
	winner := f.create(t, f.clientID, TypePurchase)
	loserClient, loserUser := f.addClient(t)
	loser := f.create(t, loserClient, TypePurchase)

	p, err := f.svc.Approve(asUser(f.agentUser, auth.RoleAgent), winner.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.ContractID)
	require.NotNil(t, p.ResponseDate)

	c, err := f.contracts.GetByID(context.Background(), *p.ContractID)
	require.NoError(t, err)
	assert.Equal(t, contracts.KindSale, c.Kind)
	assert.Equal(t, winner.ID, c.ProposalID)

	prop, err := f.parties.Property(context.Background(), f.propertyID)
	require.NoError(t, err)
	assert.Equal(t, PropertyReserved, prop.Status)

	closed, err := f.svc.Get(context.Background(), loser.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, closed.Status)
	assert.Equal(t, CompetingRejectionReason, closed.RejectionReason)

	approved := f.notifier.byRef(notify.RefProposalApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, f.clientUser, approved[0].RecipientID)
	assert.Equal(t, notify.TypeProposal, approved[0].Type)
	assert.Equal(t, notify.PriorityHigh, approved[0].Priority)
	rejected := f.notifier.byRef(notify.RefProposalRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, loserUser, rejected[0].RecipientID)

	var statuses []string
	for _, evt := range f.repo.PublishedEvents() {
		if changed, ok := evt.(events.ProposalStatusChangedV1); ok && changed.ProposalID == winner.ID.String() {
			statuses = append(statuses, changed.To)
		}
	}
	assert.Equal(t, []string{string(StatusApproved), string(StatusCompleted)}, statuses)

	_, err = f.svc.Approve(context.Background(), winner.ID)
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestServiceApproveRentMarksUnderContract(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypeRent)

	p, err := f.svc.Approve(context.Background(), p.ID)
	require.NoError(t, err)
	c, err := f.contracts.GetByID(context.Background(), *p.ContractID)
	require.NoError(t, err)
	assert.Equal(t, contracts.KindRent, c.Kind)

	prop, _ := f.parties.Property(context.Background(), f.propertyID)
	assert.Equal(t, PropertyUnderContract, prop.Status)
}

func TestServiceApproveKeepsApprovalWhenDraftFails(t *testing.T) {
	f := newFixture(t, WithContracts(failingDrafter{}))
	p := f.create(t, f.clientID, TypePurchase)

	p, err := f.svc.Approve(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, p.Status)
	assert.Nil(t, p.ContractID)

	stored, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestServiceApproveRefusesClosedListing(t *testing.T) {
	for _, status := range []string{PropertySold, PropertyRented} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			p := f.create(t, f.clientID, TypePurchase)
			require.NoError(t, f.parties.SetPropertyStatus(context.Background(), f.propertyID, status))

			_, err := f.svc.Approve(context.Background(), p.ID)
			assert.ErrorIs(t, err, ErrPropertyUnavailable)

			stored, err := f.svc.Get(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, stored.Status)
			assert.Nil(t, stored.ResponseDate)
			assert.Empty(t, f.notifier.byRef(notify.RefProposalApproved))
		})
	}
}

func TestServiceApproveAllowsReservedListing(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)
	require.NoError(t, f.parties.SetPropertyStatus(context.Background(), f.propertyID, PropertyReserved))

	p, err := f.svc.Approve(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Len(t, f.notifier.byRef(notify.RefProposalApproved), 1)
}

func TestServiceCancelNotifiesAgent(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)

	p, err := f.svc.Cancel(asUser(f.clientUser, auth.RoleClient), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, p.Status)

	sent := f.notifier.byRef(notify.RefProposalCancelled)
	require.Len(t, sent, 1)
	assert.Equal(t, f.agentUser, sent[0].RecipientID)
	assert.Equal(t, notify.PriorityLow, sent[0].Priority)

	_, err = f.svc.Cancel(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestServiceUpdateNegotiationStatus(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)
	n, err := f.svc.AddNegotiation(context.Background(), p.ID, AddNegotiationRequest{SenderID: f.clientUser, Message: "Can we close in May?"})
	require.NoError(t, err)

	_, err = f.svc.UpdateNegotiationStatus(context.Background(), n.ID, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	viewed, err := f.svc.UpdateNegotiationStatus(context.Background(), n.ID, "viewed")
	require.NoError(t, err)
	assert.Equal(t, NegotiationViewed, viewed.Status)
	before, _ := f.svc.Get(context.Background(), p.ID)

	_, err = f.svc.UpdateNegotiationStatus(context.Background(), n.ID, "Viewed")
	require.NoError(t, err)
	after, _ := f.svc.Get(context.Background(), p.ID)
	assert.Equal(t, before.Version, after.Version, "repeat view must not write")

	accepted, err := f.svc.UpdateNegotiationStatus(asUser(f.agentUser, auth.RoleAgent), n.ID, "Accepted")
	require.NoError(t, err)
	assert.Equal(t, NegotiationAccepted, accepted.Status)

	sent := f.notifier.byRef(notify.RefNegotiationAccepted)
	require.Len(t, sent, 1)
	assert.Equal(t, f.clientUser, sent[0].RecipientID)

	_, err = f.svc.UpdateNegotiationStatus(context.Background(), n.ID, "Rejected")
	assert.ErrorIs(t, err, ErrNegotiationClosed)

	_, err = f.svc.UpdateNegotiationStatus(context.Background(), uuid.New(), "Viewed")
	assert.ErrorIs(t, err, ErrNegotiationNotFound)
}

func TestServiceNotificationFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("inbox down")

	p := f.create(t, f.clientID, TypePurchase)
	p, err := f.svc.StartAnalysis(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderAnalysis, p.Status)
}

func TestServiceConcurrentUpdateConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, f.clientID, TypePurchase)

	stale, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	_, err = f.svc.StartAnalysis(context.Background(), p.ID)
	require.NoError(t, err)

	require.NoError(t, stale.Cancel(testNow))
	assert.ErrorIs(t, f.repo.Update(context.Background(), stale), ErrConcurrentUpdate)
}

func TestServiceListAndStats(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, f.clientID, TypePurchase)
	other, _ := f.addClient(t)
	f.svc.now = func() time.Time { return testNow.Add(time.Hour) }
	second := f.create(t, other, TypePurchase)
	_, err := f.svc.Reject(context.Background(), first.ID, RejectRequest{Reason: "under asking"})
	require.NoError(t, err)

	page, err := f.svc.List(context.Background(), ListFilter{PropertyID: f.propertyID, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)

	page, err = f.svc.List(context.Background(), ListFilter{Status: StatusRejected})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)

	st, err := f.svc.Stats(context.Background(), StatsFilter{AgentID: f.agentID})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByStatus[StatusPending])
	assert.Equal(t, 1, st.ByStatus[StatusRejected])
	assert.InDelta(t, 2500, st.OpenValue, 0.001)
	assert.InDelta(t, 0, st.ApprovalRate, 0.001)
}

func TestNewServicePanicsWithoutRepository(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, NewInMemoryParties(), nil) })
	assert.Panics(t, func() { NewService(NewInMemoryRepository(), nil, nil) })
}
