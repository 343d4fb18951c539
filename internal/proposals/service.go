package proposals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
	"github.com/wolfman30/realestate-marketplace/internal/contracts"
	"github.com/wolfman30/realestate-marketplace/internal/notify"
	"github.com/wolfman30/realestate-marketplace/internal/observability/metrics"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

var proposalsTracer = otel.Tracer("marketplace.internal.proposals")

// CompetingRejectionReason is recorded on open proposals closed by another approval.
const CompetingRejectionReason = "Another proposal was approved for this property."

const maxNumberAttempts = 3

// Notifier delivers a notification to one user.
type Notifier interface {
	Send(ctx context.Context, req notify.Request) (*notify.Notification, error)
}

// ContractDrafter stores contracts drafted on approval.
type ContractDrafter interface {
	Create(ctx context.Context, c *contracts.Contract) error
}

// Service runs proposal commands: load, apply one guarded transition, save,
// then notify the counterparty. Notification failures never fail a command.
type Service struct {
	repo      Repository
	parties   Parties
	notifier  Notifier
	contracts ContractDrafter
	stats     StatsReader
	metrics   *metrics.ProposalMetrics
	logger    *logging.Logger
	now       func() time.Time
	newNumber func(time.Time) string
}

type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithContracts(d ContractDrafter) ServiceOption {
	return func(s *Service) { s.contracts = d }
}

func WithStats(r StatsReader) ServiceOption {
	return func(s *Service) { s.stats = r }
}

func WithMetrics(m *metrics.ProposalMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService constructs a proposals service.
func NewService(repo Repository, parties Parties, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("proposals: repository required")
	}
	if parties == nil {
		panic("proposals: parties resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:      repo,
		parties:   parties,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: NewNumber,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.stats == nil {
		if r, ok := repo.(StatsReader); ok {
			s.stats = r
		}
	}
	return s
}

func (s *Service) observe(ctx context.Context, transition string, id uuid.UUID) (context.Context, func(error)) {
	ctx, span := proposalsTracer.Start(ctx, "proposals."+transition, trace.WithSpanKind(trace.SpanKindInternal))
	if id != uuid.Nil {
		span.SetAttributes(attribute.String("marketplace.proposal_id", id.String()))
	}
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveTransition(transition, outcome(err), time.Since(start).Seconds())
		span.End()
	}
}

// Create submits a new Pending proposal and notifies the listing agent.
func (s *Service) Create(ctx context.Context, req CreateProposalRequest) (p *Proposal, err error) {
	ctx, done := s.observe(ctx, "create", uuid.Nil)
	defer func() { done(err) }()

	now := s.now()
	if err = req.Validate(now); err != nil {
		return nil, err
	}
	prop, err := s.parties.Property(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if !prop.Available() {
		return nil, fmt.Errorf("%w: listing is %s", ErrPropertyUnavailable, prop.Status)
	}
	if _, err = s.parties.Client(ctx, req.ClientID); err != nil {
		return nil, err
	}
	open, err := s.repo.HasOpenProposal(ctx, req.ClientID, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrOpenProposalExists
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		p = NewProposal(req, s.newNumber(now), prop.AgentID, now)
		if err = s.repo.Create(ctx, p); !errors.Is(err, errDuplicateNumber) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("proposal created", "proposal_id", p.ID, "proposal_number", p.Number, "property_id", p.PropertyID)
	s.send(ctx, p, prop.AgentUserID, notify.Request{
		Title:         "New proposal received",
		Message:       fmt.Sprintf("Proposal %s offers %.2f for %s.", p.Number, p.ProposedValue, propertyLabel(prop)),
		Type:          notify.TypeProposal,
		Priority:      notify.PriorityHigh,
		ReferenceType: notify.RefProposalCreated,
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Proposal, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	filter = filter.normalized()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return newPage(items, total, filter), nil
}

func (s *Service) Stats(ctx context.Context, filter StatsFilter) (*Stats, error) {
	if s.stats == nil {
		return nil, errors.New("proposals: statistics not configured")
	}
	return s.stats.Stats(ctx, filter)
}

// mutate loads the aggregate, applies fn and saves it.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(p *Proposal, now time.Time) error) (*Proposal, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) StartAnalysis(ctx context.Context, id uuid.UUID) (p *Proposal, err error) {
	ctx, done := s.observe(ctx, "start_analysis", id)
	defer func() { done(err) }()

	p, err = s.mutate(ctx, id, (*Proposal).StartAnalysis)
	if err != nil {
		return nil, err
	}
	s.send(ctx, p, s.clientUser(ctx, p), notify.Request{
		Title:         "Proposal under analysis",
		Message:       fmt.Sprintf("Your proposal %s is now being analyzed by the agent.", p.Number),
		Type:          notify.TypeProposal,
		Priority:      notify.PriorityMedium,
		ReferenceType: notify.RefProposalUnderAnalysis,
	})
	return p, nil
}

// AddNegotiation appends a message from req.SenderID and notifies the other side.
func (s *Service) AddNegotiation(ctx context.Context, id uuid.UUID, req AddNegotiationRequest) (n *Negotiation, err error) {
	ctx, done := s.observe(ctx, "add_negotiation", id)
	defer func() { done(err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.mutate(ctx, id, func(p *Proposal, now time.Time) error {
		var addErr error
		n, addErr = p.AddNegotiation(req.SenderID, req.Message, req.CounterOffer, now)
		return addErr
	})
	if err != nil {
		return nil, err
	}

	recipient := s.clientUser(ctx, p)
	if recipient != nil && *recipient == req.SenderID {
		recipient = s.agentUser(ctx, p)
	}
	msg := fmt.Sprintf("New message on proposal %s.", p.Number)
	if n.CounterOffer != nil {
		msg = fmt.Sprintf("Counter-offer of %.2f on proposal %s.", *n.CounterOffer, p.Number)
	}
	s.send(ctx, p, recipient, notify.Request{
		Title:         "Negotiation update",
		Message:       msg,
		Type:          notify.TypeNegotiation,
		Priority:      notify.PriorityMedium,
		ReferenceType: notify.RefNegotiationAdded,
	})
	return n, nil
}

// Approve accepts the offer, closes competing offers on the same property and
// drafts a contract. A stored draft completes the proposal.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (p *Proposal, err error) {
	ctx, done := s.observe(ctx, "approve", id)
	defer func() { done(err) }()

	var prop *PropertyInfo
	p, err = s.mutate(ctx, id, func(p *Proposal, now time.Time) error {
		if err := p.Approve(now); err != nil {
			return err
		}
		info, err := s.parties.Property(ctx, p.PropertyID)
		if err != nil {
			return err
		}
		if info.Closed() {
			return fmt.Errorf("%w: listing is %s", ErrPropertyUnavailable, info.Status)
		}
		prop = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	now := s.now()

	listing := PropertyReserved
	if p.Type == TypeRent {
		listing = PropertyUnderContract
	}
	if err := s.parties.SetPropertyStatus(ctx, p.PropertyID, listing); err != nil {
		s.logger.Warn("failed to update property status", "error", err, "property_id", p.PropertyID, "status", listing)
	}

	s.send(ctx, p, s.clientUser(ctx, p), notify.Request{
		Title:         "Proposal approved",
		Message:       fmt.Sprintf("Your proposal %s for %s was approved.", p.Number, propertyLabel(prop)),
		Type:          notify.TypeProposal,
		Priority:      notify.PriorityHigh,
		ReferenceType: notify.RefProposalApproved,
	})

	s.rejectCompeting(ctx, p)
	return s.draftContract(ctx, p, now), nil
}

func (s *Service) rejectCompeting(ctx context.Context, approved *Proposal) {
	open, err := s.repo.ListOpenByProperty(ctx, approved.PropertyID)
	if err != nil {
		s.logger.Error("failed to list competing proposals", "error", err, "property_id", approved.PropertyID)
		return
	}
	for _, other := range open {
		if other.ID == approved.ID {
			continue
		}
		rejected, err := s.mutate(ctx, other.ID, func(p *Proposal, now time.Time) error {
			return p.Reject(CompetingRejectionReason, now)
		})
		if err != nil {
			s.logger.Warn("failed to reject competing proposal", "error", err, "proposal_id", other.ID)
			continue
		}
		s.sendRejection(ctx, rejected)
	}
}

func (s *Service) draftContract(ctx context.Context, p *Proposal, now time.Time) *Proposal {
	if s.contracts == nil {
		return p
	}
	draft, err := contracts.BuildDraft(contracts.ProposalTerms{
		ProposalID:       p.ID,
		ProposalNumber:   p.Number,
		PropertyID:       p.PropertyID,
		ClientID:         p.ClientID,
		AgentID:          p.AgentID,
		Value:            p.ProposedValue,
		Rent:             p.Type == TypeRent,
		PaymentMethod:    p.PaymentMethod,
		IntendedMoveDate: p.IntendedMoveDate,
	}, now)
	if err == nil {
		err = s.contracts.Create(ctx, draft)
	}
	if err != nil {
		s.logger.Error("failed to draft contract", "error", err, "proposal_id", p.ID)
		return p
	}

	completed := p.clone()
	if err := completed.Complete(draft.ID, now); err != nil {
		s.logger.Error("failed to complete proposal", "error", err, "proposal_id", p.ID)
		return p
	}
	if err := s.repo.Update(ctx, completed); err != nil {
		s.logger.Error("failed to store completed proposal", "error", err, "proposal_id", p.ID, "contract_id", draft.ID)
		return p
	}
	s.logger.Info("proposal completed", "proposal_id", p.ID, "contract_id", draft.ID)
	return completed
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, req RejectRequest) (p *Proposal, err error) {
	ctx, done := s.observe(ctx, "reject", id)
	defer func() { done(err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}
	p, err = s.mutate(ctx, id, func(p *Proposal, now time.Time) error {
		return p.Reject(req.Reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.sendRejection(ctx, p)
	return p, nil
}

func (s *Service) sendRejection(ctx context.Context, p *Proposal) {
	s.send(ctx, p, s.clientUser(ctx, p), notify.Request{
		Title:         "Proposal rejected",
		Message:       fmt.Sprintf("Your proposal %s was rejected: %s", p.Number, p.RejectionReason),
		Type:          notify.TypeProposal,
		Priority:      notify.PriorityMedium,
		ReferenceType: notify.RefProposalRejected,
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (p *Proposal, err error) {
	ctx, done := s.observe(ctx, "cancel", id)
	defer func() { done(err) }()

	p, err = s.mutate(ctx, id, (*Proposal).Cancel)
	if err != nil {
		return nil, err
	}
	s.send(ctx, p, s.agentUser(ctx, p), notify.Request{
		Title:         "Proposal cancelled",
		Message:       fmt.Sprintf("Proposal %s was cancelled by the client.", p.Number),
		Type:          notify.TypeProposal,
		Priority:      notify.PriorityLow,
		ReferenceType: notify.RefProposalCancelled,
	})
	return p, nil
}

// UpdateNegotiationStatus marks a negotiation Viewed, Accepted or Rejected.
// Answers notify the negotiation's sender; views notify nobody.
func (s *Service) UpdateNegotiationStatus(ctx context.Context, negotiationID uuid.UUID, raw string) (n *Negotiation, err error) {
	ctx, done := s.observe(ctx, "update_negotiation", uuid.Nil)
	defer func() { done(err) }()

	target, ok := ParseNegotiationStatus(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	p, err := s.repo.FindByNegotiationID(ctx, negotiationID)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("marketplace.proposal_id", p.ID.String()))

	n, err = p.UpdateNegotiationStatus(negotiationID, target, s.now())
	if err != nil {
		return nil, err
	}
	if len(p.PendingEvents()) == 0 {
		return n, nil
	}
	if err = s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	if target == NegotiationAccepted || target == NegotiationRejected {
		ref, verb := notify.RefNegotiationAccepted, "accepted"
		if target == NegotiationRejected {
			ref, verb = notify.RefNegotiationRejected, "rejected"
		}
		sender := n.SenderID
		s.send(ctx, p, &sender, notify.Request{
			Title:         "Negotiation " + verb,
			Message:       fmt.Sprintf("Your message on proposal %s was %s.", p.Number, verb),
			Type:          notify.TypeNegotiation,
			Priority:      notify.PriorityMedium,
			ReferenceType: ref,
		})
	}
	return n, nil
}

// send delivers one notification about p; failures are logged and counted.
func (s *Service) send(ctx context.Context, p *Proposal, recipient *uuid.UUID, req notify.Request) {
	if s.notifier == nil {
		return
	}
	if recipient == nil || *recipient == uuid.Nil {
		s.logger.Debug("notification skipped: no recipient", "proposal_id", p.ID, "reference_type", req.ReferenceType)
		return
	}
	req.RecipientID = *recipient
	ref := p.ID
	req.ReferenceID = &ref
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		sender := principal.UserID
		req.SenderID = &sender
	}
	if _, err := s.notifier.Send(ctx, req); err != nil {
		s.metrics.ObserveNotification(req.ReferenceType, false)
		s.logger.Warn("notification failed", "error", err, "proposal_id", p.ID, "reference_type", req.ReferenceType)
		return
	}
	s.metrics.ObserveNotification(req.ReferenceType, true)
}

func (s *Service) clientUser(ctx context.Context, p *Proposal) *uuid.UUID {
	client, err := s.parties.Client(ctx, p.ClientID)
	if err != nil {
		s.logger.Warn("failed to resolve client user", "error", err, "client_id", p.ClientID)
		return nil
	}
	return &client.UserID
}

func (s *Service) agentUser(ctx context.Context, p *Proposal) *uuid.UUID {
	prop, err := s.parties.Property(ctx, p.PropertyID)
	if err != nil {
		s.logger.Warn("failed to resolve listing agent", "error", err, "property_id", p.PropertyID)
		return nil
	}
	return prop.AgentUserID
}

func propertyLabel(p *PropertyInfo) string {
	if p == nil || p.Title == "" {
		return "the property"
	}
	return p.Title
}
