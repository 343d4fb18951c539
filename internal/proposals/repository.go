package proposals

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfman30/realestate-marketplace/internal/events"
)

// Repository persists proposal aggregates. Update applies optimistic
// concurrency on Version and stores pending events with the aggregate.
type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error)
	GetByNumber(ctx context.Context, number string) (*Proposal, error)
	FindByNegotiationID(ctx context.Context, negotiationID uuid.UUID) (*Proposal, error)
	Update(ctx context.Context, p *Proposal) error
	List(ctx context.Context, filter ListFilter) ([]*Proposal, int, error)
	ListOpenByProperty(ctx context.Context, propertyID uuid.UUID) ([]*Proposal, error)
	HasOpenProposal(ctx context.Context, clientID, propertyID uuid.UUID) (bool, error)
}

// InMemoryRepository is an in-memory implementation of Repository
type InMemoryRepository struct {
	mu        sync.RWMutex
	proposals map[uuid.UUID]*Proposal
	published []events.Event
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		proposals: make(map[uuid.UUID]*Proposal),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, p *Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.proposals {
		if existing.Number == p.Number {
			return errDuplicateNumber
		}
	}
	p.Version = 1
	r.proposals[p.ID] = p.clone()
	r.published = append(r.published, p.PendingEvents()...)
	p.clearEvents()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return p.clone(), nil
}

func (r *InMemoryRepository) GetByNumber(ctx context.Context, number string) (*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.proposals {
		if p.Number == number {
			return p.clone(), nil
		}
	}
	return nil, ErrProposalNotFound
}

func (r *InMemoryRepository) FindByNegotiationID(ctx context.Context, negotiationID uuid.UUID) (*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.proposals {
		if _, ok := p.Negotiation(negotiationID); ok {
			return p.clone(), nil
		}
	}
	return nil, ErrNegotiationNotFound
}

func (r *InMemoryRepository) Update(ctx context.Context, p *Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.proposals[p.ID]
	if !ok {
		return ErrProposalNotFound
	}
	if stored.Version != p.Version {
		return ErrConcurrentUpdate
	}
	p.Version++
	r.proposals[p.ID] = p.clone()
	r.published = append(r.published, p.PendingEvents()...)
	p.clearEvents()
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Proposal, int, error) {
	filter = filter.normalized()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Proposal
	for _, p := range r.proposals {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.ClientID != uuid.Nil && p.ClientID != filter.ClientID {
			continue
		}
		if filter.AgentID != uuid.Nil && (p.AgentID == nil || *p.AgentID != filter.AgentID) {
			continue
		}
		if filter.PropertyID != uuid.Nil && p.PropertyID != filter.PropertyID {
			continue
		}
		matched = append(matched, p)
	}
	sortNewestFirst(matched)

	total := len(matched)
	start := filter.offset()
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	items := make([]*Proposal, 0, end-start)
	for _, p := range matched[start:end] {
		items = append(items, summary(p))
	}
	return items, total, nil
}

func (r *InMemoryRepository) ListOpenByProperty(ctx context.Context, propertyID uuid.UUID) ([]*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Proposal
	for _, p := range r.proposals {
		if p.PropertyID == propertyID && p.Status.Open() {
			out = append(out, p.clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *InMemoryRepository) HasOpenProposal(ctx context.Context, clientID, propertyID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.proposals {
		if p.ClientID == clientID && p.PropertyID == propertyID && p.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

// PublishedEvents returns every event saved so far, oldest first.
func (r *InMemoryRepository) PublishedEvents() []events.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]events.Event(nil), r.published...)
}

func sortNewestFirst(items []*Proposal) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].Number > items[j].Number
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// summary is a copy without the negotiation thread, as listings return.
func summary(p *Proposal) *Proposal {
	cp := p.clone()
	cp.Negotiations = []*Negotiation{}
	return cp
}
