package proposals

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/realestate-marketplace/internal/events"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusPending       Status = "Pending"
	StatusUnderAnalysis Status = "UnderAnalysis"
	StatusInNegotiation Status = "InNegotiation"
	StatusApproved      Status = "Approved"
	StatusRejected      Status = "Rejected"
	StatusCancelled     Status = "Cancelled"
	StatusCompleted     Status = "Completed"
)

var allStatuses = []Status{
	StatusPending, StatusUnderAnalysis, StatusInNegotiation,
	StatusApproved, StatusRejected, StatusCancelled, StatusCompleted,
}

// openStatuses are the states in which a proposal still awaits a decision.
var openStatuses = []Status{StatusPending, StatusUnderAnalysis, StatusInNegotiation}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusUnderAnalysis, StatusInNegotiation:
		return true
	}
	return false
}

// ParseStatus accepts any casing of a known status.
func ParseStatus(raw string) (Status, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range allStatuses {
		if strings.EqualFold(string(s), raw) {
			return s, true
		}
	}
	return "", false
}

// Type distinguishes purchase offers from rental offers.
type Type string

const (
	TypePurchase Type = "Purchase"
	TypeRent     Type = "Rent"
)

func ParseType(raw string) (Type, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range []Type{TypePurchase, TypeRent} {
		if strings.EqualFold(string(t), raw) {
			return t, true
		}
	}
	return "", false
}

// NegotiationStatus is the state of a single message in the thread.
type NegotiationStatus string

const (
	NegotiationSent     NegotiationStatus = "Sent"
	NegotiationViewed   NegotiationStatus = "Viewed"
	NegotiationAccepted NegotiationStatus = "Accepted"
	NegotiationRejected NegotiationStatus = "Rejected"
)

func ParseNegotiationStatus(raw string) (NegotiationStatus, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range []NegotiationStatus{NegotiationSent, NegotiationViewed, NegotiationAccepted, NegotiationRejected} {
		if strings.EqualFold(string(s), raw) {
			return s, true
		}
	}
	return "", false
}

// Closed reports whether the negotiation already received a response.
func (s NegotiationStatus) Closed() bool {
	return s == NegotiationAccepted || s == NegotiationRejected
}

// Negotiation is one message or counter-offer in a proposal's thread.
type Negotiation struct {
	ID           uuid.UUID         `json:"id"`
	ProposalID   uuid.UUID         `json:"proposal_id"`
	SenderID     uuid.UUID         `json:"sender_id"`
	Message      string            `json:"message"`
	CounterOffer *float64          `json:"counter_offer,omitempty"`
	Status       NegotiationStatus `json:"status"`
	SentAt       time.Time         `json:"sent_at"`
	ViewedAt     *time.Time        `json:"viewed_at,omitempty"`
	RespondedAt  *time.Time        `json:"responded_at,omitempty"`
}

// Proposal is a client's offer on a property. It owns its negotiation thread.
type Proposal struct {
	ID               uuid.UUID      `json:"id"`
	Number           string         `json:"proposal_number"`
	PropertyID       uuid.UUID      `json:"property_id"`
	ClientID         uuid.UUID      `json:"client_id"`
	AgentID          *uuid.UUID     `json:"agent_id,omitempty"`
	ProposedValue    float64        `json:"proposed_value"`
	Type             Type           `json:"type"`
	Status           Status         `json:"status"`
	PaymentMethod    string         `json:"payment_method,omitempty"`
	IntendedMoveDate *time.Time     `json:"intended_move_date,omitempty"`
	AdditionalNotes  string         `json:"additional_notes,omitempty"`
	RejectionReason  string         `json:"rejection_reason,omitempty"`
	ResponseDate     *time.Time     `json:"response_date,omitempty"`
	ContractID       *uuid.UUID     `json:"contract_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Version          int            `json:"version"`
	Negotiations     []*Negotiation `json:"negotiations"`

	// pending holds lifecycle events recorded since the last save.
	pending []events.Event
}

// PendingEvents returns events recorded since the aggregate was loaded.
func (p *Proposal) PendingEvents() []events.Event {
	return p.pending
}

func (p *Proposal) clearEvents() {
	p.pending = nil
}

func (p *Proposal) record(evt events.Event) {
	p.pending = append(p.pending, evt)
}

// Negotiation returns the thread entry with the given id.
func (p *Proposal) Negotiation(id uuid.UUID) (*Negotiation, bool) {
	for _, n := range p.Negotiations {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// clone returns a deep copy so stored aggregates never alias caller state.
func (p *Proposal) clone() *Proposal {
	cp := *p
	cp.pending = nil
	cp.AgentID = cloneUUID(p.AgentID)
	cp.ContractID = cloneUUID(p.ContractID)
	cp.IntendedMoveDate = cloneTime(p.IntendedMoveDate)
	cp.ResponseDate = cloneTime(p.ResponseDate)
	cp.Negotiations = make([]*Negotiation, 0, len(p.Negotiations))
	for _, n := range p.Negotiations {
		nc := *n
		if n.CounterOffer != nil {
			v := *n.CounterOffer
			nc.CounterOffer = &v
		}
		nc.ViewedAt = cloneTime(n.ViewedAt)
		nc.RespondedAt = cloneTime(n.RespondedAt)
		cp.Negotiations = append(cp.Negotiations, &nc)
	}
	return &cp
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// CreateProposalRequest is the input for submitting a new offer.
type CreateProposalRequest struct {
	PropertyID       uuid.UUID  `json:"property_id"`
	ClientID         uuid.UUID  `json:"client_id"`
	ProposedValue    float64    `json:"proposed_value"`
	Type             Type       `json:"type"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	IntendedMoveDate *time.Time `json:"intended_move_date,omitempty"`
	AdditionalNotes  string     `json:"additional_notes,omitempty"`
}

// AddNegotiationRequest appends a message to the thread.
type AddNegotiationRequest struct {
	SenderID     uuid.UUID `json:"-"`
	Message      string    `json:"message"`
	CounterOffer *float64  `json:"counter_offer,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"rejection_reason"`
}

type UpdateNegotiationStatusRequest struct {
	Status string `json:"status"`
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status     Status
	ClientID   uuid.UUID
	AgentID    uuid.UUID
	PropertyID uuid.UUID
	Page       int
	PageSize   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// keeps (page-1)*page_size inside int32 on every platform
	maxPage = math.MaxInt32 / maxPageSize
)

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > maxPage {
		f.Page = maxPage
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.PageSize
}

// Page is one slice of a filtered listing. Items carry no negotiation thread.
type Page struct {
	Items      []*Proposal `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

func newPage(items []*Proposal, total int, f ListFilter) Page {
	pages := 0
	if f.PageSize > 0 {
		pages = (total + f.PageSize - 1) / f.PageSize
	}
	if items == nil {
		items = []*Proposal{}
	}
	return Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize, TotalPages: pages}
}
