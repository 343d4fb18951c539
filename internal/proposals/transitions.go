package proposals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/realestate-marketplace/internal/events"
)

// NewProposal builds a Pending proposal from a validated request.
func NewProposal(req CreateProposalRequest, number string, agentID *uuid.UUID, now time.Time) *Proposal {
	p := &Proposal{
		ID:               uuid.New(),
		Number:           number,
		PropertyID:       req.PropertyID,
		ClientID:         req.ClientID,
		AgentID:          cloneUUID(agentID),
		ProposedValue:    req.ProposedValue,
		Type:             req.Type,
		Status:           StatusPending,
		PaymentMethod:    req.PaymentMethod,
		IntendedMoveDate: cloneTime(req.IntendedMoveDate),
		AdditionalNotes:  req.AdditionalNotes,
		CreatedAt:        now,
		UpdatedAt:        now,
		Negotiations:     []*Negotiation{},
	}
	created := events.ProposalCreatedV1{
		ProposalID:     p.ID.String(),
		ProposalNumber: p.Number,
		PropertyID:     p.PropertyID.String(),
		ClientID:       p.ClientID.String(),
		ProposedValue:  p.ProposedValue,
		Type:           string(p.Type),
		OccurredAt:     now,
	}
	if agentID != nil {
		created.AgentID = agentID.String()
	}
	p.record(created)
	return p
}

func (p *Proposal) guard(op string) error {
	if err := terminalError(p.Status); err != nil {
		return &TransitionError{Op: op, Status: p.Status, Err: err}
	}
	return nil
}

func (p *Proposal) moveTo(to Status, now time.Time) {
	from := p.Status
	p.Status = to
	p.UpdatedAt = now
	evt := events.ProposalStatusChangedV1{
		ProposalID:      p.ID.String(),
		ProposalNumber:  p.Number,
		PropertyID:      p.PropertyID.String(),
		From:            string(from),
		To:              string(to),
		RejectionReason: p.RejectionReason,
		OccurredAt:      now,
	}
	if p.ContractID != nil {
		evt.ContractID = p.ContractID.String()
	}
	p.record(evt)
}

// StartAnalysis moves a Pending or InNegotiation proposal to UnderAnalysis.
func (p *Proposal) StartAnalysis(now time.Time) error {
	const op = "start analysis of"
	if err := p.guard(op); err != nil {
		return err
	}
	if p.Status == StatusUnderAnalysis {
		return &TransitionError{Op: op, Status: p.Status, Err: ErrAlreadyUnderAnalysis}
	}
	p.moveTo(StatusUnderAnalysis, now)
	return nil
}

// AddNegotiation appends a Sent entry to the end of the thread and moves the
// proposal to InNegotiation. Existing entries are never touched.
func (p *Proposal) AddNegotiation(senderID uuid.UUID, message string, counterOffer *float64, now time.Time) (*Negotiation, error) {
	if err := p.guard("negotiate on"); err != nil {
		return nil, err
	}
	req := AddNegotiationRequest{SenderID: senderID, Message: message, CounterOffer: counterOffer}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	n := &Negotiation{
		ID:         uuid.New(),
		ProposalID: p.ID,
		SenderID:   senderID,
		Message:    strings.TrimSpace(message),
		Status:     NegotiationSent,
		SentAt:     now,
	}
	if counterOffer != nil {
		v := *counterOffer
		n.CounterOffer = &v
	}
	p.Negotiations = append(p.Negotiations, n)
	if p.Status != StatusInNegotiation {
		p.moveTo(StatusInNegotiation, now)
	}
	p.UpdatedAt = now
	p.record(events.NegotiationAddedV1{
		ProposalID:    p.ID.String(),
		NegotiationID: n.ID.String(),
		SenderID:      senderID.String(),
		CounterOffer:  n.CounterOffer,
		OccurredAt:    now,
	})
	return n, nil
}

// Approve accepts the offer and stamps the response date.
func (p *Proposal) Approve(now time.Time) error {
	if err := p.guard("approve"); err != nil {
		return err
	}
	p.ResponseDate = &now
	p.moveTo(StatusApproved, now)
	return nil
}

// Reject declines the offer. Reason and response date are set together.
func (p *Proposal) Reject(reason string, now time.Time) error {
	if err := p.guard("reject"); err != nil {
		return err
	}
	if err := validateRejectionReason(reason); err != nil {
		return err
	}
	p.RejectionReason = strings.TrimSpace(reason)
	p.ResponseDate = &now
	p.moveTo(StatusRejected, now)
	return nil
}

func (p *Proposal) Cancel(now time.Time) error {
	if err := p.guard("cancel"); err != nil {
		return err
	}
	p.moveTo(StatusCancelled, now)
	return nil
}

// Complete attaches the drafted contract to an approved proposal.
func (p *Proposal) Complete(contractID uuid.UUID, now time.Time) error {
	const op = "complete"
	if p.Status != StatusApproved {
		err := terminalError(p.Status)
		if err == nil {
			err = ErrInvalidTransition
		}
		return &TransitionError{Op: op, Status: p.Status, Err: err}
	}
	p.ContractID = &contractID
	p.moveTo(StatusCompleted, now)
	return nil
}

// UpdateNegotiationStatus moves one thread entry forward. Viewing an entry
// twice is a no-op; answered entries cannot change again.
func (p *Proposal) UpdateNegotiationStatus(negotiationID uuid.UUID, target NegotiationStatus, now time.Time) (*Negotiation, error) {
	if err := p.guard("update negotiation on"); err != nil {
		return nil, err
	}
	n, ok := p.Negotiation(negotiationID)
	if !ok {
		return nil, ErrNegotiationNotFound
	}
	from := n.Status
	switch target {
	case NegotiationSent:
		return nil, fmt.Errorf("%w: cannot revert to Sent", ErrInvalidStatus)
	case NegotiationViewed:
		if from.Closed() {
			return nil, fmt.Errorf("%w: negotiation is %s", ErrNegotiationClosed, from)
		}
		if from == NegotiationViewed {
			return n, nil
		}
		n.ViewedAt = &now
	case NegotiationAccepted, NegotiationRejected:
		if from.Closed() {
			return nil, fmt.Errorf("%w: negotiation is %s", ErrNegotiationClosed, from)
		}
		if n.ViewedAt == nil {
			n.ViewedAt = &now
		}
		n.RespondedAt = &now
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	n.Status = target
	p.UpdatedAt = now
	p.record(events.NegotiationStatusChangedV1{
		ProposalID:    p.ID.String(),
		NegotiationID: n.ID.String(),
		From:          string(from),
		To:            string(target),
		OccurredAt:    now,
	})
	return n, nil
}
