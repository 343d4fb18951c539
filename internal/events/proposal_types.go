package events

import "time"

const (
	TypeProposalCreated                 = "proposal.created.v1"
	TypeProposalStatusChanged           = "proposal.status_changed.v1"
	TypeProposalNegotiationAdded        = "proposal.negotiation_added.v1"
	TypeProposalNegotiationStatusChange = "proposal.negotiation_status_changed.v1"
)

// ProposalCreatedV1 is emitted when a client submits an offer.
type ProposalCreatedV1 struct {
	ProposalID     string    `json:"proposal_id"`
	ProposalNumber string    `json:"proposal_number"`
	PropertyID     string    `json:"property_id"`
	ClientID       string    `json:"client_id"`
	AgentID        string    `json:"agent_id,omitempty"`
	ProposedValue  float64   `json:"proposed_value"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (ProposalCreatedV1) EventType() string { return TypeProposalCreated }
func (e ProposalCreatedV1) Stream() string { return ProposalStream(e.ProposalID) }

// ProposalStatusChangedV1 is emitted on every proposal-level transition.
type ProposalStatusChangedV1 struct {
	ProposalID      string    `json:"proposal_id"`
	ProposalNumber  string    `json:"proposal_number"`
	PropertyID      string    `json:"property_id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ContractID      string    `json:"contract_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (ProposalStatusChangedV1) EventType() string { return TypeProposalStatusChanged }
func (e ProposalStatusChangedV1) Stream() string { return ProposalStream(e.ProposalID) }

// NegotiationAddedV1 is emitted when a message or counter-offer joins the thread.
type NegotiationAddedV1 struct {
	ProposalID    string    `json:"proposal_id"`
	NegotiationID string    `json:"negotiation_id"`
	SenderID      string    `json:"sender_id"`
	CounterOffer  *float64  `json:"counter_offer,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (NegotiationAddedV1) EventType() string { return TypeProposalNegotiationAdded }
func (e NegotiationAddedV1) Stream() string { return ProposalStream(e.ProposalID) }

// NegotiationStatusChangedV1 is emitted when a negotiation is viewed, accepted or rejected.
type NegotiationStatusChangedV1 struct {
	ProposalID    string    `json:"proposal_id"`
	NegotiationID string    `json:"negotiation_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (NegotiationStatusChangedV1) EventType() string { return TypeProposalNegotiationStatusChange }
func (e NegotiationStatusChangedV1) Stream() string { return ProposalStream(e.ProposalID) }
