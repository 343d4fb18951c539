package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification; it drives expiration and the client's icon.
type Type string

const (
	TypeGeneral          Type = "General"
	TypeProposal         Type = "Proposal"
	TypeProposalAccepted Type = "ProposalAccepted"
	TypeNegotiation      Type = "Negotiation"
	TypeVisit            Type = "Visit"
	TypePayment          Type = "Payment"
	TypeContractUpdate   Type = "ContractUpdate"
	TypePropertyUpdate   Type = "PropertyUpdate"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

type Status string

const (
	StatusUnread   Status = "Unread"
	StatusRead     Status = "Read"
	StatusArchived Status = "Archived"
)

// Reference types attached to proposal workflow notifications.
const (
	RefProposalCreated       = "ProposalCreated"
	RefProposalUnderAnalysis = "ProposalUnderAnalysis"
	RefProposalApproved      = "ProposalApproved"
	RefProposalRejected      = "ProposalRejected"
	RefProposalCancelled     = "ProposalCancelled"
	RefNegotiationAdded      = "NegotiationAdded"
	RefNegotiationAccepted   = "NegotiationAccepted"
	RefNegotiationRejected   = "NegotiationRejected"
)

const maxMessageLength = 1000

var (
	ErrNotFound          = errors.New("notify: notification not found")
	ErrMissingRecipient  = errors.New("notify: recipient is required")
	ErrMissingMessage    = errors.New("notify: message is required")
	ErrMessageTooLong    = errors.New("notify: message must be at most 1000 characters")
	ErrStoreNotAvailable = errors.New("notify: store not configured")
)

// Notification is one inbox entry for a user.
type Notification struct {
	ID            uuid.UUID  `json:"id"`
	SenderID      *uuid.UUID `json:"sender_id,omitempty"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Type          Type       `json:"type"`
	Priority      Priority   `json:"priority"`
	Status        Status     `json:"status"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	ReferenceType string     `json:"reference_type,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// Request describes a notification to deliver.
type Request struct {
	SenderID      *uuid.UUID
	RecipientID   uuid.UUID
	Title         string
	Message       string
	Type          Type
	Priority      Priority
	ReferenceID   *uuid.UUID
	ReferenceType string
}

func (r *Request) Validate() error {
	if r.RecipientID == uuid.Nil {
		return ErrMissingRecipient
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return ErrMissingMessage
	}
	if len([]rune(msg)) > maxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ExpirationFor returns when a notification of type t created at createdAt
// drops out of the inbox.
func ExpirationFor(t Type, createdAt time.Time) time.Time {
	switch t {
	case TypePayment:
		return createdAt.AddDate(0, 6, 0)
	case TypeContractUpdate:
		return createdAt.AddDate(0, 3, 0)
	case TypePropertyUpdate:
		return createdAt.AddDate(0, 0, 30)
	case TypeVisit:
		return createdAt.AddDate(0, 0, 7)
	case TypeProposal, TypeProposalAccepted, TypeNegotiation:
		return createdAt.AddDate(0, 0, 14)
	default:
		return createdAt.AddDate(0, 0, 7)
	}
}

func newNotification(req Request, now time.Time) *Notification {
	if req.Type == "" {
		req.Type = TypeGeneral
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	return &Notification{
		ID:            uuid.New(),
		SenderID:      req.SenderID,
		RecipientID:   req.RecipientID,
		Title:         strings.TrimSpace(req.Title),
		Message:       strings.TrimSpace(req.Message),
		Type:          req.Type,
		Priority:      req.Priority,
		Status:        StatusUnread,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		CreatedAt:     now,
		ExpiresAt:     ExpirationFor(req.Type, now),
	}
}
