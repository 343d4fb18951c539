package proposals

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxProposedValue      = 100_000_000
	maxPaymentMethodLen   = 100
	maxNotesLen           = 2000
	minNegotiationMessage = 5
	maxNegotiationMessage = 2000
	maxRejectionReasonLen = 500
)

// Validate checks the request against now; the move date may not be in the past.
func (r *CreateProposalRequest) Validate(now time.Time) error {
	if r.PropertyID == uuid.Nil {
		return invalid("property_id", "is required")
	}
	if r.ClientID == uuid.Nil {
		return invalid("client_id", "is required")
	}
	if err := validateAmount("proposed_value", r.ProposedValue); err != nil {
		return err
	}
	t, ok := ParseType(string(r.Type))
	if !ok {
		return invalid("type", "must be Purchase or Rent")
	}
	r.Type = t
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	if utf8.RuneCountInString(r.PaymentMethod) > maxPaymentMethodLen {
		return invalid("payment_method", "must be at most 100 characters")
	}
	if r.IntendedMoveDate != nil && !r.IntendedMoveDate.After(now.Add(-24*time.Hour)) {
		return invalid("intended_move_date", "cannot be in the past")
	}
	r.AdditionalNotes = strings.TrimSpace(r.AdditionalNotes)
	if utf8.RuneCountInString(r.AdditionalNotes) > maxNotesLen {
		return invalid("additional_notes", "must be at most 2000 characters")
	}
	return nil
}

func (r *AddNegotiationRequest) Validate() error {
	if r.SenderID == uuid.Nil {
		return invalid("sender_id", "is required")
	}
	if err := validateNegotiationMessage(r.Message); err != nil {
		return err
	}
	if r.CounterOffer != nil {
		return validateAmount("counter_offer", *r.CounterOffer)
	}
	return nil
}

func (r *RejectRequest) Validate() error {
	return validateRejectionReason(r.Reason)
}

func validateAmount(field string, v float64) error {
	if !(v > 0) {
		return invalid(field, "must be greater than zero")
	}
	if v >= maxProposedValue {
		return invalid(field, "must be less than 100,000,000")
	}
	return nil
}

func validateNegotiationMessage(msg string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(msg))
	if n < minNegotiationMessage {
		return invalid("message", "must be at least 5 characters")
	}
	if n > maxNegotiationMessage {
		return invalid("message", "must be at most 2000 characters")
	}
	return nil
}

func validateRejectionReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invalid("rejection_reason", "is required")
	}
	if utf8.RuneCountInString(reason) > maxRejectionReasonLen {
		return invalid("rejection_reason", "must be at most 500 characters")
	}
	return nil
}
