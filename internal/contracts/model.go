package contracts

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSale Kind = "Sale"
	KindRent Kind = "Rent"
)

type Status string

const StatusDraft Status = "Draft"

// CommissionRate is the agency commission applied to drafted contracts.
const CommissionRate = 0.05

var (
	ErrNotFound    = errors.New("contracts: contract not found")
	ErrInvalidTerm = errors.New("contracts: invalid terms")
)

// Contract is a draft agreement created from an approved proposal.
type Contract struct {
	ID               uuid.UUID  `json:"id"`
	ProposalID       uuid.UUID  `json:"proposal_id"`
	PropertyID       uuid.UUID  `json:"property_id"`
	ClientID         uuid.UUID  `json:"client_id"`
	AgentID          *uuid.UUID `json:"agent_id,omitempty"`
	Kind             Kind       `json:"kind"`
	Status           Status     `json:"status"`
	Value            float64    `json:"value"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	MonthlyRent      *float64   `json:"monthly_rent,omitempty"`
	SecurityDeposit  *float64   `json:"security_deposit,omitempty"`
	PaymentDay       *int       `json:"payment_day,omitempty"`
	PaymentFrequency string     `json:"payment_frequency,omitempty"`
	AutoRenew        bool       `json:"auto_renew"`
	CommissionRate   float64    `json:"commission_rate"`
	CommissionValue  float64    `json:"commission_value"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	Terms            string     `json:"terms"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ProposalTerms carries what an approved proposal contributes to a draft.
type ProposalTerms struct {
	ProposalID       uuid.UUID
	ProposalNumber   string
	PropertyID       uuid.UUID
	ClientID         uuid.UUID
	AgentID          *uuid.UUID
	Value            float64
	Rent             bool
	PaymentMethod    string
	IntendedMoveDate *time.Time
}

// BuildDraft derives contract terms. The start date is the intended move
// date, never earlier than today. Rentals run one year, bill monthly on the
// start day, hold a two-month deposit and renew automatically.
func BuildDraft(t ProposalTerms, now time.Time) (*Contract, error) {
	if t.ProposalID == uuid.Nil || t.PropertyID == uuid.Nil || t.ClientID == uuid.Nil {
		return nil, fmt.Errorf("%w: proposal, property and client are required", ErrInvalidTerm)
	}
	if !(t.Value > 0) {
		return nil, fmt.Errorf("%w: value must be positive", ErrInvalidTerm)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := today
	if t.IntendedMoveDate != nil && t.IntendedMoveDate.After(today) {
		start = *t.IntendedMoveDate
	}

	c := &Contract{
		ID:              uuid.New(),
		ProposalID:      t.ProposalID,
		PropertyID:      t.PropertyID,
		ClientID:        t.ClientID,
		AgentID:         t.AgentID,
		Kind:            KindSale,
		Status:          StatusDraft,
		Value:           roundCents(t.Value),
		StartDate:       start,
		CommissionRate:  CommissionRate,
		CommissionValue: roundCents(t.Value * CommissionRate),
		PaymentMethod:   t.PaymentMethod,
		CreatedAt:       now,
	}
	if t.Rent {
		end := start.AddDate(1, 0, 0)
		rent := roundCents(t.Value)
		deposit := roundCents(t.Value * 2)
		day := start.Day()
		c.Kind = KindRent
		c.EndDate = &end
		c.MonthlyRent = &rent
		c.SecurityDeposit = &deposit
		c.PaymentDay = &day
		c.PaymentFrequency = "Monthly"
		c.AutoRenew = true
		c.Terms = fmt.Sprintf("Rental agreement drafted from proposal %s. Monthly rent %.2f due on day %d, security deposit %.2f, term %s to %s with automatic renewal.",
			t.ProposalNumber, rent, day, deposit, start.Format(time.DateOnly), end.Format(time.DateOnly))
	} else {
		c.Terms = fmt.Sprintf("Purchase agreement drafted from proposal %s. Sale price %.2f, closing on or after %s.",
			t.ProposalNumber, c.Value, start.Format(time.DateOnly))
	}
	return c, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
