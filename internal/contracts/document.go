package contracts

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

var documentTemplate = template.Must(template.New("contract").Funcs(template.FuncMap{
	"date":    func(t time.Time) string { return t.Format("02/01/2006") },
	"money":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"percent": func(r float64) string { return fmt.Sprintf("%.2f%%", r*100) },
}).Parse(`REAL ESTATE CONTRACT
Contract no.: {{.C.ID}}
Issued: {{date .Issued}}

CONTRACT DETAILS
Type: {{.C.Kind}}
Status: {{.C.Status}}
Value: {{money .C.Value}}
Start date: {{date .C.StartDate}}
{{- with .C.EndDate}}
End date: {{date .}}
{{- end}}
{{- with .C.MonthlyRent}}

RENTAL TERMS
Monthly rent: {{money .}}
{{- end}}
{{- with .C.SecurityDeposit}}
Security deposit: {{money .}}
{{- end}}
{{- with .C.PaymentDay}}
Payment day: {{.}}
{{- end}}
{{- if eq .C.Kind "Rent"}}
Payment frequency: {{.C.PaymentFrequency}}
Automatic renewal: {{if .C.AutoRenew}}yes{{else}}no{{end}}
{{- end}}

COMMISSION
Rate: {{percent .C.CommissionRate}}
Amount: {{money .C.CommissionValue}}
{{- with .C.PaymentMethod}}
Payment method: {{.}}
{{- end}}

TERMS AND CONDITIONS
{{.C.Terms}}

Proposal: {{.C.ProposalID}}
Property: {{.C.PropertyID}}
Client: {{.C.ClientID}}
{{- with .C.AgentID}}
Agent: {{.}}
{{- end}}
`))

// RenderDocument produces the printable text of c as issued at issued.
func RenderDocument(c *Contract, issued time.Time) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: contract required", ErrInvalidTerm)
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, struct {
		C      *Contract
		Issued time.Time
	}{C: c, Issued: issued}); err != nil {
		return nil, fmt.Errorf("contracts: render document: %w", err)
	}
	return buf.Bytes(), nil
}
