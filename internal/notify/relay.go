package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

const defaultFromName = "Marketplace"

// EmailSender relays a rendered notification through a mail provider.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a notification rendered for e-mail.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string

	// Category carries the notification type so providers can tag and
	// filter relayed mail.
	Category       string
	NotificationID uuid.UUID
}

var emailHTML = template.Must(template.New("notification").Parse(`<!doctype html>
<html><body style="font-family:sans-serif;color:#1f2933">
<p>Hi {{.Name}},</p>
<p>{{.Message}}</p>
{{if .Reference}}<p style="color:#616e7c;font-size:12px">Reference: {{.Reference}}</p>{{end}}
<p style="color:#9aa5b1;font-size:12px">You are receiving this because of activity on your marketplace account.</p>
</body></html>`))

// composeEmail renders n for the recipient's contact details.
func composeEmail(n *Notification, c *Contact) (EmailMessage, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "there"
	}
	subject := n.Title
	if subject == "" {
		subject = fmt.Sprintf("%s notification", n.Type)
	}
	reference := ""
	if n.ReferenceID != nil {
		reference = n.ReferenceID.String()
	}

	var html bytes.Buffer
	err := emailHTML.Execute(&html, struct{ Name, Message, Reference string }{name, n.Message, reference})
	if err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render email: %w", err)
	}
	return EmailMessage{
		To:             c.Email,
		ToName:         c.Name,
		Subject:        subject,
		Text:           fmt.Sprintf("Hi %s,\n\n%s\n", name, n.Message),
		HTML:           html.String(),
		Category:       string(n.Type),
		NotificationID: n.ID,
	}, nil
}

// StubEmailSender logs instead of sending.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("email relay disabled, dropping message", "to", msg.To, "subject", msg.Subject, "notification_id", msg.NotificationID)
	return nil
}
