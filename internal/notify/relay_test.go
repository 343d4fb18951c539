package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSendGrid struct {
	status int
	err    error
	last   *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.last = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func sampleEmail(t *testing.T) EmailMessage {
	t.Helper()
	ref := uuid.New()
	n := newNotification(Request{
		RecipientID:   uuid.New(),
		Title:         "Proposal approved",
		Message:       "Your offer on <Lakeview Loft> was approved.",
		Type:          TypeProposalAccepted,
		Priority:      PriorityHigh,
		ReferenceID:   &ref,
		ReferenceType: "ProposalApproved",
	}, time.Now().UTC())
	msg, err := composeEmail(n, &Contact{Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)
	return msg
}

func TestComposeEmail(t *testing.T) {
	msg := sampleEmail(t)
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Proposal approved", msg.Subject)
	assert.Equal(t, "ProposalAccepted", msg.Category)
	assert.Contains(t, msg.Text, "Hi Ana,")
	assert.Contains(t, msg.HTML, "&lt;Lakeview Loft&gt;", "message is escaped in html")
	assert.NotEqual(t, uuid.Nil, msg.NotificationID)

	untitled, err := composeEmail(newNotification(Request{RecipientID: uuid.New(), Message: "hello", Type: TypeVisit}, time.Now()), &Contact{Email: "x@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Visit notification", untitled.Subject)
	assert.True(t, strings.HasPrefix(untitled.Text, "Hi there,"))
}

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "noreply@example.com"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.key", FromEmail: "noreply@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, defaultFromName, sender.fromName)
}

func TestSendGridSenderSend(t *testing.T) {
	api := &fakeSendGrid{status: 202}
	sender := newSendGridSender(api, SendGridConfig{FromEmail: "noreply@example.com"}, testLogger())
	msg := sampleEmail(t)

	require.NoError(t, sender.Send(context.Background(), msg))
	require.NotNil(t, api.last)
	assert.Equal(t, "Proposal approved", api.last.Subject)
	assert.Equal(t, []string{"proposalaccepted"}, api.last.Categories)
	assert.Equal(t, msg.NotificationID.String(), api.last.CustomArgs["notification_id"])
	require.Len(t, api.last.Content, 2)

	api.status = 401
	assert.Error(t, sender.Send(context.Background(), msg))

	api.err = errors.New("connection reset")
	assert.Error(t, sender.Send(context.Background(), msg))

	var unconfigured *SendGridSender
	assert.Error(t, unconfigured.Send(context.Background(), msg))
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "noreply@example.com", ConfigurationSet: "notifications"}, testLogger())
	require.NotNil(t, sender)

	require.NoError(t, sender.Send(context.Background(), sampleEmail(t)))
	assert.Equal(t, "Marketplace <noreply@example.com>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, "notifications", aws.ToString(api.input.ConfigurationSetName))
	require.Len(t, api.input.EmailTags, 1)
	assert.Equal(t, "ProposalAccepted", aws.ToString(api.input.EmailTags[0].Value))
	body := api.input.Content.Simple.Body
	assert.NotNil(t, body.Text)
	assert.NotNil(t, body.Html)

	api.err = errors.New("throttled")
	assert.Error(t, sender.Send(context.Background(), sampleEmail(t)))

	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}

func TestStubEmailSender(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(testLogger()).Send(context.Background(), sampleEmail(t)))
}
